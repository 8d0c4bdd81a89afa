package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/subcommands"

	"github.com/rickgao/portfolio-stream/internal/connection"
	"github.com/rickgao/portfolio-stream/internal/router"
	"github.com/rickgao/portfolio-stream/internal/store"
	"github.com/rickgao/portfolio-stream/internal/subscription"
)

// tailCmd connects straight to the stream, skipping the session gate, and
// prints every store change to the console.
type tailCmd struct {
	configFlags
	url         string
	instruments string
	verbose     bool
	statsEvery  time.Duration
}

func (*tailCmd) Name() string     { return "tail" }
func (*tailCmd) Synopsis() string { return "stream changes to the console" }
func (*tailCmd) Usage() string {
	return `tail [-config <file>] [-url <ws url>] [-instruments AAPL,MSFT] [-verbose]

Connects to the event stream without checking the backend session and prints
each store change. Useful for checking a stream endpoint by hand.
`
}

func (c *tailCmd) SetFlags(f *flag.FlagSet) {
	c.configFlags.set(f)
	f.StringVar(&c.url, "url", "", "stream URL (overrides config)")
	f.StringVar(&c.instruments, "instruments", "", "comma-separated instruments to subscribe (overrides config)")
	f.BoolVar(&c.verbose, "verbose", false, "print full records as JSON")
	f.DurationVar(&c.statsEvery, "stats", 10*time.Second, "stats interval")
}

func (c *tailCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := c.load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	if c.url != "" {
		cfg.Stream.URL = c.url
	}
	if c.instruments != "" {
		cfg.Subscriptions.Instruments = splitList(c.instruments)
	}

	logger := newLogger(cfg.Logging, os.Stderr)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st := store.New(storeConfig(cfg.Store), logger)
	rtr := router.NewRouter(router.DefaultRouterConfig(), st, logger)
	mgr := connection.NewManager(managerConfig(cfg.Stream), rtr, logger)
	subs := subscription.NewRegistry(mgr, st, logger)
	mgr.OnOpen(subs.Resubscribe)
	mgr.OnStatus(func(s connection.State) {
		fmt.Fprintf(os.Stdout, "[STATUS] %s %s\n", s.Status, s.Message)
	})

	for _, id := range cfg.Subscriptions.Instruments {
		if err := subs.Subscribe(id); err != nil {
			logger.Warn("skipping instrument", "id", id, "error", err)
		}
	}

	w := st.Watch()
	defer w.Close()
	go func() {
		for {
			ch, ok := w.Next(ctx)
			if !ok {
				return
			}
			printChange(os.Stdout, st, ch, c.verbose)
		}
	}()

	go func() {
		ticker := time.NewTicker(c.statsEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rs := rtr.Stats()
				cs := mgr.Stats()
				logger.Info("stats",
					"opens", cs.Opens,
					"closes", cs.Closes,
					"router_received", rs.MessagesReceived,
					"router_routed", rs.MessagesRouted,
					"parse_errors", rs.ParseErrors,
					"unknown", rs.UnknownMessages,
					"store_version", st.Version(),
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop", "url", cfg.Stream.URL)
	mgr.Connect()

	<-ctx.Done()
	mgr.Disconnect()
	logger.Info("shutdown complete")
	return subcommands.ExitSuccess
}

// printChange writes one line describing ch.
func printChange(out io.Writer, st *store.Store, ch store.Change, verbose bool) {
	tag := strings.ToUpper(string(ch.Kind))
	switch ch.Kind {
	case store.ChangeInstrumentAdded, store.ChangeInstrument:
		inst, ok := st.Instrument(ch.Key)
		if !ok {
			fmt.Fprintf(out, "[%s] %s v=%d (gone)\n", tag, ch.Key, ch.Version)
			return
		}
		if verbose {
			printJSON(out, tag, inst)
			return
		}
		fmt.Fprintf(out, "[%s] %s last=%s qty=%s value=%s v=%d\n",
			tag, inst.Symbol, inst.LastPrice, inst.Quantity, inst.Value, ch.Version)
	case store.ChangePnL:
		core := st.CoreTotals()
		if verbose {
			printJSON(out, tag, st.PnL())
			return
		}
		fmt.Fprintf(out, "[%s] core=%s dpl=%s upl=%s nl=%s v=%d\n",
			tag, core.Key, core.DailyRealized, core.Unrealized, core.NetLiq, ch.Version)
	case store.ChangeError:
		errs := st.Errors()
		if len(errs) > 0 {
			last := errs[len(errs)-1]
			fmt.Fprintf(out, "[%s] %s: %s v=%d\n", tag, last.Source, last.Message, ch.Version)
			return
		}
		fmt.Fprintf(out, "[%s] v=%d\n", tag, ch.Version)
	default:
		if ch.Key != "" {
			fmt.Fprintf(out, "[%s] %s v=%d\n", tag, ch.Key, ch.Version)
			return
		}
		fmt.Fprintf(out, "[%s] v=%d\n", tag, ch.Version)
	}
}

func printJSON(out io.Writer, tag string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		slog.Default().Warn("marshal change", "error", err)
		return
	}
	fmt.Fprintf(out, "[%s] %s\n", tag, data)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
