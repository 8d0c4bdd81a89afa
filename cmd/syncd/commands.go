package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/subcommands"

	"github.com/rickgao/portfolio-stream/internal/config"
	"github.com/rickgao/portfolio-stream/internal/version"
)

// configFlags are shared by commands that read a config file.
type configFlags struct {
	configPath string
	envPath    string
}

func (c *configFlags) set(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "configs/syncd.yaml", "path to config file")
	f.StringVar(&c.envPath, "env", ".env", "optional dotenv file loaded before the config")
}

func (c *configFlags) load() (*config.Config, error) {
	if err := config.LoadEnvFile(c.envPath); err != nil {
		return nil, err
	}
	return config.LoadAndValidate(c.configPath)
}

// --- runCmd ---

type runCmd struct {
	configFlags
	shutdownTimeout time.Duration
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "connect to the stream and serve the synchronized model" }
func (*runCmd) Usage() string {
	return `run [-config <file>] [-env <file>]

Starts the session gate, the stream connection and the observer HTTP server.
Runs until SIGINT or SIGTERM.
`
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	c.configFlags.set(f)
	f.DurationVar(&c.shutdownTimeout, "shutdown-timeout", 10*time.Second, "grace period for shutdown")
}

func (c *runCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := c.load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	logger := newLogger(cfg.Logging, os.Stdout)
	logger.Info("starting syncd",
		"version", version.Version,
		"commit", version.Commit,
		"config", c.configPath,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a := newApp(cfg, logger)
	if err := a.start(ctx); err != nil {
		logger.Error("failed to start", "error", err)
		return subcommands.ExitFailure
	}

	logger.Info("syncd running",
		"stream_url", cfg.Stream.URL,
		"http_addr", cfg.Server.Addr,
		"instruments", len(cfg.Subscriptions.Instruments),
	)

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-a.serverErr:
		logger.Error("http server error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), c.shutdownTimeout)
	defer shutdownCancel()
	a.stop(shutdownCtx)

	logger.Info("syncd stopped")
	return subcommands.ExitSuccess
}

// --- validateCmd ---

type validateCmd struct {
	configFlags
}

func (*validateCmd) Name() string     { return "validate" }
func (*validateCmd) Synopsis() string { return "check a config file and exit" }
func (*validateCmd) Usage() string {
	return `validate [-config <file>] [-env <file>]

Loads the config with defaults applied and reports validation errors.
`
}

func (c *validateCmd) SetFlags(f *flag.FlagSet) { c.configFlags.set(f) }

func (c *validateCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := c.load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("config ok: stream=%s backend=%s addr=%s\n",
		cfg.Stream.URL, cfg.Backend.BaseURL, cfg.Server.Addr)
	return subcommands.ExitSuccess
}

// --- versionCmd ---

type versionCmd struct{}

func (*versionCmd) Name() string             { return "version" }
func (*versionCmd) Synopsis() string         { return "print version information" }
func (*versionCmd) Usage() string            { return "version\n" }
func (*versionCmd) SetFlags(_ *flag.FlagSet) {}

func (*versionCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	fmt.Println(version.String())
	return subcommands.ExitSuccess
}
