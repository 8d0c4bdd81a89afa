package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "portfolio_stream"

var (
	FramesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "frames_total", Help: "Inbound frames routed, by type",
	}, []string{"type"})
	ParseErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "parse_errors_total", Help: "Inbound frames dropped as malformed",
	})
	UnknownFramesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "unknown_frames_total", Help: "Inbound frames with an unrecognised type",
	})
	ReconnectsScheduledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "reconnects_scheduled_total", Help: "Reconnect timers scheduled after a close",
	})
	ConnectionStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Name: "connection_status", Help: "1 for the current connection status, 0 otherwise",
	}, []string{"status"})
	ActiveSubscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "active_subscriptions", Help: "Instruments with at least one subscriber",
	})
	StoreVersion = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "store_version", Help: "Writes applied to the store",
	})
	AuthChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "auth_checks_total", Help: "Auth status checks by result",
	}, []string{"result"})
)

var statuses = []string{"disconnected", "connecting", "connected", "error"}

// SetConnectionStatus flips the status gauge to current.
func SetConnectionStatus(current string) {
	for _, s := range statuses {
		v := 0.0
		if s == current {
			v = 1
		}
		ConnectionStatus.WithLabelValues(s).Set(v)
	}
}

// Init registers every collector on a fresh registry.
func Init(logger *slog.Logger) *prometheus.Registry {
	if logger == nil {
		logger = slog.Default()
	}

	reg := prometheus.NewRegistry()
	toRegister := []prometheus.Collector{
		FramesTotal, ParseErrorsTotal, UnknownFramesTotal,
		ReconnectsScheduledTotal, ConnectionStatus,
		ActiveSubscriptions, StoreVersion, AuthChecksTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, c := range toRegister {
		if err := reg.Register(c); err != nil {
			logger.Warn("metric registration failed", "error", err)
		}
	}
	logger.Info("prometheus metrics initialized")
	return reg
}

// Handler serves reg in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
