// Package telemetry exposes Prometheus metrics for the ctrlr link.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "ctrlr"

// Metrics holds the link collectors. All methods are nil-safe so callers
// can run without metrics.
type Metrics struct {
	Registry *prometheus.Registry

	transitions *prometheus.CounterVec
	state       *prometheus.GaugeVec
	frames      *prometheus.CounterVec
	drops       *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	discovery   *prometheus.CounterVec
	buildInfo   *prometheus.GaugeVec
}

// New creates Metrics on a private registry
func New() *Metrics {
	startTime := time.Now()
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "state_transitions_total",
				Help:      "Connection state transitions by role and entered state.",
			},
			[]string{"role", "state"},
		),
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "connection_state",
				Help:      "Current connection state (numeric, see status.State).",
			},
			[]string{"role"},
		),
		frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_total",
				Help:      "Frames read or written by direction and kind.",
			},
			[]string{"direction", "kind"},
		),
		drops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dropped_messages_total",
				Help:      "Control messages dropped, by reason.",
			},
			[]string{"reason"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rejected_endpoints_total",
				Help:      "Endpoints added to the rejected set, by reason.",
			},
			[]string{"reason"},
		),
		discovery: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "discovery_cycles_total",
				Help:      "Completed discovery cycles by result.",
			},
			[]string{"result"},
		),
		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "build_info",
				Help:      "Build info (constant 1, labeled by version and commit).",
			},
			[]string{"version", "commit"},
		),
	}
	uptime := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
	m.Registry.MustRegister(m.transitions, m.state, m.frames, m.drops, m.rejections, m.discovery, m.buildInfo, uptime)
	return m
}

// SetBuildInfo should be called once at startup
func (m *Metrics) SetBuildInfo(version, commit string) {
	if m == nil {
		return
	}
	m.buildInfo.WithLabelValues(version, commit).Set(1)
}

// StateChanged records entry into state
func (m *Metrics) StateChanged(role, state string, value int) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(role, state).Inc()
	m.state.WithLabelValues(role).Set(float64(value))
}

// Frame counts one frame; direction is "in" or "out", kind "control" or "handshake".
func (m *Metrics) Frame(direction, kind string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(direction, kind).Inc()
}

// Dropped counts a dropped outbound or inbound message
func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.drops.WithLabelValues(reason).Inc()
}

// Rejected counts an endpoint added to the rejected set
func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}

// Discovery counts a finished discovery cycle
func (m *Metrics) Discovery(result string) {
	if m == nil {
		return
	}
	m.discovery.WithLabelValues(result).Inc()
}

// Handler exposes /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve runs an HTTP server with /metrics and /healthz until ctx ends.
func Serve(ctx context.Context, addr string, m *Metrics, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
