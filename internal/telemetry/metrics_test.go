package telemetry

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Frame("in", "control")
	m.Frame("in", "control")
	m.Dropped("no_destination")
	m.StateChanged("discoverer", "verified", 5)

	if got := testutil.ToFloat64(m.frames.WithLabelValues("in", "control")); got != 2 {
		t.Fatalf("frames = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.drops.WithLabelValues("no_destination")); got != 1 {
		t.Fatalf("drops = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.state.WithLabelValues("discoverer")); got != 5 {
		t.Fatalf("state gauge = %v, want 5", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.Frame("out", "control")
	m.Dropped("x")
	m.Rejected("y")
	m.Discovery("ok")
	m.StateChanged("r", "s", 1)
	m.SetBuildInfo("dev", "none")
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.SetBuildInfo("dev", "abc123")
	m.Rejected("handshake_timeout")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`ctrlr_build_info{commit="abc123",version="dev"} 1`,
		`ctrlr_rejected_endpoints_total{reason="handshake_timeout"} 1`,
		"ctrlr_uptime_seconds",
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
