package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveProviderCall(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	c.ObserveProviderCall("gsi", OutcomeOK, 120*time.Millisecond)
	c.ObserveProviderCall("gsi", OutcomeFailed, time.Second)
	c.ObserveProviderCall("gsi", OutcomeFailed, time.Second)

	if got := testutil.ToFloat64(c.ProviderCalls.WithLabelValues("gsi", OutcomeFailed)); got != 2 {
		t.Fatalf("provider_calls_total{failed} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.ProviderCalls.WithLabelValues("gsi", OutcomeOK)); got != 1 {
		t.Fatalf("provider_calls_total{ok} = %v, want 1", got)
	}
}

func TestRegisteringTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("first NewCollector: %v", err)
	}
	second, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second NewCollector: %v", err)
	}

	first.ObserveBatch(BatchCommitted)
	second.ObserveBatch(BatchCommitted)

	if got := testutil.ToFloat64(first.Batches.WithLabelValues(BatchCommitted)); got != 2 {
		t.Fatalf("aggregation_batches_total = %v, want 2", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.ObserveProviderCall("x", OutcomeOK, time.Millisecond)
	c.ObserveBatch(BatchDiscarded)
	c.ObserveSnapshotUpdate()
	c.ObservePressureReading()
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	c.ObserveSnapshotUpdate()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "snapshot_updates_total 1") {
		t.Fatalf("metrics output missing snapshot_updates_total:\n%s", body)
	}
}
