package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestDialogMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDialogMetrics(reg)
	m.ObserveTurn("confirmation")
	m.ObserveTurn("confirmation")
	m.ObserveBooking("book", "conflict")
	m.ObserveFallback("classifier", "timeout")
	m.ObserveExternalCall("provider_directory", 0.25)

	if got := testutil.ToFloat64(m.turnsTotal.WithLabelValues("confirmation")); got != 2 {
		t.Fatalf("expected 2 confirmation turns, got %v", got)
	}
	if got := testutil.ToFloat64(m.bookingsTotal.WithLabelValues("book", "conflict")); got != 1 {
		t.Fatalf("expected 1 conflict, got %v", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var hist *dto.Histogram
	for _, fam := range families {
		if fam.GetName() == "cliniccall_external_call_seconds" {
			hist = fam.GetMetric()[0].GetHistogram()
		}
	}
	if hist == nil || hist.GetSampleCount() != 1 {
		t.Fatalf("expected one latency sample, got %v", hist)
	}
}

func TestDialogMetricsDefaultRegistry(t *testing.T) {
	m := NewDialogMetrics(nil)
	m.ObserveTurn("fallback")
	prometheus.DefaultRegisterer.Unregister(m.turnsTotal)
	prometheus.DefaultRegisterer.Unregister(m.bookingsTotal)
	prometheus.DefaultRegisterer.Unregister(m.fallbacksTotal)
	prometheus.DefaultRegisterer.Unregister(m.externalCall)
}

func TestDialogMetricsNilSafe(t *testing.T) {
	var m *DialogMetrics
	m.ObserveTurn("branch")
	m.ObserveBooking("book", "booked")
	m.ObserveFallback("classifier", "error")
	m.ObserveExternalCall("classifier", 0.1)
}
