package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	metrics.ObserveRequest("block", 403, 12*time.Millisecond)
	metrics.ObserveIntervention("uri", "status")
	metrics.ObserveRuleLoad(42, 1)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("expected metrics gather to succeed: %v", err)
	}
	if len(families) == 0 {
		t.Fatalf("expected gathered metric families")
	}
}

func TestMetricsNilReceiver(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("pass", 200, time.Millisecond)
	m.ObserveIntervention("uri", "redirect")
	m.ObserveRuleLoad(0, 0)
}
