package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestTrackerRecordsRunsAndFailures(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	if err := m.Track("stock:alert_scan").End(nil); err != nil {
		t.Fatalf("expected nil error passthrough, got %v", err)
	}
	failure := errors.New("redis down")
	if err := m.Track("stock:alert_scan").End(failure); err != failure {
		t.Fatalf("expected error passthrough, got %v", err)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if got := counterValue(families, "saffron_jobs_runs_total", "status", "failure"); got != 1 {
		t.Fatalf("expected 1 failed run, got %v", got)
	}
	if got := counterValue(families, "saffron_jobs_runs_total", "status", "success"); got != 1 {
		t.Fatalf("expected 1 successful run, got %v", got)
	}
	if got := counterValue(families, "saffron_jobs_failures_total", "job", "stock:alert_scan"); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
}

func TestAddDriftIgnoresNonPositiveCounts(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.AddDrift(0)
	m.AddDrift(-3)
	m.AddDrift(2)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if got := counterValue(families, "saffron_ledger_drift_total", "", ""); got != 2 {
		t.Fatalf("expected drift counter 2, got %v", got)
	}
}

func counterValue(families []*dto.MetricFamily, name, labelName, labelValue string) float64 {
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if labelName == "" {
				return metric.GetCounter().GetValue()
			}
			for _, label := range metric.GetLabel() {
				if label.GetName() == labelName && label.GetValue() == labelValue {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return -1
}
