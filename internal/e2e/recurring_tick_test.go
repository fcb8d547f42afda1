package e2e

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/gavelworks/gavelworks/internal/jobs"
	"github.com/gavelworks/gavelworks/jobs"
)

type stubDueProcessor struct {
	calls []time.Time
	n     int
	err   error
}

func (p *stubDueProcessor) ProcessDue(_ context.Context, now time.Time) (int, error) {
	p.calls = append(p.calls, now)
	return p.n, p.err
}

func TestRecurringTickRecordsJobMetrics(t *testing.T) {
	processor := &stubDueProcessor{n: 3}
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	handler := jobs.NewRecurringHandler(slog.Default(), processor, nil, metrics)
	scheduled := time.Date(2026, time.March, 1, 6, 0, 0, 0, time.UTC)
	task, err := jobs.NewRecurringProcessDueTask(scheduled)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	if err := handler(context.Background(), task); err != nil {
		t.Fatalf("handle tick: %v", err)
	}
	if len(processor.calls) != 1 {
		t.Fatalf("expected 1 process call, got %d", len(processor.calls))
	}
	if !processor.calls[0].Equal(scheduled) {
		t.Fatalf("expected scheduled time %s, got %s", scheduled, processor.calls[0])
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if !assertCounter(t, families, "gavelworks_jobs_total", map[string]string{"job": jobs.TaskRecurringProcessDue, "status": "success"}, 1) {
		t.Fatalf("expected gavelworks_jobs_total increment for scheduler tick")
	}
	if !metricExists(families, "gavelworks_job_duration_seconds") {
		t.Fatalf("expected gavelworks_job_duration_seconds to be recorded")
	}
}

func assertCounter(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string, expected float64) bool {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if matchLabels(metric.GetLabel(), labels) {
				if metric.GetCounter() == nil {
					return false
				}
				if metric.GetCounter().GetValue() == expected {
					return true
				}
			}
		}
	}
	return false
}

func metricExists(families []*dto.MetricFamily, name string) bool {
	for _, fam := range families {
		if fam.GetName() == name {
			return true
		}
	}
	return false
}

func matchLabels(pairs []*dto.LabelPair, expected map[string]string) bool {
	if len(expected) == 0 {
		return true
	}
	seen := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		seen[pair.GetName()] = pair.GetValue()
	}
	for k, v := range expected {
		if seen[k] != v {
			return false
		}
	}
	return true
}
