package engine

import (
	"go.opentelemetry.io/otel/metric"
)

type engineMetrics struct {
	created  metric.Int64Counter
	skipped  metric.Int64Counter
	failed   metric.Int64Counter
	polls    metric.Int64Counter
	timeouts metric.Int64Counter
	expired  metric.Int64Counter
}

func newEngineMetrics(meter metric.Meter) (*engineMetrics, error) {
	m := &engineMetrics{}
	var err error

	counters := []struct {
		dst         *metric.Int64Counter
		name        string
		description string
		unit        string
	}{
		{&m.created, "tally.tasks.created", "Tasks posted to the marketplace", "{task}"},
		{&m.skipped, "tally.tasks.skipped", "Create calls answered from the ledger", "{task}"},
		{&m.failed, "tally.tasks.failed", "Create calls the marketplace rejected", "{task}"},
		{&m.polls, "tally.polls.total", "Marketplace assignment queries", "{poll}"},
		{&m.timeouts, "tally.waits.timed_out", "Waits that gave up before completion", "{wait}"},
		{&m.expired, "tally.tasks.expired", "Tasks expired by reconciliation", "{task}"},
	}

	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name,
			metric.WithDescription(c.description),
			metric.WithUnit(c.unit),
		)
		if err != nil {
			return nil, err
		}
	}

	return m, nil
}
