package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/3leaps/seqsubmit/pkg/job"
)

const meterName = "github.com/3leaps/seqsubmit"

// Metrics records job lifecycle and stage timings. It satisfies the
// scheduler's metrics sink and its StageCompleted method is a pipeline stage
// observer.
type Metrics struct {
	created     metric.Int64Counter
	completed   metric.Int64Counter
	running     metric.Int64UpDownCounter
	jobDuration metric.Float64Histogram
	stageTime   metric.Float64Histogram
	stageErrors metric.Int64Counter
}

// NewMetrics registers the job instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.created, err = meter.Int64Counter("seqsubmit_jobs_created",
		metric.WithDescription("Jobs created")); err != nil {
		return nil, err
	}
	if m.completed, err = meter.Int64Counter("seqsubmit_jobs_completed",
		metric.WithDescription("Jobs that reached a terminal status")); err != nil {
		return nil, err
	}
	if m.running, err = meter.Int64UpDownCounter("seqsubmit_jobs_running",
		metric.WithDescription("Jobs currently executing in this process")); err != nil {
		return nil, err
	}
	if m.jobDuration, err = meter.Float64Histogram("seqsubmit_job_duration",
		metric.WithDescription("Wall time of a job run"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.stageTime, err = meter.Float64Histogram("seqsubmit_stage_duration",
		metric.WithDescription("Wall time of a pipeline stage"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.stageErrors, err = meter.Int64Counter("seqsubmit_stage_errors",
		metric.WithDescription("Pipeline stages that returned an error")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) JobCreated(ctx context.Context) {
	m.created.Add(ctx, 1)
}

func (m *Metrics) JobStarted(ctx context.Context) {
	m.running.Add(ctx, 1)
}

func (m *Metrics) JobCompleted(ctx context.Context, status job.Status, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", string(status)))
	m.running.Add(ctx, -1)
	m.completed.Add(ctx, 1, attrs)
	m.jobDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// StageCompleted records one stage run.
func (m *Metrics) StageCompleted(stage string, elapsed time.Duration, err error) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("stage", stage))
	m.stageTime.Record(ctx, elapsed.Seconds(), attrs)
	if err != nil {
		m.stageErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("kind", job.KindName(err))))
	}
}
