package pipeline

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

type multiObserver []Observer

// MultiObserver fans each hook out to every observer in order. Nil entries are
// skipped; hook errors are joined.
func MultiObserver(observers ...Observer) Observer {
	list := make(multiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	return list
}

func (m multiObserver) BeforePipeline(ctx context.Context, runID, name string, input arrow.Table) error {
	var errs []error
	for _, o := range m {
		errs = append(errs, o.BeforePipeline(ctx, runID, name, input))
	}
	return errors.Join(errs...)
}

func (m multiObserver) AfterPipeline(ctx context.Context, runID string, result arrow.Table, err error) error {
	var errs []error
	for _, o := range m {
		errs = append(errs, o.AfterPipeline(ctx, runID, result, err))
	}
	return errors.Join(errs...)
}

func (m multiObserver) BeforeStep(ctx context.Context, runID string, index int, input arrow.Table) error {
	var errs []error
	for _, o := range m {
		errs = append(errs, o.BeforeStep(ctx, runID, index, input))
	}
	return errors.Join(errs...)
}

func (m multiObserver) AfterStep(ctx context.Context, runID string, index int, input, output arrow.Table, stepErr error, duration time.Duration) error {
	var errs []error
	for _, o := range m {
		errs = append(errs, o.AfterStep(ctx, runID, index, input, output, stepErr, duration))
	}
	return errors.Join(errs...)
}

// LogObserver writes one structured log line per hook.
type LogObserver struct {
	logger *zap.Logger
}

// NewLogObserver returns an observer logging to logger. A nil logger discards.
func NewLogObserver(logger *zap.Logger) *LogObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogObserver{logger: logger}
}

func (o *LogObserver) BeforePipeline(ctx context.Context, runID, name string, input arrow.Table) error {
	o.logger.Info("pipeline started",
		zap.String("run_id", runID),
		zap.String("pipeline", name),
		zap.Int64("rows", numRows(input)))
	return nil
}

func (o *LogObserver) AfterPipeline(ctx context.Context, runID string, result arrow.Table, err error) error {
	if err != nil {
		o.logger.Error("pipeline failed", zap.String("run_id", runID), zap.Error(err))
		return nil
	}
	o.logger.Info("pipeline finished", zap.String("run_id", runID), zap.Int64("rows", numRows(result)))
	return nil
}

func (o *LogObserver) BeforeStep(ctx context.Context, runID string, index int, input arrow.Table) error {
	o.logger.Debug("step started", zap.String("run_id", runID), zap.Int("step", index))
	return nil
}

func (o *LogObserver) AfterStep(ctx context.Context, runID string, index int, input, output arrow.Table, stepErr error, duration time.Duration) error {
	fields := []zap.Field{
		zap.String("run_id", runID),
		zap.Int("step", index),
		zap.Duration("duration", duration),
	}
	if stepErr != nil {
		o.logger.Warn("step failed", append(fields, zap.Error(stepErr))...)
		return nil
	}
	o.logger.Debug("step finished", append(fields, zap.Int64("rows", numRows(output)))...)
	return nil
}

// MetricsObserver records run outcomes and step latencies.
type MetricsObserver struct {
	runs     *prometheus.CounterVec
	steps    *prometheus.HistogramVec
	rowsOut  prometheus.Counter
	inflight prometheus.Gauge
}

// NewMetricsObserver registers the pipeline metrics with reg. A nil reg
// leaves the metrics unregistered.
func NewMetricsObserver(reg prometheus.Registerer) *MetricsObserver {
	return &MetricsObserver{
		runs: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "tabpipe",
			Name:      "pipeline_runs_total",
			Help:      "Total number of pipeline runs by outcome.",
		}, []string{"outcome"}),
		steps: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tabpipe",
			Name:      "pipeline_step_duration_seconds",
			Help:      "Time spent in a pipeline step.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step", "outcome"}),
		rowsOut: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "tabpipe",
			Name:      "pipeline_rows_total",
			Help:      "Total number of rows produced by successful runs.",
		}),
		inflight: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "tabpipe",
			Name:      "pipeline_runs_inflight",
			Help:      "Number of pipeline runs in progress.",
		}),
	}
}

func (o *MetricsObserver) BeforePipeline(ctx context.Context, runID, name string, input arrow.Table) error {
	o.inflight.Inc()
	return nil
}

func (o *MetricsObserver) AfterPipeline(ctx context.Context, runID string, result arrow.Table, err error) error {
	o.inflight.Dec()
	o.runs.WithLabelValues(outcome(err)).Inc()
	if err == nil {
		o.rowsOut.Add(float64(numRows(result)))
	}
	return nil
}

func (o *MetricsObserver) BeforeStep(ctx context.Context, runID string, index int, input arrow.Table) error {
	return nil
}

func (o *MetricsObserver) AfterStep(ctx context.Context, runID string, index int, input, output arrow.Table, stepErr error, duration time.Duration) error {
	o.steps.WithLabelValues(strconv.Itoa(index), outcome(stepErr)).Observe(duration.Seconds())
	return nil
}

func outcome(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}

func numRows(t arrow.Table) int64 {
	if t == nil {
		return 0
	}
	return t.NumRows()
}
