package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/telepoll/telepoll/pkg/types"
)

// CollectFunc gathers the metrics of one pass. It may return metrics together
// with an error when only part of the collection failed.
type CollectFunc func(ctx context.Context) ([]types.Metric, error)

// ForwardFunc delivers the metrics of one pass to the sink.
type ForwardFunc func(ctx context.Context, metrics []types.Metric) error

// CycleReport describes the outcome of one collection pass.
type CycleReport struct {
	Source     string
	Started    time.Time
	Duration   time.Duration
	Collected  int
	Forwarded  int
	CollectErr error
	ForwardErr error
}

// OK reports whether the pass completed without any error.
func (r CycleReport) OK() bool {
	return r.CollectErr == nil && r.ForwardErr == nil
}

// Observer receives the report of every completed pass. Implementations must
// be safe for concurrent use when shared between loops.
type Observer interface {
	RecordCycle(r CycleReport)
}

// Loop runs collect-then-forward passes for one source at a fixed cadence.
type Loop struct {
	source    string
	interval  time.Duration
	collect   CollectFunc
	forward   ForwardFunc
	observers []Observer

	now   func() time.Time                       // injectable for tests
	after func(d time.Duration) <-chan time.Time // injectable for tests
}

// New creates a Loop for source that runs one pass every interval.
func New(source string, interval time.Duration, collect CollectFunc, forward ForwardFunc, observers ...Observer) *Loop {
	return &Loop{
		source:    source,
		interval:  interval,
		collect:   collect,
		forward:   forward,
		observers: observers,
		now:       time.Now,
		after:     time.After,
	}
}

// Run executes passes until ctx is cancelled and then returns nil.
//
// Errors and panics raised by a pass are logged and never stop the loop.
// After each pass Run sleeps for the remainder of the interval; when a pass
// overruns the interval the next one starts immediately. Cancellation is
// checked before every pass and interrupts a sleep in progress.
func (l *Loop) Run(ctx context.Context) error {
	slog.Info("scheduler: started", "source", l.source, "interval", l.interval)
	for {
		if ctx.Err() != nil {
			slog.Info("scheduler: stopped", "source", l.source)
			return nil
		}

		report := l.RunOnce(ctx)

		wait := l.interval - report.Duration
		if wait <= 0 {
			slog.Warn("scheduler: pass overran interval",
				"source", l.source,
				"duration", report.Duration,
				"interval", l.interval)
			continue
		}
		select {
		case <-ctx.Done():
		case <-l.after(wait):
		}
	}
}

// RunOnce performs a single collect-then-forward pass and returns its report.
// Partial metrics returned alongside a collect error are still forwarded.
func (l *Loop) RunOnce(ctx context.Context) CycleReport {
	report := CycleReport{Source: l.source, Started: l.now()}

	metrics, err := l.safeCollect(ctx)
	report.Collected = len(metrics)
	if err != nil {
		report.CollectErr = err
		slog.Error("scheduler: failed to get metrics", "source", l.source, "err", err)
	}

	if len(metrics) == 0 {
		slog.Info("scheduler: no metrics to send", "source", l.source)
	} else if err := l.safeForward(ctx, metrics); err != nil {
		report.ForwardErr = err
		slog.Error("scheduler: failed to send metrics", "source", l.source, "err", err)
	} else {
		report.Forwarded = len(metrics)
	}

	report.Duration = l.now().Sub(report.Started)
	for _, o := range l.observers {
		o.RecordCycle(report)
	}
	return report
}

func (l *Loop) safeCollect(ctx context.Context) (metrics []types.Metric, err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics, err = nil, fmt.Errorf("collect panicked: %v", r)
		}
	}()
	return l.collect(ctx)
}

func (l *Loop) safeForward(ctx context.Context, metrics []types.Metric) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("forward panicked: %v", r)
		}
	}()
	return l.forward(ctx, metrics)
}
