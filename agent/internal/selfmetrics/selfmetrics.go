package selfmetrics

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/telepoll/telepoll/agent/internal/scheduler"
)

const namespace = "telepoll"

// Registry holds the agent's own operational metrics. It is fed by the
// scheduler (as an Observer) and the certificate checker, and exposed in the
// Prometheus text format by the status API.
//
// All methods are safe for concurrent use.
type Registry struct {
	reg *prometheus.Registry

	cycles          *prometheus.CounterVec
	collectFailures *prometheus.CounterVec
	forwardFailures *prometheus.CounterVec
	collected       *prometheus.CounterVec
	forwarded       *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	lastSuccess     *prometheus.GaugeVec
	certDaysLeft    *prometheus.GaugeVec
}

// New creates a Registry with all collectors registered on a private
// prometheus.Registry.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Collection passes run, by source.",
		}, []string{"source"}),
		collectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collect_failures_total",
			Help:      "Passes whose collection returned an error, by source.",
		}, []string{"source"}),
		forwardFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forward_failures_total",
			Help:      "Passes whose metrics could not be written to the sink, by source.",
		}, []string{"source"}),
		collected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metrics_collected_total",
			Help:      "Metrics extracted from data sources, by source.",
		}, []string{"source"}),
		forwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metrics_forwarded_total",
			Help:      "Metrics written to the sink, by source.",
		}, []string{"source"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall-clock duration of one collection pass.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"source"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last pass that completed without error.",
		}, []string{"source"}),
		certDaysLeft: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "certificate_days_left",
			Help:      "Days until a certificate used by a source expires.",
		}, []string{"source", "kind"}),
	}
	r.reg.MustRegister(
		r.cycles,
		r.collectFailures,
		r.forwardFailures,
		r.collected,
		r.forwarded,
		r.duration,
		r.lastSuccess,
		r.certDaysLeft,
	)
	return r
}

// RecordCycle implements scheduler.Observer.
func (r *Registry) RecordCycle(rep scheduler.CycleReport) {
	r.cycles.WithLabelValues(rep.Source).Inc()
	r.collected.WithLabelValues(rep.Source).Add(float64(rep.Collected))
	r.forwarded.WithLabelValues(rep.Source).Add(float64(rep.Forwarded))
	r.duration.WithLabelValues(rep.Source).Observe(rep.Duration.Seconds())
	if rep.CollectErr != nil {
		r.collectFailures.WithLabelValues(rep.Source).Inc()
	}
	if rep.ForwardErr != nil {
		r.forwardFailures.WithLabelValues(rep.Source).Inc()
	}
	if rep.OK() {
		r.lastSuccess.WithLabelValues(rep.Source).Set(float64(rep.Started.Add(rep.Duration).Unix()))
	}
}

// SetCertDaysLeft records the remaining validity of a certificate.
// kind is "client" or "endpoint".
func (r *Registry) SetCertDaysLeft(source, kind string, days float64) {
	r.certDaysLeft.WithLabelValues(source, kind).Set(days)
}

// WriteText encodes all metric families in the Prometheus text format.
func (r *Registry) WriteText(w io.Writer) error {
	mfs, err := r.reg.Gather()
	if err != nil {
		return fmt.Errorf("selfmetrics: gather: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("selfmetrics: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// ContentType is the media type produced by WriteText.
func ContentType() string {
	return string(expfmt.NewFormat(expfmt.TypeTextPlain))
}
