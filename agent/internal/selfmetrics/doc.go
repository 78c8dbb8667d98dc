// Package selfmetrics exposes the agent's own health as Prometheus metrics:
// passes run, collection and forwarding failures, metric volumes, pass
// duration, last successful pass and certificate expiry.
//
// Registry implements scheduler.Observer. The status API serves WriteText
// on GET /metrics.
package selfmetrics
