// Package status exposes the agent's state over HTTP.
//
// Store keeps the last pass report of every source together with an uptime
// percentage over the most recent 20 passes. It implements
// scheduler.Observer and evicts sources not updated within the TTL.
//
// Server serves, with gin:
//
//	GET /healthz               liveness, never authenticated
//	GET /metrics               self-metrics, Prometheus text format
//	GET /api/v1/sources        all live sources
//	GET /api/v1/sources/:id    one live source
//
// All routes except /healthz are guarded by APIKeyMiddleware when
// agent.status.auth.mode is "apikey".
package status
