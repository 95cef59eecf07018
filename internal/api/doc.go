// Package api hosts the ops HTTP server, middleware, and handlers.
// Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes; readyz probes the
//     browser session and reports classifier readiness.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/jobs and /v1/jobs/standard to queue collections.
//   - GET /v1/runs and /v1/runs/{run_id} for the run ledger via the
//     store.RunRepository interface.
package api
