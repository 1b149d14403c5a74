// Package api hosts the operational HTTP surface of the distiller:
//   - GET /healthz for liveness probes.
//   - GET /readyz for readiness probes, backed by Service.HealthCheck.
//   - GET /metrics for Prometheus scraping.
package api
