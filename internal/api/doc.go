// Package api hosts the read-only HTTP server over the movie store.
// Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/movies and /v1/movies/{rank} for stored records.
//   - GET /v1/stats for catalog aggregations.
package api
