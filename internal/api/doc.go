// Package api hosts the HTTP server and middleware for operator access.
// Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/analyze to summarize a crawl CSV.
package api
