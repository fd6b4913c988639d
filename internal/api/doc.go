// Package api hosts the operator HTTP server that runs next to a crawl.
// Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/checkpoints/{source} for the saved crawl state of a source.
//   - GET /v1/nodes/{id} for a stored graph node and its Url references.
//   - GET /v1/news/search?q= for the news text index.
package api
