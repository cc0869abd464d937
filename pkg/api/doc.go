// Package api implements the API server: the HTTP front door the CLI
// and UI talk to. It owns the dataset registry, dispatches
// rag.ingest_file/rag.query/rag.stats/orchestration.health tasks
// through a broker.Broker and polls them to completion, and proxies
// the Universal Runtime's chat-completion and model-download streams.
// Routing shape (http.ServeMux, one handler per concern) is grounded on
// _examples/cuemby-warren/pkg/api/health.go.
package api
