// Package runtimeclient is the HTTP client the rag worker and API
// server use to reach the Universal Runtime (spec.md §4, glossary):
// the local process serving embedding and LLM inference. From this
// repo's perspective the runtime is just an HTTP dependency — this
// package is the one place that dependency is spoken to.
//
// Client satisfies ingest.Embedder (Embed) and orchestrator.ModelFetcher
// (Fetch), and additionally exposes a streaming chat completion call
// used by the `llamafarm chat` CLI command and the API server's SSE
// chat proxy. Request/response framing is grounded on
// _examples/WessleyAI-wessley-mvp/cmd/chat/main.go (embed-then-search-
// then-stream over a local model server) and the line-oriented SSE
// reader in _examples/theRebelliousNerd-codenerd/internal/mcp/transport_sse.go.
package runtimeclient
