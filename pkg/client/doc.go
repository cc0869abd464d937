// Package client is the llamafarm CLI's HTTP client for the api-server
// process, one method per endpoint with a context timeout per call,
// grounded on the teacher's pkg/client.Client (a thin wrapper around a
// generated RPC stub exposing one Go method per RPC) but speaking plain
// JSON over net/http instead of gRPC, since spec.md §6 defines the
// api-server's wire contract as HTTP+JSON (plus two SSE streams).
package client
