package framework

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
)

// FakeRuntime stands in for the Universal Runtime dependency (spec.md
// glossary: "from the core's perspective it is just an HTTP
// dependency") so integration tests don't need a real model server.
// It implements the three endpoints pkg/runtimeclient.Client calls:
// embeddings, chat completions, and model download.
type FakeRuntime struct {
	srv *httptest.Server

	// EmbedDim is the length of the deterministic vectors Embed returns.
	EmbedDim int
}

// NewFakeRuntime starts a fake Universal Runtime on a loopback port.
func NewFakeRuntime() *FakeRuntime {
	fr := &FakeRuntime{EmbedDim: 8}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/embeddings", fr.handleEmbeddings)
	mux.HandleFunc("/v1/chat/completions", fr.handleChat)
	mux.HandleFunc("/v1/models/download", fr.handleDownload)
	fr.srv = httptest.NewServer(mux)
	return fr
}

// URL is the base URL to pass as --runtime-url.
func (fr *FakeRuntime) URL() string { return fr.srv.URL }

// Close shuts down the fake runtime.
func (fr *FakeRuntime) Close() { fr.srv.Close() }

func (fr *FakeRuntime) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input []string `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	type datum struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	}
	resp := struct {
		Data []datum `json:"data"`
	}{}
	for i, text := range req.Input {
		resp.Data = append(resp.Data, datum{Embedding: deterministicVector(text, fr.EmbedDim), Index: i})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (fr *FakeRuntime) handleChat(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	flusher, _ := w.(http.Flusher)
	for _, token := range []string{"hello", " ", "world"} {
		chunk := map[string]interface{}{
			"choices": []map[string]interface{}{{"delta": map[string]string{"content": token}}},
		}
		body, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", body)
		if flusher != nil {
			flusher.Flush()
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func (fr *FakeRuntime) handleDownload(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	flusher, _ := w.(http.Flusher)
	events := []string{
		`{"n":0,"total":100}`,
		`{"n":100,"total":100}`,
		`{"local_dir":"/tmp/fake-model"}`,
	}
	for _, e := range events {
		fmt.Fprintln(w, e)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func deterministicVector(seed string, dim int) []float32 {
	v := make([]float32, dim)
	h := uint32(2166136261)
	for _, c := range seed {
		h ^= uint32(c)
		h *= 16777619
	}
	for i := range v {
		h = h*1664525 + 1013904223
		v[i] = float32(h%1000) / 1000
	}
	return v
}
