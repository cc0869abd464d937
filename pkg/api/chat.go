package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cuemby/llamafarm/pkg/apperr"
)

// chatRequest is the body of POST /chat.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

// chatEvent is one SSE message of the chat proxy stream, framed the
// same "data: <json>\n\n" + http.Flusher way as the model-download
// proxy (spec.md §4.4's SSE idiom, reused here for the `llamafarm chat`
// CLI command).
type chatEvent struct {
	Token string `json:"token,omitempty"`
	Done  bool   `json:"done,omitempty"`
	Error string `json:"error,omitempty"`
}

// handleChat proxies a streaming chat completion from the Universal
// Runtime to the client as SSE, token by token.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.cfg.Chat == nil {
		writeError(w, apperr.DependencyError("no chat client configured", nil))
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.ConfigError("decoding chat request", err))
		return
	}
	if req.Model == "" && s.cfg.Manifest != nil && len(s.cfg.Manifest.Runtimes) > 0 {
		req.Model = s.cfg.Manifest.Runtimes[0].ModelID
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	err := s.cfg.Chat.ChatStream(r.Context(), req.Model, req.Messages, func(token string) {
		writeSSE(w, flusher, chatEvent{Token: token})
	})
	if err != nil {
		writeSSE(w, flusher, chatEvent{Error: err.Error()})
		return
	}
	writeSSE(w, flusher, chatEvent{Done: true})
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, evt chatEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}
