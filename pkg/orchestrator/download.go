package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cuemby/llamafarm/pkg/log"
	"github.com/cuemby/llamafarm/pkg/metrics"
	"github.com/cuemby/llamafarm/pkg/types"
)

// downloadTimeout is the ceiling after which an in-flight model
// download times out and emits an error event (spec.md §5). It is a
// fixed package constant; nothing configures it.
const downloadTimeout = 30 * time.Minute

// downloadEvent is one SSE message on the model-download stream
// (spec.md §4.4 event types: start/progress/end/done/error).
type downloadEvent struct {
	State   types.DownloadStreamState `json:"state"`
	Desc    string                    `json:"desc,omitempty"`
	Total   int64                     `json:"total,omitempty"`
	N       int64                     `json:"n,omitempty"`
	LocalDir string                   `json:"local_dir,omitempty"`
	Message string                    `json:"message,omitempty"`
}

// ModelFetcher downloads a HuggingFace-style model artifact, reporting
// progress through report and returning the local directory it was
// unpacked into. Implementations live behind the Universal Runtime
// HTTP proxy; the orchestrator only knows this interface.
type ModelFetcher interface {
	Fetch(ctx context.Context, modelID, quantization string, report func(n, total int64)) (localDir string, err error)
}

// DownloadHandler streams SSE progress for one model download (spec.md
// §4.4 "Model-download streamer"). SSE framing is grounded on
// _examples/WessleyAI-wessley-mvp/cmd/chat/main.go's `data: <json>\n\n`
// + http.Flusher idiom.
func DownloadHandler(fetcher ModelFetcher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		modelID := r.URL.Query().Get("model_id")
		quantization := r.URL.Query().Get("quantization")
		if modelID == "" {
			http.Error(w, "model_id is required", http.StatusBadRequest)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		ctx, cancel := context.WithTimeout(r.Context(), downloadTimeout)
		defer cancel()

		desc := fmt.Sprintf("%s:%s", modelID, quantization)
		writeEvent(w, flusher, downloadEvent{State: types.DownloadStateStart, Desc: desc})

		localDir, err := fetcher.Fetch(ctx, modelID, quantization, func(n, total int64) {
			writeEvent(w, flusher, downloadEvent{State: types.DownloadStateProgress, N: n, Total: total})
		})

		// Exactly one terminal event precedes stream close (spec.md §4.4,
		// test S5's network-vs-parse distinction).
		if err != nil {
			metrics.DownloadsFailedTotal.WithLabelValues(classifyDownloadError(err)).Inc()
			writeEvent(w, flusher, downloadEvent{State: types.DownloadStateError, Message: err.Error()})
			log.WithComponent("orchestrator").Warn().Err(err).Str("model_id", modelID).Msg("model download failed")
			return
		}

		writeEvent(w, flusher, downloadEvent{State: types.DownloadStateEnd, Desc: desc})
		writeEvent(w, flusher, downloadEvent{State: types.DownloadStateDone, LocalDir: localDir})
	})
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, evt downloadEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

// classifyDownloadError distinguishes a network failure from a parse
// failure so the client's error UI can render a distinct message
// (spec.md §8 test S5: "parse" must appear, "stream ended
// unexpectedly" must not).
func classifyDownloadError(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return "network"
	}
	return "parse"
}
