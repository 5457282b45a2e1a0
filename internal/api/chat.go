package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/firebase/genkit/go/genkit"

	"github.com/reelchat/reelchat/internal/answer"
	"github.com/reelchat/reelchat/internal/catalog"
	"github.com/reelchat/reelchat/internal/log"
	"github.com/reelchat/reelchat/internal/message"
)

// maxRequestBody caps the decoded conversation payload.
const maxRequestBody = 1 << 20

// Chat handles the question answering HTTP endpoints via the Genkit
// flow.
//
// Endpoints:
//   - POST /api/chat       streaming answer (SSE)
//   - POST /api/chat/sync  synchronous answer (JSON, genkit.Handler)
type Chat struct {
	flow   *answer.Flow
	logger log.Logger
}

// NewChat creates a chat handler around the answer flow.
func NewChat(flow *answer.Flow, logger log.Logger) *Chat {
	return &Chat{flow: flow, logger: logger}
}

// RegisterRoutes registers the chat routes on the given mux. With a
// nil flow nothing is registered and the routes 404.
func (h *Chat) RegisterRoutes(mux *http.ServeMux) {
	if h.flow == nil {
		h.logger.Warn("answer flow not configured, skipping route registration")
		return
	}

	mux.HandleFunc("POST /api/chat", h.Stream)
	mux.Handle("POST /api/chat/sync", genkit.Handler(h.flow))
}

// SSE event types for answer streaming.
const (
	EventSources = "sources" // retrieved evidence, sent exactly once before text
	EventChunk   = "chunk"   // partial answer text
	EventDone    = "done"    // stream completed, carries the full answer
)

// SourcesPayload is the SSE data payload for the evidence side channel.
type SourcesPayload struct {
	Sources []catalog.Candidate `json:"sources"`
}

// ChunkPayload is the SSE data payload for partial answer text.
type ChunkPayload struct {
	Text string `json:"text"`
}

// DonePayload is the SSE data payload when streaming completes.
type DonePayload struct {
	Response string `json:"response"`
}

// Stream answers a conversation over SSE.
//
// The response mode is decided late: SSE headers and the sources event
// are not written until the pipeline produces output, so any failure
// up to and including the first generation token still yields a plain
// HTTP 500 with the error envelope. A failure after streaming began
// terminates the stream; the text already sent stands as partial
// output.
func (h *Chat) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var req message.Request
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusInternalServerError, "Invalid message format")
		return
	}

	ctx := r.Context()
	input := answer.Input{Messages: req.Messages}

	sse := &sseStream{w: w, flusher: flusher}
	var finalOutput answer.Output
	var streamErr error
	done := false

	for streamValue, err := range h.flow.Stream(ctx, input) {
		select {
		case <-ctx.Done():
			h.logger.Info("client disconnected", "request_id", requestIDFromContext(ctx))
			return
		default:
		}

		if err != nil {
			streamErr = err
			break
		}
		if streamValue.Done {
			finalOutput = streamValue.Output
			done = true
			break
		}

		chunk := streamValue.Stream
		if chunk.Sources != nil {
			sse.setSources(chunk.Sources)
			continue
		}
		if chunk.Text != "" {
			if err := sse.writeText(chunk.Text); err != nil {
				// Write failure usually means the connection closed.
				h.logger.Error("failed to write chunk", "err", err)
				return
			}
		}
	}

	if streamErr != nil {
		if sse.committed {
			h.logger.Error("stream failed after output started", "err", streamErr)
			return
		}
		writeError(w, http.StatusInternalServerError, errorMessage(streamErr))
		return
	}
	if !done {
		return
	}

	// A successful run with zero text chunks still commits here, so
	// the sources event is delivered exactly once per completed answer.
	if err := sse.finish(finalOutput.Response); err != nil {
		h.logger.Error("failed to finish stream", "err", err)
		return
	}
	h.logger.Info("answer stream completed",
		"request_id", requestIDFromContext(ctx),
		"sources", len(finalOutput.Sources),
	)
}

// sseStream defers the switch to SSE until the first write. Until
// commit the sources payload is only buffered, leaving the handler free
// to answer with a JSON error instead.
type sseStream struct {
	w         http.ResponseWriter
	flusher   http.Flusher
	sources   []catalog.Candidate
	committed bool
}

func (s *sseStream) setSources(sources []catalog.Candidate) {
	if !s.committed {
		s.sources = sources
	}
}

// commit switches the response to SSE and emits the buffered sources
// event.
func (s *sseStream) commit() error {
	if s.committed {
		return nil
	}
	s.committed = true

	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	sources := s.sources
	if sources == nil {
		sources = []catalog.Candidate{}
	}
	return writeEvent(s.w, s.flusher, EventSources, SourcesPayload{Sources: sources})
}

func (s *sseStream) writeText(text string) error {
	if err := s.commit(); err != nil {
		return err
	}
	return writeEvent(s.w, s.flusher, EventChunk, ChunkPayload{Text: text})
}

func (s *sseStream) finish(response string) error {
	if err := s.commit(); err != nil {
		return err
	}
	return writeEvent(s.w, s.flusher, EventDone, DonePayload{Response: response})
}

// errorMessage maps pipeline errors onto the stable envelope messages
// clients match on.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, message.ErrInvalidFormat):
		return "Invalid message format"
	case errors.Is(err, message.ErrEmptyQuery):
		return "Empty message content"
	case errors.Is(err, answer.ErrEmbedding):
		return "Embedding request failed"
	case errors.Is(err, answer.ErrRetrieval):
		return "Vector search failed"
	case errors.Is(err, answer.ErrGeneration):
		return "Generation request failed"
	default:
		return err.Error()
	}
}

// writeEvent writes a single SSE event with JSON-encoded data.
// Format: "event: <type>\ndata: <json>\n\n".
func writeEvent[T any](w io.Writer, flusher http.Flusher, event string, data T) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	flusher.Flush()
	return nil
}
