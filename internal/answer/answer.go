// Package answer implements the retrieval-augmented generation
// pipeline: embed the query turn, search the movie index, build a
// grounded system instruction, and stream the model's answer with the
// retrieved evidence attached as a one-shot side channel.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/reelchat/reelchat/internal/catalog"
	"github.com/reelchat/reelchat/internal/message"
)

// Default retrieval parameters. Both are configuration, not contract:
// clients must not assume them.
const (
	DefaultNumCandidates = 100
	DefaultLimit         = 5
)

// Sentinel errors for upstream failures. Each is fatal for the current
// request only and is never retried.
var (
	// ErrEmbedding indicates the embedding service call failed or
	// returned a malformed result.
	ErrEmbedding = errors.New("embedding request failed")

	// ErrRetrieval indicates the document index query failed.
	ErrRetrieval = errors.New("vector search failed")

	// ErrGeneration indicates the generation service call failed.
	ErrGeneration = errors.New("generation request failed")
)

// Searcher is the document index capability the pipeline consumes.
// catalog.Store implements it; tests substitute deterministic fakes.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, numCandidates, limit int) ([]catalog.Candidate, error)
}

// Input is the request payload for the answer flow.
type Input struct {
	Messages []message.Turn `json:"messages"`
}

// Output is the final flow result: the complete answer text and the
// evidence it was grounded on.
type Output struct {
	Response string              `json:"response"`
	Sources  []catalog.Candidate `json:"sources"`
}

// StreamChunk is one streamed value: either incremental answer text or
// the one-shot evidence attachment. Exactly one chunk per request
// carries Sources, emitted before the first text chunk.
type StreamChunk struct {
	Text    string              `json:"text,omitempty"`
	Sources []catalog.Candidate `json:"sources,omitempty"`
}

// StreamCallback receives streamed chunks during pipeline execution.
// Returning an error aborts the stream.
type StreamCallback func(ctx context.Context, chunk StreamChunk) error

// Config carries the pipeline's dependencies and retrieval knobs.
type Config struct {
	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	Index    Searcher
	Logger   *slog.Logger

	// ModelName is the provider-qualified generation model,
	// e.g. "googleai/gemini-2.5-flash".
	ModelName string

	// NumCandidates is the index search breadth; Limit the evidence
	// set size. Zero values take the package defaults. NumCandidates
	// is raised to Limit when configured below it.
	NumCandidates int
	Limit         int
}

func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.Embedder == nil {
		return errors.New("embedder is required")
	}
	if cfg.Index == nil {
		return errors.New("index is required")
	}
	if cfg.ModelName == "" {
		return errors.New("model name is required")
	}
	return nil
}

// Pipeline executes the RAG request flow. It is stateless across
// requests; every dependency is read-only after construction.
type Pipeline struct {
	g             *genkit.Genkit
	embedder      ai.Embedder
	index         Searcher
	logger        *slog.Logger
	modelName     string
	numCandidates int
	limit         int
}

// New creates a Pipeline from the given configuration.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	numCandidates := cfg.NumCandidates
	if numCandidates <= 0 {
		numCandidates = DefaultNumCandidates
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if numCandidates < limit {
		numCandidates = limit
	}

	return &Pipeline{
		g:             cfg.Genkit,
		embedder:      cfg.Embedder,
		index:         cfg.Index,
		logger:        logger,
		modelName:     cfg.ModelName,
		numCandidates: numCandidates,
		limit:         limit,
	}, nil
}

// Execute runs the pipeline for one conversation. Stages run strictly
// in sequence: validate → embed → retrieve → ground → generate. When
// cb is non-nil the evidence chunk is emitted first, then one text
// chunk per model increment; when cb is nil the answer is generated
// without streaming and only the Output is returned.
//
// Errors are classified with the package sentinels (and the message
// package's for validation) so callers can dispatch with errors.Is.
func (p *Pipeline) Execute(ctx context.Context, turns []message.Turn, cb StreamCallback) (Output, error) {
	query, err := message.ExtractQuery(turns)
	if err != nil {
		return Output{}, err
	}

	embedding, err := p.embedQuery(ctx, query)
	if err != nil {
		return Output{}, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}

	candidates, err := p.index.Search(ctx, embedding, p.numCandidates, p.limit)
	if err != nil {
		return Output{}, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}
	// Zero results is a valid outcome: the pipeline proceeds with an
	// empty grounding context.
	p.logger.Debug("retrieved candidates", "count", len(candidates), "query_len", len(query))

	system := SystemInstruction(candidates)
	history := projectMessages(turns)

	if cb != nil {
		if err := cb(ctx, StreamChunk{Sources: candidates}); err != nil {
			return Output{}, fmt.Errorf("%w: %w", ErrGeneration, err)
		}
	}

	opts := []ai.GenerateOption{
		ai.WithModelName(p.modelName),
		ai.WithSystem(system),
		ai.WithMessages(history...),
	}
	if cb != nil {
		opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			text := chunk.Text()
			if text == "" {
				return nil
			}
			return cb(ctx, StreamChunk{Text: text})
		}))
	}

	resp, err := genkit.Generate(ctx, p.g, opts...)
	if err != nil {
		return Output{}, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	return Output{
		Response: resp.Text(),
		Sources:  candidates,
	}, nil
}

// embedQuery converts the query text into its dense vector via the
// external embedding service. One call, no retry.
func (p *Pipeline) embedQuery(ctx context.Context, query string) ([]float32, error) {
	resp, err := p.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(query, nil)},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, errors.New("empty embedding returned for query")
	}
	return resp.Embeddings[0].Embedding, nil
}

// projectMessages converts the conversation history into model
// messages. System turns were already removed by the projector; the
// assistant role maps to the model role, anything else to user.
func projectMessages(turns []message.Turn) []*ai.Message {
	projected := message.Project(turns)
	msgs := make([]*ai.Message, 0, len(projected))
	for _, p := range projected {
		part := ai.NewTextPart(p.Content)
		if p.Role == message.RoleAssistant {
			msgs = append(msgs, ai.NewModelMessage(part))
		} else {
			msgs = append(msgs, ai.NewUserMessage(part))
		}
	}
	return msgs
}
