package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// MockModelName is the provider-qualified name of the mock model.
const MockModelName = "mock/test-model"

// MockLLM provides deterministic generation responses for testing. It
// matches the last user message against registered substrings and
// returns the paired response, streamed in fixed-size pieces when a
// stream callback is present.
//
// Safe for concurrent use.
type MockLLM struct {
	mu           sync.Mutex
	responses    []mockRule
	fallback     string
	failWith     error
	failAfter    int
	failAfterErr error
	chunkSize    int
	calls        []MockCall
}

type mockRule struct {
	pattern  string
	response string
}

// MockCall records one call to the mock model.
type MockCall struct {
	UserMessage string
	System      string
	Response    string
}

// NewMockLLM creates a mock model returning fallback when no pattern
// matches.
func NewMockLLM(fallback string) *MockLLM {
	return &MockLLM{fallback: fallback, chunkSize: 8}
}

// AddResponse registers a pattern-response pair. Matching is a
// case-insensitive substring check against the last user message, in
// registration order.
func (m *MockLLM) AddResponse(pattern, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockRule{
		pattern:  strings.ToLower(pattern),
		response: response,
	})
}

// FailWith makes every subsequent generate call return err.
func (m *MockLLM) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// FailAfterChunks makes generate stream n chunks and then return err
// instead of the final response, simulating an upstream connection
// dropped mid-generation.
func (m *MockLLM) FailAfterChunks(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	m.failAfterErr = err
}

// SetChunkSize controls how many bytes each streamed chunk carries.
func (m *MockLLM) SetChunkSize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > 0 {
		m.chunkSize = n
	}
}

// Calls returns a copy of all recorded calls.
func (m *MockLLM) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]MockCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// Register registers the mock as a Genkit model under MockModelName.
func (m *MockLLM) Register(g *genkit.Genkit) ai.Model {
	return genkit.DefineModel(g, MockModelName, &ai.ModelOptions{
		Label: "Mock Test Model",
		Supports: &ai.ModelSupports{
			Multiturn:  true,
			SystemRole: true,
		},
	}, m.generate)
}

func (m *MockLLM) generate(ctx context.Context, req *ai.ModelRequest, cb ai.ModelStreamCallback) (*ai.ModelResponse, error) {
	var userText, systemText string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if userText == "" && req.Messages[i].Role == ai.RoleUser {
			userText = req.Messages[i].Text()
		}
		if systemText == "" && req.Messages[i].Role == ai.RoleSystem {
			systemText = req.Messages[i].Text()
		}
	}

	m.mu.Lock()
	if m.failWith != nil {
		err := m.failWith
		m.mu.Unlock()
		return nil, err
	}

	responseText := m.fallback
	lower := strings.ToLower(userText)
	for _, rule := range m.responses {
		if strings.Contains(lower, rule.pattern) {
			responseText = rule.response
			break
		}
	}
	chunkSize := m.chunkSize
	failAfter := m.failAfter
	failAfterErr := m.failAfterErr

	m.calls = append(m.calls, MockCall{
		UserMessage: userText,
		System:      systemText,
		Response:    responseText,
	})
	m.mu.Unlock()

	if cb != nil {
		emitted := 0
		for start := 0; start < len(responseText); start += chunkSize {
			if failAfterErr != nil && emitted >= failAfter {
				return nil, failAfterErr
			}
			end := min(start+chunkSize, len(responseText))
			if err := cb(ctx, &ai.ModelResponseChunk{
				Content: []*ai.Part{ai.NewTextPart(responseText[start:end])},
			}); err != nil {
				return nil, err
			}
			emitted++
		}
	}
	if failAfterErr != nil {
		return nil, failAfterErr
	}

	return &ai.ModelResponse{
		Request: req,
		Message: &ai.Message{
			Role:    ai.RoleModel,
			Content: []*ai.Part{ai.NewTextPart(responseText)},
		},
	}, nil
}

// MockEmbedder provides deterministic embedding vectors. By default it
// derives a unit vector from the content via SHA-256; explicit vectors
// can be registered for exact similarity control.
//
// Safe for concurrent use.
type MockEmbedder struct {
	mu       sync.Mutex
	vectors  map[string][]float32
	failWith error
	dim      int
}

// NewMockEmbedder creates a mock embedder producing vectors of the
// given dimension.
func NewMockEmbedder(dim int) *MockEmbedder {
	return &MockEmbedder{
		vectors: make(map[string][]float32),
		dim:     dim,
	}
}

// SetVector registers an explicit vector for a content string.
func (e *MockEmbedder) SetVector(content string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectors[content] = vec
}

// FailWith makes every subsequent embed call return err.
func (e *MockEmbedder) FailWith(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failWith = err
}

// Register registers the mock as a Genkit embedder named
// "mock/test-embedder".
func (e *MockEmbedder) Register(g *genkit.Genkit) ai.Embedder {
	return genkit.DefineEmbedder(g, "mock/test-embedder", &ai.EmbedderOptions{
		Label:      "Mock Test Embedder",
		Dimensions: e.dim,
	}, e.embed)
}

func (e *MockEmbedder) embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failWith != nil {
		return nil, e.failWith
	}
	if len(req.Input) == 0 {
		return nil, errors.New("embed request has no input documents")
	}

	embeddings := make([]*ai.Embedding, len(req.Input))
	for i, doc := range req.Input {
		text := documentText(doc)
		vec, ok := e.vectors[text]
		if !ok {
			vec = deterministicVector(text, e.dim)
		}
		embeddings[i] = &ai.Embedding{Embedding: vec}
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

func documentText(doc *ai.Document) string {
	var sb strings.Builder
	for _, p := range doc.Content {
		if p.Kind == ai.PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// deterministicVector derives a unit vector from content via SHA-256,
// so identical text always embeds identically.
func deterministicVector(content string, dim int) []float32 {
	hash := sha256.Sum256([]byte(content))
	vec := make([]float32, dim)

	for i := range vec {
		idx := (i * 4) % len(hash)
		bits := binary.LittleEndian.Uint32([]byte{
			hash[idx%32],
			hash[(idx+1)%32],
			hash[(idx+2)%32],
			hash[(idx+3)%32],
		})
		vec[i] = (float32(bits)/float32(math.MaxUint32))*2 - 1
	}

	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	norm = float32(math.Sqrt(float64(norm)))
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}
