package answer_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/genkit"

	"github.com/reelchat/reelchat/internal/answer"
	"github.com/reelchat/reelchat/internal/catalog"
	"github.com/reelchat/reelchat/internal/message"
	"github.com/reelchat/reelchat/internal/testutil"
)

type fakeIndex struct {
	candidates []catalog.Candidate
	err        error

	gotNumCandidates int
	gotLimit         int
	gotDim           int
}

func (f *fakeIndex) Search(_ context.Context, embedding []float32, numCandidates, limit int) ([]catalog.Candidate, error) {
	f.gotNumCandidates = numCandidates
	f.gotLimit = limit
	f.gotDim = len(embedding)
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates, nil
}

func userTurns(text string) []message.Turn {
	return []message.Turn{{Role: message.RoleUser, Content: &text}}
}

func newTestPipeline(t *testing.T, llm *testutil.MockLLM, index answer.Searcher) *answer.Pipeline {
	t.Helper()

	g := genkit.Init(context.Background())
	llm.Register(g)
	embedder := testutil.NewMockEmbedder(catalog.VectorDimension)

	p, err := answer.New(answer.Config{
		Genkit:    g,
		Embedder:  embedder.Register(g),
		Index:     index,
		Logger:    testutil.DiscardLogger(),
		ModelName: testutil.MockModelName,
	})
	if err != nil {
		t.Fatalf("answer.New() error = %v", err)
	}
	return p
}

func TestExecute_StreamsSourcesThenText(t *testing.T) {
	llm := testutil.NewMockLLM("Heat is the one you want.")
	index := &fakeIndex{candidates: []catalog.Candidate{
		{ID: "m1", Title: "Heat", Year: 1995, FullPlot: "A crew of thieves.", Score: 0.92},
		{ID: "m2", Title: "Ronin", Year: 1998, FullPlot: "Mercenaries chase a case.", Score: 0.85},
	}}
	p := newTestPipeline(t, llm, index)

	var chunks []answer.StreamChunk
	out, err := p.Execute(context.Background(), userTurns("heist movies?"), func(_ context.Context, c answer.StreamChunk) error {
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if len(chunks) < 2 {
		t.Fatalf("Execute() streamed %d chunks, want sources plus text", len(chunks))
	}
	if len(chunks[0].Sources) != 2 || chunks[0].Text != "" {
		t.Errorf("first chunk = %+v, want sources-only chunk", chunks[0])
	}
	sourcesChunks := 0
	var streamed strings.Builder
	for _, c := range chunks {
		if c.Sources != nil {
			sourcesChunks++
		}
		streamed.WriteString(c.Text)
	}
	if sourcesChunks != 1 {
		t.Errorf("sources chunks = %d, want exactly 1", sourcesChunks)
	}
	if streamed.String() != out.Response {
		t.Errorf("streamed text = %q, final response = %q", streamed.String(), out.Response)
	}
	if out.Response != "Heat is the one you want." {
		t.Errorf("Response = %q", out.Response)
	}
	if len(out.Sources) != 2 || out.Sources[0].ID != "m1" {
		t.Errorf("Sources = %+v", out.Sources)
	}
}

func TestExecute_GroundsSystemInstruction(t *testing.T) {
	llm := testutil.NewMockLLM("ok")
	index := &fakeIndex{candidates: []catalog.Candidate{
		{ID: "m1", Title: "Heat", Year: 1995, FullPlot: "A crew of thieves.", Score: 0.92},
	}}
	p := newTestPipeline(t, llm, index)

	if _, err := p.Execute(context.Background(), userTurns("heist movies?"), nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	calls := llm.Calls()
	if len(calls) != 1 {
		t.Fatalf("model calls = %d, want 1", len(calls))
	}
	if !strings.Contains(calls[0].System, "Title: Heat") {
		t.Errorf("system instruction missing grounding context:\n%s", calls[0].System)
	}
	if calls[0].UserMessage != "heist movies?" {
		t.Errorf("user message = %q", calls[0].UserMessage)
	}
}

func TestExecute_RetrievalDefaults(t *testing.T) {
	llm := testutil.NewMockLLM("ok")
	index := &fakeIndex{}
	p := newTestPipeline(t, llm, index)

	if _, err := p.Execute(context.Background(), userTurns("anything"), nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if index.gotNumCandidates != answer.DefaultNumCandidates {
		t.Errorf("numCandidates = %d, want %d", index.gotNumCandidates, answer.DefaultNumCandidates)
	}
	if index.gotLimit != answer.DefaultLimit {
		t.Errorf("limit = %d, want %d", index.gotLimit, answer.DefaultLimit)
	}
	if index.gotDim != catalog.VectorDimension {
		t.Errorf("embedding dimension = %d, want %d", index.gotDim, catalog.VectorDimension)
	}
}

func TestExecute_EmptyRetrievalStillAnswers(t *testing.T) {
	llm := testutil.NewMockLLM("I could not find that movie.")
	index := &fakeIndex{candidates: nil}
	p := newTestPipeline(t, llm, index)

	var first *answer.StreamChunk
	out, err := p.Execute(context.Background(), userTurns("an obscure film"), func(_ context.Context, c answer.StreamChunk) error {
		if first == nil {
			cp := c
			first = &cp
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if first == nil || len(first.Sources) != 0 || first.Text != "" {
		t.Errorf("first chunk = %+v, want empty sources chunk", first)
	}
	if out.Response == "" {
		t.Error("Response empty, want generated answer")
	}
}

func TestExecute_ValidationErrors(t *testing.T) {
	llm := testutil.NewMockLLM("ok")
	p := newTestPipeline(t, llm, &fakeIndex{})

	empty := "   "
	tests := []struct {
		name    string
		turns   []message.Turn
		wantErr error
	}{
		{"no turns", nil, message.ErrInvalidFormat},
		{"malformed turn", []message.Turn{{Role: message.RoleUser}}, message.ErrInvalidFormat},
		{"blank query", []message.Turn{{Role: message.RoleUser, Content: &empty}}, message.ErrEmptyQuery},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Execute(context.Background(), tt.turns, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Execute() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if calls := llm.Calls(); len(calls) != 0 {
		t.Errorf("model called %d times on invalid input, want 0", len(calls))
	}
}

func TestExecute_UpstreamErrorClassification(t *testing.T) {
	t.Run("embedding failure", func(t *testing.T) {
		g := genkit.Init(context.Background())
		llm := testutil.NewMockLLM("ok")
		llm.Register(g)
		embedder := testutil.NewMockEmbedder(catalog.VectorDimension)
		embedder.FailWith(errors.New("quota exceeded"))

		p, err := answer.New(answer.Config{
			Genkit:    g,
			Embedder:  embedder.Register(g),
			Index:     &fakeIndex{},
			Logger:    testutil.DiscardLogger(),
			ModelName: testutil.MockModelName,
		})
		if err != nil {
			t.Fatalf("answer.New() error = %v", err)
		}

		_, err = p.Execute(context.Background(), userTurns("q"), nil)
		if !errors.Is(err, answer.ErrEmbedding) {
			t.Errorf("Execute() error = %v, want ErrEmbedding", err)
		}
	})

	t.Run("retrieval failure", func(t *testing.T) {
		llm := testutil.NewMockLLM("ok")
		p := newTestPipeline(t, llm, &fakeIndex{err: errors.New("connection refused")})

		_, err := p.Execute(context.Background(), userTurns("q"), nil)
		if !errors.Is(err, answer.ErrRetrieval) {
			t.Errorf("Execute() error = %v, want ErrRetrieval", err)
		}
	})

	t.Run("generation failure", func(t *testing.T) {
		llm := testutil.NewMockLLM("ok")
		llm.FailWith(errors.New("model overloaded"))
		p := newTestPipeline(t, llm, &fakeIndex{})

		_, err := p.Execute(context.Background(), userTurns("q"), nil)
		if !errors.Is(err, answer.ErrGeneration) {
			t.Errorf("Execute() error = %v, want ErrGeneration", err)
		}
	})
}

func TestExecute_CallbackAbortsStream(t *testing.T) {
	llm := testutil.NewMockLLM("a long response split into chunks")
	llm.SetChunkSize(4)
	p := newTestPipeline(t, llm, &fakeIndex{})

	abort := errors.New("client went away")
	calls := 0
	_, err := p.Execute(context.Background(), userTurns("q"), func(_ context.Context, c answer.StreamChunk) error {
		calls++
		if calls > 2 {
			return abort
		}
		return nil
	})
	if !errors.Is(err, answer.ErrGeneration) {
		t.Errorf("Execute() error = %v, want ErrGeneration wrapping callback abort", err)
	}
}

func TestNew_Validation(t *testing.T) {
	g := genkit.Init(context.Background())
	embedder := testutil.NewMockEmbedder(8).Register(g)

	tests := []struct {
		name string
		cfg  answer.Config
	}{
		{"missing genkit", answer.Config{Embedder: embedder, Index: &fakeIndex{}, ModelName: "m"}},
		{"missing embedder", answer.Config{Genkit: g, Index: &fakeIndex{}, ModelName: "m"}},
		{"missing index", answer.Config{Genkit: g, Embedder: embedder, ModelName: "m"}},
		{"missing model", answer.Config{Genkit: g, Embedder: embedder, Index: &fakeIndex{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := answer.New(tt.cfg); err == nil {
				t.Error("answer.New() expected error, got nil")
			}
		})
	}
}

func TestFlow_StreamsThroughGenkit(t *testing.T) {
	answer.ResetFlowForTesting()
	t.Cleanup(answer.ResetFlowForTesting)

	g := genkit.Init(context.Background())
	llm := testutil.NewMockLLM("Heat, without question.")
	llm.Register(g)
	embedder := testutil.NewMockEmbedder(catalog.VectorDimension)
	index := &fakeIndex{candidates: []catalog.Candidate{
		{ID: "m1", Title: "Heat", Year: 1995, Score: 0.92},
	}}

	p, err := answer.New(answer.Config{
		Genkit:    g,
		Embedder:  embedder.Register(g),
		Index:     index,
		Logger:    testutil.DiscardLogger(),
		ModelName: testutil.MockModelName,
	})
	if err != nil {
		t.Fatalf("answer.New() error = %v", err)
	}
	flow := answer.NewFlow(g, p)

	input := answer.Input{Messages: userTurns("best heist film?")}
	var sourcesSeen int
	var text strings.Builder
	var final answer.Output

	for result, err := range flow.Stream(context.Background(), input) {
		if err != nil {
			t.Fatalf("flow stream error = %v", err)
		}
		if result.Done {
			final = result.Output
			continue
		}
		chunk := result.Stream
		if chunk.Sources != nil {
			sourcesSeen++
		}
		text.WriteString(chunk.Text)
	}

	if sourcesSeen != 1 {
		t.Errorf("sources chunks = %d, want exactly 1", sourcesSeen)
	}
	if final.Response != "Heat, without question." {
		t.Errorf("final response = %q", final.Response)
	}
	if text.String() != final.Response {
		t.Errorf("streamed text = %q, final = %q", text.String(), final.Response)
	}
}
