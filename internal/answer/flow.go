package answer

import (
	"context"
	"sync"

	"github.com/firebase/genkit/go/core"
	"github.com/firebase/genkit/go/genkit"
)

// FlowName is the registered name of the answer flow in Genkit.
const FlowName = "reelchat/answer"

// Flow is the type alias for the answer pipeline's Genkit streaming
// flow. Exported so the api package can expose it via genkit.Handler().
type Flow = core.Flow[Input, Output, StreamChunk]

// Package-level singleton: genkit.DefineStreamingFlow panics when a
// flow name is registered twice, so the definition runs exactly once.
var (
	flowOnce sync.Once
	flow     *Flow
)

// NewFlow returns the answer flow singleton, defining it on first call.
// Subsequent calls return the existing flow and ignore the arguments.
func NewFlow(g *genkit.Genkit, p *Pipeline) *Flow {
	flowOnce.Do(func() {
		flow = p.DefineFlow(g)
	})
	return flow
}

// ResetFlowForTesting resets the flow singleton so tests can register
// with a fresh Genkit instance. Not safe for concurrent use.
func ResetFlowForTesting() {
	flowOnce = sync.Once{}
	flow = nil
}

// DefineFlow registers the Genkit streaming flow wrapping the pipeline.
// Use NewFlow instead of calling this directly; flow registration is
// global and a second registration panics.
//
// The flow is a thin wrapper: Pipeline.Execute holds the pipeline
// logic, the flow contributes the Input/Output schema, tracing spans
// and the genkit.Handler HTTP surface.
func (p *Pipeline) DefineFlow(g *genkit.Genkit) *Flow {
	return genkit.DefineStreamingFlow(g, FlowName,
		func(ctx context.Context, input Input, streamCb func(context.Context, StreamChunk) error) (Output, error) {
			var cb StreamCallback
			if streamCb != nil {
				cb = func(ctx context.Context, chunk StreamChunk) error {
					return streamCb(ctx, chunk)
				}
			}
			return p.Execute(ctx, input.Messages, cb)
		},
	)
}
