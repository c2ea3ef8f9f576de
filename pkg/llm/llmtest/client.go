// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/eap-project/eap/pkg/llm"
)

// Call records one Complete invocation for assertions.
type Call struct {
	Request llm.CompletionRequest
}

// ScriptedClient returns canned responses in order. When the script is
// exhausted it keeps returning the last entry (or ErrDefault if set).
type ScriptedClient struct {
	mu      sync.Mutex
	script  []Reply
	next    int
	calls   []Call
	replyFn func(req llm.CompletionRequest) Reply
}

// Reply is one scripted completion outcome.
type Reply struct {
	Content string
	Model   string
	Usage   llm.TokenUsage
	Err     error
}

// NewScripted builds a client that replays the given replies in order.
func NewScripted(replies ...Reply) *ScriptedClient {
	return &ScriptedClient{script: replies}
}

// NewFunc builds a client that derives every reply from the request,
// useful when call order is nondeterministic (parallel fan-out).
func NewFunc(fn func(req llm.CompletionRequest) Reply) *ScriptedClient {
	return &ScriptedClient{replyFn: fn}
}

// Complete implements llm.Client. replyFn runs outside the client lock so
// scripted replies may block without serializing concurrent callers.
func (c *ScriptedClient) Complete(_ context.Context, req llm.CompletionRequest) (*llm.ModelResponse, error) {
	c.mu.Lock()
	c.calls = append(c.calls, Call{Request: req})
	fn := c.replyFn
	var reply Reply
	if fn == nil {
		switch {
		case len(c.script) == 0:
			reply = Reply{Content: ""}
		case c.next < len(c.script):
			reply = c.script[c.next]
			c.next++
		default:
			reply = c.script[len(c.script)-1]
		}
	}
	c.mu.Unlock()

	if fn != nil {
		reply = fn(req)
	}

	if reply.Err != nil {
		return nil, reply.Err
	}
	model := reply.Model
	if model == "" {
		model = "scripted-model"
	}
	return &llm.ModelResponse{
		Model:   model,
		Choices: []llm.Choice{{Message: llm.Message{Role: "assistant", Content: reply.Content}}},
		Usage:   reply.Usage,
	}, nil
}

// Embed implements llm.Client with zero vectors.
func (c *ScriptedClient) Embed(_ context.Context, texts []string, _ string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range out {
		out[i] = []float64{0}
	}
	return out, nil
}

// Calls returns a snapshot of recorded Complete calls.
func (c *ScriptedClient) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallCount returns how many Complete calls were made.
func (c *ScriptedClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}
