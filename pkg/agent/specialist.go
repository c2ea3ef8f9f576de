package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/eap-project/eap/pkg/llm"
)

// memoryRecallLimit caps how many memory entries the specialist pulls
// into its system prompt.
const memoryRecallLimit = 5

// Specialist is the default LLM-backed agent. Its system prompt is derived
// from the spec's description and capabilities, optionally enriched with
// recalled agent memory.
type Specialist struct {
	spec Spec
	deps Deps
}

// NewSpecialist is the default Factory.
func NewSpecialist(spec Spec, deps Deps) Agent {
	return &Specialist{spec: spec, deps: deps}
}

// Process sends the task message (plus conversation context) to the LLM
// under the specialist's system prompt.
func (a *Specialist) Process(ctx context.Context, message string, conv []llm.Message) (*Response, error) {
	messages := make([]llm.Message, 0, len(conv)+2)
	messages = append(messages, llm.Message{Role: "system", Content: a.systemPrompt(ctx, message)})
	messages = append(messages, conv...)
	messages = append(messages, llm.Message{Role: "user", Content: message})

	resp, err := a.deps.LLM.Complete(ctx, llm.CompletionRequest{
		Messages:    messages,
		Model:       a.deps.Model,
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", a.spec.ID, err)
	}

	return &Response{
		Content: llm.ExtractText(resp),
		Model:   resp.Model,
		Usage:   resp.Usage,
		Metadata: map[string]any{
			"agent_id": a.spec.ID,
		},
	}, nil
}

// systemPrompt renders the specialist persona, with memory recall when a
// provider is wired.
func (a *Specialist) systemPrompt(ctx context.Context, query string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a specialist agent. %s\n", a.spec.ID, a.spec.Description)
	if len(a.spec.Capability) > 0 {
		fmt.Fprintf(&b, "Your capabilities: %s.\n", strings.Join(a.spec.Capability, ", "))
	}
	b.WriteString("Complete the assigned task thoroughly. Cite sources where available.")

	if a.deps.Memory != nil && a.deps.TenantID != "" {
		recall, err := a.deps.Memory.ContextForAgent(ctx, a.spec.ID, a.deps.TenantID, query, memoryRecallLimit)
		if err == nil && recall != "" {
			b.WriteString("\n\nRelevant memory from previous work:\n")
			b.WriteString(recall)
		}
	}
	return b.String()
}
