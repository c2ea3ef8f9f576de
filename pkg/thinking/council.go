package thinking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/eap-project/eap/pkg/llm"
)

// Deliberation temperatures descend across rounds as positions converge.
const (
	councilRound1Temperature = 0.6
	councilRound2Temperature = 0.5
	councilRound3Temperature = 0.4
)

// councilFraming fixes the three perspectives so deliberations are
// comparable across questions.
var councilFramings = []struct {
	name  string
	brief string
}{
	{"Pragmatic", "Favor the simplest workable approach. Weigh delivery speed and operational cost above elegance."},
	{"Quality-First", "Favor correctness, maintainability, and long-term soundness even at higher short-term cost."},
	{"Risk-Aware", "Surface failure modes, security exposure, and irreversibility. Prefer options that keep escape hatches open."},
}

// Council runs a three-round deliberation: independent perspectives,
// cross-critique, then synthesis into a consensus with dissent notes.
type Council struct {
	llm    llm.Client
	logger *slog.Logger
}

// NewCouncil creates a council tool.
func NewCouncil(client llm.Client) *Council {
	return &Council{llm: client, logger: slog.With("component", "council")}
}

// Deliberate runs the full three rounds on a question. Synthesis failure
// degrades to a review-required result carrying the raw positions.
func (c *Council) Deliberate(ctx context.Context, question string) (*CouncilResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question must not be empty")
	}

	perspectives := c.roundOne(ctx, question)
	critiques := c.roundTwo(ctx, question, perspectives)

	result, err := c.synthesize(ctx, question, perspectives, critiques)
	if err != nil {
		c.logger.Warn("Council synthesis failed, flagging for review", "error", err)
		dissent := make([]string, 0, len(perspectives))
		for _, p := range perspectives {
			dissent = append(dissent, fmt.Sprintf("%s: %s", p.Name, p.Position))
		}
		return &CouncilResult{
			Confidence:      0.3,
			DissentingViews: dissent,
			RequiresReview:  true,
			ReviewReason:    fmt.Sprintf("synthesis failed: %v", err),
			Perspectives:    perspectives,
		}, nil
	}
	result.Perspectives = perspectives
	return result, nil
}

// roundOne gathers the three framed positions in parallel. A failed call
// yields a zero-confidence placeholder so later rounds keep their shape.
func (c *Council) roundOne(ctx context.Context, question string) []Perspective {
	perspectives := make([]Perspective, len(councilFramings))

	var group errgroup.Group
	for i, framing := range councilFramings {
		group.Go(func() error {
			prompt := fmt.Sprintf("Perspective: %s\n%s\n\nQuestion:\n%s", framing.name, framing.brief, question)
			resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
				Messages: []llm.Message{
					{Role: "system", Content: councilPerspectiveSystemPrompt},
					{Role: "user", Content: prompt},
				},
				Temperature: councilRound1Temperature,
			})
			if err == nil {
				err = parsePerspective(llm.ExtractText(resp), &perspectives[i])
			}
			if err != nil {
				c.logger.Warn("Council perspective failed", "perspective", framing.name, "error", err)
				perspectives[i] = Perspective{Position: fmt.Sprintf("perspective unavailable: %v", err)}
			}
			perspectives[i].Name = framing.name
			return nil
		})
	}
	group.Wait() //nolint:errcheck // failures degrade to placeholders
	return perspectives
}

// roundTwo has each perspective critique the other two, again in parallel.
// Critiques are advisory input to synthesis; a failed critique is dropped.
func (c *Council) roundTwo(ctx context.Context, question string, perspectives []Perspective) []string {
	critiques := make([]string, len(perspectives))

	var group errgroup.Group
	for i, p := range perspectives {
		group.Go(func() error {
			var others strings.Builder
			for j, o := range perspectives {
				if j == i {
					continue
				}
				fmt.Fprintf(&others, "%s: %s\n", o.Name, o.Position)
			}
			prompt := fmt.Sprintf("You argued as %s: %s\n\nCritique the other positions:\n%s\nQuestion:\n%s",
				p.Name, p.Position, others.String(), question)
			resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
				Messages: []llm.Message{
					{Role: "system", Content: councilCritiqueSystemPrompt},
					{Role: "user", Content: prompt},
				},
				Temperature: councilRound2Temperature,
			})
			if err != nil {
				c.logger.Warn("Council critique failed", "perspective", p.Name, "error", err)
				return nil
			}
			critiques[i] = llm.ExtractText(resp)
			return nil
		})
	}
	group.Wait() //nolint:errcheck // failed critiques are dropped
	return critiques
}

func (c *Council) synthesize(ctx context.Context, question string, perspectives []Perspective, critiques []string) (*CouncilResult, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Question:\n%s\n\nPositions:\n", question)
	for i, p := range perspectives {
		fmt.Fprintf(&b, "%s (confidence %.2f): %s\nArguments: %s\n",
			p.Name, p.Confidence, p.Position, strings.Join(p.Arguments, "; "))
		if critiques[i] != "" {
			fmt.Fprintf(&b, "Critique by %s: %s\n", p.Name, critiques[i])
		}
	}

	resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: councilSynthesisSystemPrompt},
			{Role: "user", Content: b.String()},
		},
		Temperature: councilRound3Temperature,
	})
	if err != nil {
		return nil, err
	}

	raw := llm.ExtractJSON(llm.ExtractText(resp))
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in synthesis response")
	}
	var parsed struct {
		Consensus       string   `json:"consensus"`
		Confidence      float64  `json:"confidence"`
		DissentingViews []string `json:"dissenting_views"`
		RequiresReview  bool     `json:"requires_review"`
		ReviewReason    string   `json:"review_reason"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("malformed synthesis JSON: %w", err)
	}
	return &CouncilResult{
		Consensus:       parsed.Consensus,
		Confidence:      parsed.Confidence,
		DissentingViews: parsed.DissentingViews,
		RequiresReview:  parsed.RequiresReview,
		ReviewReason:    parsed.ReviewReason,
	}, nil
}

func parsePerspective(content string, out *Perspective) error {
	raw := llm.ExtractJSON(content)
	if raw == "" {
		return fmt.Errorf("no JSON object in perspective response")
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("malformed perspective JSON: %w", err)
	}
	return nil
}

const councilPerspectiveSystemPrompt = `You are one member of a deliberation council with a fixed framing.
Respond with ONLY a JSON object:
{"position": "...", "arguments": ["..."], "confidence": 0.0-1.0}`

const councilCritiqueSystemPrompt = `You critique the other council positions from your own framing.
Respond in plain prose, at most three short paragraphs.`

const councilSynthesisSystemPrompt = `You synthesize a council deliberation into a consensus.
Respond with ONLY a JSON object:
{"consensus": "...", "confidence": 0.0-1.0, "dissenting_views": ["..."], "requires_review": true|false, "review_reason": "..."}`
