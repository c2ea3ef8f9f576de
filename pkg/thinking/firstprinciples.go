package thinking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/eap-project/eap/pkg/llm"
)

const (
	fpTemperature = 0.4
	fpMaxDepth    = 4
	fpMaxBranches = 3
)

// fpNode is one question in the decomposition tree.
type fpNode struct {
	question    string
	answer      string
	fundamental bool
	children    []*fpNode
}

// FirstPrinciples decomposes a question into a bounded "why?" tree and
// reconstructs an answer from the fundamental leaves.
type FirstPrinciples struct {
	llm    llm.Client
	logger *slog.Logger
}

// NewFirstPrinciples creates a first-principles tool.
func NewFirstPrinciples(client llm.Client) *FirstPrinciples {
	return &FirstPrinciples{llm: client, logger: slog.With("component", "firstprinciples")}
}

// Analyze builds the decomposition tree, collects its fundamental leaves
// and assumptions, and synthesizes a reconstruction from them. With no
// usable fundamentals the result mandates review at zero confidence.
func (f *FirstPrinciples) Analyze(ctx context.Context, question string) (*FirstPrinciplesResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question must not be empty")
	}

	var assumptions []string
	root := f.decompose(ctx, question, 0, &assumptions)

	var fundamentals []string
	collectLeaves(root, &fundamentals)

	if len(fundamentals) == 0 {
		return &FirstPrinciplesResult{
			Assumptions:    assumptions,
			Confidence:     0.0,
			RequiresReview: true,
			ReviewReason:   "decomposition produced no fundamental answers",
		}, nil
	}
	return f.synthesize(ctx, question, fundamentals, assumptions)
}

type fpStep struct {
	Answer        string   `json:"answer"`
	IsFundamental bool     `json:"is_fundamental"`
	Assumptions   []string `json:"assumptions"`
	SubQuestions  []string `json:"sub_questions"`
}

// decompose expands one node. Descent stops at fundamental answers, empty
// sub-question lists, failed calls, or the depth bound, where a short
// fundamental-answer call closes the leaf.
func (f *FirstPrinciples) decompose(ctx context.Context, question string, depth int, assumptions *[]string) *fpNode {
	node := &fpNode{question: question}

	if depth >= fpMaxDepth {
		node.answer = f.fundamentalAnswer(ctx, question)
		node.fundamental = true
		return node
	}

	step, err := f.decomposeStep(ctx, question)
	if err != nil {
		f.logger.Warn("Decomposition step failed", "depth", depth, "error", err)
		return node
	}
	node.answer = step.Answer
	node.fundamental = step.IsFundamental
	*assumptions = append(*assumptions, step.Assumptions...)

	if step.IsFundamental || len(step.SubQuestions) == 0 {
		return node
	}
	subs := step.SubQuestions
	if len(subs) > fpMaxBranches {
		subs = subs[:fpMaxBranches]
	}
	for _, sub := range subs {
		node.children = append(node.children, f.decompose(ctx, sub, depth+1, assumptions))
	}
	return node
}

func (f *FirstPrinciples) decomposeStep(ctx context.Context, question string) (*fpStep, error) {
	resp, err := f.llm.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: fpDecomposeSystemPrompt},
			{Role: "user", Content: question},
		},
		Temperature: fpTemperature,
	})
	if err != nil {
		return nil, err
	}
	raw := llm.ExtractJSON(llm.ExtractText(resp))
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in decomposition response")
	}
	var step fpStep
	if err := json.Unmarshal([]byte(raw), &step); err != nil {
		return nil, fmt.Errorf("malformed decomposition JSON: %w", err)
	}
	return &step, nil
}

// fundamentalAnswer closes a depth-bounded leaf with one short call.
// An empty string marks the leaf unusable.
func (f *FirstPrinciples) fundamentalAnswer(ctx context.Context, question string) string {
	resp, err := f.llm.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: "Answer in one or two sentences, stating only what is fundamentally true."},
			{Role: "user", Content: question},
		},
		Temperature: fpTemperature,
		MaxTokens:   256,
	})
	if err != nil {
		f.logger.Warn("Fundamental answer call failed", "error", err)
		return ""
	}
	return llm.ExtractText(resp)
}

// collectLeaves gathers the answers of childless nodes.
func collectLeaves(node *fpNode, out *[]string) {
	if node == nil {
		return
	}
	if len(node.children) == 0 {
		if node.answer != "" {
			*out = append(*out, node.answer)
		}
		return
	}
	for _, child := range node.children {
		collectLeaves(child, out)
	}
}

func (f *FirstPrinciples) synthesize(ctx context.Context, question string, fundamentals, assumptions []string) (*FirstPrinciplesResult, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Original question:\n%s\n\nFundamental answers:\n", question)
	for _, leaf := range fundamentals {
		fmt.Fprintf(&b, "- %s\n", leaf)
	}
	if len(assumptions) > 0 {
		b.WriteString("\nAssumptions made along the way:\n")
		for _, a := range assumptions {
			fmt.Fprintf(&b, "- %s\n", a)
		}
	}

	resp, err := f.llm.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: fpSynthesisSystemPrompt},
			{Role: "user", Content: b.String()},
		},
		Temperature: fpTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesis call failed: %w", err)
	}
	raw := llm.ExtractJSON(llm.ExtractText(resp))
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in synthesis response")
	}
	var parsed struct {
		Reconstruction string  `json:"reconstruction"`
		Confidence     float64 `json:"confidence"`
		RequiresReview bool    `json:"requires_review"`
		ReviewReason   string  `json:"review_reason"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("malformed synthesis JSON: %w", err)
	}
	return &FirstPrinciplesResult{
		Reconstruction: parsed.Reconstruction,
		Fundamentals:   fundamentals,
		Assumptions:    assumptions,
		Confidence:     parsed.Confidence,
		RequiresReview: parsed.RequiresReview,
		ReviewReason:   parsed.ReviewReason,
	}, nil
}

const fpDecomposeSystemPrompt = `You decompose a question toward first principles.
Respond with ONLY a JSON object:
{"answer": "...", "is_fundamental": true|false, "assumptions": ["..."], "sub_questions": ["..."]}
Mark is_fundamental true when the answer rests on no further decomposable claims.
Offer at most three sub_questions. Flag questionable assumptions explicitly.`

const fpSynthesisSystemPrompt = `You reconstruct an answer strictly from fundamental building blocks.
Respond with ONLY a JSON object:
{"reconstruction": "...", "confidence": 0.0-1.0, "requires_review": true|false, "review_reason": "..."}
Require review when the fundamentals rest on questionable assumptions.`
