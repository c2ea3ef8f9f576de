package thinking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/eap-project/eap/pkg/llm"
)

const redTeamTemperature = 0.2

// redTeamCheck is one adversarial lens applied to the draft.
type redTeamCheck struct {
	category string
	focus    string
}

var redTeamChecks = []redTeamCheck{
	{"factual_grounding", "Identify every claim in the draft that contradicts or is unsupported by the provided sources."},
	{"safety_omissions", "Identify hazardous operations the draft describes without adequate warnings or preconditions."},
	{"confidence_calibration", "Identify statements expressed with more certainty than the evidence supports."},
	{"classification_leakage", "Identify content whose sensitivity exceeds the user's clearance level."},
}

// RedTeamInput is the material under adversarial review.
type RedTeamInput struct {
	Draft     string
	Sources   []string
	Clearance string
}

// RedTeam stress-tests a draft response with four parallel adversarial
// checks before release.
type RedTeam struct {
	llm    llm.Client
	logger *slog.Logger
}

// NewRedTeam creates a red-team tool.
func NewRedTeam(client llm.Client) *RedTeam {
	return &RedTeam{llm: client, logger: slog.With("component", "redteam")}
}

// Analyze runs all four checks concurrently and aggregates their findings.
// A failed check degrades to a synthetic high-severity system_error finding
// so the analysis always produces a result.
func (r *RedTeam) Analyze(ctx context.Context, in RedTeamInput) (*RedTeamResult, error) {
	results := make([][]Finding, len(redTeamChecks))

	var group errgroup.Group
	for i, check := range redTeamChecks {
		group.Go(func() error {
			findings, err := r.runCheck(ctx, check, in)
			if err != nil {
				r.logger.Warn("Red-team check failed", "category", check.category, "error", err)
				findings = []Finding{{
					Category:    check.category,
					Severity:    SeverityHigh,
					Description: fmt.Sprintf("system_error: check did not complete: %v", err),
				}}
			}
			results[i] = findings
			return nil
		})
	}
	group.Wait() //nolint:errcheck // check failures degrade to findings

	var all []Finding
	for _, findings := range results {
		all = append(all, findings...)
	}
	return r.aggregate(ctx, in, all)
}

func (r *RedTeam) runCheck(ctx context.Context, check redTeamCheck, in RedTeamInput) ([]Finding, error) {
	resp, err := r.llm.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: redTeamCheckSystemPrompt},
			{Role: "user", Content: buildCheckPrompt(check, in)},
		},
		Temperature: redTeamTemperature,
	})
	if err != nil {
		return nil, err
	}

	raw := llm.ExtractJSON(llm.ExtractText(resp))
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in check response")
	}
	var parsed struct {
		Findings []Finding `json:"findings"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("malformed findings JSON: %w", err)
	}
	for i := range parsed.Findings {
		if parsed.Findings[i].Category == "" {
			parsed.Findings[i].Category = check.category
		}
	}
	return parsed.Findings, nil
}

// aggregate decides the review outcome. Any critical finding short-circuits
// to mandatory review without consulting the aggregation LLM.
func (r *RedTeam) aggregate(ctx context.Context, in RedTeamInput, findings []Finding) (*RedTeamResult, error) {
	overall := maxSeverity(findings)

	if categories := criticalCategories(findings); len(categories) > 0 {
		return &RedTeamResult{
			Findings:            findings,
			OverallSeverity:     overall,
			RequiresHumanReview: true,
			OverallConfidence:   0.2,
			ReviewReason:        "CRITICAL findings in: " + strings.Join(categories, ", "),
		}, nil
	}

	verdict, err := r.aggregateLLM(ctx, in, findings)
	if err != nil {
		r.logger.Warn("Red-team aggregation failed, using conservative fallback", "error", err)
		hasHigh := overall == SeverityHigh
		result := &RedTeamResult{
			Findings:            findings,
			OverallSeverity:     overall,
			RequiresHumanReview: hasHigh,
			OverallConfidence:   0.8,
		}
		if hasHigh {
			result.OverallConfidence = 0.6
			result.ReviewReason = "aggregation unavailable with high-severity findings present"
		}
		return result, nil
	}

	return &RedTeamResult{
		Findings:            findings,
		OverallSeverity:     overall,
		RequiresHumanReview: verdict.RequiresHumanReview,
		OverallConfidence:   verdict.OverallConfidence,
		ReviewReason:        verdict.ReviewReason,
	}, nil
}

// maxSeverity returns the highest severity across findings, empty when
// there are none.
func maxSeverity(findings []Finding) Severity {
	var max Severity
	for _, f := range findings {
		if f.Severity.rank() > max.rank() {
			max = f.Severity
		}
	}
	return max
}

type redTeamVerdict struct {
	RequiresHumanReview bool    `json:"requires_human_review"`
	OverallConfidence   float64 `json:"overall_confidence"`
	ReviewReason        string  `json:"review_reason"`
}

func (r *RedTeam) aggregateLLM(ctx context.Context, in RedTeamInput, findings []Finding) (*redTeamVerdict, error) {
	body, err := json.Marshal(findings)
	if err != nil {
		return nil, err
	}
	resp, err := r.llm.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: redTeamAggregateSystemPrompt},
			{Role: "user", Content: fmt.Sprintf("Draft:\n%s\n\nFindings:\n%s", in.Draft, body)},
		},
		Temperature: redTeamTemperature,
	})
	if err != nil {
		return nil, err
	}
	raw := llm.ExtractJSON(llm.ExtractText(resp))
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in aggregation response")
	}
	var verdict redTeamVerdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return nil, fmt.Errorf("malformed aggregation JSON: %w", err)
	}
	return &verdict, nil
}

func criticalCategories(findings []Finding) []string {
	seen := make(map[string]bool)
	var categories []string
	for _, f := range findings {
		if f.Severity == SeverityCritical && !seen[f.Category] {
			seen[f.Category] = true
			categories = append(categories, f.Category)
		}
	}
	sort.Strings(categories)
	return categories
}

const redTeamCheckSystemPrompt = `You are an adversarial reviewer stress-testing a draft response.
Respond with ONLY a JSON object:
{"findings": [{"category": "...", "severity": "critical|high|medium|low", "description": "...", "evidence": ["..."], "recommendation": "..."}]}
An empty findings list means the draft passes this check.`

const redTeamAggregateSystemPrompt = `You review adversarial findings against a draft and decide whether it needs human review.
Respond with ONLY a JSON object:
{"requires_human_review": true|false, "overall_confidence": 0.0-1.0, "review_reason": "..."}`

func buildCheckPrompt(check redTeamCheck, in RedTeamInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Check: %s\n%s\n\n", check.category, check.focus)
	fmt.Fprintf(&b, "User clearance: %s\n\n", in.Clearance)
	if len(in.Sources) > 0 {
		b.WriteString("Sources:\n")
		for i, src := range in.Sources {
			fmt.Fprintf(&b, "[%d] %s\n", i+1, src)
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Draft:\n%s\n", in.Draft)
	return b.String()
}
