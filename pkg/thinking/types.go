// Package thinking implements the meta-cognitive analysis tools that gate
// agent responses: adversarial red-team review, multi-perspective council
// deliberation, and first-principles decomposition. Each tool is
// independent; Output aggregates whichever tools a caller invoked.
package thinking

// Severity ranks a red-team finding.
type Severity string

// Finding severities, most severe first.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Finding is one issue surfaced by a red-team check.
type Finding struct {
	Category       string   `json:"category"`
	Severity       Severity `json:"severity"`
	Description    string   `json:"description"`
	Evidence       []string `json:"evidence,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
}

// rank orders severities for max aggregation; unknown values rank lowest.
func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// RedTeamResult is the aggregated outcome of all four red-team checks.
type RedTeamResult struct {
	Findings            []Finding
	OverallSeverity     Severity // highest finding severity, empty when clean
	RequiresHumanReview bool
	OverallConfidence   float64
	ReviewReason        string
}

// Perspective is one council member's round-1 position.
type Perspective struct {
	Name       string   `json:"name"`
	Position   string   `json:"position"`
	Arguments  []string `json:"arguments"`
	Confidence float64  `json:"confidence"`
}

// CouncilResult is the synthesized outcome of a three-round deliberation.
type CouncilResult struct {
	Consensus       string
	Confidence      float64
	DissentingViews []string
	RequiresReview  bool
	ReviewReason    string
	Perspectives    []Perspective
}

// FirstPrinciplesResult is the reconstruction produced from the
// fundamental leaves of a bounded "why?" decomposition.
type FirstPrinciplesResult struct {
	Reconstruction string
	Fundamentals   []string
	Assumptions    []string
	Confidence     float64
	RequiresReview bool
	ReviewReason   string
}
