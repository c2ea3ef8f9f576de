package thinking

// Output aggregates the results of whichever thinking tools ran for one
// response. Nil fields mean the tool was not invoked.
type Output struct {
	RedTeam         *RedTeamResult
	Council         *CouncilResult
	FirstPrinciples *FirstPrinciplesResult
}

// Invoked reports whether any tool ran.
func (o Output) Invoked() bool {
	return o.RedTeam != nil || o.Council != nil || o.FirstPrinciples != nil
}

// RequiresHumanReview is the logical OR across invoked tools.
func (o Output) RequiresHumanReview() bool {
	if o.RedTeam != nil && o.RedTeam.RequiresHumanReview {
		return true
	}
	if o.Council != nil && o.Council.RequiresReview {
		return true
	}
	if o.FirstPrinciples != nil && o.FirstPrinciples.RequiresReview {
		return true
	}
	return false
}

// AdjustedConfidence is the minimum confidence across invoked tools, the
// most conservative view. With no tools invoked it is 1.0.
func (o Output) AdjustedConfidence() float64 {
	confidence := 1.0
	if o.RedTeam != nil && o.RedTeam.OverallConfidence < confidence {
		confidence = o.RedTeam.OverallConfidence
	}
	if o.Council != nil && o.Council.Confidence < confidence {
		confidence = o.Council.Confidence
	}
	if o.FirstPrinciples != nil && o.FirstPrinciples.Confidence < confidence {
		confidence = o.FirstPrinciples.Confidence
	}
	return confidence
}

// ReviewReasons collects the non-empty review reasons of invoked tools.
func (o Output) ReviewReasons() []string {
	var reasons []string
	if o.RedTeam != nil && o.RedTeam.ReviewReason != "" {
		reasons = append(reasons, o.RedTeam.ReviewReason)
	}
	if o.Council != nil && o.Council.ReviewReason != "" {
		reasons = append(reasons, o.Council.ReviewReason)
	}
	if o.FirstPrinciples != nil && o.FirstPrinciples.ReviewReason != "" {
		reasons = append(reasons, o.FirstPrinciples.ReviewReason)
	}
	return reasons
}
