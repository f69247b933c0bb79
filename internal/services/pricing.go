package services

// Flat fees per operation. Summary requests debit the base fee at
// admission and reconcile against the length tier once the transcript is
// in hand; analysis and chat are intentionally flat-priced (distinct
// policies per endpoint, not meant to converge).
const (
	FeeSummaryBase = 1.0
	FeeAnalysis    = 5.0
	FeeChatTurn    = 0.5

	WelcomeCredits = 3.0
)

// TierCredits maps transcript length to its price bucket. LLM cost scales
// with transcript length; the boundaries are fixed segment counts.
func TierCredits(segmentCount int) float64 {
	switch {
	case segmentCount <= 100:
		return 1
	case segmentCount <= 400:
		return 2
	case segmentCount <= 800:
		return 3
	case segmentCount <= 1200:
		return 4
	case segmentCount <= 2000:
		return 6
	default:
		return 8
	}
}
