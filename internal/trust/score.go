package trust

const (
	// MaxScore is the upper bound of a trust score.
	MaxScore = 100

	// FullConfidenceRatings is the sample size at which confidence reaches 100.
	FullConfidenceRatings = 20

	// MidConfidenceRatings is where the linear 80→100 ramp starts.
	MidConfidenceRatings = 5

	starScale = 20 // 1..5 stars onto 20..100
)

// Confidence returns the percentage applied to the weighted average for a
// given number of active ratings.
//
//	n >= 20      → 100
//	5 <= n < 20  → 80 + (n-5)*4/3
//	n < 5        → n*16
func Confidence(activeRatings uint64) uint64 {
	switch {
	case activeRatings >= FullConfidenceRatings:
		return 100
	case activeRatings >= MidConfidenceRatings:
		return 80 + ((activeRatings-MidConfidenceRatings)*4)/3
	default:
		return activeRatings * 16
	}
}

// BaseScore maps the weighted mean star rating onto 0..100.
func BaseScore(totalWeightedScore, totalWeight uint64) uint64 {
	if totalWeight == 0 {
		return 0
	}
	return (totalWeightedScore * starScale) / totalWeight
}

// Score derives the confidence-scaled trust score from running aggregates.
// Integer division throughout; the result is 0 exactly when there are no
// active ratings.
func Score(totalWeightedScore, totalWeight, activeRatings uint64) uint8 {
	if activeRatings == 0 || totalWeight == 0 {
		return 0
	}
	s := BaseScore(totalWeightedScore, totalWeight) * Confidence(activeRatings) / 100
	if s > MaxScore {
		s = MaxScore
	}
	return uint8(s)
}
