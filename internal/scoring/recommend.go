package scoring

import "context"

const (
	RecommendRareFind   = "Rare Find, Great Buy!"
	RecommendStrong     = "Strong Choice"
	RecommendGood       = "Good Choice"
	RecommendConsider   = "Consider Other Options"
	RecommendAvoid      = "Avoid if possible"
	RecommendAvoidAtAll = "Avoid at all costs"

	defaultAvgReliability = 70
)

// ScoreRange holds the fleet-wide reliability score statistics.
type ScoreRange struct {
	Min float64
	Max float64
	Avg float64
}

// Recommend maps a score to a buyer recommendation using the fleet score range.
func (e *Engine) Recommend(ctx context.Context, score int) (string, error) {
	r, err := e.scoreRange(ctx)
	if err != nil {
		return "", err
	}
	return Recommendation(float64(score), r), nil
}

func (e *Engine) scoreRange(ctx context.Context) (ScoreRange, error) {
	r := ScoreRange{Min: MinScore, Max: BaseScore, Avg: defaultAvgReliability}
	for _, s := range []struct {
		key string
		dst *float64
	}{
		{KeyMinReliabilityScore, &r.Min},
		{KeyMaxReliabilityScore, &r.Max},
		{KeyAvgReliabilityScore, &r.Avg},
	} {
		v, ok, err := e.stat(ctx, s.key)
		if err != nil {
			return ScoreRange{}, err
		}
		if ok {
			*s.dst = float64(v)
		}
	}
	return r, nil
}

// Recommendation places the score within the range as a percentile and maps it to a
// label. Thresholds are checked high to low, first match wins, so the 0.85 band only
// catches percentiles in [0.85, 0.86]. A degenerate range compares against the average.
func Recommendation(score float64, r ScoreRange) string {
	if r.Max == r.Min {
		switch {
		case score > r.Avg:
			return RecommendGood
		case score == r.Avg:
			return RecommendConsider
		default:
			return RecommendAvoid
		}
	}

	percentile := (score - r.Min) / (r.Max - r.Min)
	switch {
	case percentile > 0.86:
		return RecommendRareFind
	case percentile >= 0.85:
		return RecommendStrong
	case percentile >= 0.65:
		return RecommendGood
	case percentile >= 0.35:
		return RecommendConsider
	case percentile >= 0.15:
		return RecommendAvoid
	default:
		return RecommendAvoidAtAll
	}
}

// RecommendationRank orders labels from worst (0) to best.
func RecommendationRank(label string) int {
	switch label {
	case RecommendAvoidAtAll:
		return 0
	case RecommendAvoid:
		return 1
	case RecommendConsider:
		return 2
	case RecommendGood:
		return 3
	case RecommendStrong:
		return 4
	case RecommendRareFind:
		return 5
	}
	return -1
}
