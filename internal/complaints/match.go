package complaints

import (
	"strings"

	"vehiclereport/internal/domain"
)

// NormalizeTitle lowercases, turns hyphens into spaces and trims.
func NormalizeTitle(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(strings.ToLower(s), "-", " "))
}

// MatchRepairs joins the complaint's matched repairs against its estimated repairs.
// Matched repairs scoring below minScore are skipped when minScore is set. Every estimate
// whose normalized slug equals the normalized matched text produces a candidate, and
// candidates missing either cost bound are dropped. The result may contain the same
// title more than once.
func MatchRepairs(c domain.Complaint, minScore *float64) []domain.Repair {
	if len(c.MatchedRepairs) == 0 || len(c.EstimatedRepairs) == 0 {
		return nil
	}

	var out []domain.Repair
	for _, m := range c.MatchedRepairs {
		if minScore != nil && m.Score < *minScore {
			continue
		}
		want := NormalizeTitle(m.MatchedRepair)
		if want == "" {
			continue
		}
		for _, e := range c.EstimatedRepairs {
			if NormalizeTitle(e.Title()) != want {
				continue
			}
			if e.EstimatedCostLow == nil || e.EstimatedCostHigh == nil {
				continue
			}
			out = append(out, domain.Repair{
				Title:             e.Title(),
				Description:       m.InferredRepair,
				EstimatedCostLow:  *e.EstimatedCostLow,
				EstimatedCostHigh: *e.EstimatedCostHigh,
				ConfidenceScore:   m.Score,
				Source:            e.Source,
			})
		}
	}
	return out
}
