package complaints

import (
	"slices"
	"strings"

	"vehiclereport/internal/domain"
	"vehiclereport/internal/ranking"
)

// boilerplateMarkers flag generated text that talks about the task instead of the
// vehicle (refusals, meta summaries). Substring match, case-insensitive.
var boilerplateMarkers = []string{"summarize", "summary", "complaint", "language", "apologize", "unable"}

// IsBoilerplate reports whether text contains any boilerplate marker.
func IsBoilerplate(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range boilerplateMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// CostedRepair is a repair estimate that passed the confidence threshold.
type CostedRepair struct {
	Title             string
	Description       string
	ConfidenceScore   float64
	EstimatedCostLow  float64
	EstimatedCostHigh float64
	EstimatedCost     float64
}

// ComplaintRecord is the per-complaint view: one entry per complaint that yielded repairs.
type ComplaintRecord struct {
	Title            string
	Category         string
	Priority         ranking.Tier
	AverageMileage   *int
	AverageScore     float64
	MedianCost       float64
	EstimatedRepairs []CostedRepair
}

// TitleAggregate accumulates every occurrence of one repair title across complaints.
type TitleAggregate struct {
	Title            string
	NormalizedTitle  string
	Count            int
	MatchScoreAvg    float64
	LowEstimate      float64
	HighEstimate     float64
	Category         string
	Priority         ranking.Tier
	BucketFrom       *int
	BucketTo         *int
	PrimaryComplaint string

	midpoints []float64
}

// MedianCost is the median of the midpoint cost of every occurrence.
func (t *TitleAggregate) MedianCost() float64 {
	return Median(t.midpoints)
}

func (t *TitleAggregate) add(r domain.Repair, c domain.Complaint) {
	t.Count++
	t.MatchScoreAvg += (r.ConfidenceScore - t.MatchScoreAvg) / float64(t.Count)
	if t.Count == 1 {
		t.LowEstimate = r.EstimatedCostLow
		t.HighEstimate = r.EstimatedCostHigh
	} else {
		t.LowEstimate = min(t.LowEstimate, r.EstimatedCostLow)
		t.HighEstimate = max(t.HighEstimate, r.EstimatedCostHigh)
	}
	t.midpoints = append(t.midpoints, r.Midpoint())

	if c.BucketFrom != nil && (t.BucketFrom == nil || *c.BucketFrom < *t.BucketFrom) {
		v := *c.BucketFrom
		t.BucketFrom = &v
	}
	if c.BucketTo != nil && (t.BucketTo == nil || *c.BucketTo > *t.BucketTo) {
		v := *c.BucketTo
		t.BucketTo = &v
	}

	text := strings.TrimSpace(r.Description)
	if text != "" && len(text) > len(t.PrimaryComplaint) && !IsBoilerplate(text) {
		t.PrimaryComplaint = text
	}
}

// Aggregation is the grouped view of one vehicle's complaints and their repairs.
type Aggregation struct {
	ByPriority      map[ranking.Tier][]ComplaintRecord
	Titles          []*TitleAggregate
	CategoryCounts  map[string]int
	CategoryOrder   []string
	PriorityCounts  map[ranking.Tier]int
	TotalComplaints int
}

// Aggregate counts every complaint by category and tier, then groups the repairs that
// pass minScore both per complaint and per normalized title. Titles keep first-seen order.
func Aggregate(complaints []domain.Complaint, minScore float64) Aggregation {
	agg := Aggregation{
		ByPriority:     make(map[ranking.Tier][]ComplaintRecord),
		CategoryCounts: make(map[string]int),
		PriorityCounts: make(map[ranking.Tier]int),
	}
	byTitle := make(map[string]*TitleAggregate)

	for _, c := range complaints {
		category := ranking.NormalizeCategory(c.Category)
		tier := ranking.Lookup(c.Category).Tier

		if _, seen := agg.CategoryCounts[category]; !seen {
			agg.CategoryOrder = append(agg.CategoryOrder, category)
		}
		agg.CategoryCounts[category]++
		agg.PriorityCounts[tier]++
		agg.TotalComplaints++

		repairs := Dedupe(MatchRepairs(c, &minScore))
		if len(repairs) == 0 {
			continue
		}

		record := ComplaintRecord{
			Title:    c.Title,
			Category: category,
			Priority: tier,
		}
		if c.AverageMileage != nil {
			m := int(*c.AverageMileage)
			record.AverageMileage = &m
		}

		var scoreSum float64
		midpoints := make([]float64, 0, len(repairs))
		for _, r := range repairs {
			scoreSum += r.ConfidenceScore
			midpoints = append(midpoints, r.Midpoint())
			record.EstimatedRepairs = append(record.EstimatedRepairs, CostedRepair{
				Title:             r.Title,
				Description:       r.Description,
				ConfidenceScore:   r.ConfidenceScore,
				EstimatedCostLow:  r.EstimatedCostLow,
				EstimatedCostHigh: r.EstimatedCostHigh,
				EstimatedCost:     r.Midpoint(),
			})

			key := NormalizeTitle(r.Title)
			ta, ok := byTitle[key]
			if !ok {
				ta = &TitleAggregate{
					Title:           r.Title,
					NormalizedTitle: key,
					Category:        category,
					Priority:        tier,
				}
				byTitle[key] = ta
				agg.Titles = append(agg.Titles, ta)
			}
			ta.add(r, c)
		}
		record.AverageScore = scoreSum / float64(len(repairs))
		record.MedianCost = Median(midpoints)
		agg.ByPriority[tier] = append(agg.ByPriority[tier], record)
	}
	return agg
}

// Dedupe removes repairs that are structurally identical, keeping the first occurrence.
func Dedupe(repairs []domain.Repair) []domain.Repair {
	if len(repairs) < 2 {
		return repairs
	}
	seen := make(map[domain.Repair]struct{}, len(repairs))
	out := repairs[:0:0]
	for _, r := range repairs {
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Median returns the middle value of the sorted input, or the mean of the two middle
// values for an even count. Empty input yields zero.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
