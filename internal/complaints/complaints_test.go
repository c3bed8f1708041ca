package complaints

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vehiclereport/internal/domain"
	"vehiclereport/internal/ranking"
)

func cost(v float64) *float64 { return &v }

func complaintWith(category string, matched []domain.MatchedRepair, estimated ...domain.EstimatedRepair) domain.Complaint {
	return domain.Complaint{
		Title:            "complaint in " + category,
		Category:         category,
		MatchedRepairs:   matched,
		EstimatedRepairs: estimated,
	}
}

func estimate(slug string, low, high float64) domain.EstimatedRepair {
	return domain.EstimatedRepair{RepairSlug: slug, EstimatedCostLow: cost(low), EstimatedCostHigh: cost(high)}
}

func TestWindowFor(t *testing.T) {
	assert.Equal(t, Window{Min: 25000, Max: 85000}, WindowFor(40000))
	assert.Equal(t, Window{Min: 0, Max: 50000}, WindowFor(5000))
}

func TestExtractSelectsOverlappingBuckets(t *testing.T) {
	buckets := []domain.Bucket{
		{FromMileage: 0, ToMileage: 20000, Complaints: []domain.Complaint{{Title: "a"}, {Title: "b"}}},
		{FromMileage: 30000, ToMileage: 60000, Complaints: []domain.Complaint{{Title: "c"}}},
	}

	got := Extract(buckets, 40000)

	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].Title)
	require.NotNil(t, got[0].BucketFrom)
	assert.Equal(t, 30000, *got[0].BucketFrom)
	assert.Equal(t, 60000, *got[0].BucketTo)
}

func TestExtractIncludesBucketTouchingWindowEdge(t *testing.T) {
	// 0-30000 ends inside [25000, 85000].
	buckets := []domain.Bucket{
		{FromMileage: 0, ToMileage: 30000, Complaints: []domain.Complaint{{Title: "a"}, {Title: "b"}}},
		{FromMileage: 30000, ToMileage: 60000, Complaints: []domain.Complaint{{Title: "c"}}},
	}

	got := Extract(buckets, 40000)

	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].Title, got[1].Title, got[2].Title})
	assert.Equal(t, 0, *got[0].BucketFrom)
	assert.Equal(t, 30000, *got[1].BucketTo)
}

func TestExtractNeverReturnsOutsideWindow(t *testing.T) {
	var buckets []domain.Bucket
	for from := 0; from < 300000; from += 10000 {
		buckets = append(buckets, domain.Bucket{
			FromMileage: from,
			ToMileage:   from + 9999,
			Complaints:  []domain.Complaint{{Title: "x"}},
		})
	}
	for _, m := range []int{0, 7000, 15000, 40000, 120000, 290000} {
		w := WindowFor(m)
		for _, c := range Extract(buckets, m) {
			assert.LessOrEqual(t, *c.BucketFrom, w.Max, "mileage %d", m)
			assert.GreaterOrEqual(t, *c.BucketTo, w.Min, "mileage %d", m)
		}
	}
}

func TestExtractEmptyInputs(t *testing.T) {
	assert.Empty(t, Extract(nil, 10000))
	assert.Empty(t, ExtractVehicle(nil, 10000))
}

func TestExtractAcrossYearsAppliesOffset(t *testing.T) {
	// Target 40000 becomes 30000, so the window is [15000, 75000].
	v := domain.Vehicle{Year: 2015, Buckets: []domain.Bucket{
		{FromMileage: 0, ToMileage: 16000, Complaints: []domain.Complaint{{Title: "early"}}},
		{FromMileage: 80000, ToMileage: 90000, Complaints: []domain.Complaint{{Title: "late"}}},
	}}

	got := ExtractAcrossYears([]domain.Vehicle{v, v}, 40000)

	require.Len(t, got, 2)
	assert.Equal(t, "early", got[0].Title)
	assert.Equal(t, []int{2014, 2015, 2016}, AdjacentYears(2015))
}

func TestMatchRepairsFiltersByMinScore(t *testing.T) {
	c := complaintWith("brakes",
		[]domain.MatchedRepair{
			{MatchedRepair: "pad replacement", Score: 0.5},
			{MatchedRepair: "rotor-resurfacing", Score: 0.7},
			{MatchedRepair: "Caliper Rebuild", Score: 0.9},
		},
		estimate("pad-replacement", 100, 200),
		estimate("rotor-resurfacing", 150, 250),
		estimate("caliper-rebuild", 300, 500),
	)
	minScore := 0.6

	got := MatchRepairs(c, &minScore)

	require.Len(t, got, 2)
	assert.Equal(t, "rotor-resurfacing", got[0].Title)
	assert.Equal(t, "caliper-rebuild", got[1].Title)

	assert.Len(t, MatchRepairs(c, nil), 3)
}

func TestMatchRepairsRequiresBothCosts(t *testing.T) {
	c := complaintWith("engine",
		[]domain.MatchedRepair{{MatchedRepair: "timing belt", InferredRepair: "belt slipped", Score: 0.9}},
		domain.EstimatedRepair{RepairSlug: "timing-belt", EstimatedCostLow: cost(400)},
		estimate("timing-belt", 400, 900),
		estimate("timing-belt", 500, 800),
	)

	got := MatchRepairs(c, nil)

	require.Len(t, got, 2)
	for _, r := range got {
		assert.NotZero(t, r.EstimatedCostHigh)
		assert.Equal(t, "belt slipped", r.Description)
	}
}

func TestMatchRepairsNoMatches(t *testing.T) {
	c := complaintWith("body",
		[]domain.MatchedRepair{{MatchedRepair: "paint", Score: 1}},
		estimate("bumper", 10, 20),
	)
	assert.Empty(t, MatchRepairs(c, nil))
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 200.0, Median([]float64{300, 100, 200}))
	assert.Equal(t, 250.0, Median([]float64{400, 100, 300, 200}))
	assert.Equal(t, 0.0, Median(nil))
}

func TestDedupeStructural(t *testing.T) {
	r := domain.Repair{Title: "a", EstimatedCostLow: 1, EstimatedCostHigh: 2, ConfidenceScore: 0.8}
	other := r
	other.ConfidenceScore = 0.9

	got := Dedupe([]domain.Repair{r, r, other})

	assert.Equal(t, []domain.Repair{r, other}, got)
}

func TestAggregatePerTitle(t *testing.T) {
	from, to := 30000, 60000
	first := complaintWith("Brakes",
		[]domain.MatchedRepair{{MatchedRepair: "brake pads", InferredRepair: "Worn pads", Score: 0.8}},
		estimate("brake-pads", 100, 200),
	)
	first.BucketFrom, first.BucketTo = &from, &to
	second := complaintWith("brakes",
		[]domain.MatchedRepair{{MatchedRepair: "brake pads", InferredRepair: "Pads squeal and grind when stopping", Score: 0.6}},
		estimate("brake-pads", 150, 300),
	)
	third := complaintWith("body",
		[]domain.MatchedRepair{{MatchedRepair: "brake pads", InferredRepair: "I am unable to summarize this complaint in detail", Score: 0.9}},
		estimate("brake-pads", 100, 200),
	)
	noRepairs := complaintWith("Electrical", nil)

	agg := Aggregate([]domain.Complaint{first, second, third, noRepairs}, 0.65)

	assert.Equal(t, 4, agg.TotalComplaints)
	assert.Equal(t, map[string]int{"brakes": 2, "body": 1, "electrical": 1}, agg.CategoryCounts)
	assert.Equal(t, []string{"brakes", "body", "electrical"}, agg.CategoryOrder)
	assert.Equal(t, 2, agg.PriorityCounts[ranking.High])
	assert.Equal(t, 1, agg.PriorityCounts[ranking.Medium])
	assert.Equal(t, 1, agg.PriorityCounts[ranking.Low])

	require.Len(t, agg.Titles, 1)
	ta := agg.Titles[0]
	assert.Equal(t, "brake pads", ta.NormalizedTitle)
	// second complaint falls below the threshold
	assert.Equal(t, 2, ta.Count)
	assert.InDelta(t, 0.85, ta.MatchScoreAvg, 1e-9)
	assert.Equal(t, 100.0, ta.LowEstimate)
	assert.Equal(t, 200.0, ta.HighEstimate)
	assert.Equal(t, "Worn pads", ta.PrimaryComplaint)
	assert.Equal(t, 150.0, ta.MedianCost())
	require.NotNil(t, ta.BucketFrom)
	assert.Equal(t, 30000, *ta.BucketFrom)

	require.Len(t, agg.ByPriority[ranking.High], 1)
	assert.Equal(t, 150.0, agg.ByPriority[ranking.High][0].MedianCost)
	require.Len(t, agg.ByPriority[ranking.Low], 1)
}

func TestAggregateRunningAverage(t *testing.T) {
	var cs []domain.Complaint
	for _, s := range []float64{0.7, 0.8, 0.9} {
		cs = append(cs, complaintWith("engine",
			[]domain.MatchedRepair{{MatchedRepair: "head gasket", Score: s}},
			estimate("head-gasket", 1000, 2000),
		))
	}

	agg := Aggregate(cs, 0)

	require.Len(t, agg.Titles, 1)
	assert.Equal(t, 3, agg.Titles[0].Count)
	assert.InDelta(t, 0.8, agg.Titles[0].MatchScoreAvg, 1e-9)
}

func TestIsBoilerplate(t *testing.T) {
	assert.True(t, IsBoilerplate("I apologize, but I cannot"))
	assert.True(t, IsBoilerplate("Summary of the issue"))
	assert.False(t, IsBoilerplate("Transmission slips between second and third gear"))
}
