// Package scoring turns complaint counts and fleet statistics into a bounded reliability score.
package scoring

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/sirupsen/logrus"

	"vehiclereport/internal/complaints"
	"vehiclereport/internal/domain"
	"vehiclereport/internal/ranking"
)

const (
	BaseScore = 100
	MinScore  = 40

	maxOverallPenalty = 0.7
	topCategories     = 10
	deductionScale    = 6.0
	legacyUnitsSold   = 30000
	legacyComplaints  = 100
	legacyReliability = 100.0
)

// StatSource reads precomputed fleet statistics. ok is false when the key is absent.
type StatSource interface {
	Stat(ctx context.Context, key string) (value int, ok bool, err error)
}

// Counts is the complaint tally the score is computed from.
type Counts struct {
	Categories map[string]int
	Order      []string
	Priorities map[ranking.Tier]int
	Total      int
}

func CountsOf(agg complaints.Aggregation) Counts {
	return Counts{
		Categories: agg.CategoryCounts,
		Order:      agg.CategoryOrder,
		Priorities: agg.PriorityCounts,
		Total:      agg.TotalComplaints,
	}
}

type Deduction struct {
	Category string
	Tier     ranking.Tier
	Count    int
	Average  float64
	Points   int
}

// Breakdown explains how a score was reached.
type Breakdown struct {
	Score          int
	Legacy         bool
	ModelAverage   float64
	OverallRatio   float64
	OverallPenalty float64
	Deductions     []Deduction
}

type Engine struct {
	stats StatSource
	log   logrus.FieldLogger
}

func NewEngine(stats StatSource, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{stats: stats, log: log}
}

// Score computes the reliability score for a vehicle. The result is always within
// [MinScore, BaseScore]. When no complaint averages exist for the make, model or fleet
// the coarse legacy formula is used instead.
func (e *Engine) Score(ctx context.Context, v *domain.Vehicle, counts Counts) (Breakdown, error) {
	var vehicleMake, model string
	if v != nil {
		vehicleMake, model = v.Make, v.Model
	}

	avgModel, ok, err := e.firstStat(ctx,
		MakeModelKey(vehicleMake, model),
		MakeKey(vehicleMake),
		KeyAvgComplaintsPerDocument,
	)
	if err != nil {
		return Breakdown{}, err
	}
	if !ok {
		return e.legacyScore(ctx, v)
	}

	b := Breakdown{ModelAverage: float64(avgModel)}
	b.OverallRatio = float64(counts.Total) / math.Max(float64(avgModel), 1)
	b.OverallPenalty = clamp((b.OverallRatio-1)/2, 0, maxOverallPenalty)
	score := BaseScore - int(math.Round(b.OverallPenalty*(BaseScore-MinScore)))

	totalVehicles, _, err := e.stat(ctx, KeyTotalDocuments)
	if err != nil {
		return Breakdown{}, err
	}

	for _, category := range RankCategories(counts) {
		count := counts.Categories[category]
		total, ok, err := e.stat(ctx, CategoryKey(category))
		if err != nil {
			return Breakdown{}, err
		}
		if !ok {
			continue
		}
		avg := float64(total) / math.Max(float64(totalVehicles), 1)
		if float64(count) <= avg {
			continue
		}
		tier := ranking.Lookup(category).Tier
		points := int(math.Round(((float64(count) - avg) / math.Max(avg, 1)) * ranking.TierWeight(tier) * deductionScale))
		score -= points
		b.Deductions = append(b.Deductions, Deduction{
			Category: category,
			Tier:     tier,
			Count:    count,
			Average:  avg,
			Points:   points,
		})
	}

	b.Score = clampScore(score)
	e.log.WithFields(logrus.Fields{
		"make":       vehicleMake,
		"model":      model,
		"total":      counts.Total,
		"avg_model":  avgModel,
		"ratio":      fmt.Sprintf("%.2f", b.OverallRatio),
		"deductions": len(b.Deductions),
		"score":      b.Score,
	}).Debug("vehicle scored")
	return b, nil
}

// RankCategories orders categories high tier first, keeping first-seen order within a
// tier, and keeps at most ten.
func RankCategories(counts Counts) []string {
	order := counts.Order
	if len(order) == 0 {
		for c := range counts.Categories {
			order = append(order, c)
		}
		slices.Sort(order)
	}
	ranked := slices.Clone(order)
	slices.SortStableFunc(ranked, func(a, b string) int {
		return ranking.Lookup(a).Tier.Rank() - ranking.Lookup(b).Tier.Rank()
	})
	if len(ranked) > topCategories {
		ranked = ranked[:topCategories]
	}
	return ranked
}

// legacyScore is reliability minus the complaint rate scaled by the fleet average per
// thousand units sold.
func (e *Engine) legacyScore(ctx context.Context, v *domain.Vehicle) (Breakdown, error) {
	reliability := legacyReliability
	total := legacyComplaints
	unitsSold := legacyUnitsSold
	if v != nil {
		if v.Content.Reliability != nil {
			reliability = *v.Content.Reliability
		}
		total = v.TotalComplaintCount.IntOr(legacyComplaints)
		if u := v.Content.UnitsSold.IntOr(legacyUnitsSold); u > 0 {
			unitsSold = u
		}
	}
	per1000, _, err := e.stat(ctx, KeyAvgComplaintsPer1000)
	if err != nil {
		return Breakdown{}, err
	}

	raw := reliability - (float64(total)/float64(unitsSold))*float64(per1000)
	b := Breakdown{Legacy: true, Score: clampScore(int(raw))}
	e.log.WithFields(logrus.Fields{
		"reliability": reliability,
		"total":       total,
		"units_sold":  unitsSold,
		"score":       b.Score,
	}).Debug("vehicle scored with legacy formula")
	return b, nil
}

func (e *Engine) stat(ctx context.Context, key string) (int, bool, error) {
	if e.stats == nil {
		return 0, false, nil
	}
	v, ok, err := e.stats.Stat(ctx, key)
	if err != nil {
		return 0, false, fmt.Errorf("reading stat %s: %w", key, err)
	}
	return v, ok, nil
}

func (e *Engine) firstStat(ctx context.Context, keys ...string) (int, bool, error) {
	for _, k := range keys {
		v, ok, err := e.stat(ctx, k)
		if err != nil || ok {
			return v, ok, err
		}
	}
	return 0, false, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func clampScore(s int) int {
	return min(max(s, MinScore), BaseScore)
}
