// Package report assembles free and premium report payloads.
package report

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"vehiclereport/internal/complaints"
	"vehiclereport/internal/descriptions"
	"vehiclereport/internal/domain"
	"vehiclereport/internal/scoring"
)

const (
	DefaultMinScore = 0.65
	DefaultLimit    = 5
)

const (
	noRecallsText     = "No recalls/critical issues found, consider a premium report for this vehicle for more information"
	noKnownIssuesText = "No known issues found, consider a premium report for this vehicle for more information"
)

var defaultSuggestions = []string{
	"Regular maintenance extends the lifespan of this vehicle significantly",
	"Change the oil and filter regularly, and check the air filter",
	"Check the maintenance schedule and follow it",
}

// VehicleSource looks up vehicle documents.
type VehicleSource interface {
	Vehicle(ctx context.Context, year int, vehicleMake, model string) (domain.Vehicle, error)
	VehiclesInYears(ctx context.Context, vehicleMake, model string, years []int) ([]domain.Vehicle, error)
}

// Describer resolves a layman description for a repair title. It never fails.
type Describer interface {
	Describe(ctx context.Context, title string) string
}

type Assembler struct {
	vehicles  VehicleSource
	engine    *scoring.Engine
	describer Describer
	minScore  float64
	limit     int
	log       logrus.FieldLogger
}

type AssemblerConfig struct {
	MinScore float64
	Limit    int
	Log      logrus.FieldLogger
}

func NewAssembler(vehicles VehicleSource, engine *scoring.Engine, describer Describer, cfg AssemblerConfig) *Assembler {
	if cfg.MinScore <= 0 {
		cfg.MinScore = DefaultMinScore
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	return &Assembler{
		vehicles:  vehicles,
		engine:    engine,
		describer: describer,
		minScore:  cfg.MinScore,
		limit:     cfg.Limit,
		log:       cfg.Log,
	}
}

// AssembleFree builds the free report: score, recommendation and the most reported
// repairs around the given mileage, drawn from the model year and its neighbours.
func (a *Assembler) AssembleFree(ctx context.Context, year int, vehicleMake, model string, mileage int) (domain.FreeResult, error) {
	target, err := a.vehicles.Vehicle(ctx, year, vehicleMake, model)
	if err != nil {
		return domain.FreeResult{}, fmt.Errorf("load %d %s %s: %w", year, vehicleMake, model, err)
	}
	years, err := a.vehicles.VehiclesInYears(ctx, vehicleMake, model, complaints.AdjacentYears(year))
	if err != nil {
		return domain.FreeResult{}, fmt.Errorf("load adjacent years: %w", err)
	}

	extracted := complaints.ExtractAcrossYears(years, mileage)
	agg := complaints.Aggregate(extracted, a.minScore)

	breakdown, err := a.engine.Score(ctx, &target, scoring.CountsOf(agg))
	if err != nil {
		return domain.FreeResult{}, fmt.Errorf("score: %w", err)
	}
	recommendation, err := a.engine.Recommend(ctx, breakdown.Score)
	if err != nil {
		return domain.FreeResult{}, fmt.Errorf("recommend: %w", err)
	}

	shown := RankTitles(agg.Titles)
	if len(shown) > a.limit {
		shown = shown[:a.limit]
	}

	entries := make([]domain.ComplaintEntry, 0, len(shown))
	var costFrom, costTo float64
	for i, t := range shown {
		avgCost := int(math.Round(t.MedianCost()))
		if i == 0 {
			costFrom, costTo = float64(avgCost), float64(avgCost)
		} else {
			costFrom = min(costFrom, float64(avgCost))
			costTo = max(costTo, float64(avgCost))
		}

		entry := domain.ComplaintEntry{
			NormalizedTitle: descriptions.Deslugify(descriptions.Slug(t.Title)),
			Description:     a.describer.Describe(ctx, t.Title),
			TimesReported:   TimesReported(t.Count),
			BucketFrom:      t.BucketFrom,
			BucketTo:        t.BucketTo,
			AverageCost:     avgCost,
		}
		if t.PrimaryComplaint != "" {
			text := t.PrimaryComplaint
			entry.Complaint = &text
		}
		entries = append(entries, entry)
	}

	a.log.WithFields(logrus.Fields{
		"year":       year,
		"make":       vehicleMake,
		"model":      model,
		"mileage":    mileage,
		"complaints": len(extracted),
		"titles":     len(agg.Titles),
		"score":      breakdown.Score,
		"legacy":     breakdown.Legacy,
	}).Info("free report assembled")

	return domain.FreeResult{
		Common: domain.Common{
			Score:          breakdown.Score,
			Recommendation: recommendation,
			Summary:        target.Content.Summary,
			CostFrom:       costFrom,
			CostTo:         costTo,
			Recalls:        advisories(target.Content.Recalls, noRecallsText),
			KnownIssues:    advisories(target.Content.KnownIssues, noKnownIssuesText),
			Suggestions:    advisories(target.Content.Suggestions, defaultSuggestions...),
		},
		Complaints: entries,
	}, nil
}

// RankTitles orders titles by count, then high estimate, then average match score, all
// descending. Equal keys keep first-seen order.
func RankTitles(titles []*complaints.TitleAggregate) []*complaints.TitleAggregate {
	ranked := slices.Clone(titles)
	slices.SortStableFunc(ranked, func(a, b *complaints.TitleAggregate) int {
		return cmp.Or(
			cmp.Compare(b.Count, a.Count),
			cmp.Compare(b.HighEstimate, a.HighEstimate),
			cmp.Compare(b.MatchScoreAvg, a.MatchScoreAvg),
		)
	})
	return ranked
}

// TimesReported describes how often a repair title recurred.
func TimesReported(count int) string {
	switch {
	case count > 100:
		return "well documented"
	case count > 10:
		return "reported several times"
	case count >= 1:
		return "reported at least once"
	}
	return "not reported often"
}

// advisories converts content lines, falling back to placeholders when there are none.
// Lines mentioning "critical" are priority 1.
func advisories(lines []string, placeholders ...string) []domain.Advisory {
	var out []domain.Advisory
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		p := domain.PriorityNormal
		if strings.Contains(strings.ToLower(l), "critical") {
			p = domain.PriorityCritical
		}
		out = append(out, domain.Advisory{Description: l, Priority: p})
	}
	if len(out) > 0 {
		return out
	}
	for _, p := range placeholders {
		out = append(out, domain.Advisory{Description: p, Priority: domain.PriorityNormal})
	}
	return out
}
