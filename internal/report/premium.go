package report

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"vehiclereport/internal/domain"
)

// AssemblePremium turns a validated analysis into the premium payload. v may be nil; when
// set, its content fills any advisory list the analysis left empty.
func (a *Assembler) AssemblePremium(ctx context.Context, v *domain.Vehicle, r domain.Report, an Analysis) (domain.PremiumResult, error) {
	score := int(math.Round(min(max(float64(an.Score), 0), 100)))
	recommendation, err := a.engine.Recommend(ctx, score)
	if err != nil {
		return domain.PremiumResult{}, fmt.Errorf("recommend: %w", err)
	}

	repairs := make([]domain.PremiumRepair, 0, len(an.Repairs))
	for _, rep := range an.Repairs {
		repairs = append(repairs, domain.PremiumRepair{
			Name:             strings.TrimSpace(rep.Name),
			Description:      strings.TrimSpace(rep.Description),
			CostRangeFrom:    roundInt(rep.CostRangeFrom),
			CostRangeTo:      roundInt(rep.CostRangeTo),
			AverageCost:      roundInt(rep.AverageCost),
			ExpectedMileage:  roundInt(rep.ExpectedMileage),
			MileageRangeFrom: roundInt(rep.MileageRangeFrom),
			MileageRangeTo:   roundInt(rep.MileageRangeTo),
			Likelihood:       float64(rep.Likelihood),
			ExampleComplaint: rep.ExampleComplaint,
			TimesReported:    string(rep.TimesReported),
		})
	}
	slices.SortStableFunc(repairs, func(x, y domain.PremiumRepair) int {
		return cmp.Compare(y.Likelihood, x.Likelihood)
	})

	costFrom, costTo := float64(an.CostFrom), float64(an.CostTo)
	if costFrom == 0 && costTo == 0 {
		costFrom, costTo = repairCostRange(repairs)
	}

	var content domain.VehicleContent
	if v != nil {
		content = v.Content
	}
	summary := strings.TrimSpace(an.Summary)
	if summary == "" {
		summary = content.Summary
	}

	recalls := issueAdvisories(an.Recalls)
	if len(recalls) == 0 {
		recalls = advisories(content.Recalls, noRecallsText)
	}
	knownIssues := issueAdvisories(an.KnownIssues)
	if len(knownIssues) == 0 {
		knownIssues = advisories(content.KnownIssues, noKnownIssuesText)
	}
	// Generated suggestions are tips and never critical.
	var suggestions []domain.Advisory
	for _, tip := range an.Suggestions {
		if tip = strings.TrimSpace(tip); tip != "" {
			suggestions = append(suggestions, domain.Advisory{Description: tip, Priority: domain.PriorityNormal})
		}
	}
	if len(suggestions) == 0 {
		suggestions = advisories(content.Suggestions, defaultSuggestions...)
	}

	a.log.WithFields(logrus.Fields{
		"report_uuid": r.UUID,
		"score":       score,
		"repairs":     len(repairs),
	}).Info("premium report assembled")

	return domain.PremiumResult{
		Common: domain.Common{
			Score:          score,
			Recommendation: recommendation,
			Summary:        summary,
			CostFrom:       costFrom,
			CostTo:         costTo,
			Recalls:        recalls,
			KnownIssues:    knownIssues,
			Suggestions:    suggestions,
		},
		Repairs:   repairs,
		Checklist: []string(an.Checklist),
		Questions: []string(an.Questions),
		Sources:   an.Sources.Joined(),
	}, nil
}

func issueAdvisories(issues []AnalysisIssue) []domain.Advisory {
	var out []domain.Advisory
	for _, is := range issues {
		d := strings.TrimSpace(is.Description)
		if d == "" {
			continue
		}
		p := domain.PriorityNormal
		if is.Critical {
			p = domain.PriorityCritical
		}
		out = append(out, domain.Advisory{Description: d, Priority: p, RecallDate: is.RecallDate})
	}
	return out
}

func repairCostRange(repairs []domain.PremiumRepair) (float64, float64) {
	var lo, hi float64
	for i, r := range repairs {
		if i == 0 {
			lo, hi = float64(r.CostRangeFrom), float64(r.CostRangeTo)
			continue
		}
		lo = min(lo, float64(r.CostRangeFrom))
		hi = max(hi, float64(r.CostRangeTo))
	}
	return lo, hi
}

func roundInt(f flexFloat) int {
	return int(math.Round(float64(f)))
}
