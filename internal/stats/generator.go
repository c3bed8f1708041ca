// Package stats computes the fleet-wide statistics the scoring engine reads.
package stats

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"vehiclereport/internal/domain"
	"vehiclereport/internal/metrics"
	"vehiclereport/internal/ranking"
	"vehiclereport/internal/scoring"
)

// Vehicles without usable buckets still count, using these placeholder tallies.
const (
	defaultComplaintsPerMakeModel = 3
	defaultComplaintsPerMake      = 5
)

var defaultCategories = []string{"electrical", "mechanical", "drivetrain", "body"}

const (
	categoryComplaints          = "complaints"
	categoryComplaintsByCat     = "complaints_by_category"
	categoryComplaintsMakeModel = "complaints_by_make_model"
	categoryComplaintsMake      = "complaints_by_make"
	categoryReliability         = "reliability"
)

type VehicleSource interface {
	EachVehicle(ctx context.Context, fn func(domain.Vehicle) error) error
}

type StatSink interface {
	SetStats(ctx context.Context, stats []domain.Stat) error
}

type Generator struct {
	source  VehicleSource
	sink    StatSink
	metrics *metrics.Metrics
	log     logrus.FieldLogger
	now     func() time.Time
}

func NewGenerator(source VehicleSource, sink StatSink, m *metrics.Metrics, log logrus.FieldLogger) *Generator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Generator{source: source, sink: sink, metrics: m, log: log, now: time.Now}
}

// Result summarizes one populate run.
type Result struct {
	Documents       int
	Skipped         int
	TotalComplaints int
	Stats           []domain.Stat
}

type tally struct {
	count     int
	documents int
}

// accumulator folds vehicle documents into complaint tallies. Keys keep first-seen order
// so the written stats are deterministic.
type accumulator struct {
	documents     int
	skipped       int
	total         int
	categories    map[string]int
	categoryOrder []string
	makeModels    map[string]*tally
	makeModelName map[string]string
	makeModelKeys []string
	makes         map[string]*tally
	makeName      map[string]string
	makeKeys      []string

	reliability []float64
	complaints  int
	unitsSold   int
}

func newAccumulator() *accumulator {
	return &accumulator{
		categories:    make(map[string]int),
		makeModels:    make(map[string]*tally),
		makeModelName: make(map[string]string),
		makes:         make(map[string]*tally),
		makeName:      make(map[string]string),
	}
}

func (a *accumulator) addCategory(category string, n int) {
	if _, ok := a.categories[category]; !ok {
		a.categoryOrder = append(a.categoryOrder, category)
	}
	a.categories[category] += n
}

func (a *accumulator) add(v domain.Vehicle) {
	a.documents++
	if v.Make == "" || v.Model == "" {
		a.skipped++
		return
	}

	mmKey := scoring.MakeModelKey(v.Make, v.Model)
	mm, ok := a.makeModels[mmKey]
	if !ok {
		mm = &tally{}
		a.makeModels[mmKey] = mm
		a.makeModelName[mmKey] = v.Make + " " + v.Model
		a.makeModelKeys = append(a.makeModelKeys, mmKey)
	}
	mm.documents++

	mKey := scoring.MakeKey(v.Make)
	mk, ok := a.makes[mKey]
	if !ok {
		mk = &tally{}
		a.makes[mKey] = mk
		a.makeName[mKey] = v.Make
		a.makeKeys = append(a.makeKeys, mKey)
	}
	mk.documents++

	if v.Content.Reliability != nil {
		a.reliability = append(a.reliability, *v.Content.Reliability)
	}
	if v.TotalComplaintCount != nil && v.Content.UnitsSold != nil && *v.Content.UnitsSold > 0 {
		a.complaints += int(*v.TotalComplaintCount)
		a.unitsSold += int(*v.Content.UnitsSold)
	}

	if len(v.Buckets) == 0 {
		a.total += defaultComplaintsPerMakeModel
		mm.count += defaultComplaintsPerMakeModel
		mk.count += defaultComplaintsPerMake
		for _, c := range defaultCategories {
			a.addCategory(c, 1)
		}
		return
	}

	for _, b := range v.Buckets {
		n := b.TotalComplaints.IntOr(0)
		a.total += n
		mm.count += n
		mk.count += n

		var cats []string
		for _, c := range b.Categories {
			if c = ranking.CleanCategory(c); c != "" {
				cats = append(cats, c)
			}
		}
		if len(cats) == 0 {
			continue
		}
		share := int(math.Ceil(float64(n) / float64(len(b.Categories))))
		for _, c := range cats {
			a.addCategory(c, share)
		}
	}
}

func (a *accumulator) stats(at time.Time) []domain.Stat {
	stat := func(key string, value int, category, description string) domain.Stat {
		return domain.Stat{Key: key, Value: value, Category: category, Description: description, LastUpdated: at}
	}

	out := []domain.Stat{
		stat(scoring.KeyTotalDocuments, a.documents, categoryComplaints, "Total number of vehicle documents"),
		stat(scoring.KeyAvgComplaintsPerDocument, roundedAverage(a.total, a.documents), categoryComplaints,
			"Average number of complaints per vehicle document"),
	}
	for _, c := range a.categoryOrder {
		out = append(out, stat(scoring.CategoryKey(c), a.categories[c], categoryComplaintsByCat,
			"Total complaints for category: "+c))
	}
	for _, k := range a.makeModelKeys {
		t := a.makeModels[k]
		out = append(out, stat(k, roundedAverage(t.count, t.documents), categoryComplaintsMakeModel,
			"Average complaints for "+a.makeModelName[k]))
	}
	for _, k := range a.makeKeys {
		t := a.makes[k]
		out = append(out, stat(k, roundedAverage(t.count, t.documents), categoryComplaintsMake,
			"Average complaints for "+a.makeName[k]))
	}

	if len(a.reliability) > 0 {
		lo, hi, sum := a.reliability[0], a.reliability[0], 0.0
		for _, r := range a.reliability {
			lo, hi, sum = math.Min(lo, r), math.Max(hi, r), sum+r
		}
		out = append(out,
			stat(scoring.KeyMinReliabilityScore, int(math.Round(lo)), categoryReliability, "Lowest reliability score"),
			stat(scoring.KeyMaxReliabilityScore, int(math.Round(hi)), categoryReliability, "Highest reliability score"),
			stat(scoring.KeyAvgReliabilityScore, int(math.Round(sum/float64(len(a.reliability)))), categoryReliability,
				"Average reliability score"),
		)
	}
	if a.unitsSold > 0 {
		per1000 := int(math.Round(float64(a.complaints) / float64(a.unitsSold) * 1000))
		out = append(out, stat(scoring.KeyAvgComplaintsPer1000, per1000, categoryComplaints,
			"Average complaints per 1000 units sold"))
	}
	return out
}

func roundedAverage(total, n int) int {
	if n == 0 {
		return 0
	}
	return int(math.Round(float64(total) / float64(n)))
}

// Populate recomputes every statistic from the stored vehicle documents and writes them.
func (g *Generator) Populate(ctx context.Context) (Result, error) {
	acc := newAccumulator()
	if err := g.source.EachVehicle(ctx, func(v domain.Vehicle) error {
		acc.add(v)
		return ctx.Err()
	}); err != nil {
		return Result{}, fmt.Errorf("scan vehicles: %w", err)
	}

	now := g.now().UTC()
	res := Result{
		Documents:       acc.documents,
		Skipped:         acc.skipped,
		TotalComplaints: acc.total,
		Stats:           acc.stats(now),
	}
	if err := g.sink.SetStats(ctx, res.Stats); err != nil {
		return res, fmt.Errorf("write stats: %w", err)
	}
	g.metrics.MarkStatsPopulated(now)

	g.log.WithFields(logrus.Fields{
		"documents":  res.Documents,
		"skipped":    res.Skipped,
		"complaints": res.TotalComplaints,
		"stats":      len(res.Stats),
	}).Info("stats populated")
	return res, nil
}

// Summary is a one-line description of a populate run for operators.
func (r Result) Summary() string {
	msg := fmt.Sprintf("Processed %d vehicle documents: %d complaints, %d stats written", r.Documents, r.TotalComplaints, len(r.Stats))
	if r.Skipped > 0 {
		msg += fmt.Sprintf(" (%d skipped without make or model)", r.Skipped)
	}
	return msg
}
