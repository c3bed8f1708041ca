package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Vehicle is one year/make/model document with its mileage-bucketed complaint history.
type Vehicle struct {
	ID                  int64          `json:"id,omitempty"`
	Year                int            `json:"year"`
	Make                string         `json:"make"`
	Model               string         `json:"model"`
	Buckets             []Bucket       `json:"buckets"`
	TotalComplaintCount *FlexInt       `json:"total_complaint_count,omitempty"`
	Content             VehicleContent `json:"content"`
}

type VehicleContent struct {
	Reliability *float64 `json:"reliability,omitempty"`
	UnitsSold   *FlexInt `json:"units_sold,omitempty"`
	Recalls     []string `json:"recalls,omitempty"`
	KnownIssues []string `json:"known_issues,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	Summary     string   `json:"summary,omitempty"`
}

// Bucket groups complaints reported within one mileage range.
type Bucket struct {
	FromMileage     int         `json:"from_mileage"`
	ToMileage       int         `json:"to_mileage"`
	TotalComplaints *FlexInt    `json:"total_complaints,omitempty"`
	Categories      []string    `json:"categories,omitempty"`
	Complaints      []Complaint `json:"complaints,omitempty"`
}

// Normalize swaps an inverted mileage range so that FromMileage <= ToMileage.
func (b Bucket) Normalize() Bucket {
	if b.FromMileage > b.ToMileage {
		b.FromMileage, b.ToMileage = b.ToMileage, b.FromMileage
	}
	return b
}

type Complaint struct {
	Title            string            `json:"title"`
	Category         string            `json:"category"`
	Severity         *float64          `json:"severity_rating,omitempty"`
	AverageMileage   *FlexInt          `json:"average_mileage,omitempty"`
	MatchedRepairs   []MatchedRepair   `json:"matched_repairs,omitempty"`
	EstimatedRepairs []EstimatedRepair `json:"estimated_repairs,omitempty"`
	BucketFrom       *int              `json:"bucket_from,omitempty"`
	BucketTo         *int              `json:"bucket_to,omitempty"`
}

type MatchedRepair struct {
	MatchedRepair  string  `json:"matched_repair"`
	InferredRepair string  `json:"inferred_repair,omitempty"`
	Score          float64 `json:"score"`
}

type EstimatedRepair struct {
	RepairSlug        string   `json:"repair_slug,omitempty"`
	RepairItem        string   `json:"repair_item,omitempty"`
	EstimatedCostLow  *float64 `json:"estimated_cost_low,omitempty"`
	EstimatedCostHigh *float64 `json:"estimated_cost_high,omitempty"`
	Source            string   `json:"source,omitempty"`
}

// Title prefers the slug and falls back to the free-text item name.
func (e EstimatedRepair) Title() string {
	if e.RepairSlug != "" {
		return e.RepairSlug
	}
	return e.RepairItem
}

// Repair is a matched repair joined with its cost estimate. Both cost bounds are always set.
type Repair struct {
	Title             string
	Description       string
	EstimatedCostLow  float64
	EstimatedCostHigh float64
	ConfidenceScore   float64
	Source            string
}

// Midpoint is the cost halfway between the low and high estimates.
func (r Repair) Midpoint() float64 {
	return r.EstimatedCostLow + (r.EstimatedCostHigh-r.EstimatedCostLow)/2
}

// FlexInt decodes JSON numbers, numeric strings and null into an int.
// Upstream vehicle documents are not consistent about numeric types.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid numeric string %q: %w", s, err)
		}
		*f = FlexInt(int(v))
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = FlexInt(int(v))
	return nil
}

// IntOr returns the value or def when the pointer is nil.
func (f *FlexInt) IntOr(def int) int {
	if f == nil {
		return def
	}
	return int(*f)
}
