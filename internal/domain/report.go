package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierFree, "standard", "":
		return TierFree, nil
	case TierPremium:
		return TierPremium, nil
	}
	return "", fmt.Errorf("%w: unknown tier %q", ErrInvalidReportRequest, s)
}

type ReportStatus string

const (
	StatusPending    ReportStatus = "pending"
	StatusProcessing ReportStatus = "processing"
	StatusCompleted  ReportStatus = "completed"
	StatusFailed     ReportStatus = "failed"
)

// ReportParams holds the optional buyer-supplied context used by premium reports.
type ReportParams struct {
	ZipCode     string `json:"zip_code,omitempty"`
	Information string `json:"information,omitempty"`
	ListingHTML string `json:"listing_html,omitempty"`
}

type Report struct {
	ID          int64
	UUID        string
	UserID      *int64
	SessionUUID string
	Tier        Tier
	Year        int
	Make        string
	Model       string
	Mileage     int
	Params      ReportParams
	Status      ReportStatus
	Result      *Result
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// Advisory is a recall, known issue or suggestion. Priority 1 is critical.
type Advisory struct {
	Description string `json:"description"`
	Priority    int    `json:"priority"`
	RecallDate  string `json:"recall_date,omitempty"`
}

const (
	PriorityCritical = 1
	PriorityNormal   = 2
)

// Common carries the fields every report variant shares.
type Common struct {
	Score          int        `json:"score"`
	Recommendation string     `json:"recommendation"`
	Summary        string     `json:"summary"`
	CostFrom       float64    `json:"cost_from"`
	CostTo         float64    `json:"cost_to"`
	Recalls        []Advisory `json:"recalls"`
	KnownIssues    []Advisory `json:"known_issues"`
	Suggestions    []Advisory `json:"suggestions"`
}

type ComplaintEntry struct {
	NormalizedTitle string   `json:"normalized_title"`
	Description     string   `json:"description"`
	TimesReported   string   `json:"times_reported"`
	BucketFrom      *int     `json:"bucket_from"`
	BucketTo        *int     `json:"bucket_to"`
	Likelyhood      *float64 `json:"likelyhood"`
	Complaint       *string  `json:"complaint"`
	AverageCost     int      `json:"average_cost"`
}

type FreeResult struct {
	Common
	Complaints []ComplaintEntry `json:"complaints"`
}

type PremiumRepair struct {
	Name             string  `json:"name"`
	Description      string  `json:"description"`
	CostRangeFrom    int     `json:"cost_range_from"`
	CostRangeTo      int     `json:"cost_range_to"`
	AverageCost      int     `json:"average_cost"`
	ExpectedMileage  int     `json:"expected_mileage"`
	MileageRangeFrom int     `json:"mileage_range_from"`
	MileageRangeTo   int     `json:"mileage_range_to"`
	Likelihood       float64 `json:"likelihood"`
	ExampleComplaint string  `json:"example_complaint"`
	TimesReported    string  `json:"times_reported"`
}

type PremiumResult struct {
	Common
	Repairs   []PremiumRepair `json:"repairs"`
	Checklist []string        `json:"checklist"`
	Questions []string        `json:"questions"`
	Sources   string          `json:"sources"`
}

// Result is the stored outcome of a report. Exactly one of Free or Premium is set, matching Tier.
type Result struct {
	Tier    Tier
	Free    *FreeResult
	Premium *PremiumResult
}

func NewFreeResult(r FreeResult) *Result {
	return &Result{Tier: TierFree, Free: &r}
}

func NewPremiumResult(r PremiumResult) *Result {
	return &Result{Tier: TierPremium, Premium: &r}
}

// Shared returns the shared fields of whichever variant is set.
func (r *Result) Shared() Common {
	switch {
	case r == nil:
		return Common{}
	case r.Free != nil:
		return r.Free.Common
	case r.Premium != nil:
		return r.Premium.Common
	}
	return Common{}
}

type resultEnvelope struct {
	Tier Tier            `json:"tier"`
	Data json.RawMessage `json:"data"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch r.Tier {
	case TierFree:
		if r.Free == nil {
			return nil, fmt.Errorf("free result missing payload")
		}
		data, err = json.Marshal(r.Free)
	case TierPremium:
		if r.Premium == nil {
			return nil, fmt.Errorf("premium result missing payload")
		}
		data, err = json.Marshal(r.Premium)
	default:
		return nil, fmt.Errorf("unknown result tier %q", r.Tier)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(resultEnvelope{Tier: r.Tier, Data: data})
}

func (r *Result) UnmarshalJSON(b []byte) error {
	var env resultEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	*r = Result{Tier: env.Tier}
	switch env.Tier {
	case TierFree:
		r.Free = &FreeResult{}
		return json.Unmarshal(env.Data, r.Free)
	case TierPremium:
		r.Premium = &PremiumResult{}
		return json.Unmarshal(env.Data, r.Premium)
	}
	return fmt.Errorf("unknown result tier %q", env.Tier)
}

// Payload returns the variant payload for API consumers, without the envelope.
func (r *Result) Payload() any {
	if r == nil {
		return nil
	}
	if r.Premium != nil {
		return r.Premium
	}
	return r.Free
}
