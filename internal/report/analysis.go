package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"vehiclereport/internal/descriptions"
	"vehiclereport/internal/domain"
	"vehiclereport/internal/llm"
	"vehiclereport/internal/metrics"
)

const (
	analysisAttempts = 3
	listingLimit     = 20000

	analysisSystemPrompt = `You are a helpful assistant providing detailed, easy-to-understand vehicle information directly to the person asking. ` +
		`Speak to them as "you" and "your." Use the provided vehicle make, model, year, mileage, zip code, and any extra details to generate a comprehensive, localized report. ` +
		`Write as if you're speaking directly to the vehicle buyer or owner, not about them. Do not refer to "the user" or "customer"; always address the reader directly.`
)

// analysisFields lists every field the model must return, in prompt order.
var analysisFields = []struct{ name, description string }{
	{"score", "Reliability score, adjusted for mileage, from 0 to 100, where 100 is the best possible score"},
	{"suggestions", "if purchased, a list of 3 suggestions over the next five years, formatted as friendly pro-tips"},
	{"cost_from", "expected low range of upcoming repair cost, within the next 48 months, using the amounts from the given repairs, if any"},
	{"cost_to", "expected upper range of upcoming repair costs, within the next 48 months, using the amounts from the given repairs, if any"},
	{"summary", "summarize the vehicle; if i provided relevant information, analyze it and include it in the summary, otherwise just summarize the vehicle based on the make, model, year, mileage, and zip code"},
	{"checklist", "an array of 5 or less items that I should check when inspecting or buying the vehicle, in laymen terms, specifically what I should look for and why it matters"},
	{"repairs", "an array of 5 or less likely upcoming repairs (excluding recalls), sorted by likelihood, I might need to do, with these fields (always include costs) -- if i provided relevant information, include that as context for which repairs might be likely: " +
		"description (140 words), cost_range_from (int), cost_range_to (int), average_cost (int), expected_mileage (int), mileage_range_from (int), mileage_range_to (int), likelihood (percentage), name (technical mechanic term), example_complaint, " +
		"times_reported (string) which is how frequently this repair is reported by other owners, in laymen terms"},
	{"questions", `an array of 5 or less questions I should ask the dealer, in laymen terms. avoid generic questions, avoid questions like "Is this vehicle reliable?" or "What is the history of this vehicle?"`},
	{"known_issues", "an array of known issues for the vehicle, if any, otherwise provide empty array, with these fields: critical (boolean), description"},
	{"recalls", "an array of recalls for the vehicle, if any (otherwise provide empty array), with these fields: critical (boolean), description, recall_date"},
	{"sources", `a text list of sources, comma separated, just a string, that were used to generate this report, for example: "NHTSA, Edmunds, Consumer Reports"`},
}

// requiredAnalysisFields must be present for a reply to be accepted.
var requiredAnalysisFields = []string{
	"score", "summary", "repairs", "checklist", "questions", "known_issues", "recalls", "suggestions", "sources",
}

// Analysis is the structured premium analysis returned by the text generator.
type Analysis struct {
	Score       flexFloat        `json:"score"`
	Summary     string           `json:"summary"`
	CostFrom    flexFloat        `json:"cost_from"`
	CostTo      flexFloat        `json:"cost_to"`
	Repairs     []AnalysisRepair `json:"repairs"`
	Checklist   textList         `json:"checklist"`
	Questions   textList         `json:"questions"`
	Suggestions textList         `json:"suggestions"`
	KnownIssues []AnalysisIssue  `json:"known_issues"`
	Recalls     []AnalysisIssue  `json:"recalls"`
	Sources     textList         `json:"sources"`
}

type AnalysisRepair struct {
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	CostRangeFrom    flexFloat `json:"cost_range_from"`
	CostRangeTo      flexFloat `json:"cost_range_to"`
	AverageCost      flexFloat `json:"average_cost"`
	ExpectedMileage  flexFloat `json:"expected_mileage"`
	MileageRangeFrom flexFloat `json:"mileage_range_from"`
	MileageRangeTo   flexFloat `json:"mileage_range_to"`
	Likelihood       flexFloat `json:"likelihood"`
	ExampleComplaint string    `json:"example_complaint"`
	TimesReported    flexText  `json:"times_reported"`
}

type AnalysisIssue struct {
	Critical    bool   `json:"critical"`
	Description string `json:"description"`
	RecallDate  string `json:"recall_date,omitempty"`
}

// ParseAnalysis decodes a model reply, tolerating code fences and surrounding prose.
// Missing required fields and undecodable payloads wrap domain.ErrGenerationMalformed.
func ParseAnalysis(text string) (Analysis, error) {
	raw := llm.ExtractJSON(text)
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Analysis{}, fmt.Errorf("%w: %v", domain.ErrGenerationMalformed, err)
	}
	var missing []string
	for _, f := range requiredAnalysisFields {
		v, ok := fields[f]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return Analysis{}, fmt.Errorf("%w: missing %s", domain.ErrGenerationMalformed, strings.Join(missing, ", "))
	}

	var a Analysis
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return Analysis{}, fmt.Errorf("%w: %v", domain.ErrGenerationMalformed, err)
	}
	return a, nil
}

type Analyzer struct {
	provider    llm.Provider
	model       string
	maxTokens   int
	temperature float64
	retryDelay  time.Duration
	metrics     *metrics.Metrics
	log         logrus.FieldLogger
}

type AnalyzerConfig struct {
	Model       string
	MaxTokens   int
	Temperature float64
	RetryDelay  time.Duration
	Metrics     *metrics.Metrics
	Log         logrus.FieldLogger
}

func NewAnalyzer(provider llm.Provider, cfg AnalyzerConfig) *Analyzer {
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	return &Analyzer{
		provider:    provider,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		retryDelay:  cfg.RetryDelay,
		metrics:     cfg.Metrics,
		log:         cfg.Log,
	}
}

// Analyze asks the text generator for a premium analysis of the report's vehicle. Malformed
// replies and transient provider failures are retried; after the last attempt a malformed
// reply surfaces as domain.ErrGenerationMalformed.
func (a *Analyzer) Analyze(ctx context.Context, r domain.Report) (Analysis, llm.Usage, error) {
	system, user := BuildAnalysisPrompt(r)
	req := llm.Request{
		System:      system,
		User:        user,
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
		JSON:        true,
		NoCache:     true,
	}

	var (
		result  Analysis
		usage   llm.Usage
		attempt int
	)
	op := func() error {
		attempt++
		resp, err := a.provider.Complete(ctx, req)
		usage.Add(resp.Usage)
		if err != nil {
			if !llm.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		parsed, err := ParseAnalysis(resp.Text)
		if err != nil {
			return err
		}
		result = parsed
		return nil
	}
	notify := func(err error, wait time.Duration) {
		a.metrics.IncAnalysisRetry()
		a.log.WithError(err).WithFields(logrus.Fields{
			"report_uuid": r.UUID,
			"attempt":     attempt,
			"wait":        wait.String(),
		}).Warn("premium analysis attempt failed, retrying")
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(a.retryDelay), analysisAttempts-1), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if errors.Is(err, domain.ErrGenerationMalformed) {
			return Analysis{}, usage, fmt.Errorf("after %d attempts: %w", attempt, err)
		}
		return Analysis{}, usage, fmt.Errorf("premium analysis: %w", err)
	}
	a.log.WithFields(logrus.Fields{
		"report_uuid": r.UUID,
		"attempts":    attempt,
		"tokens":      usage.TotalTokens(),
	}).Info("premium analysis generated")
	return result, usage, nil
}

var (
	htmlTags    = regexp.MustCompile(`(?s)<[^>]*>`)
	scriptBlock = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	blankRuns   = regexp.MustCompile(`\s{2,}`)
)

// ListingText strips markup from a scraped listing and caps its length.
func ListingText(html string) string {
	text := scriptBlock.ReplaceAllString(html, " ")
	text = htmlTags.ReplaceAllString(text, " ")
	text = strings.TrimSpace(blankRuns.ReplaceAllString(text, " "))
	if len(text) > listingLimit {
		cut := listingLimit
		for cut > 0 && !utf8RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}
	return text
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }

// BuildAnalysisPrompt renders the system and user prompts for a premium report.
func BuildAnalysisPrompt(r domain.Report) (system, user string) {
	var format strings.Builder
	format.WriteString("Response format should be a JSON object with the following fields:\n")
	for _, f := range analysisFields {
		fmt.Fprintf(&format, "- `%s`: %s\n", f.name, f.description)
	}

	information := r.Params.Information
	if r.Params.ListingHTML != "" {
		information += "\n\nListing HTML: " + ListingText(r.Params.ListingHTML)
	}

	user = fmt.Sprintf(
		"Provide to me, a layman, a detailed localized report for the vehicle: %d %s %s, Mileage: %d, Zip Code: %s. "+
			"Here is some information I know (might not be relevant): %s  %s ",
		r.Year, descriptions.Slug(r.Make), descriptions.Slug(r.Model), r.Mileage, r.Params.ZipCode, information, format.String(),
	)
	return analysisSystemPrompt, user
}

// flexFloat accepts numbers, numeric strings and percentages such as "75%".
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] != '"' {
		var v float64
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*f = flexFloat(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(strings.NewReplacer("%", "", "$", "", ",", "").Replace(s))
	if s == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %q", s)
	}
	*f = flexFloat(v)
	return nil
}

// flexText accepts a string or a bare number.
type flexText string

func (t *flexText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = flexText(s)
		return nil
	}
	*t = flexText(data)
	return nil
}

// textList accepts a single string, a list of strings, or a list of objects carrying a
// description (or text) field.
type textList []string

func (l *textList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = textList{s}
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	out := make(textList, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
			continue
		}
		var obj struct {
			Description string `json:"description"`
			Text        string `json:"text"`
			Tip         string `json:"tip"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			return err
		}
		switch {
		case obj.Description != "":
			out = append(out, obj.Description)
		case obj.Text != "":
			out = append(out, obj.Text)
		case obj.Tip != "":
			out = append(out, obj.Tip)
		}
	}
	*l = out
	return nil
}

// Joined renders the list as one comma separated string.
func (l textList) Joined() string {
	return strings.Join(l, ", ")
}
