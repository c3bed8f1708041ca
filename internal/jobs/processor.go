package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"vehiclereport/internal/domain"
	"vehiclereport/internal/llm"
	"vehiclereport/internal/logging"
	"vehiclereport/internal/metrics"
	"vehiclereport/internal/notify"
	"vehiclereport/internal/report"
)

const cleanupTimeout = 30 * time.Second

// ProcessStore is the persistence a report job touches.
type ProcessStore interface {
	Vehicle(ctx context.Context, year int, vehicleMake, model string) (domain.Vehicle, error)
	Balance(ctx context.Context, userID int64) (int, error)
	DeductCredits(ctx context.Context, userID int64, amount int, reason string, metadata map[string]string) (domain.Transaction, error)
	AddCredits(ctx context.Context, userID int64, amount int, reason string, metadata map[string]string) (domain.Transaction, error)
	MarkCompleted(ctx context.Context, id int64, result *domain.Result) error
	MarkFailed(ctx context.Context, id int64, reason string) error
}

type Assembler interface {
	AssembleFree(ctx context.Context, year int, vehicleMake, model string, mileage int) (domain.FreeResult, error)
	AssemblePremium(ctx context.Context, v *domain.Vehicle, r domain.Report, an report.Analysis) (domain.PremiumResult, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, r domain.Report) (report.Analysis, llm.Usage, error)
}

type Processor struct {
	store       ProcessStore
	assembler   Assembler
	analyzer    Analyzer
	notifier    notify.Notifier
	metrics     *metrics.Metrics
	premiumCost int
	log         logrus.FieldLogger
}

type ProcessorConfig struct {
	PremiumCost int
	Notifier    notify.Notifier
	Metrics     *metrics.Metrics
	Log         logrus.FieldLogger
}

func NewProcessor(store ProcessStore, assembler Assembler, analyzer Analyzer, cfg ProcessorConfig) *Processor {
	if cfg.PremiumCost < 1 {
		cfg.PremiumCost = 1
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Nop{}
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	return &Processor{
		store:       store,
		assembler:   assembler,
		analyzer:    analyzer,
		notifier:    cfg.Notifier,
		metrics:     cfg.Metrics,
		premiumCost: cfg.PremiumCost,
		log:         cfg.Log,
	}
}

// Process generates the result for a claimed report and records the outcome. The returned
// error is the generation failure, after the report has been marked failed.
func (p *Processor) Process(ctx context.Context, r domain.Report) error {
	start := time.Now()
	log := logging.WithReport(p.log, r)
	log.Info("processing report")

	var err error
	switch r.Tier {
	case domain.TierPremium:
		err = p.processPremium(ctx, r, log)
	default:
		err = p.processFree(ctx, r)
	}

	status := domain.StatusCompleted
	if err != nil {
		status = domain.StatusFailed
		log.WithError(err).Error("report failed")
	} else {
		log.WithField("elapsed", time.Since(start).String()).Info("report completed")
	}
	p.metrics.ObserveReport(string(r.Tier), string(status), time.Since(start))
	return err
}

func (p *Processor) processFree(ctx context.Context, r domain.Report) error {
	result, err := p.assembler.AssembleFree(ctx, r.Year, r.Make, r.Model, r.Mileage)
	if err != nil {
		return p.fail(ctx, r, err, false)
	}
	if err := p.store.MarkCompleted(ctx, r.ID, domain.NewFreeResult(result)); err != nil {
		return p.fail(ctx, r, fmt.Errorf("save result: %w", err), false)
	}
	return nil
}

func (p *Processor) processPremium(ctx context.Context, r domain.Report, log *logrus.Entry) error {
	if r.UserID == nil {
		return p.fail(ctx, r, fmt.Errorf("%w: premium report without a user", domain.ErrInvalidReportRequest), false)
	}
	userID := *r.UserID

	// the balance may have moved since submission
	balance, err := p.store.Balance(ctx, userID)
	if err != nil {
		return p.fail(ctx, r, fmt.Errorf("check balance: %w", err), false)
	}
	if balance < p.premiumCost {
		return p.fail(ctx, r, fmt.Errorf("%w: balance %d, report costs %d", domain.ErrInsufficientCredits, balance, p.premiumCost), false)
	}

	analysis, usage, err := p.analyzer.Analyze(ctx, r)
	if err != nil {
		return p.fail(ctx, r, err, false)
	}
	log.WithFields(logrus.Fields{
		"tokens_in":  usage.InputTokens,
		"tokens_out": usage.OutputTokens,
	}).Debug("analysis usage")

	var vehicle *domain.Vehicle
	v, err := p.store.Vehicle(ctx, r.Year, r.Make, r.Model)
	switch {
	case err == nil:
		vehicle = &v
	case errors.Is(err, domain.ErrVehicleNotFound):
		log.Debug("no vehicle document, using analysis only")
	default:
		log.WithError(err).Warn("vehicle lookup failed, using analysis only")
	}

	result, err := p.assembler.AssemblePremium(ctx, vehicle, r, analysis)
	if err != nil {
		return p.fail(ctx, r, err, false)
	}

	txn, err := p.store.DeductCredits(ctx, userID, p.premiumCost, "Premium vehicle report", map[string]string{"report_uuid": r.UUID})
	if err != nil {
		return p.fail(ctx, r, fmt.Errorf("deduct credits: %w", err), false)
	}
	log.WithField("balance_after", txn.BalanceAfter).Info("credits deducted")

	if err := p.store.MarkCompleted(ctx, r.ID, domain.NewPremiumResult(result)); err != nil {
		return p.fail(ctx, r, fmt.Errorf("save result: %w", err), true)
	}
	return nil
}

// fail records a failed report, returns deducted credits and tells the operators about
// premium failures. Cleanup runs on a context detached from the job deadline.
func (p *Processor) fail(ctx context.Context, r domain.Report, cause error, deducted bool) error {
	cleanup, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	log := logging.WithReport(p.log, r)

	refunded := false
	if deducted && r.UserID != nil {
		_, err := p.store.AddCredits(cleanup, *r.UserID, p.premiumCost, "Refund for failed premium report", map[string]string{"report_uuid": r.UUID})
		if err != nil {
			log.WithError(err).Error("refund failed")
		} else {
			refunded = true
			p.metrics.AddRefund(p.premiumCost)
		}
	}

	if err := p.store.MarkFailed(cleanup, r.ID, cause.Error()); err != nil {
		log.WithError(err).Error("could not mark report failed")
	}

	if r.Tier == domain.TierPremium {
		if err := p.notifier.Notify(cleanup, notify.ReportFailure(r, cause, refunded)); err != nil {
			log.WithError(err).Warn("operator notification failed")
		}
	}
	return cause
}
