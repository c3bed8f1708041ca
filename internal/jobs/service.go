// Package jobs owns the report lifecycle: submission, background processing and the
// credit accounting around premium reports.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"vehiclereport/internal/domain"
	"vehiclereport/internal/logging"
)

const (
	minModelYear = 1900
	maxMileage   = 1_000_000
)

// SubmitStore is the persistence Submit needs.
type SubmitStore interface {
	CreateReport(ctx context.Context, r *domain.Report) error
	ReportByUUID(ctx context.Context, uuid string) (domain.Report, error)
	Balance(ctx context.Context, userID int64) (int, error)
}

type SubmitRequest struct {
	UserID      *int64
	SessionUUID string
	Tier        string
	Year        int
	Make        string
	Model       string
	Mileage     int
	Params      domain.ReportParams
}

type Service struct {
	store       SubmitStore
	premiumCost int
	log         logrus.FieldLogger
	now         func() time.Time
}

func NewService(store SubmitStore, premiumCost int, log logrus.FieldLogger) *Service {
	if premiumCost < 1 {
		premiumCost = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{store: store, premiumCost: premiumCost, log: log, now: time.Now}
}

// Submit validates a request and queues it as a pending report. Premium requests need a
// user whose balance covers the report; the credits are only taken once generation succeeds.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (domain.Report, error) {
	tier, err := domain.ParseTier(strings.ToLower(strings.TrimSpace(req.Tier)))
	if err != nil {
		return domain.Report{}, err
	}
	r := domain.Report{
		UUID:        uuid.NewString(),
		UserID:      req.UserID,
		SessionUUID: req.SessionUUID,
		Tier:        tier,
		Year:        req.Year,
		Make:        strings.TrimSpace(req.Make),
		Model:       strings.TrimSpace(req.Model),
		Mileage:     req.Mileage,
		Params:      req.Params,
	}
	if err := s.validate(r); err != nil {
		return domain.Report{}, err
	}

	if tier == domain.TierPremium {
		if err := s.checkCredits(ctx, r); err != nil {
			return domain.Report{}, err
		}
	}

	if err := s.store.CreateReport(ctx, &r); err != nil {
		return domain.Report{}, fmt.Errorf("queue report: %w", err)
	}
	logging.WithReport(s.log, r).Info("report queued")
	return r, nil
}

// Status looks up a report by its public identifier.
func (s *Service) Status(ctx context.Context, reportUUID string) (domain.Report, error) {
	return s.store.ReportByUUID(ctx, strings.TrimSpace(reportUUID))
}

func (s *Service) validate(r domain.Report) error {
	var problems []string
	maxYear := s.now().Year() + 1
	if r.Year < minModelYear || r.Year > maxYear {
		problems = append(problems, fmt.Sprintf("year must be between %d and %d", minModelYear, maxYear))
	}
	if r.Mileage < 0 || r.Mileage > maxMileage {
		problems = append(problems, fmt.Sprintf("mileage must be between 0 and %d", maxMileage))
	}
	if r.Make == "" {
		problems = append(problems, "make is required")
	}
	if r.Model == "" {
		problems = append(problems, "model is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidReportRequest, strings.Join(problems, "; "))
	}
	return nil
}

func (s *Service) checkCredits(ctx context.Context, r domain.Report) error {
	if r.UserID == nil {
		return fmt.Errorf("%w: premium reports require a user", domain.ErrInvalidReportRequest)
	}
	balance, err := s.store.Balance(ctx, *r.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return err
		}
		return fmt.Errorf("check balance: %w", err)
	}
	if balance < s.premiumCost {
		return fmt.Errorf("%w: balance %d, report costs %d", domain.ErrInsufficientCredits, balance, s.premiumCost)
	}
	return nil
}
