package stats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"vehiclereport/internal/notify"
)

// Populator is satisfied by Generator.
type Populator interface {
	Populate(ctx context.Context) (Result, error)
}

// Scheduler re-runs the stats populate job on a cron schedule and posts a summary to the
// operator channel after each run.
type Scheduler struct {
	populator Populator
	schedule  cron.Schedule
	spec      string
	location  *time.Location
	notifier  notify.Notifier
	log       logrus.FieldLogger
	after     func(time.Duration) <-chan time.Time
}

func NewScheduler(p Populator, spec string, schedule cron.Schedule, loc *time.Location, n notify.Notifier, log logrus.FieldLogger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if n == nil {
		n = notify.Nop{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{
		populator: p,
		schedule:  schedule,
		spec:      strings.TrimSpace(spec),
		location:  loc,
		notifier:  n,
		log:       log,
		after:     time.After,
	}
}

// Run blocks until ctx is cancelled, populating stats at every scheduled time.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.WithField("cron", s.spec).Info("stats populate scheduled")
	for {
		now := time.Now().In(s.location)
		next := s.schedule.Next(now)
		wait := next.Sub(now)
		s.log.WithFields(logrus.Fields{
			"next": next.Format("Mon Jan 2 15:04"),
			"in":   wait.Round(time.Minute).String(),
		}).Info("next stats populate")

		select {
		case <-ctx.Done():
			return
		case <-s.after(wait):
		}
		s.RunOnce(ctx)
	}
}

// RunOnce populates stats immediately and reports the outcome.
func (s *Scheduler) RunOnce(ctx context.Context) {
	res, err := s.populator.Populate(ctx)
	var msg string
	if err != nil {
		s.log.WithError(err).Error("scheduled stats populate failed")
		msg = fmt.Sprintf("Stats populate failed: %v", err)
	} else {
		msg = "Stats populate complete: " + res.Summary()
	}
	if nerr := s.notifier.Notify(ctx, msg); nerr != nil {
		s.log.WithError(nerr).Warn("stats populate notification failed")
	}
}
