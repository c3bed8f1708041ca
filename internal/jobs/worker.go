package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"vehiclereport/internal/domain"
)

// Queue hands out pending reports.
type Queue interface {
	ClaimPending(ctx context.Context, limit int) ([]domain.Report, error)
	RequeueProcessing(ctx context.Context) (int64, error)
}

type Handler interface {
	Process(ctx context.Context, r domain.Report) error
}

// Worker polls the queue and runs up to Concurrency report jobs at once.
type Worker struct {
	queue        Queue
	handler      Handler
	concurrency  int
	pollInterval time.Duration
	jobTimeout   time.Duration
	log          logrus.FieldLogger
	after        func(time.Duration) <-chan time.Time
}

type WorkerConfig struct {
	Concurrency  int
	PollInterval time.Duration
	JobTimeout   time.Duration
	Log          logrus.FieldLogger
}

func NewWorker(queue Queue, handler Handler, cfg WorkerConfig) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	return &Worker{
		queue:        queue,
		handler:      handler,
		concurrency:  cfg.Concurrency,
		pollInterval: cfg.PollInterval,
		jobTimeout:   cfg.JobTimeout,
		log:          cfg.Log,
		after:        time.After,
	}
}

// Run processes reports until ctx is cancelled. Reports left in processing by a previous
// run are put back in the queue first.
func (w *Worker) Run(ctx context.Context) error {
	n, err := w.queue.RequeueProcessing(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		w.log.WithField("count", n).Warn("requeued interrupted reports")
	}
	w.log.WithFields(logrus.Fields{
		"concurrency": w.concurrency,
		"poll":        w.pollInterval.String(),
	}).Info("report worker started")

	for {
		claimed, err := w.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.log.WithError(err).Error("claiming reports failed")
		}
		if claimed > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			w.log.Info("report worker stopped")
			return nil
		case <-w.after(w.pollInterval):
		}
	}
}

// RunOnce claims one batch of pending reports and waits for all of them to finish. It
// returns the number claimed. Job failures are recorded on the report, not returned.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	reports, err := w.queue.ClaimPending(ctx, w.concurrency)
	if err != nil {
		return 0, err
	}
	if len(reports) == 0 {
		return 0, nil
	}

	var g errgroup.Group
	g.SetLimit(w.concurrency)
	for _, r := range reports {
		g.Go(func() error {
			jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
			defer cancel()
			_ = w.handler.Process(jobCtx, r)
			return nil
		})
	}
	_ = g.Wait()
	return len(reports), nil
}
