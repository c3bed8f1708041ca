package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"vehiclereport/internal/config"
	"vehiclereport/internal/jobs"
	"vehiclereport/internal/stats"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the report worker, the stats schedule and the metrics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load()
			if err != nil {
				return err
			}
			defer rt.Close()
			return serve(cmd.Context(), rt)
		},
	}
}

func serve(ctx context.Context, rt *runtime) error {
	processor, err := rt.processor()
	if err != nil {
		return err
	}
	worker := jobs.NewWorker(rt.store, processor, jobs.WorkerConfig{
		Concurrency:  rt.cfg.WorkerConcurrency,
		PollInterval: rt.cfg.WorkerPollInterval(),
		JobTimeout:   rt.cfg.ReportTimeout(),
		Log:          rt.log.WithRun("worker"),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(gctx) })

	if rt.cfg.StatsSchedule != "" {
		schedule, err := config.ParseSchedule(rt.cfg.StatsSchedule)
		if err != nil {
			return err
		}
		generator := stats.NewGenerator(rt.store, rt.store, rt.metrics, rt.log)
		scheduler := stats.NewScheduler(generator, rt.cfg.StatsSchedule, schedule, rt.cfg.Location, rt.notifier(), rt.log.WithRun("stats"))
		g.Go(func() error {
			scheduler.Run(gctx)
			return nil
		})
	} else {
		rt.log.Info("stats_schedule not set, scheduled stats populate disabled")
	}

	srv := &http.Server{
		Addr:              rt.cfg.MetricsAddr,
		Handler:           rt.mux(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		rt.log.WithField("addr", srv.Addr).Info("metrics listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	rt.log.Info("shut down")
	return err
}

func (rt *runtime) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", rt.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := rt.store.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}
