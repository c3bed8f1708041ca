package app

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"vehiclereport/internal/config"
	"vehiclereport/internal/descriptions"
	"vehiclereport/internal/httpx"
	"vehiclereport/internal/jobs"
	"vehiclereport/internal/llm"
	"vehiclereport/internal/logging"
	"vehiclereport/internal/metrics"
	"vehiclereport/internal/notify"
	"vehiclereport/internal/report"
	"vehiclereport/internal/scoring"
	"vehiclereport/internal/storage/sqlite"
)

// runtime holds what a command needs once configuration is loaded. Pieces that reach
// external services are built on demand so that store-only commands never need API keys.
type runtime struct {
	cfg     config.Config
	log     *logging.Logger
	store   *sqlite.Store
	metrics *metrics.Metrics
	closers []io.Closer
}

func newRuntime(configPath string) (*runtime, error) {
	if configPath != "" {
		if err := setConfigPath(configPath); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log := logging.New(cfg.LogLevel, cfg.Environment)
	applied := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	log.WithFields(logrus.Fields{
		"provider":     cfg.LLMProvider,
		"db":           cfg.DBPath,
		"timezone":     cfg.Timezone,
		"concurrency":  cfg.WorkerConcurrency,
		"http_timeout": applied.String(),
		"redis":        cfg.RedisConfigured(),
		"slack":        cfg.SlackConfigured(),
	}).Debug("config loaded")

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.DBPath, err)
	}
	return &runtime{
		cfg:     cfg,
		log:     log,
		store:   store,
		metrics: metrics.New(),
		closers: []io.Closer{store},
	}, nil
}

func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i].Close())
	}
	return errors.Join(errs...)
}

// provider returns the configured text generator, behind the redis cache when one is set.
func (rt *runtime) provider() (llm.Provider, error) {
	p, err := llm.NewProvider(rt.cfg, llm.Options{
		HTTPClient: httpx.ExternalHTTPClient(),
		Metrics:    rt.metrics,
		Log:        rt.log,
	})
	if err != nil {
		return nil, err
	}
	if !rt.cfg.RedisConfigured() {
		return p, nil
	}
	rdb, err := llm.NewRedisClient(rt.cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	rt.closers = append(rt.closers, rdb)
	return llm.NewCachedProvider(p, rdb, rt.cfg.LLMCacheTTL(), rt.log), nil
}

func (rt *runtime) notifier() notify.Notifier {
	if !rt.cfg.SlackConfigured() {
		return notify.Nop{}
	}
	return notify.NewSlack(rt.cfg.SlackBotToken, rt.cfg.OperatorChannelID, rt.log,
		notify.WithHTTPClient(httpx.ExternalHTTPClient()))
}

func (rt *runtime) assembler(p llm.Provider) *report.Assembler {
	describer := descriptions.NewService(rt.store, p, rt.log,
		descriptions.WithModel(rt.cfg.LLMDescriptionModel),
		descriptions.WithRetryDelay(rt.cfg.LLMRetryDelay()),
		descriptions.WithMetrics(rt.metrics),
	)
	return report.NewAssembler(rt.store, scoring.NewEngine(rt.store, rt.log), describer, report.AssemblerConfig{
		MinScore: rt.cfg.FreeReportMinScore,
		Limit:    rt.cfg.FreeReportLimit,
		Log:      rt.log,
	})
}

func (rt *runtime) analyzer(p llm.Provider) *report.Analyzer {
	return report.NewAnalyzer(p, report.AnalyzerConfig{
		Model:       rt.cfg.LLMModel,
		MaxTokens:   rt.cfg.LLMMaxTokens,
		Temperature: rt.cfg.LLMTemperature,
		RetryDelay:  rt.cfg.LLMRetryDelay(),
		Metrics:     rt.metrics,
		Log:         rt.log,
	})
}

func (rt *runtime) processor() (*jobs.Processor, error) {
	p, err := rt.provider()
	if err != nil {
		return nil, err
	}
	return jobs.NewProcessor(rt.store, rt.assembler(p), rt.analyzer(p), jobs.ProcessorConfig{
		PremiumCost: rt.cfg.PremiumReportCost,
		Notifier:    rt.notifier(),
		Metrics:     rt.metrics,
		Log:         rt.log,
	}), nil
}

func (rt *runtime) service() *jobs.Service {
	return jobs.NewService(rt.store, rt.cfg.PremiumReportCost, rt.log)
}
