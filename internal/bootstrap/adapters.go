package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/plateworks/paymaster/config"
	"github.com/plateworks/paymaster/internal/adapters/reaper"
	schedrunner "github.com/plateworks/paymaster/internal/adapters/scheduler"
	"github.com/plateworks/paymaster/internal/adapters/taskrunner"
	"github.com/plateworks/paymaster/internal/core"
	"github.com/plateworks/paymaster/internal/data/cryptoutil"
	"github.com/plateworks/paymaster/internal/observability/statsd"
	"github.com/plateworks/paymaster/internal/service/failurenotifier"
)

// WorkerConfig contains configuration for the task runner worker pool.
type WorkerConfig struct {
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger

	Worker   config.WorkerConfig
	Payroll  config.PayrollConfig
	Webhooks config.WebhooksConfig
	Cache    config.CacheConfig

	Directory  core.EmployeeDirectory
	Calculator core.PayrollCalculator
	Payments   core.PaymentLookup

	Encryptor       cryptoutil.Encryptor
	Metrics         statsd.Sink
	FailureNotifier *failurenotifier.Service
}

// RunWorker starts the task runner worker pool across the payroll, webhooks,
// and maintenance queues.
func RunWorker(ctx context.Context, cfg WorkerConfig) error {
	runner, err := taskrunner.NewRunner(taskrunner.RunnerOptions{
		DB:              cfg.DB,
		RedisClient:     cfg.RedisClient,
		Logger:          cfg.Logger,
		Worker:          cfg.Worker,
		Payroll:         cfg.Payroll,
		Webhooks:        cfg.Webhooks,
		Cache:           cfg.Cache,
		Directory:       cfg.Directory,
		Calculator:      cfg.Calculator,
		Payments:        cfg.Payments,
		Encryptor:       resolveEncryptor(cfg.Encryptor, cfg.Logger),
		Metrics:         cfg.Metrics,
		FailureNotifier: cfg.FailureNotifier,
	})
	if err != nil {
		return fmt.Errorf("create task runner: %w", err)
	}

	if runErr := runner.Run(ctx); runErr != nil {
		return fmt.Errorf("run task runner: %w", runErr)
	}
	return nil
}

// SchedulerConfig contains configuration for the scheduler.
type SchedulerConfig struct {
	DB      *sql.DB
	Logger  *slog.Logger
	Config  config.SchedulerConfig
	Metrics statsd.Sink
}

// RunScheduler starts the scheduled-task enqueuer.
func RunScheduler(ctx context.Context, cfg SchedulerConfig) error {
	schedulerCfg := core.SchedulerConfig{
		BatchSize:       cfg.Config.BatchSize,
		DefaultPriority: cfg.Config.DefaultPriority,
	}

	var slogLogger *slog.Logger
	if cfg.Logger != nil {
		slogLogger = cfg.Logger
	} else {
		slogLogger = slog.Default()
	}

	runner, err := schedrunner.NewRunner(schedrunner.RunnerOptions{
		DB:         cfg.DB,
		Config:     &schedulerCfg,
		Interval:   cfg.Config.Interval,
		Logger:     slog.NewLogLogger(slogLogger.Handler(), slog.LevelInfo),
		SlogLogger: slogLogger,
		Metrics:    cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create scheduler runner: %w", err)
	}

	return runner.Run(ctx)
}

// ReaperConfig contains configuration for the reaper.
type ReaperConfig struct {
	DB     *sql.DB
	Logger *slog.Logger
	Config config.ReaperConfig

	// DeliveryMaxAttempts mirrors the webhook delivery attempt cap so the
	// reaper treats exhausted delivery rows as settled.
	DeliveryMaxAttempts int

	Metrics statsd.Sink
}

// RunReaper starts the queue reaper.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:                  cfg.DB,
		Config:              cfg.Config,
		Logger:              cfg.Logger,
		DeliveryMaxAttempts: cfg.DeliveryMaxAttempts,
		Metrics:             cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}

//nolint:ireturn // Returning Encryptor interface is required for runner injection.
func resolveEncryptor(enc cryptoutil.Encryptor, logger *slog.Logger) cryptoutil.Encryptor {
	if enc != nil {
		return enc
	}
	if logger != nil {
		logger.Warn("no encryptor provided; using noop encryptor")
	}
	return &cryptoutil.NoopEncryptor{}
}
