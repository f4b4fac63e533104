package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/plateworks/paymaster/config"
	"github.com/plateworks/paymaster/internal/adapters/paycalc"
	"github.com/plateworks/paymaster/internal/core"
	"github.com/plateworks/paymaster/internal/data"
	"github.com/plateworks/paymaster/internal/data/cryptoutil"
	"github.com/plateworks/paymaster/internal/observability/notify/pagerduty"
	"github.com/plateworks/paymaster/internal/observability/notify/slack"
	"github.com/plateworks/paymaster/internal/observability/statsd"
	"github.com/plateworks/paymaster/internal/service"
	"github.com/plateworks/paymaster/internal/service/failurenotifier"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Records      *service.JobRecordService
	Tasks        *service.TaskService
	Webhooks     *service.WebhookService
	Orchestrator *service.PayrollOrchestrator

	// Paycalc is the shared client for the external payroll calculation
	// platform; it backs the directory, calculator, and payment lookup ports
	// for both the HTTP surface and the worker.
	Paycalc *paycalc.Client

	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     *statsd.Client
	MetricsConfig   config.ObservabilityMetricsConfig
	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.ObservabilityNotificationsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	DB    *sql.DB
	Redis redis.UniversalClient

	JobRecords    *data.JobRecordRepo
	Tasks         *data.TaskRepo
	Subscriptions *data.WebhookSubscriptionRepo
	Deliveries    *data.WebhookDeliveryRepo
	Cache         *data.RedisCacheRepo
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  "paymaster",
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	failureNotifier := buildFailureNotifier(obsLogger, cfg.Notifications)

	return ObservabilityContainer{
		MetricsSink:     metricsSink,
		MetricsConfig:   cfg.Metrics,
		FailureNotifier: failureNotifier,
		NotifierConfig:  cfg.Notifications,
	}
}

// repositoryDeps groups inputs for repository construction.
type repositoryDeps struct {
	DB        *sql.DB
	Redis     redis.UniversalClient
	Encryptor cryptoutil.Encryptor
	Webhooks  config.WebhooksConfig
	Logger    *slog.Logger
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(deps repositoryDeps) *serviceRepositories {
	return &serviceRepositories{
		DB:         deps.DB,
		Redis:      deps.Redis,
		JobRecords: data.NewJobRecordRepo(deps.DB, data.JobRecordRepoConfig{Logger: deps.Logger}),
		Tasks:      data.NewTaskRepo(deps.DB, data.RepoConfig{Logger: deps.Logger}),
		Subscriptions: data.NewWebhookSubscriptionRepo(
			deps.DB,
			resolveEncryptor(deps.Encryptor, deps.Logger),
		),
		Deliveries: data.NewWebhookDeliveryRepo(deps.DB, data.WebhookDeliveryRepoConfig{
			InitialRetryDelay: deps.Webhooks.RetryBackoff,
		}),
		Cache: data.NewRedisCacheRepo(deps.Redis),
	}
}

func newJobCache(repos *serviceRepositories, cfg config.CacheConfig) *core.JobCacheService {
	if repos.Cache == nil {
		return nil
	}
	return core.NewJobCacheService(core.JobCacheServiceOptions{
		Cache: repos.Cache,
		Config: core.JobCacheConfig{
			StatusTTL:  cfg.StatusTTL,
			ResultsTTL: cfg.ResultsTTL,
		},
	})
}

// DomainServicesOptions groups inputs for domain service wiring.
type DomainServicesOptions struct {
	Repos         *serviceRepositories
	Observability ObservabilityContainer
	Config        *config.AppConfig
	Logger        *slog.Logger
}

// buildDomainServices wires business services using repositories and
// observability adapters. The paycalc client is the one fallible dependency;
// everything else panics only on programmer error.
func buildDomainServices(opts *DomainServicesOptions) (ServiceContainer, error) {
	if opts == nil {
		return ServiceContainer{}, errors.New("domain services options are required")
	}
	svcLogger := opts.Logger
	if svcLogger == nil {
		svcLogger = slog.Default()
	}

	appCfg := opts.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	paycalcClient, err := paycalc.NewClient(paycalc.ClientOptions{
		Config: appCfg.Paycalc,
		Logger: svcLogger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create paycalc client: %w", err)
	}

	records := service.MustNewJobRecordService(service.JobRecordServiceOptions{
		Repo:   opts.Repos.JobRecords,
		Cache:  newJobCache(opts.Repos, appCfg.Cache),
		Logger: svcLogger,
	})

	tasks := service.MustNewTaskService(service.TaskServiceOptions{
		Repo:            opts.Repos.Tasks,
		Logger:          svcLogger,
		FailureNotifier: opts.Observability.FailureNotifier,
	})

	webhooks := service.MustNewWebhookService(service.WebhookServiceOptions{
		Subscriptions:          opts.Repos.Subscriptions,
		Deliveries:             opts.Repos.Deliveries,
		Tasks:                  tasks,
		Logger:                 svcLogger,
		Metrics:                opts.Observability.MetricsSink,
		Timeout:                appCfg.Webhooks.DeliveryTimeout,
		MaxAttempts:            appCfg.Webhooks.MaxAttempts,
		BackoffBase:            appCfg.Webhooks.RetryBackoff,
		BackoffMax:             appCfg.Webhooks.RetryBackoffMax,
		SweepBatchSize:         appCfg.Webhooks.SweepBatchSize,
		RequirePublicEndpoints: appCfg.Webhooks.RequirePublicEndpoints,
	})

	orchestrator := service.MustNewPayrollOrchestrator(service.PayrollOrchestratorOptions{
		Records:       records,
		Tasks:         tasks,
		Directory:     paycalcClient,
		Calculator:    paycalcClient,
		Payments:      paycalcClient,
		Webhooks:      webhooks,
		Logger:        svcLogger,
		Metrics:       opts.Observability.MetricsSink,
		FutureHorizon: appCfg.Payroll.FutureHorizon,
		BatchPriority: appCfg.Payroll.BatchPriority,
	})

	return ServiceContainer{
		Records:       records,
		Tasks:         tasks,
		Webhooks:      webhooks,
		Orchestrator:  orchestrator,
		Paycalc:       paycalcClient,
		Observability: opts.Observability,
	}, nil
}

// NewServices builds the full service container from raw dependencies.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil {
		return ServiceContainer{}, errors.New("service dependencies are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var obsCfg config.ObservabilityConfig
	var webhooksCfg config.WebhooksConfig
	encryptionKey := ""
	if deps.Config != nil {
		obsCfg = deps.Config.Observability
		webhooksCfg = deps.Config.Webhooks
		encryptionKey = deps.Config.SecretsEncryptionKey
	}

	observability := buildObservability(logger, obsCfg)
	repos := buildRepositories(repositoryDeps{
		DB:        deps.DB,
		Redis:     deps.RedisClient,
		Encryptor: CreateEncryptor(encryptionKey, logger),
		Webhooks:  webhooksCfg,
		Logger:    logger,
	})
	return buildDomainServices(&DomainServicesOptions{
		Repos:         repos,
		Observability: observability,
		Config:        deps.Config,
		Logger:        logger,
	})
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{
			Logger: baseLogger.With("component", "failure_notifier"),
		})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:   cfg.Slack.WebhookURL,
			Channel:      cfg.Slack.Channel,
			Username:     cfg.Slack.Username,
			Timeout:      cfg.Timeout,
			RetryLimit:   cfg.RetryLimit,
			JobURLPrefix: cfg.Slack.JobURLPrefix,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "slack",
				Sink: client,
			})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "pagerduty",
				Sink: client,
			})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger: baseLogger.With("component", "failure_notifier"),
		Sinks:  sinks,
	})
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	encryptor       cryptoutil.Encryptor
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Logger:   deps.logger,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				if deps.logger != nil {
					deps.logger.WarnContext(
						ctx,
						"dropping background service error",
						"service",
						descriptor.name,
						"error",
						errMsg,
					)
				} else {
					slog.Default().WarnContext(ctx, "dropping background service error", "service", descriptor.name, "error", errMsg)
				}
			}
		}
	}()

	if deps.logger != nil {
		deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	} else {
		slog.Default().InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	}

	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newWorkerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeWorker,
		name: "worker",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			var workerCfg config.WorkerConfig
			var payrollCfg config.PayrollConfig
			var webhooksCfg config.WebhooksConfig
			var cacheCfg config.CacheConfig
			if deps.cfg.Config != nil {
				workerCfg = deps.cfg.Config.Worker
				payrollCfg = deps.cfg.Config.Payroll
				webhooksCfg = deps.cfg.Config.Webhooks
				cacheCfg = deps.cfg.Config.Cache
			}
			return RunWorker(ctx, WorkerConfig{
				DB:              deps.cfg.DB,
				RedisClient:     deps.cfg.RedisClient,
				Logger:          deps.logger,
				Worker:          workerCfg,
				Payroll:         payrollCfg,
				Webhooks:        webhooksCfg,
				Cache:           cacheCfg,
				Directory:       deps.cfg.Services.Paycalc,
				Calculator:      deps.cfg.Services.Paycalc,
				Payments:        deps.cfg.Services.Paycalc,
				Encryptor:       deps.encryptor,
				Metrics:         deps.cfg.Services.Observability.MetricsSink,
				FailureNotifier: deps.cfg.Services.Observability.FailureNotifier,
			})
		},
	}
}

func newSchedulerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeScheduler,
		name: "scheduler",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			var schedulerCfg config.SchedulerConfig
			if deps.cfg.Config != nil {
				schedulerCfg = deps.cfg.Config.Scheduler
			}
			return RunScheduler(ctx, SchedulerConfig{
				DB:      deps.cfg.DB,
				Logger:  deps.logger,
				Config:  schedulerCfg,
				Metrics: deps.cfg.Services.Observability.MetricsSink,
			})
		},
	}
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			var reaperCfg config.ReaperConfig
			deliveryMaxAttempts := 0
			if deps.cfg.Config != nil {
				reaperCfg = deps.cfg.Config.Reaper
				deliveryMaxAttempts = deps.cfg.Config.Webhooks.MaxAttempts
			}
			return RunReaper(ctx, ReaperConfig{
				DB:                  deps.cfg.DB,
				Logger:              deps.logger,
				Config:              reaperCfg,
				DeliveryMaxAttempts: deliveryMaxAttempts,
				Metrics:             deps.cfg.Services.Observability.MetricsSink,
			})
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newWorkerBackgroundService(deps),
		newSchedulerBackgroundService(deps),
		newReaperBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	ctx := context.Background()
	serviceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	encryptor := CreateEncryptor(cfg.Config.SecretsEncryptionKey, logger)

	// Determine which services are enabled
	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	// Start all enabled services
	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		encryptor:       encryptor,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	shutdownTimeout := cfg.Config.HTTP.ShutdownTimeout

	// Wait for shutdown signal or error
	return waitForShutdown(shutdownOpts{
		cancel:          cancel,
		errCh:           errCh,
		httpServer:      result.HTTPServer,
		shutdownTimeout: shutdownTimeout,
		logger:          logger,
		backgrounds:     result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	modes := []config.ServiceMode{
		config.ServiceModeHTTP,
		config.ServiceModeWorker,
		config.ServiceModeScheduler,
		config.ServiceModeReaper,
	}

	count := 0
	for _, mode := range modes {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	size := errorChannelCapacity(enabled) + 1
	if size < 1 {
		return 1
	}
	return size
}

// shutdownOpts contains dependencies for graceful shutdown.
type shutdownOpts struct {
	cancel          context.CancelFunc
	errCh           <-chan error
	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger
	backgrounds     []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownOpts) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel() // Cancel service context before waiting
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel() // Cancel service context before waiting
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownOpts) error {
	// Gracefully stop HTTP server if running. The drain context is fresh:
	// the shared service context is already cancelled at this point.
	if cfg.httpServer != nil {
		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: context.Background(),
			Server:  cfg.httpServer,
			Timeout: cfg.shutdownTimeout,
			Logger:  cfg.logger,
		}); err != nil {
			return err
		}
	}

	// Wait for background services to finish
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
