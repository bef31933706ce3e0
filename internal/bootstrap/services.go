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

	"github.com/target/opsdesk/config"
	"github.com/target/opsdesk/internal/adapters/scheduler"
	"github.com/target/opsdesk/internal/core"
	"github.com/target/opsdesk/internal/data"
	httpx "github.com/target/opsdesk/internal/http"
	"github.com/target/opsdesk/internal/observability/notify/pagerduty"
	"github.com/target/opsdesk/internal/observability/notify/slack"
	"github.com/target/opsdesk/internal/observability/notify/smtp"
	"github.com/target/opsdesk/internal/observability/statsd"
	"github.com/target/opsdesk/internal/service"
	"github.com/target/opsdesk/internal/service/notifier"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Registry      *service.JobRegistryService
	Ledger        *service.RunLedgerService
	Batch         *service.BatchService
	Catalog       *service.EntityCatalog
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink   *statsd.Client
	MetricsConfig config.ObservabilityMetricsConfig
	Notifier      *notifier.Service
}

// metrics returns the sink as an interface, nil when metrics are disabled.
func (o ObservabilityContainer) metrics() statsd.Sink {
	if o.MetricsSink == nil {
		return nil
	}
	return o.MetricsSink
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	QuerySource core.QuerySource
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	Jobs     *data.JobDefinitionRepo
	Runs     *data.JobRunRepo
	Settings *data.SettingsRepo
	Locker   core.RunLocker
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
			Enabled:    true,
			Address:    cfg.Metrics.StatsdAddress,
			Prefix:     cfg.Metrics.Prefix,
			Logger:     obsLogger,
			GlobalTags: cfg.Metrics.Tags,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:   metricsSink,
		MetricsConfig: cfg.Metrics,
		Notifier:      buildNotifier(obsLogger, cfg.Notifications),
	}
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(db *sql.DB, client redis.UniversalClient, cfg config.RedisConfig, logger *slog.Logger) *serviceRepositories {
	var locker core.RunLocker = data.NopRunLock{}
	if client != nil {
		locker = data.NewRedisRunLock(client, cfg.LockPrefix, logger.With("component", "run_lock"))
	} else {
		logger.Warn("redis disabled; overlapping runs of a job are not serialized across processes")
	}
	return &serviceRepositories{
		Jobs:     data.NewJobDefinitionRepo(db),
		Runs:     data.NewJobRunRepo(db),
		Settings: data.NewSettingsRepo(db),
		Locker:   locker,
	}
}

// buildHandlers registers the built-in job handlers by job definition id.
func buildHandlers(
	cfg config.BatchConfig,
	source core.QuerySource,
	repos *serviceRepositories,
	ledger *service.RunLedgerService,
	logger *slog.Logger,
) map[int64]service.JobHandler {
	return map[int64]service.JobHandler{
		service.ErrorScanJobID: service.NewErrorScanHandler(service.ErrorScanHandlerOptions{
			Source: source,
			Ledger: ledger,
			Config: service.ErrorScanConfig{
				Lookback:  cfg.ErrorScanLookback,
				Threshold: cfg.ErrorScanThreshold,
				Limit:     cfg.ErrorScanLimit,
			},
			Logger: logger,
		}),
		service.DormantReportJobID: service.NewDormantReportHandler(service.DormantReportHandlerOptions{
			Settings:     repos.Settings,
			DormantAfter: cfg.DormantAfter,
			Logger:       logger,
		}),
	}
}

// NewServices wires repositories, handlers and the batch engine.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	if deps.DB == nil {
		return ServiceContainer{}, errors.New("database is required")
	}
	if deps.QuerySource == nil {
		return ServiceContainer{}, errors.New("query source is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	observability := buildObservability(logger, cfg.Observability)
	repos := buildRepositories(deps.DB, deps.RedisClient, cfg.Redis, logger)

	registry := service.NewJobRegistryService(service.JobRegistryServiceOptions{Repo: repos.Jobs})
	ledger := service.NewRunLedgerService(service.RunLedgerServiceOptions{Repo: repos.Runs})

	orchestrator := service.NewJobRunOrchestrator(service.JobRunOrchestratorOptions{
		Registry: registry,
		Ledger:   ledger,
		Handlers: buildHandlers(cfg.Batch, deps.QuerySource, repos, ledger, logger),
		Locker:   repos.Locker,
		Metrics:  observability.metrics(),
		Config:   service.OrchestratorConfig{LockTTL: cfg.Redis.LockTTL},
	})

	catalog := service.NewEntityCatalog(service.EntityCatalogOptions{Source: deps.QuerySource})
	resolver := service.NewActivityResolver(service.ActivityResolverOptions{Source: deps.QuerySource})

	var sender core.Notifier
	if observability.Notifier != nil && observability.Notifier.Enabled() {
		sender = observability.Notifier
	}

	batchSvc := service.NewBatchService(service.BatchServiceOptions{
		Orchestrator: orchestrator,
		Resolver:     resolver,
		Ledger:       ledger,
		Settings:     repos.Settings,
		Catalog:      catalog,
		Notifier:     sender,
		Metrics:      observability.metrics(),
		Config: service.BatchConfig{
			Concurrency:      cfg.Batch.Concurrency,
			ItemTimeout:      cfg.Batch.ItemTimeout,
			AggregateTimeout: cfg.Batch.AggregateTimeout,
			ScanRecipients:   cfg.Batch.ScanRecipients,
		},
	})

	return ServiceContainer{
		Registry:      registry,
		Ledger:        ledger,
		Batch:         batchSvc,
		Catalog:       catalog,
		Observability: observability,
	}, nil
}

func buildNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *notifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	opts := notifier.Options{
		Logger:         baseLogger.With("component", "notifier"),
		DefaultAuthor:  cfg.DefaultAuthor,
		DefaultReplyTo: cfg.DefaultReplyTo,
	}
	if !cfg.Enabled {
		return notifier.NewService(opts)
	}

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:   cfg.Slack.WebhookURL,
			Channel:      cfg.Slack.Channel,
			Username:     cfg.Slack.Username,
			Timeout:      cfg.Timeout,
			RetryLimit:   cfg.RetryLimit,
			RunURLPrefix: cfg.Slack.RunURLPrefix,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			opts.Sinks = append(opts.Sinks, notifier.SinkRegistration{Name: "slack", Sink: client})
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
			opts.Sinks = append(opts.Sinks, notifier.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}

	if cfg.SMTP.Enabled {
		client, err := smtp.NewClient(smtp.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		if err != nil {
			baseLogger.Error("failed to initialise smtp notifier", "error", err)
		} else {
			opts.Sinks = append(opts.Sinks, notifier.SinkRegistration{Name: "smtp", Sink: client})
		}
	}

	return notifier.NewService(opts)
}

// ServiceOrchestrationConfig groups what RunServicesWithShutdown needs.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	DB       *sql.DB
	Verifier httpx.TokenVerifier
	Logger   *slog.Logger
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
func startHTTPServerIfEnabled(deps *serviceStartupDeps) (*http.Server, error) {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil, nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		DB:       deps.cfg.DB,
		Verifier: deps.cfg.Verifier,
		Logger:   deps.logger,
		ErrCh:    deps.errCh,
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
				deps.logger.WarnContext(ctx, "dropping background service error",
					"service", descriptor.name,
					"error", errMsg,
				)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)

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

func newSchedulerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeScheduler,
		name: "scheduler",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil || deps.cfg.Services.Batch == nil {
				return errors.New("scheduler requires the batch service")
			}
			schedulerCfg := config.SchedulerConfig{}
			if deps.cfg.Config != nil {
				schedulerCfg = deps.cfg.Config.Scheduler
			}
			runner, err := scheduler.NewRunner(scheduler.RunnerOptions{
				Batch:          deps.cfg.Services.Batch,
				RunAllSpec:     schedulerCfg.RunAllCron,
				EntityScanSpec: schedulerCfg.EntityScanCron,
				Timeout:        schedulerCfg.Timeout,
				Location:       schedulerCfg.Location(),
				Metrics:        deps.cfg.Services.Observability.metrics(),
				Logger:         deps.logger.With("component", "scheduler"),
			})
			if err != nil {
				return err
			}
			return runner.Run(ctx)
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newSchedulerBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) (ServiceStartupResult, error) {
	server, err := startHTTPServerIfEnabled(deps)
	if err != nil {
		return ServiceStartupResult{}, err
	}
	return ServiceStartupResult{
		HTTPServer: server,
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}, nil
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	// Determine which services are enabled
	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	// Start all enabled services
	result, err := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})
	if err != nil {
		return err
	}

	// Wait for shutdown signal or error
	return waitForShutdown(shutdownConfig{
		ctx:             serviceCtx,
		cancel:          cancel,
		errCh:           errCh,
		httpServer:      result.HTTPServer,
		shutdownTimeout: cfg.Config.HTTP.ShutdownTimeout,
		metrics:         cfg.Services.Observability.MetricsSink,
		logger:          logger,
		backgrounds:     result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	return errorChannelCapacity(enabled) + 1
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx             context.Context
	cancel          context.CancelFunc
	errCh           <-chan error
	httpServer      *http.Server
	shutdownTimeout time.Duration
	metrics         *statsd.Client
	logger          *slog.Logger
	backgrounds     []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
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
func gracefulStop(cfg shutdownConfig) error {
	var stopErr error
	if cfg.httpServer != nil {
		// The service context is already canceled; shutdown gets its own deadline.
		stopErr = ShutdownHTTPServer(ShutdownConfig{
			Context: context.WithoutCancel(cfg.ctx),
			Server:  cfg.httpServer,
			Timeout: cfg.shutdownTimeout,
			Logger:  cfg.logger,
		})
	}

	// Wait for background services to finish
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	if cfg.metrics != nil {
		if err := cfg.metrics.Close(); err != nil {
			cfg.logger.Warn("close statsd client", "error", err)
		}
	}

	return stopErr
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
