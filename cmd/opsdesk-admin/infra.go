package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/opsdesk/config"
	"github.com/target/opsdesk/internal/bootstrap"
)

// adminInfra holds the connections a command asked for. Services is nil unless
// the command needs the job services; Redis is nil when Redis is disabled.
type adminInfra struct {
	DB       *sql.DB
	Redis    redis.UniversalClient
	Services *bootstrap.ServiceContainer
}

type connectInfraOptions struct {
	Logger       *slog.Logger
	Config       *config.AppConfig
	WantServices bool
}

// connectInfra opens the database and, when requested, Redis, the query source and the
// service container. The returned close function releases everything that was opened.
func connectInfra(opts *connectInfraOptions) (*adminInfra, func(), error) {
	logger := opts.Logger
	dbCfg := bootstrap.DatabaseConfig{
		DBConfig:    opts.Config.Postgres,
		RedisConfig: opts.Config.Redis,
		Logger:      logger,
	}

	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("close failed", "error", err)
			}
		}
	}

	db, err := bootstrap.ConnectDB(dbCfg)
	if err != nil {
		return nil, func() {}, fmt.Errorf("connect db: %w", err)
	}
	closers = append(closers, db.Close)
	infra := &adminInfra{DB: db}

	if !opts.WantServices {
		return infra, closeAll, nil
	}

	redisClient, err := bootstrap.ConnectRedis(dbCfg)
	if err != nil {
		closeAll()
		return nil, func() {}, fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		closers = append(closers, redisClient.Close)
		infra.Redis = redisClient
	}

	source, closeSource, err := bootstrap.BuildQuerySource(bootstrap.QuerySourceDeps{
		Config: opts.Config.QuerySource,
		DB:     db,
		Logger: logger,
	})
	if err != nil {
		closeAll()
		return nil, func() {}, err
	}
	closers = append(closers, closeSource)

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:      opts.Config,
		DB:          db,
		RedisClient: redisClient,
		QuerySource: source,
		Logger:      logger,
	})
	if err != nil {
		closeAll()
		return nil, func() {}, fmt.Errorf("build services: %w", err)
	}
	if sink := services.Observability.MetricsSink; sink != nil {
		closers = append(closers, sink.Close)
	}
	infra.Services = &services

	return infra, closeAll, nil
}

func withDatabase(
	cmdCtx *commandContext,
	timeout time.Duration,
	f func(context.Context, *adminInfra) error,
) error {
	return withInfra(cmdCtx, timeout, false, f)
}

func withServices(
	cmdCtx *commandContext,
	timeout time.Duration,
	f func(context.Context, *adminInfra) error,
) error {
	return withInfra(cmdCtx, timeout, true, f)
}

func withInfra(
	cmdCtx *commandContext,
	timeout time.Duration,
	wantServices bool,
	f func(context.Context, *adminInfra) error,
) error {
	ctx, cancel := signalContext(cmdCtx.Ctx, timeout)
	defer cancel()

	infra, closeAll, err := connectInfra(&connectInfraOptions{
		Logger:       cmdCtx.Logger,
		Config:       &cmdCtx.Config,
		WantServices: wantServices,
	})
	if err != nil {
		return err
	}
	defer closeAll()

	return f(ctx, infra)
}
