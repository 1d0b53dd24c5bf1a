package main

import (
	"context"
	"errors"
	"fmt"

	"upets/platform-service/internal/config"
	"upets/platform-service/internal/logger"
	"upets/platform-service/internal/metrics"
	"upets/platform-service/internal/store"
	"upets/platform-service/internal/store/memory"
	"upets/platform-service/internal/store/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var errNoDatabase = errors.New("DB_DSN is not set")

// app holds what every command needs. store stays nil when no database is
// configured so the API can still answer not_configured.
type app struct {
	cfg     config.Config
	log     *zap.Logger
	metrics *metrics.Metrics
	plans   *store.PlanTable
	pool    *pgxpool.Pool
	store   store.Store
}

func newApp(ctx context.Context) (*app, error) {
	cfg := config.Load()
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Environment: cfg.Environment, Service: serviceName})
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	plans := store.DefaultPlans()
	if cfg.PlansFile != "" {
		loaded, err := store.LoadPlans(cfg.PlansFile)
		if err != nil {
			log.Warn("plan file ignored", zap.String("path", cfg.PlansFile), zap.Error(err))
		} else {
			plans = loaded
		}
	}

	a := &app{cfg: cfg, log: log, metrics: metrics.New(), plans: plans}
	switch cfg.StoreDriver {
	case config.DriverMemory:
		a.store = memory.New(memory.Options{Plans: plans, ActivationValidity: cfg.ActivationValidity})
		log.Warn("using in-memory store, data is lost on exit")
	case config.DriverPostgres:
		if cfg.DatabaseURL == "" {
			log.Warn("DB_DSN not set, data routes answer not_configured")
			return a, nil
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			_ = log.Sync()
			return nil, fmt.Errorf("db connect: %w", err)
		}
		a.pool = pool
		a.store = postgres.NewStore(pool, postgres.Options{Plans: plans, ActivationValidity: cfg.ActivationValidity})
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	return a, nil
}

// requirePool is for commands that only make sense against Postgres.
func (a *app) requirePool() (*pgxpool.Pool, error) {
	if a.pool == nil {
		return nil, errNoDatabase
	}
	return a.pool, nil
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	_ = a.log.Sync()
}
