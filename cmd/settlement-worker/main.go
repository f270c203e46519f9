package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/SebastianDabkowski/mercato-settlement/internal/cron"
	"github.com/SebastianDabkowski/mercato-settlement/internal/escrow"
	"github.com/SebastianDabkowski/mercato-settlement/internal/payout"
	"github.com/SebastianDabkowski/mercato-settlement/internal/settlement"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/config"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/db"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/logger"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/metrics"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/migrate"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/outbox"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/redis"
)

const lockKeyFormat = "mercato:settlement-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "settlement-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "settlement-worker"

	logg = logger.New(logger.Options{
		ServiceName: "settlement-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry, err := buildRegistry(cfg, logg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create worker lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting settlement worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "settlement worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "settlement worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	escrowService, err := escrow.NewService(escrow.ServiceParams{
		Repo:   escrow.NewRepository(dbClient.DB()),
		Logger: logg,
	})
	if err != nil {
		return nil, fmt.Errorf("escrow service: %w", err)
	}

	payoutService, err := payout.NewService(payout.ServiceParams{
		Repo:       payout.NewRepository(dbClient.DB()),
		Escrow:     escrowService,
		Transferor: payout.NewSandboxTransferor(),
		Outbox:     outboxService,
		Tx:         dbClient,
		Logger:     logg,
		Metrics:    metrics.NewPayoutMetrics(prometheus.DefaultRegisterer),
		Config:     cfg.Payout,
	})
	if err != nil {
		return nil, fmt.Errorf("payout service: %w", err)
	}

	settlementService, err := settlement.NewService(settlement.ServiceParams{
		Repo:   settlement.NewRepository(dbClient.DB()),
		Outbox: outboxService,
		Tx:     dbClient,
		Logger: logg,
	})
	if err != nil {
		return nil, fmt.Errorf("settlement service: %w", err)
	}

	payoutJob, err := cron.NewPayoutJob(cron.PayoutJobParams{
		Logger:  logg,
		Payouts: payoutService,
	})
	if err != nil {
		return nil, fmt.Errorf("payout job: %w", err)
	}

	settlementJob, err := cron.NewSettlementJob(cron.SettlementJobParams{
		Logger:      logg,
		Settlements: settlementService,
		Config:      cfg.Settlement,
	})
	if err != nil {
		return nil, fmt.Errorf("settlement job: %w", err)
	}

	return cron.NewRegistry(payoutJob, settlementJob), nil
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
