package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/studiare/tuition-billing/internal/repository"
	"github.com/studiare/tuition-billing/internal/service"
	"github.com/studiare/tuition-billing/pkg/cache"
	"github.com/studiare/tuition-billing/pkg/config"
	"github.com/studiare/tuition-billing/pkg/database"
	"github.com/studiare/tuition-billing/pkg/gateway"
	"github.com/studiare/tuition-billing/pkg/lock"
	"github.com/studiare/tuition-billing/pkg/logger"
)

// The scheduler runs the daily billing batches directly against the
// database. The Redis lock inside the accrual service keeps concurrent
// scheduler and worker instances from double-processing an invoice.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect redis", "error", err)
	}
	defer redisClient.Close()

	invoices := repository.NewInvoiceRepository(db)
	payments := repository.NewPaymentRepository(db)
	contracts := repository.NewContractRepository(db)
	locker := lock.NewRedisLocker(redisClient, cfg.Lock)
	charger := gateway.NewClient(cfg.Gateway)

	accrualSvc := service.NewAccrualService(invoices, payments, contracts, locker, charger, nil, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := cron.New()

	if _, err := c.AddFunc(cfg.Billing.AccrualCron, func() {
		runCtx, cancel := context.WithTimeout(ctx, 30*time.Minute)
		defer cancel()

		if err := accrualSvc.MarkOverdue(runCtx, ""); err != nil {
			logr.Sugar().Errorw("overdue sweep failed", "error", err)
		}
		if _, err := accrualSvc.Run(runCtx, ""); err != nil {
			logr.Sugar().Errorw("accrual run failed", "error", err)
		}
	}); err != nil {
		logr.Sugar().Fatalw("failed to schedule accrual job", "cron", cfg.Billing.AccrualCron, "error", err)
	}

	c.Start()
	logr.Sugar().Infow("scheduler started", "accrual_cron", cfg.Billing.AccrualCron)

	<-ctx.Done()
	logr.Sugar().Infow("shutting down scheduler")
	<-c.Stop().Done()
}
