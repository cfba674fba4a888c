package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/studiare/tuition-billing/internal/handler"
	"github.com/studiare/tuition-billing/internal/middleware"
	"github.com/studiare/tuition-billing/internal/repository"
	"github.com/studiare/tuition-billing/internal/service"
	"github.com/studiare/tuition-billing/pkg/cache"
	"github.com/studiare/tuition-billing/pkg/config"
	"github.com/studiare/tuition-billing/pkg/database"
	"github.com/studiare/tuition-billing/pkg/gateway"
	"github.com/studiare/tuition-billing/pkg/jobs"
	"github.com/studiare/tuition-billing/pkg/lock"
	"github.com/studiare/tuition-billing/pkg/logger"
	corsmiddleware "github.com/studiare/tuition-billing/pkg/middleware/cors"
	reqidmiddleware "github.com/studiare/tuition-billing/pkg/middleware/requestid"
)

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Repositories.
	contracts := repository.NewContractRepository(db)
	enrollments := repository.NewEnrollmentRepository(db)
	payments := repository.NewPaymentRepository(db)
	invoices := repository.NewInvoiceRepository(db)
	events := repository.NewWebhookEventRepository(db)
	wallets := repository.NewWalletRepository(db)
	schools := repository.NewSchoolRepository(db)

	// Services.
	metrics := service.NewMetricsService()
	locker := lock.NewRedisLocker(redisClient, cfg.Lock)
	charger := gateway.NewClient(cfg.Gateway)

	scheduleSvc := service.NewScheduleService(enrollments, contracts, payments, metrics, logr)
	propagationSvc := service.NewPropagationService(enrollments, contracts, payments, logr)
	accrualSvc := service.NewAccrualService(invoices, payments, contracts, locker, charger, metrics, logr)

	dispatcher := service.NewDispatcher(scheduleSvc, propagationSvc, accrualSvc, nil, logr)

	webhookSvc := service.NewWebhookService(events, metrics, logr,
		service.NewAccountStatusHandler(schools, logr),
		service.NewInvoiceStatusHandler(invoices, dispatcher, logr),
		service.NewTaxDocumentHandler(invoices, logr),
		service.NewWalletTopUpHandler(wallets, logr),
	)
	dispatcher.SetWebhookService(webhookSvc)

	walletSvc := service.NewWalletService(wallets, logr)

	queue := jobs.NewQueue("billing", dispatcher.Handle, jobs.QueueConfig{
		Workers:    cfg.Queue.Workers,
		BufferSize: cfg.Queue.BufferSize,
		MaxRetries: cfg.Queue.MaxRetries,
		RetryDelay: cfg.Queue.RetryDelay,
		DeadLetter: func(job jobs.Job, err error) {
			metrics.RecordDeadLetter(job.Type)
			logr.Sugar().Errorw("job dead-lettered", "job_id", job.ID, "type", job.Type, "error", err)
		},
		Logger: logr,
	})
	dispatcher.Bind(queue)
	queue.Start(ctx)
	defer queue.Stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	webhookHandler := handler.NewWebhookHandler(events, dispatcher, cfg.Webhook, logr)
	billingHandler := handler.NewBillingHandler(dispatcher)
	walletHandler := handler.NewWalletHandler(walletSvc)

	api := r.Group(cfg.APIPrefix)
	api.POST("/webhooks/:family", webhookHandler.Receive)

	protected := api.Group("")
	protected.Use(middleware.JWT(cfg.JWT.Secret))
	protected.POST("/billing/enrollments/:id/generate", billingHandler.Generate)
	protected.POST("/billing/enrollments/:id/propagate", billingHandler.Propagate)
	protected.POST("/billing/accruals/run", billingHandler.RunAccrual)
	protected.POST("/billing/overdue/sweep", billingHandler.MarkOverdue)
	protected.GET("/wallets/:studentID", walletHandler.GetBalance)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("worker starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}
