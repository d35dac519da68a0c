package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/quotation-engine/internal/config"
	"github.com/kursadbilgin/quotation-engine/internal/handler"
	"github.com/kursadbilgin/quotation-engine/internal/infra/postgresql"
	"github.com/kursadbilgin/quotation-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/quotation-engine/internal/infra/redis"
	"github.com/kursadbilgin/quotation-engine/internal/notifier"
	"github.com/kursadbilgin/quotation-engine/internal/observability"
	"github.com/kursadbilgin/quotation-engine/internal/renderer"
	"github.com/kursadbilgin/quotation-engine/internal/repository"
	"github.com/kursadbilgin/quotation-engine/internal/service"
	"github.com/kursadbilgin/quotation-engine/internal/transport"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("quotation-engine api exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}

	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	quotations := repository.NewGormQuotationRepo(db)
	links := repository.NewGormAccessLinkRepo(db)
	passcodes := repository.NewGormPasscodeRepo(db)
	approvals := repository.NewGormApprovalRepo(db)
	history := repository.NewGormHistoryRepo(db)
	dispatches := repository.NewGormDispatchRepo(db)
	uow := repository.NewGormUnitOfWork(db)

	notify, err := notifier.NewSendGridNotifier(cfg.SendGridAPIKey, cfg.SenderName, cfg.SenderEmail)
	if err != nil {
		return fmt.Errorf("notifier initialization failed: %w", err)
	}
	render, err := renderer.NewHTTPRenderer(cfg.RenderServiceURL)
	if err != nil {
		return fmt.Errorf("renderer initialization failed: %w", err)
	}

	otpLimiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.OTPRatePerMinute, time.Minute)
	if err != nil {
		return fmt.Errorf("rate limiter initialization failed: %w", err)
	}
	kvCache, err := infraredis.NewRedisCache(rdb, "quotation-engine")
	if err != nil {
		return fmt.Errorf("cache initialization failed: %w", err)
	}

	tokens := &service.RandomTokenIssuer{}

	linkManager, err := service.NewAccessLinkManager(links, tokens, time.Duration(cfg.LinkExpiryDays)*24*time.Hour, logger)
	if err != nil {
		return err
	}
	allocator, err := service.NewSequenceAllocator(quotations, cfg.DocumentPrefix, logger)
	if err != nil {
		return err
	}
	escalator, err := service.NewApprovalEscalator(
		uow,
		approvals,
		decimal.NewFromFloat(cfg.ManagerDiscountThreshold),
		decimal.NewFromFloat(cfg.AdminDiscountThreshold),
		logger,
	)
	if err != nil {
		return err
	}
	authenticator, err := service.NewOtpAuthenticator(
		passcodes,
		dispatches,
		uow,
		tokens,
		notify,
		otpLimiter,
		time.Duration(cfg.OTPTTLMinutes)*time.Minute,
		cfg.OTPMaxAttempts,
		logger,
	)
	if err != nil {
		return err
	}
	lifecycle, err := service.NewLifecycleOrchestrator(
		uow,
		quotations,
		history,
		dispatches,
		linkManager,
		allocator,
		escalator,
		render,
		notify,
		service.LifecycleConfig{
			PortalBaseURL:  cfg.PortalBaseURL,
			CompanyTaxCode: cfg.CompanyTaxCode,
			TaxRatePercent: decimal.NewFromFloat(cfg.TaxRatePercent),
		},
		logger,
	)
	if err != nil {
		return err
	}
	scheduler, err := service.NewReminderScheduler(
		quotations,
		links,
		dispatches,
		notify,
		kvCache,
		time.Duration(cfg.SweepIntervalHours)*time.Hour,
		time.Duration(cfg.UnviewedReminderDays)*24*time.Hour,
		time.Duration(cfg.FollowUpReminderDays)*24*time.Hour,
		logger,
	)
	if err != nil {
		return err
	}
	scanner, err := service.NewDispatchRetryScanner(
		dispatches,
		uow,
		notify,
		time.Duration(cfg.DispatchRetryInterval)*time.Second,
		cfg.DispatchMaxRetries,
		logger,
	)
	if err != nil {
		return err
	}
	lifecycle.SetDocumentCache(kvCache)

	metrics := observability.NewMetrics()
	linkManager.SetMetrics(metrics)
	allocator.SetMetrics(metrics)
	authenticator.SetMetrics(metrics)
	lifecycle.SetMetrics(metrics)
	scheduler.SetMetrics(metrics)
	scanner.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		AppName:      "quotation-engine",
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(transport.RequestTracking())
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	if err := handler.RegisterQuotationRoutes(app, lifecycle, linkManager, lifecycle); err != nil {
		return err
	}
	if err := handler.RegisterApprovalRoutes(app, escalator, lifecycle); err != nil {
		return err
	}
	if err := handler.RegisterPortalRoutes(app, lifecycle, authenticator, linkManager); err != nil {
		return err
	}
	if err := handler.RegisterSweepRoutes(app, scheduler); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Start(groupCtx)
	})
	g.Go(func() error {
		return scanner.Start(groupCtx)
	})
	g.Go(func() error {
		logger.Info("quotation-engine api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
