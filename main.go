package main

import (
	"context"
	"os/signal"
	"syscall"

	"referral-service/internal/admin"
	"referral-service/internal/commission"
	"referral-service/internal/config"
	"referral-service/internal/consumer"
	"referral-service/internal/database"
	"referral-service/internal/logger"
	"referral-service/internal/notify"
	"referral-service/internal/processor"
	"referral-service/internal/reconcile"
	"referral-service/internal/repository"
	"referral-service/internal/service"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.App.LogLevel)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database
	db, err := database.New(cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer db.Close()

	// Initialize repositories
	store := repository.NewStore(db.DB, log)
	profileRepo := repository.NewProfileRepository(db.DB, log)
	ledgerRepo := repository.NewLedgerRepository(db.DB, log)
	notificationRepo := repository.NewNotificationRepository(db.DB, log)
	subscriptionRepo := repository.NewSubscriptionRepository(db.DB, log)

	// Notifications go to the inbox and to the broker
	publisher, err := notify.NewPublisher(cfg.Rabbit, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize notification publisher")
	}
	defer publisher.Close()
	notifier := notify.Fanout{notify.NewStore(notificationRepo, log), publisher}

	engine, err := commission.New(store, notifier, log, commission.Options{
		BaseRate:  cfg.Commission.BaseRate,
		FloorRate: cfg.Commission.FloorRate,
		MaxLevels: cfg.Commission.MaxLevels,
		Currency:  cfg.Commission.Currency,
	})
	if err != nil {
		log.WithError(err).Fatal("invalid commission configuration")
	}

	profileService := service.NewProfileService(store, profileRepo, ledgerRepo, log)
	subscriptionService := service.NewSubscriptionService(store, subscriptionRepo, engine, notifier, cfg.Commission.PrimePrice, log)
	router := processor.Router{
		Orders:        service.NewOrderService(engine, log),
		Subscriptions: subscriptionService,
		Profiles:      profileService,
	}
	adminRouter := admin.NewRouter(admin.Deps{
		DB:            db,
		Profiles:      profileService,
		Inbox:         notificationRepo,
		Subscriptions: subscriptionService,
	}, log)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := admin.Serve(ctx, cfg.App.AdminAddr, adminRouter, log); err != nil {
			log.WithError(err).Error("admin server stopped")
		}
	}()

	go reconcile.Run(ctx, profileRepo, ledgerRepo, cfg.Reconcile.BatchSize, cfg.Reconcile.Interval, log)

	updates := make(chan processor.IncomingUpdate, cfg.Rabbit.Prefetch)
	poolDone := make(chan struct{})
	go func() {
		processor.StartPool(ctx, updates, cfg.Rabbit.Workers, router, log)
		close(poolDone)
	}()

	// Initialize and start RabbitMQ consumer
	rmqConsumer, err := consumer.New(cfg.Rabbit, log, updates)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize RabbitMQ consumer")
	}
	defer rmqConsumer.Close()

	if err := rmqConsumer.Start(ctx); err != nil && ctx.Err() == nil {
		log.WithError(err).Error("consumer stopped unexpectedly")
		stop()
	}

	<-poolDone
	log.Info("graceful shutdown complete")
}
