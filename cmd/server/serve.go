package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"enrollment-service/config"
	"enrollment-service/internal/api"
	"enrollment-service/internal/auth"
	"enrollment-service/internal/broker"
	"enrollment-service/internal/gateway"
	"enrollment-service/internal/notification"
	"enrollment-service/internal/redisclient"
	"enrollment-service/internal/service"
	"enrollment-service/internal/store"
	"enrollment-service/internal/util"
	"enrollment-service/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const serviceName = "enrollment-service"

func serveCmd() *cobra.Command {
	var (
		runMigrations bool
		withWorker    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the notification worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(runMigrations, withWorker)
		},
	}

	cmd.Flags().BoolVar(&runMigrations, "migrate", false, "apply database migrations before serving")
	cmd.Flags().BoolVar(&withWorker, "worker", true, "run the notification worker and scheduler in-process")
	return cmd
}

func runServe(runMigrations, withWorker bool) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := util.InitLogger(cfg.Server.Env, serviceName); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting enrollment service", zap.String("version", Version))

	tp, err := util.InitTracer(serviceName, cfg.Observ.JaegerEndpoint, cfg.Server.Env)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	logger.Info("Database connected")

	if runMigrations {
		if err := db.Migrate(context.Background()); err != nil {
			return err
		}
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEnrollment)
	defer producer.Close()
	logger.Info("Kafka producer initialized")

	dispatcher := notification.NewDispatcher(broker.NewEventPublisher(producer), cfg.Notification.QueueSize)

	gw := gateway.NewClient(cfg.Payment)
	jwtManager := auth.NewJWTManager(cfg.Auth)

	enrollmentService := service.NewEnrollmentService(db, gw, redisClient, dispatcher, service.EnrollmentOptions{
		KeySecret:       cfg.Payment.KeySecret,
		DefaultCurrency: cfg.Payment.Currency,
		OrderTTL:        time.Duration(cfg.Business.OrderTimeoutSeconds) * time.Second,
		LockTTL:         time.Duration(cfg.Business.PaymentTimeoutSeconds) * time.Second,
	})
	paymentService := service.NewPaymentService(gw)
	userService := service.NewUserService(db, jwtManager)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var (
		notificationWorker *worker.NotificationWorker
		scheduler          *worker.Scheduler
	)
	if withWorker {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEnrollment, cfg.Kafka.ConsumerGroup)
		notificationWorker = worker.NewNotificationWorker(consumer, db, notification.NewMailer(cfg.SMTP))
		go func() {
			if err := notificationWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Notification worker error", zap.Error(err))
			}
		}()

		scheduler = worker.NewScheduler(db, cfg.Notification.ProcessedRetentionDays)
		if err := scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(enrollmentService, paymentService, userService, jwtManager, map[string]api.ReadinessCheck{
		"postgres": db.Ping,
		"redis":    redisClient.Ping,
	}, cfg.IsProduction())
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		logger.Error("HTTP server failed", zap.Error(err))
	}

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	// in-flight requests are done; flush queued notifications before the
	// producer closes
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn("Notification queue not drained", zap.Error(err))
	}

	workerCancel()
	if scheduler != nil {
		scheduler.Stop()
	}
	if notificationWorker != nil {
		if err := notificationWorker.Stop(); err != nil {
			logger.Warn("Error stopping notification worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
	return nil
}
