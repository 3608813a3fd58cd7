package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backoffice-service/config"
	"backoffice-service/internal/api"
	"backoffice-service/internal/broker"
	"backoffice-service/internal/jobs"
	"backoffice-service/internal/notify"
	"backoffice-service/internal/redisclient"
	"backoffice-service/internal/service"
	"backoffice-service/internal/store"
	"backoffice-service/internal/util"
	"backoffice-service/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting backoffice service")

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal("JWT_SECRET must be set")
	}

	tp, err := util.InitTracer("backoffice-service", cfg.Observ.JaegerEndpoint, cfg.Server.Env)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
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
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(context.Background()); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
		logger.Info("Database schema applied")
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	saleProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicSaleEvents)
	defer saleProducer.Close()
	notificationProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications)
	defer notificationProducer.Close()
	logger.Info("Kafka producers initialized")

	eventPublisher := broker.NewEventPublisher(saleProducer, notificationProducer)

	otpLedger := service.NewOtpLedger(db, redisClient, eventPublisher, cfg.Auth.OtpTTL, cfg.Auth.OtpMaxAttempts)
	authService := service.NewAuthService(db, otpLedger, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.OtpTTL)
	saleService := service.NewSaleService(db, eventPublisher, redisClient, cfg.Business.IdempotencyTTL)
	catalogService := service.NewCatalogService(db)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	mailer := notify.NewMailer(cfg.Mail)
	notificationConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications, cfg.Kafka.ConsumerGroup)
	notificationWorker := worker.NewNotificationWorker(notificationConsumer, mailer)
	go func() {
		if err := notificationWorker.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Notification worker error", zap.Error(err))
		}
	}()

	jobsWorker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB},
		Handlers:  map[string]asynq.Handler{jobs.TaskOtpPurge: jobs.NewOtpPurgeHandler(otpLedger)},
		Cron:      []jobs.CronRegistration{{Spec: cfg.Jobs.OtpPurgeCron, Task: jobs.NewOtpPurgeTask()}},
	})
	if err != nil {
		logger.Fatal("Failed to configure jobs worker", zap.Error(err))
	}
	jobsDone := make(chan struct{})
	go func() {
		defer close(jobsDone)
		if err := jobsWorker.Run(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Jobs worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(saleService, authService, catalogService, cfg.IsDevelopment(),
		api.ReadinessCheck{Name: "postgres", Ping: db.Ping},
		api.ReadinessCheck{Name: "redis", Ping: redisClient.Ping},
	)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := notificationWorker.Stop(); err != nil {
		logger.Warn("Error stopping notification worker", zap.Error(err))
	}

	select {
	case <-jobsDone:
	case <-shutdownCtx.Done():
		logger.Warn("Jobs worker did not stop in time")
	}

	logger.Info("Server exited")
}
