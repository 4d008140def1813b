package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rms-platform/pipeline-service/pkg/cloudevents"
	"github.com/rms-platform/pipeline-service/pkg/kafka"
	"github.com/rms-platform/pipeline-service/pkg/logging"
	"github.com/rms-platform/pipeline-service/pkg/metrics"
	"github.com/rms-platform/pipeline-service/pkg/middleware"
	"github.com/rms-platform/pipeline-service/pkg/mongodb"
	"github.com/rms-platform/pipeline-service/pkg/outbox"
	"github.com/rms-platform/pipeline-service/pkg/resilience"

	"github.com/rms-platform/pipeline-service/internal/application"
	mongoRepo "github.com/rms-platform/pipeline-service/internal/infrastructure/mongodb"
)

func main() {
	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(getEnv("LOG_LEVEL", "info"))
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting pipeline-service API")

	config := loadConfig()
	ctx := context.Background()

	roleProfiles, err := loadRoleProfiles()
	if err != nil {
		logger.WithError(err).Error("Failed to load role profiles")
		os.Exit(1)
	}

	// Prometheus metrics
	metricsConfig := metrics.DefaultConfig(serviceName)
	m := metrics.New(metricsConfig)
	logger.Info("Metrics initialized")

	// MongoDB; retry the initial connect so restarts survive a briefly
	// unavailable database.
	var mongoClient *mongodb.Client
	retryConfig := resilience.DefaultRetryConfig()
	retryConfig.MaxAttempts = 5
	retryConfig.RetryableErrors = func(error) bool { return true }
	err = resilience.Retry(ctx, retryConfig, func() error {
		var connErr error
		mongoClient, connErr = mongodb.NewClient(ctx, config.MongoDB)
		return connErr
	})
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	defer mongoClient.Close(ctx)
	logger.Info("Connected to MongoDB", "database", config.MongoDB.Database)

	// Kafka producer behind instrumentation and a circuit breaker
	producer := kafka.NewProductionProducer(config.Kafka, m, logger)
	defer producer.Close()
	logger.Info("Kafka producer initialized", "brokers", config.Kafka.Brokers)

	// CloudEvents factory
	eventFactory := cloudevents.NewEventFactory(cloudevents.SourcePipeline)

	// Repositories
	db := mongoClient.Database()
	processRepo := mongoRepo.NewProcessRepository(db, eventFactory)
	stageConfigRepo := mongoRepo.NewStageConfigRepository(db)
	materialRepo := mongoRepo.NewRawMaterialRepository(db)
	requestRepo := mongoRepo.NewItemRequestRepository(db, eventFactory)
	userStockRepo := mongoRepo.NewUserStockRepository(db, eventFactory)
	employeeDir := mongoRepo.NewEmployeeDirectory(db)
	warehouseRepo := mongoRepo.NewWarehouseStockRepository(db)

	// Outbox publisher drains events written by the repositories
	outboxPublisher := outbox.NewPublisher(
		processRepo.GetOutboxRepository(),
		producer,
		logger,
		m,
		outbox.DefaultPublisherConfig(),
	)
	if err := outboxPublisher.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start outbox publisher")
		os.Exit(1)
	}
	defer outboxPublisher.Stop()
	logger.Info("Outbox publisher started")

	// Application services
	processService := application.NewProcessService(processRepo, stageConfigRepo, roleProfiles, m, logger)
	ledgerService := application.NewLedgerService(requestRepo, materialRepo, userStockRepo, employeeDir, warehouseRepo, m, logger)
	disassembleService := application.NewDisassembleService(processRepo, m, logger)

	// Router
	router := gin.New()
	middleware.Setup(router, middleware.DefaultConfig(serviceName, logger.Logger))
	router.Use(middleware.MetricsMiddleware(m))

	router.NoRoute(middleware.NoRoute())
	router.NoMethod(middleware.NoMethod())

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, func() error {
		return mongoClient.HealthCheck(ctx)
	}))
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	apiV1 := router.Group("/api/v1")

	processes := apiV1.Group("/processes")
	{
		processes.POST("", createProcessHandler(processService))
		processes.GET("", listProcessesHandler(processService))
		processes.GET("/:processId", getProcessHandler(processService))
		processes.POST("/:processId/accept", acceptActivityHandler(processService))
		processes.POST("/:processId/start", startActivityHandler(processService))
		processes.POST("/:processId/complete", completeActivityHandler(processService))
		processes.POST("/:processId/disassemble", submitDisassemblyHandler(disassembleService))
	}

	requests := apiV1.Group("/material-requests")
	{
		requests.POST("", requestMaterialsHandler(ledgerService))
		requests.GET("/pending", listPendingRequestsHandler(ledgerService))
		requests.GET("/:requestId", getRequestHandler(ledgerService))
		requests.POST("/:requestId/decision", decideRequestHandler(ledgerService))
		requests.POST("/:requestId/sanction", sanctionRequestHandler(ledgerService))
	}

	apiV1.POST("/material-usages", consumeMaterialHandler(ledgerService))
	apiV1.GET("/materials", listMaterialsHandler(ledgerService))
	apiV1.GET("/materials/:materialId", getMaterialHandler(ledgerService))
	apiV1.GET("/employees/:employeeId/stock", getEmployeeStockHandler(ledgerService))
	apiV1.GET("/warehouse/:productName", getWarehouseStockHandler(ledgerService))

	srv := &http.Server{
		Addr:         config.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
		}
	}()
	logger.Info("Server started", "addr", config.ServerAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server stopped")
}
