package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/askql/backend/internal/api/handlers"
	"github.com/askql/backend/internal/errorlog"
	"github.com/askql/backend/internal/heuristic"
	"github.com/askql/backend/internal/indexer"
	"github.com/askql/backend/internal/llm"
	"github.com/askql/backend/internal/metrics"
	"github.com/askql/backend/internal/middleware/ratelimit"
	"github.com/askql/backend/internal/middleware/security"
	"github.com/askql/backend/internal/middleware/validation"
	"github.com/askql/backend/internal/models"
	"github.com/askql/backend/internal/resolver"
	"github.com/askql/backend/internal/schemactx"
	"github.com/askql/backend/internal/shaper"
	"github.com/askql/backend/internal/storage/mysql"
	"github.com/askql/backend/internal/storage/sqlite"
	milvusvec "github.com/askql/backend/internal/vector/milvus"
	"github.com/askql/backend/pkg/config"
	appLogger "github.com/askql/backend/pkg/logger"
)

// meteredSink counts every failure by kind before appending it to the
// journal.
type meteredSink struct {
	log *errorlog.Log
}

func (s meteredSink) Append(entry models.ErrorLogEntry) {
	metrics.FailuresLogged.WithLabelValues(string(entry.Kind)).Inc()
	s.log.Append(entry)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting AskQL API Server")

	metrics.Init()

	errLog, err := errorlog.Open(cfg.ErrorLog.Dir)
	if err != nil {
		appLogger.Fatal("Failed to open error log", zap.Error(err))
	}

	historyClient, err := sqlite.NewClient(cfg.History.Path)
	if err != nil {
		appLogger.Fatal("Failed to open history database", zap.Error(err))
	}
	defer historyClient.Close()

	mysqlClient, err := mysql.NewClient(cfg.Database)
	if err != nil {
		appLogger.Fatal("Failed to connect to MySQL", zap.Error(err))
	}
	defer mysqlClient.Close()

	llmClient := llm.NewClient(cfg.LLM)

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			appLogger.Warn("Redis unavailable, embedding cache disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var (
		vectorIndex  schemactx.Index
		exampleStore resolver.ExampleStore
	)
	if cfg.Milvus.Enabled {
		milvusClient, err := milvusvec.NewClient(context.Background(), cfg.Milvus)
		if err != nil {
			appLogger.Fatal("Failed to connect to Milvus", zap.Error(err))
		}
		defer milvusClient.Close()

		if err := milvusClient.EnsureCollections(context.Background()); err != nil {
			appLogger.Fatal("Failed to prepare collections", zap.Error(err))
		}

		ix := indexer.New(mysqlClient, llmClient, milvusClient)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if err := ix.IndexSchema(ctx); err != nil {
				appLogger.Warn("Schema indexing failed", zap.Error(err))
			}
		}()

		vectorIndex = milvusClient
		exampleStore = ix
	}

	provider := schemactx.NewProvider(llmClient, vectorIndex, redisClient, cfg.Milvus)

	learning := resolver.NewLearningStore()
	sink := meteredSink{log: errLog}
	corrector := resolver.NewCorrector(cfg.Corrector.MaxAttempts, sink, func() {
		learning.RecordCorrection()
		metrics.CorrectionsApplied.Inc()
	})

	queryResolver := resolver.New(resolver.Options{
		Generator: llmClient,
		Executor:  mysqlClient,
		Provider:  provider,
		Fallback:  heuristic.NewGenerator(),
		Shaper:    shaper.NewShaper(),
		Corrector: corrector,
		Cache:     resolver.NewResultCache(cfg.CacheTTL(), cfg.Cache.MaxEntries),
		Learning:  learning,
		ErrorLog:  sink,
		History:   historyClient,
		Examples:  exampleStore,
		Metrics:   metrics.Recorder{},
	})

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: 60,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()
	app.Use(limiter.Middleware())
	app.Use(validation.Middleware(validation.Config{
		MaxQuestionLength: 2000,
		Logger:            appLogger.GetLogger(),
	}))

	askHandler := handlers.NewAskHandler(queryResolver, historyClient)
	learningHandler := handlers.NewLearningHandler(queryResolver)
	errorsHandler := handlers.NewErrorsHandler(errLog)
	wsHandler := handlers.NewWebSocketHandler(queryResolver)

	api := app.Group("/api/v1")

	api.Post("/ask", askHandler.HandleAsk)
	api.Get("/history", askHandler.GetHistory)
	api.Get("/history/export", askHandler.ExportHistory)
	api.Get("/learning/metrics", learningHandler.GetLearningMetrics)
	api.Get("/errors/logs", errorsHandler.GetRecentErrors)
	api.Get("/errors/summary", errorsHandler.GetErrorSummary)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		if err := mysqlClient.Ping(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "not ready",
				"error":  err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(wsHandler.HandleConnection))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
