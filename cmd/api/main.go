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
	"go.uber.org/zap"

	"github.com/flowvana/backend/internal/analytics"
	"github.com/flowvana/backend/internal/api/handlers"
	"github.com/flowvana/backend/internal/cache/redis"
	"github.com/flowvana/backend/internal/classify"
	"github.com/flowvana/backend/internal/dispatch"
	"github.com/flowvana/backend/internal/help"
	"github.com/flowvana/backend/internal/index"
	"github.com/flowvana/backend/internal/kb"
	"github.com/flowvana/backend/internal/llm"
	"github.com/flowvana/backend/internal/metrics"
	"github.com/flowvana/backend/internal/middleware/ratelimit"
	"github.com/flowvana/backend/internal/middleware/security"
	"github.com/flowvana/backend/internal/middleware/validation"
	"github.com/flowvana/backend/internal/search"
	"github.com/flowvana/backend/internal/storage/sqlite"
	"github.com/flowvana/backend/pkg/config"
	appLogger "github.com/flowvana/backend/pkg/logger"
)

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

	appLogger.Info("Starting Flowvana query API server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var cache *redis.Client
	if cfg.Redis.Enabled {
		cache, err = redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, embedding cache disabled", zap.Error(err))
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.EmbeddingModel,
		time.Duration(cfg.LLM.TimeoutSec)*time.Second,
		cache,
	)
	if !llmClient.Configured() {
		appLogger.Warn("LLM API key not set, classification and semantic search run degraded")
	}

	var store index.Store
	if cfg.Milvus.Endpoint != "" {
		milvusStore, err := index.NewMilvusStore(
			context.Background(),
			cfg.Milvus.Endpoint,
			cfg.Milvus.CollectionName,
			cfg.LLM.EmbeddingDim,
		)
		if err != nil {
			appLogger.Fatal("Failed to connect to Milvus", zap.Error(err))
		}
		store = milvusStore
		appLogger.Info("Using Milvus index backend", zap.String("endpoint", cfg.Milvus.Endpoint))
	} else {
		store = index.NewLocalStore(sqliteClient)
		appLogger.Info("Using local index backend", zap.String("path", cfg.SQLite.Path))
	}
	defer store.Close()

	var checker *kb.Checker
	if cfg.Neo4j.URI != "" {
		checker, err = kb.NewChecker(
			context.Background(),
			cfg.Neo4j.URI,
			cfg.Neo4j.Username,
			cfg.Neo4j.Password,
			cfg.Neo4j.Database,
		)
		if err != nil {
			appLogger.Warn("Neo4j unavailable, knowledge base lookups disabled", zap.Error(err))
			checker = nil
		} else {
			defer checker.Close(context.Background())
		}
	}

	builder := index.NewBuilder(sqliteClient, llmClient, store)
	if llmClient.Configured() {
		summary, err := builder.BuildAll(context.Background())
		if err != nil {
			appLogger.Warn("Index build incomplete", zap.Error(err))
		}
		metrics.IndexedTenants.Set(float64(summary.Built))
		metrics.IndexedPhrases.Set(float64(summary.Rows))
	} else {
		appLogger.Warn("Skipping index build, no embedding gateway configured")
	}

	recorder := analytics.NewRecorder(sqliteClient, cfg.Analytics.Workers, cfg.Analytics.QueueSize)
	defer recorder.Close()

	classifier := classify.New(
		llmClient,
		cfg.LLM.ClassifyModel,
		time.Duration(cfg.Dispatch.ClassifyTimeoutSec)*time.Second,
	)
	helper := help.NewResponder(
		llmClient,
		cfg.LLM.HelpModel,
		time.Duration(cfg.Dispatch.HelpTimeoutSec)*time.Second,
	)
	searcher := search.NewExecutor(store, llmClient, sqliteClient, search.Options{
		FuzzyCutoff: cfg.Search.FuzzyCutoff,
	})

	var kbChecker dispatch.KnowledgeChecker
	if checker != nil {
		kbChecker = checker
	}
	coordinator := dispatch.NewCoordinator(classifier, kbChecker, nil, helper, sqliteClient, recorder)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.Headers())
	app.Use(validation.Middleware(validation.Config{Logger: appLogger.GetLogger()}))

	limiter := ratelimit.New(ratelimit.Config{Logger: appLogger.GetLogger()})
	app.Use("/query", limiter.Middleware())

	queryHandler := handlers.NewQueryHandler(
		searcher,
		coordinator,
		sqliteClient,
		recorder,
		cfg.Search.DefaultLimit,
		cfg.Search.SemanticThreshold,
	)
	navigationHandler := handlers.NewNavigationHandler(sqliteClient)
	adminHandler := handlers.NewAdminHandler(builder)
	wsHandler := handlers.NewWebSocketHandler(coordinator, 0)

	app.Post("/query", queryHandler.HandleQuery)
	app.Post("/query/chat", queryHandler.HandleChat)
	app.Post("/query/feedback", queryHandler.HandleFeedback)

	app.Use("/query/chat/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/query/chat/ws", websocket.New(wsHandler.HandleConnection))

	app.Post("/navigations", navigationHandler.Create)
	app.Get("/navigations", navigationHandler.List)
	app.Delete("/navigations/:navigation_id", navigationHandler.Delete)

	app.Post("/admin/reindex", adminHandler.Reindex)

	app.Get("/metrics", metrics.Handler())
	indexBackend := "local"
	if cfg.Milvus.Endpoint != "" {
		indexBackend = "milvus"
	}
	app.Get("/health", func(c *fiber.Ctx) error {
		storage := "ok"
		status := "healthy"
		if err := sqliteClient.Ping(); err != nil {
			storage = "unavailable"
			status = "degraded"
		}
		return c.JSON(fiber.Map{
			"status":  status,
			"storage": storage,
			"index":   indexBackend,
			"time":    time.Now().Unix(),
		})
	})

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
