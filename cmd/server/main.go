package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/storyreel/api/internal/client"
	"github.com/storyreel/api/internal/config"
	"github.com/storyreel/api/internal/handler"
	"github.com/storyreel/api/internal/media"
	"github.com/storyreel/api/internal/middleware"
	"github.com/storyreel/api/internal/service"
	"github.com/storyreel/api/internal/store"
	"github.com/storyreel/api/internal/worker"
	ws "github.com/storyreel/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize external clients
	scriptClient := client.NewScriptClient(&cfg.Script)
	imageClient := client.NewImageClient(&cfg.Image)
	speechClient := client.NewSpeechClient(&cfg.Speech)

	// Initialize storage client (optional - continues if not configured)
	var storageClient client.StorageClient
	if cfg.Storage.AccessKeyID != "" && cfg.Storage.SecretAccessKey != "" {
		s3Client, err := client.NewS3Client(&cfg.Storage)
		if err != nil {
			log.Printf("Warning: storage client not initialized: %v", err)
		} else {
			storageClient = s3Client
		}
	} else {
		log.Println("Info: object storage not configured, final videos stay on local disk")
	}

	// Media tooling
	if err := os.MkdirAll(cfg.Media.Root, 0755); err != nil {
		log.Fatalf("Failed to create media root %s: %v", cfg.Media.Root, err)
	}
	prober := media.NewFFProber(cfg.Media.FFprobeBin)
	renderer := media.NewFFmpegRenderer(cfg.Media.FFmpegBin)
	concatenator := media.NewFFmpegConcatenator(cfg.Media.FFmpegBin)

	// Record store and services
	recordStore := store.NewStore(redisClient)
	pipelineService := service.NewPipelineService(recordStore, asynqClient)

	// Handlers
	videoHandler := handler.NewVideoHandler(pipelineService, validate)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    50 * 1024 * 1024, // 50MB
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"script":  scriptClient.IsConfigured(),
				"image":   imageClient.IsConfigured(),
				"speech":  speechClient.IsConfigured(),
				"storage": storageClient != nil,
			},
		})
	})

	// API routes
	api := app.Group("/api", authMiddleware.Authenticate())

	videos := api.Group("/videos")
	videos.Post("/generate", rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerHour), videoHandler.Generate)
	videos.Get("/progress/:jobId", videoHandler.Progress)
	videos.Get("/", videoHandler.List)
	videos.Get("/:videoId", videoHandler.Get)
	videos.Get("/:videoId/scenes", videoHandler.Scenes)
	videos.Post("/:videoId/scenes/:sceneId/regenerate", rateLimiter.RegenerateLimit(cfg.RateLimit.RegeneratePerHour), videoHandler.Regenerate)
	videos.Post("/:videoId/assemble", rateLimiter.AssembleLimit(cfg.RateLimit.AssemblePerHour), videoHandler.Assemble)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, recordStore, scriptClient, imageClient, speechClient, storageClient, prober, renderer, concatenator, hub)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(
	cfg *config.Config,
	recordStore *store.Store,
	scriptClient client.ScriptWriter,
	imageClient client.ImageGenerator,
	speechClient client.SpeechSynthesizer,
	storageClient client.StorageClient,
	prober media.Prober,
	renderer media.SegmentRenderer,
	concatenator media.Concatenator,
	hub *ws.Hub,
) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			// Scenes within a job run strictly sequentially; concurrency
			// here only allows separate jobs to make progress in parallel.
			Concurrency: 4,
			Queues: map[string]int{
				"pipeline": 10,
			},
			LogLevel: asynqLogLevel,
		},
	)

	proc := worker.NewSceneProcessor(recordStore, imageClient, speechClient, prober, renderer, hub, cfg.Media.Root)
	generateWorker := worker.NewGenerateWorker(proc, scriptClient)
	regenerateWorker := worker.NewRegenerateWorker(proc)
	assembleWorker := worker.NewAssembleWorker(recordStore, concatenator, storageClient, hub, cfg.Media.Root)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeGenerate, generateWorker.ProcessTask)
	mux.HandleFunc(service.TaskTypeRegenerate, regenerateWorker.ProcessTask)
	mux.HandleFunc(service.TaskTypeAssemble, assembleWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
