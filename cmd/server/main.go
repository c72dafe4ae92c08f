package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/cleanup"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/config"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/handlers"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/media"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/observability"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/pipeline"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/queue"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/storage"
	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/transcription"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := "config/config.yaml"
	if p := os.Getenv("TRANSCRIBER_CONFIG"); p != "" {
		configPath = p
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logBuffer := observability.NewLogBuffer(1000)
	log := observability.InitLogger(cfg.Logging.Level, cfg.Logging.Pretty, logBuffer)

	if err := cleanup.EnsureDirs(log, cfg.Storage.TempDir, cfg.Storage.OutputDir); err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage directories")
	}

	log.Info().Msg("Initializing components...")

	ff := media.NewFFmpeg(
		media.WithBinaries(cfg.Engine.FFmpeg, cfg.Engine.FFprobe),
		media.WithLogger(log),
	)

	// The model loads on the first job that needs it
	manager := transcription.NewManager(
		transcription.WorkerFactory(transcription.WorkerConfig{
			Python:      cfg.Engine.Python,
			Device:      cfg.Engine.Device,
			ComputeType: cfg.Engine.ComputeType,
			ModelDir:    cfg.Engine.ModelDir,
		}, log),
		log,
	)

	processor := pipeline.NewProcessor(ff, manager, log,
		pipeline.WithLoudnessTarget(cfg.Loudness.Target()),
	)

	localStorage := storage.NewLocalStorage(cfg.Storage.OutputDir)

	db, err := storage.NewMetadataDB(cfg.Storage.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	workerPool := queue.NewWorkerPool(
		cfg.Workers.Count,
		processor,
		localStorage,
		driveUploader(cfg.GoogleDrive, log),
		db,
		log,
	)
	workerPool.Start()

	cleanupScheduler := cleanup.NewScheduler(
		cfg.Storage.TempDir,
		cfg.Storage.OutputDir,
		cfg.Cleanup.IntervalMinutes,
		cfg.Cleanup.MaxAgeHours,
		log,
	)
	cleanupScheduler.Start()

	app := fiber.New(fiber.Config{
		BodyLimit:             cfg.Limits.MaxFileSizeMB * cfg.Limits.MaxFilesPerJob * 1024 * 1024,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	uploadHandler := handlers.NewUploadHandler(workerPool, cfg.Storage.TempDir,
		cfg.Limits.MaxFileSizeMB, cfg.Limits.MaxFilesPerJob, cfg.Defaults, log)
	gdriveHandler := handlers.NewGDriveHandler(workerPool, cfg.Storage.TempDir,
		cfg.Limits.MaxFileSizeMB, cfg.Defaults, log)
	jobsHandler := handlers.NewJobsHandler(workerPool, db)
	feedHandler := handlers.NewJobFeedHandler(workerPool, log)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"version": "2.0.0",
			"workers": cfg.Workers.Count,
			"device":  cfg.Engine.Device,
		})
	})

	app.Post("/upload", uploadHandler.Handle)
	app.Post("/gdrive", gdriveHandler.Handle)

	app.Get("/jobs", jobsHandler.List)
	app.Get("/jobs/:id", jobsHandler.Get)
	app.Get("/jobs/:id/files/:name", jobsHandler.File)
	app.Get("/jobs/:id/archive", jobsHandler.Archive)

	app.Use("/ws", handlers.Upgrade)
	app.Get("/ws/jobs/:id", websocket.New(feedHandler.Handle))

	app.Get("/logs", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"logs": logBuffer.Lines(),
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info().Str("addr", addr).Msg("Server starting")
	log.Info().Strs("endpoints", []string{
		"POST /upload",
		"POST /gdrive",
		"GET  /jobs",
		"GET  /jobs/:id",
		"GET  /jobs/:id/files/:name",
		"GET  /jobs/:id/archive",
		"GET  /ws/jobs/:id",
		"GET  /logs",
		"GET  /metrics",
		"GET  /health",
	}).Msg("Routes registered")

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Info().Msg("Shutting down gracefully...")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			log.Error().Err(err).Msg("HTTP shutdown")
		}
	}()

	if err := app.Listen(addr); err != nil {
		log.Error().Err(err).Msg("Server failed")
	}

	cleanupScheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := workerPool.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Worker pool did not drain before timeout")
	}
	if err := manager.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to stop transcription worker")
	}
	if err := db.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close database")
	}
	log.Info().Msg("Shutdown complete")
}

// driveUploader connects to Google Drive when credentials exist. A nil interface
// keeps uploads disabled.
func driveUploader(cfg config.DriveConfig, log zerolog.Logger) queue.Uploader {
	if _, err := os.Stat(cfg.CredentialsFile); err != nil {
		log.Info().Msg("Google Drive credentials not found - saving locally only")
		return nil
	}

	client, err := storage.NewDriveClient(context.Background(),
		cfg.CredentialsFile, cfg.TokenFile, cfg.FolderName, os.Stdin)
	if err != nil {
		log.Warn().Err(err).Msg("Google Drive not available, transcripts will only be saved locally")
		return nil
	}
	log.Info().Str("folder", cfg.FolderName).Msg("Google Drive integration enabled")
	return client
}
