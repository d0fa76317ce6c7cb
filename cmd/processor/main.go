package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"speakerscribe/config"
	_ "speakerscribe/docs"
	"speakerscribe/handlers"
	"speakerscribe/internal/auth"
	"speakerscribe/internal/db"
	"speakerscribe/internal/dispatch"
	"speakerscribe/internal/jobs"
	"speakerscribe/internal/merge"
	"speakerscribe/internal/pipeline"
	"speakerscribe/internal/storage"
	"speakerscribe/internal/worker"
	"speakerscribe/middleware"
	"speakerscribe/utils"
)

// @title Speakerscribe transcription pipeline API
// @version 1.0
// @description Storage notification intake and document state for the speaker-annotated transcription pipeline.
// @BasePath /
func main() {
	settings, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	logger, err := config.NewLogger(settings.LogLevel)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize logger")
	}
	logger.Info("Starting transcription pipeline...")

	supabaseClient, err := config.NewSupabaseClient(settings.SupabaseURL, settings.SupabaseServiceKey)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize Supabase")
	}

	var documents db.DocumentStore
	switch settings.StoreDriver {
	case config.StoreDriverSQLite:
		sqlDB, err := db.OpenSQLite(settings.SQLitePath)
		if err != nil {
			logger.WithError(err).Fatal("Failed to open document database")
		}
		defer sqlDB.Close()
		documents = db.NewSQLiteStore(sqlDB)
	default:
		documents = db.NewPostgrestStore(supabaseClient, settings.DocumentsTable, logger)
	}
	logger.WithField("driver", settings.StoreDriver).Info("Document store ready")

	objects := storage.NewSupabaseStore(supabaseClient.Storage, settings.AudioBucket, logger)

	var tokens dispatch.TokenSource
	switch {
	case settings.TransformTokenURL != "":
		tokens = auth.NewTokenCache(auth.ClientCredentials{
			TokenURL:     settings.TransformTokenURL,
			ClientID:     settings.TransformClientID,
			ClientSecret: settings.TransformClientSecret,
			Audience:     settings.TransformAudience,
		}, auth.DefaultExpirySkew)
	case settings.TransformToken != "":
		tokens = auth.NewTokenCache(auth.Static(settings.TransformToken), 0)
	default:
		logger.Warn("No transform service credentials configured; calls are unauthenticated")
	}
	dispatcher, err := dispatch.NewGRPCDispatcher(dispatch.GRPCOptions{
		Addr:   settings.TransformAddr,
		TLS:    settings.TransformTLS,
		Tokens: tokens,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create transform service client")
	}
	defer dispatcher.Close()

	processor := pipeline.NewProcessor(documents, objects, dispatcher, merge.New(settings.MergeOptions()), pipeline.Config{
		Bucket:          settings.AudioBucket,
		Model:           settings.TranscriptionModel,
		DispatchTimeout: settings.DispatchTimeout,
		StorageTimeout:  settings.StorageTimeout,
	}, logger)

	pool := worker.NewPool(context.Background(), settings.Workers, settings.QueueSize, logger)
	pool.Run()

	handler := handlers.NewApplicationHandler(processor, pool, jobs.NewTracker(jobs.DefaultTrackerLimit), documents, logger)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			return utils.RespondWithError(c, code, err.Error())
		},
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, X-Request-ID",
	}))
	app.Use(middleware.RequestLogger(logger))
	handlers.SetupRoutes(app, handler, settings.WebhookSecret)

	go func() {
		logger.WithField("port", settings.Port).Info("Listening for storage notifications")
		if err := app.Listen(":" + settings.Port); err != nil {
			logger.WithError(err).Fatal("HTTP server stopped")
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down transcription pipeline...")
	if err := app.ShutdownWithTimeout(settings.ShutdownTimeout); err != nil {
		logger.WithError(err).Warn("HTTP server did not shut down cleanly")
	}
	ctx, cancel := context.WithTimeout(context.Background(), settings.ShutdownTimeout)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		logger.WithError(err).Warn("Queued notification batches were abandoned")
	}
	logger.Info("Transcription pipeline shut down gracefully.")
}
