package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/medinote/backend/config"
	"github.com/medinote/backend/internal/api/handlers"
	"github.com/medinote/backend/internal/api/middleware"
	"github.com/medinote/backend/internal/api/routes"
	"github.com/medinote/backend/internal/cache"
	"github.com/medinote/backend/internal/logger"
	"github.com/medinote/backend/internal/models"
	"github.com/medinote/backend/internal/providers/stt"
	"github.com/medinote/backend/internal/realtime"
	mongorepo "github.com/medinote/backend/internal/repositories/mongo"
	pgrepo "github.com/medinote/backend/internal/repositories/postgres"
	"github.com/medinote/backend/internal/services"
	"github.com/medinote/backend/internal/storage"
)

func main() {
	_ = godotenv.Load()

	log := logger.New()
	ctx := context.Background()

	// Postgres (clinic sessions + transcriptions)
	if err := config.InitPostgres(); err != nil {
		log.WithError(err).Fatal("postgres init failed")
	}
	if err := config.PostgresDB.AutoMigrate(
		&models.ClinicSession{},
		&models.Transcription{},
		&models.TranscriptSegment{},
	); err != nil {
		log.WithError(err).Fatal("postgres migration failed")
	}
	log.Info("postgres connected")

	// Mongo (realtime chunk audit trail)
	if err := config.InitMongo(); err != nil {
		log.WithError(err).Fatal("mongo init failed")
	}
	if err := config.EnsureMongoIndexes(); err != nil {
		log.WithError(err).Fatal("mongo index setup failed")
	}
	log.Info("mongo connected")

	// Redis (ownership cache + hub bridge)
	if err := config.InitRedis(); err != nil {
		log.WithError(err).Fatal("redis init failed")
	}
	log.Info("redis connected")

	// Speech engine
	var engine stt.Provider
	switch strings.ToLower(os.Getenv("STT_PROVIDER")) {
	case "mock":
		engine = stt.NewMock()
		log.Warn("using mock speech engine")
	default:
		g, err := stt.NewGoogleSpeech(ctx)
		if err != nil {
			log.WithError(err).Fatal("google speech init failed")
		}
		defer g.Close()
		engine = g
	}

	// Audio archive (optional)
	var archive storage.Uploader
	if bucket := os.Getenv("GCS_BUCKET"); bucket != "" {
		a, err := storage.NewGCSArchive(ctx, bucket)
		if err != nil {
			log.WithError(err).Fatal("gcs init failed")
		}
		defer a.Close()
		archive = a
	}

	// Repositories + services
	sessionRepo := pgrepo.NewClinicSessionRepo(config.PostgresDB)
	transcriptRepo := pgrepo.NewTranscriptionRepo(config.PostgresDB)
	chunkRepo := mongorepo.NewChunkRepo(config.MongoDatabase(), 24*time.Hour)

	rcache := cache.NewRedisCache(config.RedisClient)
	sessionSvc := services.NewClinicSessionService(sessionRepo, rcache)

	hub := realtime.NewHub(config.RedisClient, log)
	go hub.RunBridge(ctx)

	transcriptSvc := services.NewTranscriptionService(sessionSvc, transcriptRepo, archive, hub, log)

	coord := &realtime.Coordinator{
		Registry:    realtime.NewRegistry(),
		Engine:      engine,
		Sessions:    sessionSvc,
		Transcripts: transcriptSvc,
		Chunks:      chunkRepo,
		Groups:      hub,
		Logger:      log,
		Language:    os.Getenv("STT_LANGUAGE"),
	}

	// HTTP
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))

	routes.RegisterRoutes(r, routes.Deps{
		Session:       handlers.NewSessionHandler(sessionSvc),
		Transcription: handlers.NewTranscriptionHandler(transcriptSvc, chunkRepo),
		WS:            handlers.NewWSHandler(hub, coord, log),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := r.Run(":" + port); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}
