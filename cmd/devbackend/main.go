package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/AnshRaj112/eyeglaze/internal/config"
	"github.com/AnshRaj112/eyeglaze/internal/database"
	"github.com/AnshRaj112/eyeglaze/internal/devbackend"
	"github.com/AnshRaj112/eyeglaze/internal/middleware"
	"github.com/AnshRaj112/eyeglaze/pkg/logger"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if envErr != nil {
		log.Info("no .env file found, using process environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := database.ConnectPostgres(ctx, cfg.PostgresURI, log)
	if err != nil {
		log.Fatal("failed to connect to postgresql", zap.Error(err))
	}
	defer pg.Close()
	users := devbackend.NewPostgresUsers(pg)
	if err := users.EnsureSchema(ctx); err != nil {
		log.Fatal("failed to ensure users schema", zap.Error(err))
	}

	mongo, err := database.ConnectMongo(ctx, cfg.MongoURI, log)
	if err != nil {
		log.Fatal("failed to connect to mongodb", zap.Error(err))
	}
	defer mongo.Disconnect()
	if err := devbackend.EnsureAnalysisIndexes(ctx, mongo.DB); err != nil {
		log.Warn("failed to ensure analysis indexes", zap.Error(err))
	}
	analyses := devbackend.NewMongoAnalyses(mongo.DB.Collection(devbackend.AnalysesCollection))

	var images devbackend.ImageHost
	if cfg.CloudinaryConfigured() {
		host, err := devbackend.NewCloudinaryHost(cfg.CloudinaryName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		if err != nil {
			log.Fatal("failed to configure cloudinary", zap.Error(err))
		}
		images = host
		log.Info("storing images on cloudinary", zap.String("folder", cfg.CloudinaryFolder))
	} else {
		images = devbackend.NewMemoryHost("http://localhost:" + cfg.DevBackendPort)
		log.Info("cloudinary not configured; serving images from memory")
	}

	server := devbackend.NewServer(users, analyses, images, cfg.AllowedOrigins, log)
	srv := &http.Server{
		Addr:              ":" + cfg.DevBackendPort,
		Handler:           middleware.RequestLogger(log)(server.Routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("eyeglaze dev backend running", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	log.Info("server exited")
}
