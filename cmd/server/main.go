package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/AnshRaj112/eyeglaze/internal/config"
	"github.com/AnshRaj112/eyeglaze/internal/database"
	"github.com/AnshRaj112/eyeglaze/internal/handlers"
	"github.com/AnshRaj112/eyeglaze/internal/middleware"
	"github.com/AnshRaj112/eyeglaze/internal/routes"
	"github.com/AnshRaj112/eyeglaze/internal/services"
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

	// Redis holds the session and the upload bridge; the gateway cannot run without it.
	rdb, err := database.ConnectRedis(ctx, cfg.RedisURI, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	diagnostics := services.NewMongoDiagnostics(nil, log)
	if mongo, err := database.ConnectMongo(ctx, cfg.MongoURI, log); err != nil {
		log.Warn("mongodb unavailable; submission diagnostics will be logged only", zap.Error(err))
	} else {
		defer mongo.Disconnect()
		if err := services.EnsureDiagnosticsIndexes(ctx, mongo.DB); err != nil {
			log.Warn("failed to ensure diagnostics indexes", zap.Error(err))
		}
		diagnostics = services.NewMongoDiagnostics(mongo.DB.Collection(services.DiagnosticsCollection), log)
	}
	defer diagnostics.Wait()

	var journal services.RunJournal
	if pg, err := database.ConnectPostgres(ctx, cfg.PostgresURI, log); err != nil {
		log.Warn("postgresql unavailable; run history disabled", zap.Error(err))
	} else {
		defer pg.Close()
		pj := services.NewPostgresRunJournal(pg)
		if err := pj.EnsureSchema(ctx); err != nil {
			log.Warn("failed to ensure run journal schema; run history disabled", zap.Error(err))
		} else {
			journal = pj
		}
	}

	httpClient := &http.Client{Timeout: cfg.StepTimeout + 5*time.Second}
	store := services.NewSessionStore(rdb, cfg.SessionNamespace, cfg.UploadBridgeTTL, log)
	session := services.NewSession(ctx, store, log)
	identity := services.NewIdentityClient(cfg.StorageBackendURL, httpClient, session, log)
	hub := services.NewScanHub()

	orch := services.NewOrchestrator(services.OrchestratorDeps{
		Session:       session,
		Storage:       services.NewStorageClient(cfg.StorageBackendURL, httpClient),
		Classifier:    services.NewClassifierClient(cfg.ClassifierURL, httpClient),
		Bridge:        store,
		Publisher:     hub,
		Diagnostics:   diagnostics,
		Journal:       journal,
		Threshold:     services.Threshold(cfg.StressThreshold),
		StepTimeout:   cfg.StepTimeout,
		MaxImageBytes: cfg.MaxImageBytes,
		Log:           log,
	})

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	if cfg.IsProduction() {
		for _, mw := range middleware.ProductionSecurity(cfg.HostName()) {
			r.Use(mw)
		}
		log.Info("production security enabled")
	} else {
		r.Use(middleware.NewRedisRateLimit(rdb, cfg.SessionNamespace, log).Middleware)
	}

	routes.SetupRoutes(r, routes.Handlers{
		Session: handlers.NewSessionHandler(identity, session, log),
		Scan:    handlers.NewScanHandler(orch, session, journal, cfg.MaxImageBytes, log),
		Events:  handlers.NewScanEventsHandler(hub, orch, cfg.AllowedOrigins, log),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("eyeglaze gateway running",
			zap.String("addr", srv.Addr),
			zap.String("storage_backend", cfg.StorageBackendURL),
			zap.String("classifier", cfg.ClassifierURL),
			zap.Float64("stress_threshold", cfg.StressThreshold))
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
