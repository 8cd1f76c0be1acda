package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/reliefgrid/reliefgrid/internal/alerting"
	"github.com/reliefgrid/reliefgrid/internal/anomaly"
	"github.com/reliefgrid/reliefgrid/internal/api"
	"github.com/reliefgrid/reliefgrid/internal/chatbot"
	"github.com/reliefgrid/reliefgrid/internal/config"
	"github.com/reliefgrid/reliefgrid/internal/ingest"
	"github.com/reliefgrid/reliefgrid/internal/logging"
	"github.com/reliefgrid/reliefgrid/internal/predict"
	"github.com/reliefgrid/reliefgrid/internal/sitrep"
	"github.com/reliefgrid/reliefgrid/internal/store"
	"github.com/reliefgrid/reliefgrid/internal/stream"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	st, err := store.NewSQLiteStore(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broadcaster := stream.NewBroadcaster()
	predictor := predict.NewService()
	dispatcher := alerting.NewDispatcher(st, cfg.Alerts)

	mock := ingest.NewMockGenerator(cfg.Ingestion.MockSeed)
	orchestrator := ingest.NewOrchestrator(st, predictor, dispatcher, broadcaster,
		cfg.Ingestion.MaxEventsPerPoll,
		ingest.NewUSGSAdapter(cfg.Ingestion, mock),
		ingest.NewGDACSAdapter(cfg.Ingestion, mock),
		ingest.NewFIRMSAdapter(cfg.Ingestion, mock),
		ingest.NewWeatherAdapter(cfg.Ingestion, st, mock),
		ingest.NewSocialAdapter(cfg.Ingestion, mock),
	)
	if cfg.Ingestion.Enabled {
		orchestrator.Start(ctx)
	}

	detector := anomaly.NewDetector(st, cfg.Anomaly)
	go detector.Run(ctx)

	evaluator := predict.NewEvaluator(st, predictor, cfg.Retrain)
	go evaluator.Run(ctx)

	reports := sitrep.NewGenerator(st)
	scheduler, err := sitrep.NewScheduler(reports, cfg.Sitrep.CronHourUTC)
	if err != nil {
		logging.Fatalf("Failed to schedule situation reports: %v", err)
	}
	scheduler.Start()

	bot := chatbot.NewEngine(chatbot.NewMemorySessionStore())

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(20)) // 20 req/s global limit

	handler := api.NewHandler(st, orchestrator, broadcaster, bot, reports)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	orchestrator.Stop()
	scheduler.Stop()
	broadcaster.Close() // Close all streams gracefully

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
