package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/alertwise/go-emergency-alerts/internal/api"
	"github.com/alertwise/go-emergency-alerts/internal/approval"
	"github.com/alertwise/go-emergency-alerts/internal/clock"
	"github.com/alertwise/go-emergency-alerts/internal/config"
	"github.com/alertwise/go-emergency-alerts/internal/dashboard"
	"github.com/alertwise/go-emergency-alerts/internal/delivery"
	"github.com/alertwise/go-emergency-alerts/internal/expiry"
	"github.com/alertwise/go-emergency-alerts/internal/identity"
	"github.com/alertwise/go-emergency-alerts/internal/logging"
	"github.com/alertwise/go-emergency-alerts/internal/reaction"
	"github.com/alertwise/go-emergency-alerts/internal/repository"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.System()
	ids := identity.NewUUIDProvider()

	broadcaster := dashboard.NewBroadcaster()
	hub := dashboard.NewHub(broadcaster)
	hub.Start(ctx)

	coordinator := approval.NewCoordinator(db, broadcaster, clk, ids)
	dispatcher := reaction.NewDispatcher(db, db, broadcaster, clk, ids)

	reports := delivery.NewService(db, db, db, clk, ids, cfg.Worker.Count, cfg.Worker.BufferSize)
	reports.Start(ctx)

	var sweeper *expiry.Sweeper
	if cfg.Expiry.Enabled {
		sweeper = expiry.NewSweeper(coordinator, db, clk, cfg.Expiry.Interval, cfg.Expiry.BatchSize)
		sweeper.Start(ctx)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(cfg.Server.RateLimitRPS))

	handler := api.NewHandler(db, coordinator, dispatcher, reports, hub, cfg.Auth.Token)
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
	if sweeper != nil {
		sweeper.Stop()
	}
	reports.Stop()
	broadcaster.Close()
	hub.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
