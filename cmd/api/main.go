package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/appointment-engine/internal/app"
	"github.com/jwalitptl/appointment-engine/internal/config"
	"github.com/jwalitptl/appointment-engine/internal/repository/postgres"
	"github.com/jwalitptl/appointment-engine/pkg/logger"
	"github.com/jwalitptl/appointment-engine/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.Log.JSON,
	})
	log.Logger = appLogger.ZL

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize stores
	stores, err := app.OpenStores(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("failed to open appointment store")
	}
	defer stores.Close()

	if stores.DB != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		applied, err := postgres.Migrate(ctx, stores.DB)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to apply migrations")
		}
		log.Info().Strs("migrations", applied).Msg("schema up to date")
	}

	// Initialize services
	m := metrics.NewMetrics("appointment", "api", nil)
	svc, err := app.NewServices(cfg, stores, appLogger, m)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize services")
	}

	r := app.NewRouter(cfg, stores, svc, m, nil)

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("driver", cfg.Database.Driver).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
