package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/appointment-engine/internal/app"
	"github.com/jwalitptl/appointment-engine/internal/config"
	"github.com/jwalitptl/appointment-engine/internal/email"
	"github.com/jwalitptl/appointment-engine/internal/service/event"
	"github.com/jwalitptl/appointment-engine/internal/service/notification"
	"github.com/jwalitptl/appointment-engine/pkg/logger"
	"github.com/jwalitptl/appointment-engine/pkg/messaging/redis"
	"github.com/jwalitptl/appointment-engine/pkg/metrics"
	"github.com/jwalitptl/appointment-engine/pkg/worker"
)

const healthAddr = ":8081"

func setupHealthCheck(logger *logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: healthAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(err, "Health check server failed")
			os.Exit(1)
		}
	}()
	return srv
}

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Initialize logger
	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.Log.JSON,
	})
	log.Logger = appLogger.ZL

	if cfg.Database.Driver != "postgres" {
		appLogger.Fatal(nil, "The worker reads the outbox from postgres", "driver", cfg.Database.Driver)
	}

	stores, err := app.OpenStores(cfg.Database)
	if err != nil {
		appLogger.Fatal(err, "Failed to connect to database")
	}
	defer stores.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis broker
	broker, err := redis.NewRedisBroker(ctx, cfg.Redis.ToBrokerConfig(), appLogger.ZL)
	if err != nil {
		appLogger.Fatal(err, "Failed to create Redis broker")
	}
	defer broker.Close()

	m := metrics.NewMetrics("appointment", "worker", nil)
	processor := worker.NewOutboxProcessor(
		stores.Outbox,
		broker,
		cfg.Outbox.ToWorkerConfig(),
		appLogger.WithFields(map[string]interface{}{"component": "outbox"}),
		m,
	)
	cleaner := worker.NewOutboxCleanupWorker(
		event.NewEventService(stores.Outbox, appLogger),
		cfg.Outbox.Retention,
		time.Hour,
		appLogger.WithFields(map[string]interface{}{"component": "outbox-cleanup"}),
	)

	healthSrv := setupHealthCheck(appLogger)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Shutting down...")
		cancel()
	}()

	var wg sync.WaitGroup
	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	run(func() { processor.Start(ctx) })
	run(func() { cleaner.Start(ctx) })

	if cfg.Mail.Enabled {
		loc, _ := cfg.Scheduling.Location()
		notifier := notification.NewService(
			email.NewSMTPService(cfg.Mail),
			broker,
			notification.Config{
				PatientAddress: cfg.Mail.PatientAddress,
				DoctorAddress:  cfg.Mail.DoctorAddress,
				Location:       loc,
			},
			appLogger.WithFields(map[string]interface{}{"component": "notifier"}),
		)
		run(func() {
			if err := notifier.Run(ctx); err != nil && ctx.Err() == nil {
				appLogger.Error(err, "Notifier stopped")
			}
		})
	}

	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	_ = healthSrv.Shutdown(shutdownCtx)
	appLogger.Info("Worker exited")
}
