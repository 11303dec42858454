// Package app assembles the engine from configuration. Both binaries and
// the end-to-end router tests build through it.
package app

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/appointment-engine/internal/config"
	appointmentHandler "github.com/jwalitptl/appointment-engine/internal/handler/appointment"
	"github.com/jwalitptl/appointment-engine/internal/handler/health"
	promHandler "github.com/jwalitptl/appointment-engine/internal/handler/prometheus"
	"github.com/jwalitptl/appointment-engine/internal/middleware"
	"github.com/jwalitptl/appointment-engine/internal/repository"
	"github.com/jwalitptl/appointment-engine/internal/repository/memory"
	"github.com/jwalitptl/appointment-engine/internal/repository/postgres"
	"github.com/jwalitptl/appointment-engine/internal/router"
	"github.com/jwalitptl/appointment-engine/internal/service/appointment"
	"github.com/jwalitptl/appointment-engine/internal/service/availability"
	"github.com/jwalitptl/appointment-engine/internal/service/booking"
	"github.com/jwalitptl/appointment-engine/internal/service/event"
	"github.com/jwalitptl/appointment-engine/internal/service/lifecycle"
	"github.com/jwalitptl/appointment-engine/pkg/auth"
	"github.com/jwalitptl/appointment-engine/pkg/circuitbreaker"
	"github.com/jwalitptl/appointment-engine/pkg/logger"
	"github.com/jwalitptl/appointment-engine/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// Stores are the persistence backends. DB is nil for the memory driver.
type Stores struct {
	DB           *sqlx.DB
	Appointments repository.AppointmentRepository
	Outbox       repository.OutboxRepository
}

// OpenStores connects the configured driver.
func OpenStores(cfg config.DatabaseConfig) (*Stores, error) {
	switch cfg.Driver {
	case "memory":
		return MemoryStores(), nil
	case "postgres":
		db, err := postgres.NewDB(cfg)
		if err != nil {
			return nil, err
		}
		return &Stores{
			DB:           db,
			Appointments: postgres.NewAppointmentRepository(db),
			Outbox:       postgres.NewOutboxRepository(db),
		}, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func MemoryStores() *Stores {
	return &Stores{
		Appointments: memory.NewAppointmentRepository(),
		Outbox:       memory.NewOutboxRepository(),
	}
}

func (s *Stores) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Services holds the wired domain services.
type Services struct {
	Resolver     *availability.Resolver
	Lifecycle    *lifecycle.Service
	Booking      *booking.Orchestrator
	Events       *event.EventService
	Appointments *appointment.Service
}

func NewServices(cfg *config.Config, stores *Stores, log *logger.Logger, m *metrics.Metrics) (*Services, error) {
	hours, err := cfg.Scheduling.WorkingHours()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Scheduling.Location()
	if err != nil {
		return nil, err
	}

	resolver := availability.NewResolver(stores.Appointments, availability.Config{
		Hours:    hours,
		Location: loc,
		Timeout:  cfg.Scheduling.ResolveTimeout,
		Breaker: circuitbreaker.Settings{
			Name:        "appointment-store",
			MaxFailures: cfg.Scheduling.BreakerMaxFailures,
			Timeout:     cfg.Scheduling.BreakerTimeout,
		},
	}, log, m)

	lifecycleSvc := lifecycle.NewService(stores.Appointments, log, m, cfg.Scheduling.TransitionAttempts)
	orchestrator := booking.NewOrchestrator(stores.Appointments, resolver, cfg.Scheduling.DefaultDurationMinutes, log, m)
	events := event.NewEventService(stores.Outbox, log)

	return &Services{
		Resolver:     resolver,
		Lifecycle:    lifecycleSvc,
		Booking:      orchestrator,
		Events:       events,
		Appointments: appointment.NewService(stores.Appointments, lifecycleSvc, orchestrator, resolver, events, log),
	}, nil
}

// NewRouter mounts the API, health and metrics endpoints. gatherer serves
// /metrics; nil serves the default registry.
func NewRouter(cfg *config.Config, stores *Stores, svc *Services, m *metrics.Metrics, gatherer prometheus.Gatherer) *router.Router {
	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)

	cors := middleware.DefaultCORSConfig()
	if len(cfg.Security.AllowedOrigins) > 0 {
		cors.AllowOrigins = cfg.Security.AllowedOrigins
	}
	if len(cfg.Security.AllowedMethods) > 0 {
		cors.AllowMethods = cfg.Security.AllowedMethods
	}
	if len(cfg.Security.AllowedHeaders) > 0 {
		cors.AllowHeaders = cfg.Security.AllowedHeaders
	}

	var pinger health.Pinger
	if stores.DB != nil {
		pinger = stores.DB
	}

	r := router.NewRouter(
		middleware.NewAuthMiddleware(jwtSvc),
		appointmentHandler.NewHandler(svc.Appointments),
		m,
		router.RouterConfig{
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:        cfg.RateLimit.Burst,
			CORSConfig:       cors,
			RequestTimeout:   cfg.Server.RequestTimeout,
		},
		health.NewHandler(pinger),
		promHandler.New(gatherer),
	)
	r.Setup()
	return r
}
