package availability

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/pkg/circuitbreaker"
	"github.com/jwalitptl/appointment-engine/pkg/errors"
	"github.com/jwalitptl/appointment-engine/pkg/logger"
	"github.com/jwalitptl/appointment-engine/pkg/metrics"
)

// Source is the read side of the appointment store the resolver needs.
type Source interface {
	ListActiveByDoctorBetween(ctx context.Context, doctorID int64, from, to time.Time) ([]*model.Appointment, error)
}

type Config struct {
	Hours    model.WorkingHours
	Location *time.Location
	// Timeout bounds a single read of the day's appointments. Zero disables it.
	Timeout time.Duration
	Breaker circuitbreaker.Settings
}

type Resolver struct {
	source  Source
	hours   model.WorkingHours
	loc     *time.Location
	timeout time.Duration
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewResolver(source Source, cfg Config, log *logger.Logger, m *metrics.Metrics) *Resolver {
	if cfg.Hours == (model.WorkingHours{}) {
		cfg.Hours = model.DefaultWorkingHours()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = "appointment-source"
	}
	if cfg.Breaker.IsFailure == nil {
		cfg.Breaker.IsFailure = IsUnavailable
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Resolver{
		source:  source,
		hours:   cfg.Hours,
		loc:     cfg.Location,
		timeout: cfg.Timeout,
		breaker: circuitbreaker.NewCircuitBreaker(cfg.Breaker),
		log:     log,
		metrics: m,
	}
}

func (r *Resolver) Hours() model.WorkingHours { return r.hours }

func (r *Resolver) Location() *time.Location { return r.loc }

// ParseDate reads a YYYY-MM-DD day in the resolver's location.
func (r *Resolver) ParseDate(date string) (time.Time, error) {
	day, err := time.ParseInLocation(model.DateLayout, date, r.loc)
	if err != nil {
		return time.Time{}, errors.BadRequest(fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", date), err)
	}
	return day, nil
}

// ResolveSlots returns the slot grid of doctorID on date. When the
// appointment source cannot answer, the whole candidate grid is returned
// with Provisional set; the booking path re-checks against the store.
func (r *Resolver) ResolveSlots(ctx context.Context, doctorID int64, date string) (*model.Availability, error) {
	start := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.SlotResolveLatency.Observe(time.Since(start).Seconds())
		}
	}()

	day, err := r.ParseDate(date)
	if err != nil {
		return nil, err
	}

	existing, err := r.read(ctx, doctorID, day)
	if err != nil {
		if !IsUnavailable(err) || ctx.Err() == context.Canceled {
			return nil, err
		}
		r.log.Warn("appointment source unavailable, serving unfiltered slots",
			"doctor_id", doctorID, "date", date, "error", err.Error(), "breaker", r.breaker.State())
		r.count("fallback")
		if r.metrics != nil {
			r.metrics.SlotFallbacks.Inc()
		}
		return &model.Availability{
			DoctorID:    doctorID,
			Date:        date,
			Slots:       Unfiltered(r.hours),
			Provisional: true,
		}, nil
	}

	r.count("store")
	return &model.Availability{
		DoctorID: doctorID,
		Date:     date,
		Slots:    Resolve(day, r.hours, existing),
	}, nil
}

func (r *Resolver) read(ctx context.Context, doctorID int64, day time.Time) ([]*model.Appointment, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	from := r.hours.Start.On(day)
	to := r.hours.End.On(day).Add(r.hours.Granularity)

	var existing []*model.Appointment
	err := r.breaker.Execute(func() error {
		var err error
		existing, err = r.source.ListActiveByDoctorBetween(ctx, doctorID, from, to)
		return err
	})
	return existing, err
}

func (r *Resolver) count(source string) {
	if r.metrics != nil {
		r.metrics.SlotResolutions.WithLabelValues(source).Inc()
	}
}

// IsUnavailable reports whether err means the appointment source could not
// answer in time, as opposed to a request problem.
func IsUnavailable(err error) bool {
	return errors.Is(err, errors.UnavailableError) ||
		stderrors.Is(err, circuitbreaker.ErrOpen) ||
		stderrors.Is(err, context.DeadlineExceeded)
}
