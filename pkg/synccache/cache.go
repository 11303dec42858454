// Package synccache mirrors the appointments one session has fetched. Writes
// are applied locally first, then reconciled with the server's answer or
// rolled back to the last confirmed snapshot. The mirror is never a source
// of truth; Load rebuilds it from scratch.
package synccache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/pkg/errors"
)

// Remote is the authoritative side, already authenticated as the session's actor.
type Remote interface {
	ListForActor(ctx context.Context) ([]*model.Appointment, error)
	Book(ctx context.Context, req model.CreateAppointmentRequest) (*model.Appointment, error)
	Transition(ctx context.Context, id int64, status model.AppointmentStatus) (*model.Appointment, error)
}

type entry struct {
	current *model.Appointment
	// confirmed is the last server snapshot; nil for a local-only booking.
	confirmed *model.Appointment
	pending   bool
}

type Cache struct {
	mu      sync.Mutex
	remote  Remote
	owner   model.Actor
	loc     *time.Location
	loaded  bool
	entries map[int64]*entry
	// Local bookings use negative ids until the server assigns one.
	nextTemp int64
}

// New creates an empty mirror. loc is the clinic's zone, used to place
// provisional bookings; nil means UTC.
func New(owner model.Actor, remote Remote, loc *time.Location) *Cache {
	if loc == nil {
		loc = time.UTC
	}
	return &Cache{
		remote:  remote,
		owner:   owner,
		loc:     loc,
		entries: make(map[int64]*entry),
	}
}

func (c *Cache) Owner() model.Actor { return c.owner }

// Load replaces the whole mirror with the server's list. On error the
// previous contents are kept.
func (c *Cache) Load(ctx context.Context) error {
	list, err := c.remote.ListForActor(ctx)
	if err != nil {
		return err
	}

	entries := make(map[int64]*entry, len(list))
	for _, a := range list {
		entries[a.ID] = &entry{current: a.Clone(), confirmed: a.Clone()}
	}

	c.mu.Lock()
	c.entries = entries
	c.loaded = true
	c.mu.Unlock()
	return nil
}

func (c *Cache) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// ApplyOptimistic patches the mirrored copy of id ahead of the server.
func (c *Cache) ApplyOptimistic(id int64, patch model.AppointmentUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return errors.NotFound("cached appointment", nil)
	}
	next := e.current.Clone()
	patch.Apply(next)
	e.current = next
	e.pending = true
	return nil
}

// Reconcile records the server's view of id as both current and confirmed.
func (c *Cache) Reconcile(id int64, server *model.Appointment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id != server.ID {
		delete(c.entries, id)
	}
	c.entries[server.ID] = &entry{current: server.Clone(), confirmed: server.Clone()}
}

// Rollback restores id to its last confirmed snapshot. A local-only
// booking is dropped.
func (c *Cache) Rollback(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return
	}
	if e.confirmed == nil {
		delete(c.entries, id)
		return
	}
	e.current = e.confirmed.Clone()
	e.pending = false
}

// Book adds a provisional scheduled appointment, asks the server to book
// it and reconciles. On failure the provisional entry is removed and the
// server's error returned.
func (c *Cache) Book(ctx context.Context, req model.CreateAppointmentRequest) (*model.Appointment, error) {
	tempID, ok := c.addProvisional(req)

	created, err := c.remote.Book(ctx, req)
	if err != nil {
		if ok {
			c.Rollback(tempID)
		}
		return nil, err
	}
	if ok {
		c.Reconcile(tempID, created)
	} else {
		c.Reconcile(created.ID, created)
	}
	return created.Clone(), nil
}

// addProvisional mirrors req before the server answers. Requests whose
// date or time do not parse go straight to the server for rejection.
func (c *Cache) addProvisional(req model.CreateAppointmentRequest) (int64, bool) {
	at, err := time.ParseInLocation(model.DateLayout+" 15:04", req.Date+" "+req.Time, c.loc)
	if err != nil {
		return 0, false
	}
	patientID := req.PatientID
	if patientID == 0 && c.owner.Role == model.RolePatient {
		patientID = c.owner.UserID
	}
	duration := req.DurationMinutes
	if duration <= 0 {
		duration = model.DefaultDurationMinutes
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextTemp--
	c.entries[c.nextTemp] = &entry{
		current: &model.Appointment{
			ID:              c.nextTemp,
			PatientID:       patientID,
			DoctorID:        req.DoctorID,
			ScheduledAt:     at,
			DurationMinutes: duration,
			Status:          model.AppointmentStatusScheduled,
		},
		pending: true,
	}
	return c.nextTemp, true
}

// Transition moves id to status locally, then on the server. A booking the
// server has not confirmed yet has no id to send, so it is reported as not
// found and left untouched.
func (c *Cache) Transition(ctx context.Context, id int64, status model.AppointmentStatus) (*model.Appointment, error) {
	if !c.confirmed(id) {
		return nil, errors.NotFound("cached appointment", nil)
	}
	if err := c.ApplyOptimistic(id, model.AppointmentUpdate{Status: &status}); err != nil {
		return nil, err
	}

	updated, err := c.remote.Transition(ctx, id, status)
	if err != nil {
		c.Rollback(id)
		return nil, err
	}
	c.Reconcile(id, updated)
	return updated.Clone(), nil
}

func (c *Cache) confirmed(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	return ok && e.confirmed != nil
}

// Get returns a copy of the mirrored appointment.
func (c *Cache) Get(id int64) (*model.Appointment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	return e.current.Clone(), true
}

// Pending reports whether id carries an unconfirmed local change.
func (c *Cache) Pending(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	return ok && e.pending
}

// Snapshot lists the mirror ordered by scheduled time, then id.
func (c *Cache) Snapshot() []*model.Appointment {
	c.mu.Lock()
	out := make([]*model.Appointment, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.current.Clone())
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
