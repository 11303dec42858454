package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/internal/repository"
	"github.com/jwalitptl/appointment-engine/internal/repository/memory"
	"github.com/jwalitptl/appointment-engine/pkg/errors"
	"github.com/jwalitptl/appointment-engine/pkg/metrics"
)

var allRoles = []model.Role{model.RolePatient, model.RoleDoctor, model.RoleScheduler, model.RoleAdmin}

func TestCheckMatchesTransitionTable(t *testing.T) {
	expected := map[[2]model.AppointmentStatus][]model.Role{
		{model.AppointmentStatusScheduled, model.AppointmentStatusConfirmed}:  {model.RoleDoctor},
		{model.AppointmentStatusScheduled, model.AppointmentStatusCancelled}:  {model.RolePatient, model.RoleDoctor},
		{model.AppointmentStatusConfirmed, model.AppointmentStatusInProgress}: {model.RoleDoctor},
		{model.AppointmentStatusConfirmed, model.AppointmentStatusCancelled}:  {model.RolePatient, model.RoleDoctor},
		{model.AppointmentStatusInProgress, model.AppointmentStatusCompleted}: {model.RoleDoctor},
		{model.AppointmentStatusScheduled, model.AppointmentStatusNoShow}:     {model.RoleDoctor, model.RoleScheduler},
		{model.AppointmentStatusConfirmed, model.AppointmentStatusNoShow}:     {model.RoleDoctor, model.RoleScheduler},
	}

	for _, from := range model.AllStatuses {
		for _, to := range model.AllStatuses {
			if from == to {
				continue
			}
			for _, role := range allRoles {
				noop, err := Check(from, to, role)
				assert.False(t, noop)

				roles, isEdge := expected[[2]model.AppointmentStatus{from, to}]
				switch {
				case isEdge && hasRole(roles, role):
					assert.NoError(t, err, "%s -> %s by %s", from, to, role)
				case from.IsTerminal():
					assert.True(t, errors.Is(err, errors.TerminalStateError), "%s -> %s by %s", from, to, role)
				case !isEdge:
					assert.True(t, errors.Is(err, errors.InvalidTransitionError), "%s -> %s by %s", from, to, role)
				default:
					assert.True(t, errors.Is(err, errors.ForbiddenError), "%s -> %s by %s", from, to, role)
				}
			}
		}
	}
}

func TestCheckDuplicateIsNoop(t *testing.T) {
	noop, err := Check(model.AppointmentStatusCancelled, model.AppointmentStatusCancelled, model.RolePatient)
	assert.NoError(t, err)
	assert.True(t, noop)

	noop, err = Check(model.AppointmentStatusConfirmed, model.AppointmentStatusConfirmed, model.RoleDoctor)
	assert.NoError(t, err)
	assert.True(t, noop)

	// A role that could never reach the status gets no free pass
	_, err = Check(model.AppointmentStatusConfirmed, model.AppointmentStatusConfirmed, model.RolePatient)
	assert.True(t, errors.Is(err, errors.InvalidTransitionError))

	_, err = Check(model.AppointmentStatusCompleted, model.AppointmentStatusCompleted, model.RoleAdmin)
	assert.True(t, errors.Is(err, errors.TerminalStateError))
}

func TestCheckTerminalStatusesOnlyAcceptTheirOwnDuplicate(t *testing.T) {
	reachedBy := map[model.AppointmentStatus]model.Role{
		model.AppointmentStatusCompleted: model.RoleDoctor,
		model.AppointmentStatusCancelled: model.RolePatient,
		model.AppointmentStatusNoShow:    model.RoleScheduler,
	}

	for terminal, role := range reachedBy {
		noop, err := Check(terminal, terminal, role)
		require.NoError(t, err, "%s repeated by %s", terminal, role)
		assert.True(t, noop)

		for _, target := range model.AllStatuses {
			if target == terminal {
				continue
			}
			for _, r := range allRoles {
				noop, err := Check(terminal, target, r)
				assert.False(t, noop)
				assert.True(t, errors.Is(err, errors.TerminalStateError), "%s -> %s by %s", terminal, target, r)
			}
		}
	}
}

func TestCheckRejectsUnknownStatus(t *testing.T) {
	_, err := Check(model.AppointmentStatusScheduled, "archived", model.RoleDoctor)
	assert.Equal(t, errors.ErrBadRequest, errors.CodeOf(err))
}

func TestAllowedTargets(t *testing.T) {
	assert.Equal(t,
		[]model.AppointmentStatus{model.AppointmentStatusConfirmed, model.AppointmentStatusCancelled, model.AppointmentStatusNoShow},
		AllowedTargets(model.AppointmentStatusScheduled, model.RoleDoctor))
	assert.Equal(t,
		[]model.AppointmentStatus{model.AppointmentStatusCancelled},
		AllowedTargets(model.AppointmentStatusConfirmed, model.RolePatient))
	assert.Empty(t, AllowedTargets(model.AppointmentStatusScheduled, model.RoleAdmin))
	for _, role := range allRoles {
		assert.Empty(t, AllowedTargets(model.AppointmentStatusCompleted, role))
	}
}

func seed(t *testing.T, repo repository.AppointmentRepository) *model.Appointment {
	t.Helper()
	a, err := repo.Create(context.Background(), &model.Appointment{
		PatientID:       7,
		DoctorID:        3,
		ScheduledAt:     time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC),
		DurationMinutes: 30,
		Status:          model.AppointmentStatusScheduled,
	})
	require.NoError(t, err)
	return a
}

func TestTransitionHappyPath(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewAppointmentRepository()
	svc := NewService(repo, nil, metrics.NewTestMetrics(), 3)
	a := seed(t, repo)

	steps := []model.AppointmentStatus{
		model.AppointmentStatusConfirmed,
		model.AppointmentStatusInProgress,
		model.AppointmentStatusCompleted,
	}
	prev := model.AppointmentStatusScheduled
	for _, step := range steps {
		res, err := svc.Transition(ctx, a.ID, step, model.RoleDoctor)
		require.NoError(t, err)
		assert.True(t, res.Changed)
		assert.Equal(t, prev, res.Previous)
		assert.Equal(t, step, res.Appointment.Status)
		prev = step
	}

	// Completed is final
	_, err := svc.Transition(ctx, a.ID, model.AppointmentStatusCancelled, model.RoleDoctor)
	assert.True(t, errors.Is(err, errors.TerminalStateError))
}

func TestTransitionScheduledToInProgressIsInvalid(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewAppointmentRepository()
	svc := NewService(repo, nil, nil, 0)
	a := seed(t, repo)

	_, err := svc.Transition(ctx, a.ID, model.AppointmentStatusInProgress, model.RoleDoctor)
	assert.True(t, errors.Is(err, errors.InvalidTransitionError))

	got, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusScheduled, got.Status)
}

func TestTransitionDuplicateCancelIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewAppointmentRepository()
	svc := NewService(repo, nil, nil, 0)
	a := seed(t, repo)

	first, err := svc.Transition(ctx, a.ID, model.AppointmentStatusCancelled, model.RolePatient)
	require.NoError(t, err)
	assert.True(t, first.Changed)

	second, err := svc.Transition(ctx, a.ID, model.AppointmentStatusCancelled, model.RolePatient)
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.Equal(t, model.AppointmentStatusCancelled, second.Appointment.Status)
}

func TestTransitionForbiddenRole(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewAppointmentRepository()
	svc := NewService(repo, nil, nil, 0)
	a := seed(t, repo)

	_, err := svc.Transition(ctx, a.ID, model.AppointmentStatusConfirmed, model.RolePatient)
	assert.True(t, errors.Is(err, errors.ForbiddenError))

	_, err = svc.Transition(ctx, 404, model.AppointmentStatusConfirmed, model.RoleDoctor)
	assert.True(t, errors.Is(err, errors.NotFoundError))
}

// racingRepository changes the status behind the caller's back right
// before the first conditional write.
type racingRepository struct {
	repository.AppointmentRepository
	once   sync.Once
	sneaky model.AppointmentStatus
}

func (r *racingRepository) Update(ctx context.Context, id int64, update model.AppointmentUpdate) (*model.Appointment, error) {
	r.once.Do(func() {
		_, _ = r.AppointmentRepository.Update(ctx, id, model.AppointmentUpdate{Status: &r.sneaky})
	})
	return r.AppointmentRepository.Update(ctx, id, update)
}

func TestTransitionRevalidatesAfterConcurrentChange(t *testing.T) {
	ctx := context.Background()
	base := memory.NewAppointmentRepository()
	a := seed(t, base)

	// Patient cancels while the doctor confirms: the confirm must not win.
	repo := &racingRepository{AppointmentRepository: base, sneaky: model.AppointmentStatusCancelled}
	svc := NewService(repo, nil, nil, 3)

	_, err := svc.Transition(ctx, a.ID, model.AppointmentStatusConfirmed, model.RoleDoctor)
	assert.True(t, errors.Is(err, errors.TerminalStateError))

	got, err := base.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, got.Status)
}

func TestTransitionRetriesOnEquivalentConcurrentChange(t *testing.T) {
	ctx := context.Background()
	base := memory.NewAppointmentRepository()
	a := seed(t, base)

	// Another request confirmed first; cancelling is still legal from confirmed.
	repo := &racingRepository{AppointmentRepository: base, sneaky: model.AppointmentStatusConfirmed}
	svc := NewService(repo, nil, nil, 3)

	res, err := svc.Transition(ctx, a.ID, model.AppointmentStatusCancelled, model.RolePatient)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusConfirmed, res.Previous)
	assert.Equal(t, model.AppointmentStatusCancelled, res.Appointment.Status)
}

func TestUpdateFields(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewAppointmentRepository()
	svc := NewService(repo, nil, nil, 0)
	a := seed(t, repo)

	reason := "follow-up"
	updated, err := svc.UpdateFields(ctx, a.ID, model.AppointmentUpdate{Reason: &reason})
	require.NoError(t, err)
	require.NotNil(t, updated.Reason)
	assert.Equal(t, reason, *updated.Reason)
	assert.Equal(t, model.AppointmentStatusScheduled, updated.Status)

	_, err = svc.Transition(ctx, a.ID, model.AppointmentStatusCancelled, model.RoleDoctor)
	require.NoError(t, err)

	_, err = svc.UpdateFields(ctx, a.ID, model.AppointmentUpdate{Reason: &reason})
	assert.True(t, errors.Is(err, errors.TerminalStateError))
}
