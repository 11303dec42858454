// Package lifecycle owns the appointment status state machine: which edges
// exist, which roles may drive each edge, and how a transition is applied
// against the store without losing a concurrent change.
package lifecycle

import (
	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/pkg/errors"
)

type edge struct {
	from model.AppointmentStatus
	to   model.AppointmentStatus
}

// transitions maps every legal edge to the roles allowed to trigger it.
// Edges that are absent are invalid for everyone, admin included.
var transitions = map[edge][]model.Role{
	{model.AppointmentStatusScheduled, model.AppointmentStatusConfirmed}:  {model.RoleDoctor},
	{model.AppointmentStatusScheduled, model.AppointmentStatusCancelled}:  {model.RolePatient, model.RoleDoctor},
	{model.AppointmentStatusConfirmed, model.AppointmentStatusInProgress}: {model.RoleDoctor},
	{model.AppointmentStatusConfirmed, model.AppointmentStatusCancelled}:  {model.RolePatient, model.RoleDoctor},
	{model.AppointmentStatusInProgress, model.AppointmentStatusCompleted}: {model.RoleDoctor},
	{model.AppointmentStatusScheduled, model.AppointmentStatusNoShow}:     {model.RoleDoctor, model.RoleScheduler},
	{model.AppointmentStatusConfirmed, model.AppointmentStatusNoShow}:     {model.RoleDoctor, model.RoleScheduler},
}

// Allowed reports whether role may move an appointment from -> to.
func Allowed(from, to model.AppointmentStatus, role model.Role) bool {
	return hasRole(transitions[edge{from, to}], role)
}

// Reachable reports whether role may enter target through any edge.
func Reachable(target model.AppointmentStatus, role model.Role) bool {
	for e, roles := range transitions {
		if e.to == target && hasRole(roles, role) {
			return true
		}
	}
	return false
}

// Check validates a requested transition. A nil error with noop set means
// the appointment is already in target and the request is a harmless
// duplicate.
//
// Rules are evaluated in order: duplicate, terminal source, unknown edge,
// role not permitted. The duplicate rule is the only way past a terminal
// status: repeating the request that reached it (completed -> completed by
// a doctor) returns noop, while every other target fails with
// TerminalStateViolation.
func Check(current, target model.AppointmentStatus, role model.Role) (noop bool, err error) {
	if !target.IsValid() {
		return false, errors.BadRequest("unknown status "+string(target), nil)
	}
	if current == target && Reachable(target, role) {
		return true, nil
	}
	if current.IsTerminal() {
		return false, errors.TerminalState(string(current))
	}
	roles, ok := transitions[edge{current, target}]
	if !ok {
		return false, errors.InvalidTransition(string(current), string(target))
	}
	if !hasRole(roles, role) {
		return false, errors.Forbidden("role " + string(role) + " may not move an appointment from " +
			string(current) + " to " + string(target))
	}
	return false, nil
}

// AllowedTargets lists the statuses role may move an appointment in status
// to, in lifecycle order. Terminal statuses have none.
func AllowedTargets(status model.AppointmentStatus, role model.Role) []model.AppointmentStatus {
	targets := []model.AppointmentStatus{}
	for _, to := range model.AllStatuses {
		if Allowed(status, to, role) {
			targets = append(targets, to)
		}
	}
	return targets
}

func hasRole(roles []model.Role, role model.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
