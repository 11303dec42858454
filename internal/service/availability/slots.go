// Package availability turns a doctor's working day and existing bookings
// into the grid of offerable start times.
package availability

import (
	"time"

	"github.com/jwalitptl/appointment-engine/internal/model"
)

// Candidates lists every slot start in [hours.Start, hours.End) stepping by
// the granularity. A trailing slot that would end after End is not offered.
func Candidates(hours model.WorkingHours) []model.TimeOfDay {
	if hours.Granularity < time.Minute || hours.Start >= hours.End {
		return []model.TimeOfDay{}
	}
	out := make([]model.TimeOfDay, 0, int(hours.End-hours.Start)/int(hours.Granularity/time.Minute))
	for t := hours.Start; t.Add(hours.Granularity) <= hours.End; t = t.Add(hours.Granularity) {
		out = append(out, t)
	}
	return out
}

// Resolve marks each candidate of date as available unless its
// [start, start+granularity) interval intersects an active appointment in
// existing. Appointments of other days or in cancelled/no_show status are
// ignored. date only contributes its calendar day and location.
func Resolve(date time.Time, hours model.WorkingHours, existing []*model.Appointment) []model.TimeSlot {
	candidates := Candidates(hours)
	slots := make([]model.TimeSlot, 0, len(candidates))
	for _, c := range candidates {
		start := c.On(date)
		end := start.Add(hours.Granularity)
		slots = append(slots, model.TimeSlot{
			Time:      c.String(),
			Available: !occupied(existing, start, end),
		})
	}
	return slots
}

// Unfiltered returns every candidate as available.
func Unfiltered(hours model.WorkingHours) []model.TimeSlot {
	candidates := Candidates(hours)
	slots := make([]model.TimeSlot, 0, len(candidates))
	for _, c := range candidates {
		slots = append(slots, model.TimeSlot{Time: c.String(), Available: true})
	}
	return slots
}

func occupied(existing []*model.Appointment, start, end time.Time) bool {
	for _, a := range existing {
		if a != nil && a.IsActive() && a.Overlaps(start, end) {
			return true
		}
	}
	return false
}
