package model

import (
	"fmt"
	"time"
)

// DateLayout is the wire format of calendar days.
const DateLayout = "2006-01-02"

// TimeOfDay is a wall-clock time expressed in minutes since midnight.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

// MustTimeOfDay is ParseTimeOfDay for constants.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// OfTime extracts the wall-clock time of t in t's location.
func OfTime(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// On places t on the calendar day of date, in date's location.
func (t TimeOfDay) On(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, int(t)/60, int(t)%60, 0, 0, date.Location())
}

func (t TimeOfDay) Add(d time.Duration) TimeOfDay {
	return t + TimeOfDay(d/time.Minute)
}

// WorkingHours bounds the candidate slots of a day.
type WorkingHours struct {
	Start       TimeOfDay
	End         TimeOfDay
	Granularity time.Duration
}

// DefaultWorkingHours is 08:00-17:00 in 30 minute steps.
func DefaultWorkingHours() WorkingHours {
	return WorkingHours{
		Start:       MustTimeOfDay("08:00"),
		End:         MustTimeOfDay("17:00"),
		Granularity: 30 * time.Minute,
	}
}

func (w WorkingHours) Validate() error {
	if w.Granularity < time.Minute {
		return fmt.Errorf("slot granularity must be at least one minute, got %s", w.Granularity)
	}
	if w.Granularity%time.Minute != 0 {
		return fmt.Errorf("slot granularity must be a whole number of minutes, got %s", w.Granularity)
	}
	if w.Start < 0 || w.End > 24*60 {
		return fmt.Errorf("working hours %s-%s out of range", w.Start, w.End)
	}
	if w.Start >= w.End {
		return fmt.Errorf("working hours start %s must be before end %s", w.Start, w.End)
	}
	if span := time.Duration(w.End-w.Start) * time.Minute; span%w.Granularity != 0 {
		return fmt.Errorf("slot granularity %s does not divide working hours %s-%s", w.Granularity, w.Start, w.End)
	}
	return nil
}

// TimeSlot is a derived (time-of-day, availability) pair; never persisted.
type TimeSlot struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

// Availability is the resolved slot grid of one doctor on one day.
// Provisional is set when existing bookings could not be read and the
// unfiltered grid was returned instead.
type Availability struct {
	DoctorID    int64      `json:"doctor_id"`
	Date        string     `json:"date"`
	Slots       []TimeSlot `json:"slots"`
	Provisional bool       `json:"provisional"`
}

// Available returns the offerable times in ascending order.
func (a *Availability) Available() []string {
	out := make([]string, 0, len(a.Slots))
	for _, s := range a.Slots {
		if s.Available {
			out = append(out, s.Time)
		}
	}
	return out
}

// IsAvailable reports whether hhmm is offerable.
func (a *Availability) IsAvailable(hhmm string) bool {
	for _, s := range a.Slots {
		if s.Time == hhmm {
			return s.Available
		}
	}
	return false
}
