package schedule

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrWindowNotFound    = errors.New("recurring window not found")
	ErrExceptionNotFound = errors.New("schedule exception not found")
	ErrInvalidWindow     = errors.New("window start must be before end")
	ErrScheduleConflict  = errors.New("schedule configuration conflict")
)

// RecurringWindow is a doctor's standing weekly availability. Times are
// minutes from midnight so a window is independent of any specific date.
// Windows are never deleted, only deactivated.
type RecurringWindow struct {
	ID          uuid.UUID
	DoctorID    uuid.UUID
	Weekday     time.Weekday
	StartMinute int
	EndMinute   int
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ScheduleException overrides recurring availability for one calendar
// date. With Unavailable set and no times the whole date is blocked; with
// times it replaces (or, on a bare weekday, adds) a window for that date.
type ScheduleException struct {
	ID          uuid.UUID
	DoctorID    uuid.UUID
	Date        time.Time // midnight UTC
	StartMinute *int
	EndMinute   *int
	Unavailable bool
	Reason      string
	CreatedAt   time.Time
}

func (w RecurringWindow) validate() error {
	if w.StartMinute < 0 || w.EndMinute > 24*60 {
		return ErrInvalidWindow
	}
	if w.StartMinute >= w.EndMinute {
		return ErrInvalidWindow
	}
	if w.Weekday < time.Sunday || w.Weekday > time.Saturday {
		return ErrInvalidWindow
	}
	return nil
}

// HasTimes reports whether the exception carries an explicit window.
func (e ScheduleException) HasTimes() bool {
	return e.StartMinute != nil && e.EndMinute != nil
}

func (e ScheduleException) validate() error {
	if (e.StartMinute == nil) != (e.EndMinute == nil) {
		return ErrInvalidWindow
	}
	if e.HasTimes() {
		if *e.StartMinute < 0 || *e.EndMinute > 24*60 || *e.StartMinute >= *e.EndMinute {
			return ErrInvalidWindow
		}
	} else if !e.Unavailable {
		// An exception with neither times nor the unavailable flag says nothing.
		return ErrInvalidWindow
	}
	return nil
}

// minuteRange is a half-open [start, end) range of minutes within a day.
type minuteRange struct {
	start int
	end   int
}

func (r minuteRange) overlaps(other minuteRange) bool {
	return r.start < other.end && other.start < r.end
}

// DateOf truncates t to midnight in its own location.
func DateOf(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
