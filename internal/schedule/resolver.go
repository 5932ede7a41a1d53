package schedule

import (
	"fmt"
	"sort"
	"time"
)

// Resolve computes the ordered candidate slot start times for one doctor
// over the inclusive date range [from, to]. It is pure: windows and
// exceptions are the doctor's schedule, occupied holds the slot starts
// already claimed by live ledger entries.
//
// An exception for a date fully replaces recurring applicability for that
// date. A full-day unavailable exception yields zero slots; windowed
// exceptions yield exactly their stated windows, even on a weekday with
// no recurring window. Partial tail slots shorter than slotDur are
// dropped. Overlapping exceptions for one date are a configuration error.
//
// Windows are stored at minute granularity, so slotDur must be a positive
// whole number of minutes.
func Resolve(windows []RecurringWindow, exceptions []ScheduleException, occupied map[int64]struct{}, from, to time.Time, slotDur time.Duration) ([]time.Time, error) {
	if slotDur <= 0 {
		return nil, fmt.Errorf("%w: slot duration must be positive", ErrInvalidWindow)
	}
	if slotDur%time.Minute != 0 {
		return nil, fmt.Errorf("%w: slot duration must be a whole number of minutes", ErrInvalidWindow)
	}
	step := int(slotDur / time.Minute)

	byWeekday := make(map[time.Weekday][]RecurringWindow)
	for _, w := range windows {
		if w.Active {
			byWeekday[w.Weekday] = append(byWeekday[w.Weekday], w)
		}
	}

	byDate := make(map[int64][]ScheduleException)
	for _, e := range exceptions {
		key := DateOf(e.Date).Unix()
		byDate[key] = append(byDate[key], e)
	}

	var slots []time.Time

	for date := DateOf(from); !date.After(DateOf(to)); date = date.AddDate(0, 0, 1) {
		ranges, err := effectiveRanges(byWeekday[date.Weekday()], byDate[date.Unix()], date)
		if err != nil {
			return nil, err
		}

		for _, r := range ranges {
			for m := r.start; m+step <= r.end; m += step {
				start := date.Add(time.Duration(m) * time.Minute)
				if _, taken := occupied[start.Unix()]; taken {
					continue
				}
				slots = append(slots, start)
			}
		}
	}

	return slots, nil
}

// effectiveRanges picks the availability ranges for one date: the stated
// exception windows when any exception exists, the recurring windows
// otherwise. Ranges come back sorted by start minute.
func effectiveRanges(recurring []RecurringWindow, excs []ScheduleException, date time.Time) ([]minuteRange, error) {
	if len(excs) == 0 {
		ranges := make([]minuteRange, 0, len(recurring))
		for _, w := range recurring {
			ranges = append(ranges, minuteRange{start: w.StartMinute, end: w.EndMinute})
		}
		sortRanges(ranges)
		return ranges, nil
	}

	// Any full-day block wins outright.
	for _, e := range excs {
		if e.Unavailable && !e.HasTimes() {
			return nil, nil
		}
	}

	var timed []minuteRange
	var blocked []minuteRange
	for _, e := range excs {
		if !e.HasTimes() {
			continue
		}
		r := minuteRange{start: *e.StartMinute, end: *e.EndMinute}
		for _, prev := range timed {
			if r.overlaps(prev) {
				return nil, fmt.Errorf("%w: overlapping exceptions for %s", ErrScheduleConflict, date.Format("2006-01-02"))
			}
		}
		timed = append(timed, r)
		if e.Unavailable {
			blocked = append(blocked, r)
		}
	}

	var ranges []minuteRange
	for _, r := range timed {
		if !containsRange(blocked, r) {
			ranges = append(ranges, r)
		}
	}
	sortRanges(ranges)
	return ranges, nil
}

func containsRange(list []minuteRange, r minuteRange) bool {
	for _, b := range list {
		if b == r {
			return true
		}
	}
	return false
}

func sortRanges(ranges []minuteRange) {
	sort.Slice(ranges, func(i, j int) bool {
		return ranges[i].start < ranges[j].start
	})
}
