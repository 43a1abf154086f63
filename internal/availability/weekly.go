// Package availability models weekly schedules and computes how much two
// schedules overlap. Times are minutes since midnight with no timezone.
package availability

import (
	"errors"
	"fmt"
	"sort"
)

// Weekday is a lowercase English day name.
type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

// Days lists the week in the order the overlap is accumulated.
var Days = [7]Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// Valid reports whether d is one of the seven day names.
func (d Weekday) Valid() bool {
	for _, day := range Days {
		if d == day {
			return true
		}
	}
	return false
}

// TimeRange is an open slot within one day.
type TimeRange struct {
	Start Clock `json:"start" yaml:"start"`
	End   Clock `json:"end" yaml:"end"`
}

// NewTimeRange parses two "HH:MM" strings into a range.
func NewTimeRange(start, end string) (TimeRange, error) {
	s, err := ParseClock(start)
	if err != nil {
		return TimeRange{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return TimeRange{}, err
	}
	return TimeRange{Start: s, End: e}, nil
}

// Minutes returns the slot length.
func (r TimeRange) Minutes() int {
	return int(r.End) - int(r.Start)
}

// overlapMinutes returns how many minutes r and o share, never negative.
func (r TimeRange) overlapMinutes(o TimeRange) int {
	start := max(r.Start, o.Start)
	end := min(r.End, o.End)
	if end <= start {
		return 0
	}
	return int(end - start)
}

// Weekly maps each day to its declared slots. A nil Weekly means the
// schedule is unknown; a missing or empty day means no slots that day.
type Weekly map[Weekday][]TimeRange

// ErrInvalidSchedule wraps every Validate failure.
var ErrInvalidSchedule = errors.New("availability: invalid schedule")

// Validate rejects unknown day names and slots that end before they start.
func (w Weekly) Validate() error {
	var errs []error
	for day, slots := range w {
		if !day.Valid() {
			errs = append(errs, fmt.Errorf("%w: unknown day %q", ErrInvalidSchedule, day))
			continue
		}
		for i, slot := range slots {
			if slot.End < slot.Start {
				errs = append(errs, fmt.Errorf("%w: %s slot %d ends (%s) before it starts (%s)",
					ErrInvalidSchedule, day, i, slot.End, slot.Start))
			}
		}
	}
	return errors.Join(errs...)
}

// Slot is one stored (day, start, end) row.
type Slot struct {
	Day   Weekday
	Start string
	End   string
}

// FromSlots groups flat rows into a Weekly, each day ordered by start.
// It returns nil when there are no rows at all, so a user who never
// declared availability is scored with the neutral default.
func FromSlots(rows []Slot) (Weekly, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	w := make(Weekly)
	for _, row := range rows {
		r, err := NewTimeRange(row.Start, row.End)
		if err != nil {
			return nil, fmt.Errorf("availability: %s slot: %w", row.Day, err)
		}
		w[row.Day] = append(w[row.Day], r)
	}
	for _, slots := range w {
		sort.SliceStable(slots, func(i, j int) bool {
			return slots[i].Start < slots[j].Start
		})
	}
	return w, nil
}

// HasSlots reports whether any day of w holds at least one range.
func (w Weekly) HasSlots() bool {
	for _, slots := range w {
		if len(slots) > 0 {
			return true
		}
	}
	return false
}

// Slots flattens w back into rows in day order.
func (w Weekly) Slots() []Slot {
	var rows []Slot
	for _, day := range Days {
		for _, r := range w[day] {
			rows = append(rows, Slot{Day: day, Start: r.Start.String(), End: r.End.String()})
		}
	}
	return rows
}
