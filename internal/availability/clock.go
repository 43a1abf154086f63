package availability

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// MinutesPerDay is the value of the "24:00" clock.
const MinutesPerDay = 24 * 60

// Clock is a time of day in minutes since midnight. There is no timezone.
type Clock int

// ParseClock parses a zero-padded 24-hour "HH:MM" string. "24:00" is
// accepted as the end of the day; anything else that is not a valid
// time of day is rejected.
func ParseClock(s string) (Clock, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("availability: invalid time %q, want HH:MM", s)
	}
	if !isDigits(s[:2]) || !isDigits(s[3:]) {
		return 0, fmt.Errorf("availability: invalid time %q, want HH:MM", s)
	}

	hours, _ := strconv.Atoi(s[:2])
	minutes, _ := strconv.Atoi(s[3:])
	if hours > 24 || minutes > 59 || (hours == 24 && minutes != 0) {
		return 0, fmt.Errorf("availability: time %q out of range", s)
	}
	return Clock(hours*60 + minutes), nil
}

// MustParseClock is ParseClock for literals; it panics on bad input.
func MustParseClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// String formats the clock as "HH:MM".
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// MarshalText implements encoding.TextMarshaler.
func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, so malformed times
// are rejected while decoding instead of reaching the overlap maths.
func (c *Clock) UnmarshalText(text []byte) error {
	parsed, err := ParseClock(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// UnmarshalJSON rejects non-string JSON values before text decoding.
func (c *Clock) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("availability: time must be a string: %w", err)
	}
	return c.UnmarshalText([]byte(s))
}
