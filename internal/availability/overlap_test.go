package availability

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func slot(start, end string) TimeRange {
	return TimeRange{Start: MustParseClock(start), End: MustParseClock(end)}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:30", 570, false},
		{"23:59", 1439, false},
		{"24:00", MinutesPerDay, false},
		{"24:01", 0, true},
		{"25:00", 0, true},
		{"12:60", 0, true},
		{"9:00", 0, true},
		{"09-00", 0, true},
		{"ab:cd", 0, true},
		{"", 0, true},
		{"+9:00", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseClock(%q) = %v, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseClock(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseClock(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestClock_String(t *testing.T) {
	if s := MustParseClock("07:05").String(); s != "07:05" {
		t.Errorf("String() = %q, want 07:05", s)
	}
	if s := Clock(MinutesPerDay).String(); s != "24:00" {
		t.Errorf("String() = %q, want 24:00", s)
	}
}

func TestOverlap_NilIsNeutral(t *testing.T) {
	full := Weekly{Monday: {slot("09:00", "17:00")}}

	if got := Overlap(nil, full); got != NeutralOverlap {
		t.Errorf("Overlap(nil, full) = %v, want %v", got, NeutralOverlap)
	}
	if got := Overlap(full, nil); got != NeutralOverlap {
		t.Errorf("Overlap(full, nil) = %v, want %v", got, NeutralOverlap)
	}
	if got := Overlap(nil, nil); got != NeutralOverlap {
		t.Errorf("Overlap(nil, nil) = %v, want %v", got, NeutralOverlap)
	}
}

func TestOverlap_MondayExample(t *testing.T) {
	a := Weekly{Monday: {slot("09:00", "17:00")}}
	b := Weekly{Monday: {slot("12:00", "14:00")}}

	got := Overlap(a, b)
	want := (0.25 + 6) / 7
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("Overlap = %v, want %v", got, want)
	}
	if math.Abs(got-0.8929) > 1e-4 {
		t.Errorf("Overlap = %v, want about 0.8929", got)
	}
}

func TestOverlap_EmptySchedules(t *testing.T) {
	if got := Overlap(Weekly{}, Weekly{}); got != 1 {
		t.Errorf("two empty schedules = %v, want 1", got)
	}

	// One side declares Monday, the other does not: Monday counts as 0.
	a := Weekly{Monday: {slot("09:00", "17:00")}}
	got := Overlap(a, Weekly{})
	if want := 6.0 / 7; math.Abs(got-want) > 1e-12 {
		t.Errorf("Overlap = %v, want %v", got, want)
	}

	// Empty slice and missing key mean the same thing.
	if Overlap(Weekly{Monday: {}}, Weekly{}) != 1 {
		t.Error("empty day list should behave like a missing day")
	}
}

func TestOverlap_FullWeekNoIntersection(t *testing.T) {
	a, b := Weekly{}, Weekly{}
	for _, day := range Days {
		a[day] = []TimeRange{slot("06:00", "08:00")}
		b[day] = []TimeRange{slot("18:00", "20:00")}
	}
	if got := Overlap(a, b); got != 0 {
		t.Errorf("disjoint week = %v, want 0", got)
	}
	if got := Overlap(a, a); got != 1 {
		t.Errorf("identical week = %v, want 1", got)
	}
}

func TestDayOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b []TimeRange
		want float64
	}{
		{"contained", []TimeRange{slot("09:00", "17:00")}, []TimeRange{slot("12:00", "14:00")}, 0.25},
		{"reverse contained", []TimeRange{slot("12:00", "14:00")}, []TimeRange{slot("09:00", "17:00")}, 1},
		{"touching", []TimeRange{slot("09:00", "12:00")}, []TimeRange{slot("12:00", "13:00")}, 0},
		{"partial", []TimeRange{slot("09:00", "11:00")}, []TimeRange{slot("10:00", "12:00")}, 0.5},
		{
			"several slots",
			[]TimeRange{slot("08:00", "10:00"), slot("18:00", "22:00")},
			[]TimeRange{slot("09:00", "19:00")},
			// (60 + 60) / (120 + 240)
			120.0 / 360,
		},
		{"zero length a", []TimeRange{slot("10:00", "10:00")}, []TimeRange{slot("09:00", "11:00")}, 0},
		{"until midnight", []TimeRange{slot("22:00", "24:00")}, []TimeRange{slot("23:00", "24:00")}, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DayOverlap(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("DayOverlap = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDayOverlap_IsAsymmetric(t *testing.T) {
	a := []TimeRange{slot("09:00", "17:00")}
	b := []TimeRange{slot("12:00", "14:00")}
	if DayOverlap(a, b) == DayOverlap(b, a) {
		t.Error("DayOverlap normalises by the first argument and should differ here")
	}
}

func TestOverlap_CapsRepeatedWindows(t *testing.T) {
	a := Weekly{Monday: {slot("10:00", "11:00")}}
	b := Weekly{Monday: {slot("10:00", "11:00"), slot("10:00", "11:00")}}

	if d := DayOverlap(a[Monday], b[Monday]); d != 2 {
		t.Fatalf("raw DayOverlap = %v, want 2", d)
	}
	if got := Overlap(a, b); got != 1 {
		t.Errorf("Overlap = %v, want 1", got)
	}
}

func TestWeekly_JSON(t *testing.T) {
	input := []byte(`{"monday":[{"start":"09:00","end":"17:00"}],"friday":[]}`)

	var w Weekly
	if err := json.Unmarshal(input, &w); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(w[Monday]) != 1 || w[Monday][0].Start != 540 || w[Monday][0].End != 1020 {
		t.Errorf("unexpected monday slots: %+v", w[Monday])
	}

	out, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back map[string][]map[string]string
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal generic: %v", err)
	}
	if back["monday"][0]["start"] != "09:00" {
		t.Errorf("expected HH:MM strings on the wire, got %s", out)
	}
}

func TestWeekly_JSONRejectsMalformedTime(t *testing.T) {
	for _, input := range []string{
		`{"monday":[{"start":"9am","end":"17:00"}]}`,
		`{"monday":[{"start":900,"end":"17:00"}]}`,
	} {
		var w Weekly
		if err := json.Unmarshal([]byte(input), &w); err == nil {
			t.Errorf("expected error decoding %s", input)
		}
	}
}

func TestWeekly_Validate(t *testing.T) {
	ok := Weekly{Monday: {slot("09:00", "17:00")}, Sunday: {}}
	if err := ok.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}

	bad := Weekly{"funday": {slot("09:00", "10:00")}, Monday: {slot("17:00", "09:00")}}
	err := bad.Validate()
	if !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("Validate() = %v, want ErrInvalidSchedule", err)
	}
}

func TestFromSlots(t *testing.T) {
	w, err := FromSlots(nil)
	if err != nil || w != nil {
		t.Fatalf("FromSlots(nil) = %v, %v; want nil, nil", w, err)
	}

	w, err = FromSlots([]Slot{
		{Day: Tuesday, Start: "18:00", End: "20:00"},
		{Day: Tuesday, Start: "08:00", End: "09:00"},
		{Day: Saturday, Start: "10:00", End: "14:00"},
	})
	if err != nil {
		t.Fatalf("FromSlots: %v", err)
	}
	if got := w[Tuesday][0].Start.String(); got != "08:00" {
		t.Errorf("tuesday slots not ordered by start: %+v", w[Tuesday])
	}

	rows := w.Slots()
	if len(rows) != 3 || rows[0].Day != Tuesday || rows[2].Day != Saturday {
		t.Errorf("Slots() = %+v", rows)
	}

	if _, err := FromSlots([]Slot{{Day: Monday, Start: "xx", End: "10:00"}}); err == nil {
		t.Error("expected error for malformed stored slot")
	}
}

func TestWeekly_HasSlots(t *testing.T) {
	nine, _ := NewTimeRange("09:00", "10:00")
	tests := []struct {
		name string
		w    Weekly
		want bool
	}{
		{"nil", nil, false},
		{"empty", Weekly{}, false},
		{"empty days", Weekly{Monday: {}, Friday: nil}, false},
		{"one slot", Weekly{Sunday: {nine}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.w.HasSlots(); got != tt.want {
				t.Errorf("HasSlots() = %v, want %v", got, tt.want)
			}
			if rows := tt.w.Slots(); (len(rows) > 0) != tt.want {
				t.Errorf("Slots() = %v, disagrees with HasSlots", rows)
			}
		})
	}
}
