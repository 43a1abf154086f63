package availability

// NeutralOverlap is returned when either schedule is unknown.
const NeutralOverlap = 0.5

// Overlap scores two weekly schedules in [0, 1]. Each of the seven days
// contributes equally:
//
//	both days empty      -> 1 (both free all day)
//	exactly one empty    -> 0 (an empty day has no slots, so nothing can overlap)
//	both have slots      -> DayOverlap(a[day], b[day]), capped at 1
//
// If either schedule is nil the result is NeutralOverlap.
func Overlap(a, b Weekly) float64 {
	if a == nil || b == nil {
		return NeutralOverlap
	}

	total := 0.0
	for _, day := range Days {
		slotsA, slotsB := a[day], b[day]
		switch {
		case len(slotsA) == 0 && len(slotsB) == 0:
			total += 1
		case len(slotsA) == 0 || len(slotsB) == 0:
			// contributes 0
		default:
			total += min(1, DayOverlap(slotsA, slotsB))
		}
	}
	return total / float64(len(Days))
}

// DayOverlap returns the minutes a's slots share with b's slots divided by
// the total minutes declared in a. The denominator only counts a, so
// DayOverlap(a, b) and DayOverlap(b, a) generally differ. Overlaps between
// b's own slots are not merged, so the ratio can exceed 1 when b repeats a
// window. Overlap caps each day at 1.
func DayOverlap(a, b []TimeRange) float64 {
	overlap := 0
	declared := 0
	for _, slotA := range a {
		for _, slotB := range b {
			overlap += slotA.overlapMinutes(slotB)
		}
		declared += slotA.Minutes()
	}
	if declared == 0 {
		return 0
	}
	return float64(overlap) / float64(declared)
}
