// Package matching scores how compatible two users are and ranks a pool
// of candidates for a requester. It is pure: no I/O, no shared state.
package matching

import (
	"math"

	"github.com/meetmates/matcher/internal/availability"
	"github.com/meetmates/matcher/internal/geo"
)

// Score weights. They sum to 1 and are fixed policy, not per-call options.
const (
	InterestWeight     = 0.4
	DistanceWeight     = 0.3
	AvailabilityWeight = 0.3
)

// MatchResult summarises the compatibility of one candidate with the
// requester. Distance is in kilometers and is 0 when either user has no
// location.
type MatchResult struct {
	CandidateID         string     `json:"candidate_id"`
	Score               float64    `json:"score"`
	Distance            float64    `json:"distance"`
	SharedInterests     []Interest `json:"shared_interests"`
	AvailabilityOverlap float64    `json:"availability_overlap"`
}

// Percent returns the score as a whole percentage for display.
func (r MatchResult) Percent() int {
	return int(math.Round(r.Score * 100))
}

func interestSet(interests []Interest) map[Interest]struct{} {
	set := make(map[Interest]struct{}, len(interests))
	for _, in := range interests {
		set[in] = struct{}{}
	}
	return set
}

// InterestSimilarity returns the Jaccard index of the two interest sets.
// Two empty sets are identical (1); one empty set shares nothing (0).
// Duplicate tags are counted once.
func InterestSimilarity(a, b []Interest) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	setA, setB := interestSet(a), interestSet(b)
	intersection := 0
	for in := range setA {
		if _, ok := setB[in]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// SharedInterests returns the tags of a that also appear in b, in a's
// order, without duplicates.
func SharedInterests(a, b []Interest) []Interest {
	setB := interestSet(b)
	seen := make(map[Interest]struct{}, len(a))
	shared := make([]Interest, 0, min(len(a), len(b)))
	for _, in := range a {
		if _, ok := setB[in]; !ok {
			continue
		}
		if _, dup := seen[in]; dup {
			continue
		}
		seen[in] = struct{}{}
		shared = append(shared, in)
	}
	return shared
}

// DistanceScore decays linearly from 1 at distance 0 to 0 at maxRadius.
// Negative distances score 1; anything at or beyond maxRadius scores 0.
func DistanceScore(distance, maxRadius float64) float64 {
	if distance <= 0 {
		return 1
	}
	if distance >= maxRadius {
		return 0
	}
	return 1 - distance/maxRadius
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(1, math.Max(0, v))
}

// Score computes the compatibility of candidate with requester:
//
//	0.4 * Jaccard(interests)
//	+ 0.3 * DistanceScore(distance, min(radii))
//	+ 0.3 * availability.Overlap
//
// The smaller of the two radii applies, since both people have to be
// willing to travel. Without both locations the distance term is 0.
// The result is clamped to [0, 1].
func Score(requester, candidate Profile) MatchResult {
	similarity := InterestSimilarity(requester.Interests, candidate.Interests)

	var distance, distanceScore float64
	if requester.Location != nil && candidate.Location != nil {
		distance = geo.LocationDistance(*requester.Location, *candidate.Location)
		radius := min(requester.RadiusKm, candidate.RadiusKm)
		distanceScore = DistanceScore(distance, float64(radius))
	}

	overlap := availability.Overlap(requester.Availability, candidate.Availability)

	score := similarity*InterestWeight +
		distanceScore*DistanceWeight +
		overlap*AvailabilityWeight

	return MatchResult{
		CandidateID:         candidate.ID,
		Score:               clamp01(score),
		Distance:            distance,
		SharedInterests:     SharedInterests(requester.Interests, candidate.Interests),
		AvailabilityOverlap: overlap,
	}
}
