package matching

import (
	"errors"
	"fmt"
	"strings"

	"github.com/meetmates/matcher/internal/availability"
	"github.com/meetmates/matcher/internal/geo"
)

// Interest is an opaque interest tag. Only equality matters to scoring.
type Interest string

// KnownInterests is the vocabulary offered to users at onboarding.
// Scoring accepts any tag; boundary layers may use IsKnownInterest.
var KnownInterests = []Interest{
	"sports", "coding", "religion", "food", "nature",
	"photography", "music", "art", "travel", "reading",
	"gaming", "fitness", "cooking", "dancing", "hiking",
	"yoga", "volunteering", "entrepreneurship", "education", "technology",
}

var knownInterestSet = func() map[Interest]struct{} {
	set := make(map[Interest]struct{}, len(KnownInterests))
	for _, in := range KnownInterests {
		set[in] = struct{}{}
	}
	return set
}()

// IsKnownInterest reports whether tag belongs to KnownInterests.
func IsKnownInterest(tag Interest) bool {
	_, ok := knownInterestSet[tag]
	return ok
}

const (
	// DefaultRadiusKm is applied by boundary layers when a user never set one.
	DefaultRadiusKm = 10
	// MaxRadiusKm is the largest radius a user may choose.
	MaxRadiusKm = 100
)

// Profile is everything the scorer needs to know about a user.
// Location and Availability are optional; a nil Availability means the
// user never declared a schedule.
type Profile struct {
	ID           string              `json:"id" yaml:"id"`
	Interests    []Interest          `json:"interests" yaml:"interests"`
	Location     *geo.Location       `json:"location,omitempty" yaml:"location,omitempty"`
	RadiusKm     int                 `json:"radius_km" yaml:"radius_km"`
	Availability availability.Weekly `json:"availability" yaml:"availability"`
}

// ErrInvalidProfile wraps every Validate failure.
var ErrInvalidProfile = errors.New("matching: invalid profile")

// Validate checks the caller-side contract: a non-empty ID, a positive
// radius no larger than MaxRadiusKm, an in-range location and a
// well-formed schedule. Score never calls it.
func (p Profile) Validate() error {
	var errs []error
	if strings.TrimSpace(p.ID) == "" {
		errs = append(errs, errors.New("id must not be empty"))
	}
	if p.RadiusKm < 1 || p.RadiusKm > MaxRadiusKm {
		errs = append(errs, fmt.Errorf("radius_km %d must be between 1 and %d", p.RadiusKm, MaxRadiusKm))
	}
	if p.Location != nil {
		if err := p.Location.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := p.Availability.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w %q: %w", ErrInvalidProfile, p.ID, errors.Join(errs...))
}
