// Package profile provides PostgreSQL-backed storage for user profiles:
// interests, last known location, search radius and weekly availability.
// The matcher loads the pool from it at startup and writes updates through.
package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/meetmates/matcher/internal/availability"
	"github.com/meetmates/matcher/internal/geo"
	"github.com/meetmates/matcher/internal/matching"
)

// ErrNotFound is returned by Get when no profile has the given ID.
var ErrNotFound = errors.New("profile: not found")

// Store manages profiles in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a new profile store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func pingWithTimeout(db *sql.DB, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return db.PingContext(ctx)
}

const selectProfiles = `
	SELECT id, interests, latitude, longitude, location_accuracy, location_updated_at, radius_km
	FROM profiles`

// List returns every stored profile ordered by ID.
func (s *Store) List(ctx context.Context) ([]matching.Profile, error) {
	return s.query(ctx, selectProfiles+` ORDER BY id`)
}

// ListWithin returns the located profiles inside box, ordered by ID. The
// box is a coarse prefilter; callers refine with geo.WithinRadius. A box
// crossing the antimeridian is queried as two longitude ranges.
func (s *Store) ListWithin(ctx context.Context, box geo.BoundingBox) ([]matching.Profile, error) {
	ranges := box.LongitudeRanges()
	first, second := ranges[0], ranges[len(ranges)-1]
	return s.query(ctx, selectProfiles+`
		WHERE latitude BETWEEN $1 AND $2
		  AND (longitude BETWEEN $3 AND $4 OR longitude BETWEEN $5 AND $6)
		ORDER BY id`,
		box.South, box.North, first[0], first[1], second[0], second[1])
}

// Get returns the profile with the given ID, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*matching.Profile, error) {
	profiles, err := s.query(ctx, selectProfiles+` WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, ErrNotFound
	}
	return &profiles[0], nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]matching.Profile, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("profile: query: %w", err)
	}
	defer rows.Close()

	profiles := []matching.Profile{}
	for rows.Next() {
		var (
			p         matching.Profile
			interests []string
			lat, lon  sql.NullFloat64
			accuracy  sql.NullFloat64
			locatedAt sql.NullTime
		)
		if err := rows.Scan(&p.ID, pq.Array(&interests), &lat, &lon, &accuracy, &locatedAt, &p.RadiusKm); err != nil {
			return nil, fmt.Errorf("profile: scan: %w", err)
		}

		p.Interests = make([]matching.Interest, len(interests))
		for i, tag := range interests {
			p.Interests[i] = matching.Interest(tag)
		}

		if lat.Valid && lon.Valid {
			loc := geo.NewLocation(lat.Float64, lon.Float64, locatedAt.Time)
			if accuracy.Valid {
				loc.Accuracy = &accuracy.Float64
			}
			p.Location = &loc
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("profile: rows: %w", err)
	}

	if err := s.attachAvailability(ctx, profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

// attachAvailability loads the slot rows of every profile in one query.
// A profile without rows keeps a nil schedule.
func (s *Store) attachAvailability(ctx context.Context, profiles []matching.Profile) error {
	if len(profiles) == 0 {
		return nil
	}

	ids := make([]string, len(profiles))
	for i, p := range profiles {
		ids[i] = p.ID
	}

	const query = `
		SELECT profile_id, day_of_week, start_time, end_time
		FROM availability_slots
		WHERE profile_id = ANY($1)`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("profile: query availability: %w", err)
	}
	defer rows.Close()

	slots := make(map[string][]availability.Slot)
	for rows.Next() {
		var id string
		var slot availability.Slot
		if err := rows.Scan(&id, &slot.Day, &slot.Start, &slot.End); err != nil {
			return fmt.Errorf("profile: scan availability: %w", err)
		}
		slots[id] = append(slots[id], slot)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("profile: availability rows: %w", err)
	}

	for i := range profiles {
		weekly, err := availability.FromSlots(slots[profiles[i].ID])
		if err != nil {
			return fmt.Errorf("profile: %s: %w", profiles[i].ID, err)
		}
		profiles[i].Availability = weekly
	}
	return nil
}

// Save inserts or replaces a profile and its availability rows in one
// transaction. The profile is validated first.
func (s *Store) Save(ctx context.Context, p matching.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	interests := make([]string, len(p.Interests))
	for i, tag := range p.Interests {
		interests[i] = string(tag)
	}

	var lat, lon, accuracy sql.NullFloat64
	var locatedAt sql.NullTime
	if p.Location != nil {
		lat = sql.NullFloat64{Float64: p.Location.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: p.Location.Longitude, Valid: true}
		if p.Location.Accuracy != nil {
			accuracy = sql.NullFloat64{Float64: *p.Location.Accuracy, Valid: true}
		}
		if !p.Location.UpdatedAt.IsZero() {
			locatedAt = sql.NullTime{Time: p.Location.UpdatedAt, Valid: true}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("profile: begin: %w", err)
	}
	defer tx.Rollback()

	const upsert = `
		INSERT INTO profiles (id, interests, latitude, longitude, location_accuracy, location_updated_at, radius_km, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO UPDATE SET
			interests = EXCLUDED.interests,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			location_accuracy = EXCLUDED.location_accuracy,
			location_updated_at = EXCLUDED.location_updated_at,
			radius_km = EXCLUDED.radius_km,
			updated_at = NOW()`

	if _, err := tx.ExecContext(ctx, upsert,
		p.ID, pq.Array(interests), lat, lon, accuracy, locatedAt, p.RadiusKm,
	); err != nil {
		return fmt.Errorf("profile: upsert %s: %w", p.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM availability_slots WHERE profile_id = $1`, p.ID); err != nil {
		return fmt.Errorf("profile: clear availability %s: %w", p.ID, err)
	}
	for _, slot := range p.Availability.Slots() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO availability_slots (profile_id, day_of_week, start_time, end_time) VALUES ($1, $2, $3, $4)`,
			p.ID, slot.Day, slot.Start, slot.End,
		); err != nil {
			return fmt.Errorf("profile: insert availability %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("profile: commit %s: %w", p.ID, err)
	}
	return nil
}

// Delete removes a profile and, through the foreign key, its availability.
// Deleting an unknown ID is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, id); err != nil {
		return fmt.Errorf("profile: delete %s: %w", id, err)
	}
	return nil
}
