// Package pool keeps the candidate pool in Redis: every profile the
// matcher can rank, a GEO index of their locations and one set per
// interest tag for cheap pre-filtering.
package pool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meetmates/matcher/internal/geo"
	"github.com/meetmates/matcher/internal/matching"
)

const (
	// Redis key patterns for the candidate pool.
	keyMembers        = "pool:members"   // Sorted set, score = last upsert (ms)
	keyProfiles       = "pool:profiles"  // Hash, field = profile ID, value = JSON
	keyGeo            = "pool:geo"       // GEO set of located profiles
	keyInterestPrefix = "pool:interest:" // + <tag> -> Set of profile IDs

	// Redis refuses GEOADD outside the Web Mercator latitude range.
	geoMaxLatitude = 85.05112878
)

// ErrNotFound is returned by Get when the profile is not in the pool.
var ErrNotFound = errors.New("pool: profile not found")

// Pool manages the Redis data structures backing the candidate pool.
type Pool struct {
	rdb          *redis.Client
	now          func() time.Time
	upsertScript *redis.Script
	removeScript *redis.Script
}

// New creates a pool backed by Redis.
func New(rdb *redis.Client) *Pool {
	return &Pool{
		rdb:          rdb,
		now:          time.Now,
		upsertScript: redis.NewScript(upsertLua),
		removeScript: redis.NewScript(removeLua),
	}
}

// Upsert stores p and refreshes its index entries. Interest sets the
// previous version belonged to but p no longer does are cleaned up. The
// read of the previous version and the writes run as one script, so
// replicas upserting the same ID cannot leave stale interest entries.
func (p *Pool) Upsert(ctx context.Context, profile matching.Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("pool: marshal %s: %w", profile.ID, err)
	}

	indexed, lon, lat := "0", "0", "0"
	if loc := profile.Location; loc != nil && geoIndexable(loc.Coordinate) {
		indexed = "1"
		lon = strconv.FormatFloat(loc.Longitude, 'f', -1, 64)
		lat = strconv.FormatFloat(loc.Latitude, 'f', -1, 64)
	}

	args := make([]any, 0, 7+len(profile.Interests))
	args = append(args,
		profile.ID,
		data,
		p.now().UnixMilli(),
		indexed, lon, lat,
		keyInterestPrefix,
	)
	for _, tag := range profile.Interests {
		args = append(args, string(tag))
	}

	keys := []string{keyProfiles, keyMembers, keyGeo}
	if err := p.upsertScript.Run(ctx, p.rdb, keys, args...).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("pool: upsert %s: %w", profile.ID, err)
	}
	return nil
}

func geoIndexable(c geo.Coordinate) bool {
	return c.Validate() == nil && c.Latitude >= -geoMaxLatitude && c.Latitude <= geoMaxLatitude
}

// Remove deletes a profile and all of its index entries. Removing an
// unknown ID is not an error.
func (p *Pool) Remove(ctx context.Context, id string) error {
	keys := []string{keyProfiles, keyMembers, keyGeo}
	if err := p.removeScript.Run(ctx, p.rdb, keys, id, keyInterestPrefix).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("pool: remove %s: %w", id, err)
	}
	return nil
}

// upsertLua replaces a profile and its index entries atomically.
// KEYS: profiles hash, members zset, geo set.
// ARGV: id, json, upsert ms, indexed flag, lon, lat, interest prefix, tags...
const upsertLua = `
local id = ARGV[1]
local prefix = ARGV[7]

local keep = {}
for i = 8, #ARGV do
    keep[ARGV[i]] = true
end

local prev = redis.call('HGET', KEYS[1], id)
if prev then
    local ok, old = pcall(cjson.decode, prev)
    if ok and type(old) == 'table' and type(old.interests) == 'table' then
        for _, tag in ipairs(old.interests) do
            if not keep[tag] then
                redis.call('SREM', prefix .. tag, id)
            end
        end
    end
end

redis.call('HSET', KEYS[1], id, ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[3], id)
for tag in pairs(keep) do
    redis.call('SADD', prefix .. tag, id)
end

if ARGV[4] == '1' then
    redis.call('GEOADD', KEYS[3], ARGV[5], ARGV[6], id)
else
    redis.call('ZREM', KEYS[3], id)
end
return 1
`

// removeLua deletes a profile and every index entry it owns.
// KEYS: profiles hash, members zset, geo set. ARGV: id, interest prefix.
const removeLua = `
local id = ARGV[1]
local prev = redis.call('HGET', KEYS[1], id)
if not prev then return 0 end

local ok, old = pcall(cjson.decode, prev)
if ok and type(old) == 'table' and type(old.interests) == 'table' then
    for _, tag in ipairs(old.interests) do
        redis.call('SREM', ARGV[2] .. tag, id)
    end
end

redis.call('HDEL', KEYS[1], id)
redis.call('ZREM', KEYS[2], id)
redis.call('ZREM', KEYS[3], id)
return 1
`

// Get returns the stored profile for id, or ErrNotFound.
func (p *Pool) Get(ctx context.Context, id string) (*matching.Profile, error) {
	data, err := p.rdb.HGet(ctx, keyProfiles, id).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pool: get %s: %w", id, err)
	}

	var profile matching.Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("pool: decode %s: %w", id, err)
	}
	return &profile, nil
}

// GetMany returns the profiles for ids in the same order. IDs that are no
// longer in the pool are skipped.
func (p *Pool) GetMany(ctx context.Context, ids []string) ([]matching.Profile, error) {
	if len(ids) == 0 {
		return []matching.Profile{}, nil
	}

	values, err := p.rdb.HMGet(ctx, keyProfiles, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("pool: get many: %w", err)
	}

	profiles := make([]matching.Profile, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // removed between index lookup and fetch
		}
		var profile matching.Profile
		if err := json.Unmarshal([]byte(raw), &profile); err != nil {
			return nil, fmt.Errorf("pool: decode %s: %w", ids[i], err)
		}
		profiles = append(profiles, profile)
	}
	return profiles, nil
}

// Members returns every profile ID in the pool, least recently updated first.
func (p *Pool) Members(ctx context.Context) ([]string, error) {
	return p.rdb.ZRange(ctx, keyMembers, 0, -1).Result()
}

// Nearby returns the IDs of located profiles within radiusKm of center,
// nearest first.
func (p *Pool) Nearby(ctx context.Context, center geo.Coordinate, radiusKm float64) ([]string, error) {
	ids, err := p.rdb.GeoSearch(ctx, keyGeo, &redis.GeoSearchQuery{
		Longitude:  center.Longitude,
		Latitude:   center.Latitude,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("pool: nearby: %w", err)
	}
	return ids, nil
}

// SharingInterests returns the IDs of profiles that have at least one of
// the given interests.
func (p *Pool) SharingInterests(ctx context.Context, interests []matching.Interest) ([]string, error) {
	if len(interests) == 0 {
		return []string{}, nil
	}

	keys := make([]string, len(interests))
	for i, tag := range interests {
		keys[i] = keyInterestPrefix + string(tag)
	}
	ids, err := p.rdb.SUnion(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("pool: sharing interests: %w", err)
	}
	return ids, nil
}

// Size returns the number of profiles in the pool.
func (p *Pool) Size(ctx context.Context) (int64, error) {
	return p.rdb.ZCard(ctx, keyMembers).Result()
}

// Stale returns the IDs of profiles not upserted since cutoff.
func (p *Pool) Stale(ctx context.Context, cutoff time.Time) ([]string, error) {
	return p.rdb.ZRangeByScore(ctx, keyMembers, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
}
