// Package matcher is the background service that keeps the candidate pool
// current and answers rank requests over NATS.
package matcher

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/meetmates/matcher/internal/matching"
	"github.com/meetmates/matcher/internal/messaging"
	"github.com/meetmates/matcher/internal/metrics"
	"github.com/meetmates/matcher/internal/pool"
	"github.com/meetmates/matcher/internal/ratelimit"
)

// Scope narrows the candidates a rank request considers.
type Scope string

const (
	ScopeAll            Scope = "all"
	ScopeNearby         Scope = "nearby"          // within the requester's radius
	ScopeSharedInterest Scope = "shared_interest" // at least one interest in common
)

// Error codes carried in RankResponse.Error.
const (
	ErrCodeInvalid     = "invalid_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeRateLimited = "rate_limited"
	ErrCodeInternal    = "internal"
)

// RankRequest is the NATS payload of a match.rank request. Requester, when
// set, is scored as given; otherwise the requester is read from the pool.
type RankRequest struct {
	RequesterID string            `json:"requester_id"`
	Requester   *matching.Profile `json:"requester,omitempty"`
	Scope       Scope             `json:"scope,omitempty"`
	MinScore    *float64          `json:"min_score,omitempty"`
	Limit       int               `json:"limit,omitempty"`
}

// RankResponse is the reply to a RankRequest. Successful replies are also
// broadcast on match.ranked.<requester_id>; error replies go back to the
// caller only.
type RankResponse struct {
	RequestID    string                 `json:"request_id"`
	RequesterID  string                 `json:"requester_id"`
	Results      []matching.MatchResult `json:"results"`
	Error        string                 `json:"error,omitempty"`
	RetryAfterMs int64                  `json:"retry_after_ms,omitempty"` // set on rate_limited
}

// RemoveRequest is the NATS payload of a profile.remove message.
type RemoveRequest struct {
	ID string `json:"id"`
}

// Store persists profile changes. The service writes through to it when
// one is configured.
type Store interface {
	Save(ctx context.Context, p matching.Profile) error
	Delete(ctx context.Context, id string) error
}

// Lister supplies the profiles used to warm the pool at startup.
type Lister interface {
	List(ctx context.Context) ([]matching.Profile, error)
}

// Config holds the ranking and housekeeping settings.
type Config struct {
	Workers       int           // goroutines scoring one request
	MinScore      float64       // default cut-off when a request sets none
	Limit         int           // default and maximum results per request
	MaxProfileAge time.Duration // profiles not upserted for this long are pruned
	QueueGroup    string        // NATS queue group shared by replicas
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:       8,
		MinScore:      matching.DefaultMinScore,
		Limit:         50,
		MaxProfileAge: 30 * 24 * time.Hour,
		QueueGroup:    "matcher",
	}
}

// Service ranks candidates for requesters and keeps the pool in sync
// with profile updates.
type Service struct {
	pool    *pool.Pool
	limiter *ratelimit.Limiter
	nats    *messaging.NATSClient
	store   Store
	cfg     Config
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewService creates a new matcher service. store may be nil.
func NewService(rdb *redis.Client, nats *messaging.NATSClient, store Store, cfg Config) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		pool:    pool.New(rdb),
		limiter: ratelimit.NewLimiter(rdb),
		nats:    nats,
		store:   store,
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to NATS subjects and starts the cleanup loop.
func (s *Service) Start() error {
	if err := s.nats.SubscribeProfileUpsert(s.cfg.QueueGroup, s.handleUpsert); err != nil {
		return err
	}
	if err := s.nats.SubscribeProfileRemove(s.cfg.QueueGroup, s.handleRemove); err != nil {
		return err
	}
	if err := s.nats.SubscribeMatchRank(s.cfg.QueueGroup, s.handleRankRequest); err != nil {
		return err
	}

	go StartCleanup(s.ctx, s.pool, s.cfg.MaxProfileAge)

	log.Println("[matcher] service started")
	return nil
}

// Stop gracefully shuts down the matcher service.
func (s *Service) Stop() {
	s.cancel()
	log.Println("[matcher] service stopped")
}

// Warm loads every profile from src into the pool and returns how many
// were loaded. Invalid stored profiles are skipped.
func (s *Service) Warm(ctx context.Context, src Lister) (int, error) {
	profiles, err := src.List(ctx)
	if err != nil {
		return 0, err
	}

	loaded := 0
	for _, p := range profiles {
		if err := p.Validate(); err != nil {
			log.Printf("[matcher] warm-up: skipping %s: %v", p.ID, err)
			continue
		}
		if err := s.pool.Upsert(ctx, p); err != nil {
			return loaded, err
		}
		loaded++
	}

	refreshPoolSize(ctx, s.pool)
	log.Printf("[matcher] warm-up: loaded %d of %d profiles", loaded, len(profiles))
	return loaded, nil
}

// UpsertProfile validates p and applies it to the pool and the store.
func (s *Service) UpsertProfile(ctx context.Context, p matching.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	// Stored slot rows cannot tell an empty schedule from a missing one,
	// so the pool holds both as unknown, the way a warm-up reloads them.
	if !p.Availability.HasSlots() {
		p.Availability = nil
	}
	if s.store != nil {
		if err := s.store.Save(ctx, p); err != nil {
			return err
		}
	}
	if err := s.pool.Upsert(ctx, p); err != nil {
		return err
	}
	metrics.ProfileUpdatesTotal.WithLabelValues("upsert").Inc()
	return nil
}

// RemoveProfile deletes a profile from the pool and the store.
func (s *Service) RemoveProfile(ctx context.Context, id string) error {
	if s.store != nil {
		if err := s.store.Delete(ctx, id); err != nil {
			return err
		}
	}
	if err := s.pool.Remove(ctx, id); err != nil {
		return err
	}
	metrics.ProfileUpdatesTotal.WithLabelValues("remove").Inc()
	return nil
}

func (s *Service) handleUpsert(data []byte) {
	var p matching.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		log.Printf("[matcher] invalid profile upsert: %v", err)
		return
	}

	if err := s.UpsertProfile(s.ctx, p); err != nil {
		log.Printf("[matcher] upsert %s: %v", p.ID, err)
		return
	}
	log.Printf("[matcher] upserted %s with interests %v", p.ID, p.Interests)
}

func (s *Service) handleRemove(data []byte) {
	var req RemoveRequest
	if err := json.Unmarshal(data, &req); err != nil || req.ID == "" {
		log.Printf("[matcher] invalid profile remove: %s", data)
		return
	}

	if err := s.RemoveProfile(s.ctx, req.ID); err != nil {
		log.Printf("[matcher] remove %s: %v", req.ID, err)
		return
	}
	log.Printf("[matcher] removed %s", req.ID)
}

func (s *Service) handleRankRequest(data []byte) []byte {
	var req RankRequest
	var resp RankResponse
	if err := json.Unmarshal(data, &req); err != nil {
		log.Printf("[matcher] invalid rank request: %v", err)
		metrics.RankRequestsTotal.WithLabelValues("invalid").Inc()
		resp = RankResponse{RequestID: uuid.New().String(), Results: []matching.MatchResult{}, Error: ErrCodeInvalid}
	} else {
		resp = s.Rank(s.ctx, req)
		if resp.Error == "" {
			if err := PublishRanked(s.nats, resp); err != nil {
				log.Printf("[matcher] publish ranked: %v", err)
			}
		}
	}

	out, err := json.Marshal(resp)
	if err != nil {
		log.Printf("[matcher] marshal rank response: %v", err)
		return nil
	}
	return out
}

// Rank answers one rank request. Failures are reported in the response's
// Error field rather than as a Go error, since they go back over the wire.
func (s *Service) Rank(ctx context.Context, req RankRequest) RankResponse {
	start := time.Now()
	resp := RankResponse{
		RequestID:   uuid.New().String(),
		RequesterID: req.RequesterID,
		Results:     []matching.MatchResult{},
	}
	fail := func(code string) RankResponse {
		resp.Error = code
		metrics.RankRequestsTotal.WithLabelValues(outcome(code)).Inc()
		return resp
	}

	if req.RequesterID == "" && req.Requester != nil {
		resp.RequesterID = req.Requester.ID
	}
	if resp.RequesterID == "" {
		return fail(ErrCodeInvalid)
	}

	decision, _ := s.limiter.Take(ctx, resp.RequesterID, ratelimit.RuleRank)
	if !decision.Allowed {
		log.Printf("[matcher] rank: %s rate limited for %v", resp.RequesterID, decision.RetryAfter)
		resp.RetryAfterMs = decision.RetryAfter.Milliseconds()
		return fail(ErrCodeRateLimited)
	}

	requester, err := s.resolveRequester(ctx, resp.RequesterID, req.Requester)
	if errors.Is(err, pool.ErrNotFound) {
		return fail(ErrCodeNotFound)
	}
	if errors.Is(err, matching.ErrInvalidProfile) {
		return fail(ErrCodeInvalid)
	}
	if err != nil {
		log.Printf("[matcher] rank: resolve %s: %v", resp.RequesterID, err)
		return fail(ErrCodeInternal)
	}

	candidates, err := s.candidates(ctx, requester, req.Scope)
	if errors.Is(err, errUnknownScope) {
		return fail(ErrCodeInvalid)
	}
	if err != nil {
		log.Printf("[matcher] rank: candidates for %s: %v", resp.RequesterID, err)
		return fail(ErrCodeInternal)
	}

	results, err := matching.RankParallel(ctx, requester, candidates, s.cfg.Workers)
	if err != nil {
		log.Printf("[matcher] rank %s: %v", resp.RequesterID, err)
		return fail(ErrCodeInternal)
	}

	minScore := s.cfg.MinScore
	if req.MinScore != nil {
		minScore = *req.MinScore
	}
	limit := s.cfg.Limit
	if req.Limit > 0 && (limit <= 0 || req.Limit < limit) {
		limit = req.Limit
	}
	resp.Results = matching.Top(matching.FilterByMinScore(results, minScore), limit)

	metrics.CandidatesScored.Observe(float64(len(candidates)))
	metrics.RankDuration.Observe(time.Since(start).Seconds())
	metrics.RankRequestsTotal.WithLabelValues("ok").Inc()
	log.Printf("[matcher] ranked %d candidates for %s (scope=%s, returned %d)",
		len(candidates), resp.RequesterID, scopeOrAll(req.Scope), len(resp.Results))
	return resp
}

func outcome(code string) string {
	switch code {
	case ErrCodeRateLimited:
		return "rate_limited"
	case ErrCodeInvalid, ErrCodeNotFound:
		return "invalid"
	default:
		return "error"
	}
}

func scopeOrAll(scope Scope) Scope {
	if scope == "" {
		return ScopeAll
	}
	return scope
}

func (s *Service) resolveRequester(ctx context.Context, id string, given *matching.Profile) (matching.Profile, error) {
	if given == nil {
		p, err := s.pool.Get(ctx, id)
		if err != nil {
			return matching.Profile{}, err
		}
		return *p, nil
	}

	p := *given
	if p.ID == "" {
		p.ID = id
	}
	if err := p.Validate(); err != nil {
		return matching.Profile{}, err
	}
	return p, nil
}

var errUnknownScope = errors.New("matcher: unknown scope")

// candidates loads the pool members in scope. IDs are put in a fixed
// order first so ties rank the same way on every replica.
func (s *Service) candidates(ctx context.Context, requester matching.Profile, scope Scope) ([]matching.Profile, error) {
	var (
		ids []string
		err error
	)
	switch scopeOrAll(scope) {
	case ScopeAll:
		ids, err = s.pool.Members(ctx)
	case ScopeNearby:
		if requester.Location == nil {
			return []matching.Profile{}, nil
		}
		ids, err = s.pool.Nearby(ctx, requester.Location.Coordinate, float64(requester.RadiusKm))
	case ScopeSharedInterest:
		ids, err = s.pool.SharingInterests(ctx, requester.Interests)
		sort.Strings(ids)
	default:
		return nil, errUnknownScope
	}
	if err != nil {
		return nil, err
	}
	return s.pool.GetMany(ctx, ids)
}
