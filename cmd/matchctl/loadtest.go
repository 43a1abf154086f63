package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/meetmates/matcher/internal/availability"
	"github.com/meetmates/matcher/internal/geo"
	"github.com/meetmates/matcher/internal/loadstats"
	"github.com/meetmates/matcher/internal/matcher"
	"github.com/meetmates/matcher/internal/matching"
	"github.com/meetmates/matcher/internal/messaging"
)

type loadOptions struct {
	natsURL     string
	profiles    int
	requests    int
	concurrency int
	spreadKm    float64
	center      geo.Coordinate
	scope       string
	timeout     time.Duration
	settle      time.Duration
	seed        uint64
}

func loadtestCmd() *cobra.Command {
	opts := loadOptions{center: geo.Coordinate{Latitude: 60.1699, Longitude: 24.9384}}

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Seed synthetic profiles and measure rank latency against a running matcher",
		Long: `Seed synthetic profiles over NATS and fire rank requests at a running matcher.

Profiles are scattered around --lat/--lon within --spread km. Requesters are
picked round robin so that the per-requester rate limit is spread out; rate
limited replies are reported as errors under their code.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.center.Validate(); err != nil {
				return err
			}
			if opts.profiles < 1 || opts.requests < 1 || opts.concurrency < 1 {
				return errors.New("--profiles, --requests and --concurrency must be positive")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg := messaging.DefaultNATSConfig()
			cfg.URL = opts.natsURL
			cfg.Name = "matchctl-loadtest"
			nc, err := messaging.NewNATSClient(cfg)
			if err != nil {
				return err
			}
			defer nc.Close()

			return runLoadtest(ctx, nc, opts, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.natsURL, "nats", "nats://localhost:4222", "NATS server URL")
	f.IntVar(&opts.profiles, "profiles", 500, "Synthetic profiles to seed")
	f.IntVar(&opts.requests, "requests", 2000, "Rank requests to send")
	f.IntVar(&opts.concurrency, "concurrency", 32, "Requests in flight at once")
	f.Float64Var(&opts.spreadKm, "spread", 30, "Half-width in km of the area profiles are scattered over")
	f.Float64Var(&opts.center.Latitude, "lat", opts.center.Latitude, "Latitude of the area center")
	f.Float64Var(&opts.center.Longitude, "lon", opts.center.Longitude, "Longitude of the area center")
	f.StringVar(&opts.scope, "scope", string(matcher.ScopeAll), "Candidate scope: all, nearby or shared_interest")
	f.DurationVar(&opts.timeout, "timeout", 5*time.Second, "Timeout per rank request")
	f.DurationVar(&opts.settle, "settle", 2*time.Second, "Pause between seeding and ranking")
	f.Uint64Var(&opts.seed, "seed", 1, "Random seed for profile generation")
	return cmd
}

// rankClient is the part of the NATS client the load test drives.
type rankClient interface {
	Publish(subject string, data []byte) error
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
}

func runLoadtest(ctx context.Context, nc rankClient, opts loadOptions, out io.Writer) error {
	rng := rand.New(rand.NewPCG(opts.seed, opts.seed^0x9e3779b97f4a7c15))

	fmt.Fprintf(out, "Seeding %d profiles around %.4f,%.4f (spread %.0f km)\n",
		opts.profiles, opts.center.Latitude, opts.center.Longitude, opts.spreadKm)

	ids := make([]string, opts.profiles)
	for i := range ids {
		p := syntheticProfile(rng, i, opts.center, opts.spreadKm)
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		if err := nc.Publish(messaging.SubjectProfileUpsert, data); err != nil {
			return fmt.Errorf("seed %s: %w", p.ID, err)
		}
		ids[i] = p.ID
	}

	select {
	case <-time.After(opts.settle):
	case <-ctx.Done():
		return ctx.Err()
	}

	fmt.Fprintf(out, "Sending %d rank requests (concurrency %d, scope %s)\n", opts.requests, opts.concurrency, opts.scope)

	collector := loadstats.NewCollector()
	var next atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < opts.concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				n := int(next.Add(1)) - 1
				if n >= opts.requests || ctx.Err() != nil {
					return
				}
				sendRank(ctx, nc, ids[n%len(ids)], opts, collector)
			}
		}()
	}
	wg.Wait()

	collector.Report(out)
	return ctx.Err()
}

func sendRank(ctx context.Context, nc rankClient, requesterID string, opts loadOptions, collector *loadstats.Collector) {
	data, err := json.Marshal(matcher.RankRequest{
		RequesterID: requesterID,
		Scope:       matcher.Scope(opts.scope),
	})
	if err != nil {
		collector.AddError("encode")
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	start := time.Now()
	reply, err := nc.Request(reqCtx, messaging.SubjectMatchRank, data)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			collector.AddError("timeout")
		} else {
			collector.AddError("transport")
		}
		return
	}

	var resp matcher.RankResponse
	if err := json.Unmarshal(reply, &resp); err != nil {
		collector.AddError("decode")
		return
	}
	if resp.Error != "" {
		collector.AddError(resp.Error)
		return
	}
	collector.AddSuccess(elapsed, len(resp.Results))
}

// syntheticProfile builds a valid profile scattered within spreadKm of
// center, with two to four interests and a few weekly ranges.
func syntheticProfile(rng *rand.Rand, i int, center geo.Coordinate, spreadKm float64) matching.Profile {
	const kmPerDegree = 111.32

	dLat := (rng.Float64()*2 - 1) * spreadKm / kmPerDegree
	lonScale := math.Cos(center.Latitude * math.Pi / 180)
	if lonScale < 0.01 {
		lonScale = 0.01
	}
	dLon := (rng.Float64()*2 - 1) * spreadKm / (kmPerDegree * lonScale)

	lat := math.Max(-90, math.Min(90, center.Latitude+dLat))
	lon := center.Longitude + dLon
	if lon > 180 {
		lon -= 360
	} else if lon < -180 {
		lon += 360
	}
	loc := geo.NewLocation(lat, lon, time.Now())

	perm := rng.Perm(len(matching.KnownInterests))
	interests := make([]matching.Interest, 2+rng.IntN(3))
	for j := range interests {
		interests[j] = matching.KnownInterests[perm[j]]
	}

	week := availability.Weekly{}
	for _, d := range availability.Days {
		if rng.IntN(3) != 0 {
			continue
		}
		start := 8*60 + rng.IntN(10)*60
		length := 60 + rng.IntN(4)*60
		week[d] = []availability.TimeRange{{
			Start: availability.Clock(start),
			End:   availability.Clock(start + length),
		}}
	}

	return matching.Profile{
		ID:           fmt.Sprintf("load-%05d", i),
		Interests:    interests,
		Location:     &loc,
		RadiusKm:     5 + rng.IntN(46),
		Availability: week,
	}
}
