package matching

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"
)

// DefaultMinScore is the cut-off FilterByMinScore callers use unless they
// have a reason not to.
const DefaultMinScore = 0.1

// Rank scores every candidate against requester and returns the results
// sorted by score, highest first. Equal scores keep candidate order.
// A candidate with the requester's own ID is skipped.
func Rank(requester Profile, candidates []Profile) []MatchResult {
	results := make([]MatchResult, 0, len(candidates))
	for _, c := range candidates {
		if isSelf(requester, c) {
			continue
		}
		results = append(results, Score(requester, c))
	}
	sortByScore(results)
	return results
}

// RankParallel produces the same ordering as Rank, scoring candidates on
// up to workers goroutines. It returns ctx.Err() if the context is
// cancelled before scoring finishes.
func RankParallel(ctx context.Context, requester Profile, candidates []Profile, workers int) ([]MatchResult, error) {
	if workers < 1 {
		workers = 1
	}

	// Each slot is written by exactly one goroutine.
	scored := make([]MatchResult, len(candidates))
	keep := make([]bool, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range candidates {
		if isSelf(requester, candidates[i]) {
			continue
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scored[i] = Score(requester, candidates[i])
			keep[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]MatchResult, 0, len(candidates))
	for i, ok := range keep {
		if ok {
			results = append(results, scored[i])
		}
	}
	sortByScore(results)
	return results, nil
}

func isSelf(requester, candidate Profile) bool {
	return requester.ID != "" && requester.ID == candidate.ID
}

func sortByScore(results []MatchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

// FilterByMinScore keeps the results whose score is at least minScore,
// preserving order.
func FilterByMinScore(results []MatchResult, minScore float64) []MatchResult {
	kept := make([]MatchResult, 0, len(results))
	for _, r := range results {
		if r.Score >= minScore {
			kept = append(kept, r)
		}
	}
	return kept
}

// Top returns at most n results. n <= 0 means no limit.
func Top(results []MatchResult, n int) []MatchResult {
	if n <= 0 || len(results) <= n {
		return results
	}
	return results[:n]
}
