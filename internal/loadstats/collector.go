// Package loadstats collects latency and error counts from concurrent load
// generators and prints a summary with percentile distributions.
package loadstats

import (
	"fmt"
	"io"
	"math"
	"slices"
	"sort"
	"sync"
	"time"
)

// Collector aggregates measurements from many goroutines. All methods are
// safe for concurrent use.
type Collector struct {
	mu        sync.Mutex
	latencies []time.Duration
	results   int
	errors    map[string]int
	startTime time.Time
}

// NewCollector creates a Collector with the start time set to now.
func NewCollector() *Collector {
	return &Collector{
		errors:    make(map[string]int),
		startTime: time.Now(),
	}
}

// AddSuccess records a completed request, its round-trip latency and the
// number of results it returned.
func (c *Collector) AddSuccess(d time.Duration, results int) {
	c.mu.Lock()
	c.latencies = append(c.latencies, d)
	c.results += results
	c.mu.Unlock()
}

// AddError counts a failed request under code.
func (c *Collector) AddError(code string) {
	c.mu.Lock()
	c.errors[code]++
	c.mu.Unlock()
}

// Requests returns the number of successful and failed requests so far.
func (c *Collector) Requests() (ok, failed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range c.errors {
		failed += n
	}
	return len(c.latencies), failed
}

// Summary is a percentile breakdown of a latency sample.
type Summary struct {
	N   int
	Avg time.Duration
	P50 time.Duration
	P95 time.Duration
	P99 time.Duration
	Max time.Duration
}

// Summarize computes a Summary over a copy of durations. The zero Summary
// is returned for an empty sample.
func Summarize(durations []time.Duration) Summary {
	n := len(durations)
	if n == 0 {
		return Summary{}
	}
	sorted := slices.Clone(durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	return Summary{
		N:   n,
		Avg: sum / time.Duration(n),
		P50: sorted[n/2],
		P95: sorted[int(math.Ceil(float64(n)*0.95))-1],
		P99: sorted[int(math.Ceil(float64(n)*0.99))-1],
		Max: sorted[n-1],
	}
}

// Report writes the collected totals and the latency distribution to w.
func (c *Collector) Report(w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.startTime)
	ok := len(c.latencies)
	failed := 0
	for _, n := range c.errors {
		failed += n
	}
	total := ok + failed

	fmt.Fprintln(w, "\n=== Load Test Results ===")
	fmt.Fprintf(w, "Duration:     %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Requests:     %d\n", total)
	fmt.Fprintf(w, "Errors:       %d\n", failed)
	if total > 0 {
		fmt.Fprintf(w, "Error rate:   %.2f%%\n", float64(failed)/float64(total)*100)
		fmt.Fprintf(w, "Throughput:   %.1f req/s\n", float64(total)/elapsed.Seconds())
	}
	if ok > 0 {
		fmt.Fprintf(w, "Avg results:  %.1f\n", float64(c.results)/float64(ok))
	}

	if len(c.errors) > 0 {
		codes := make([]string, 0, len(c.errors))
		for code := range c.errors {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		fmt.Fprintln(w, "\n--- Errors ---")
		for _, code := range codes {
			fmt.Fprintf(w, "  %-16s %d\n", code, c.errors[code])
		}
	}

	if ok > 0 {
		s := Summarize(c.latencies)
		fmt.Fprintln(w, "\n--- Rank Latency ---")
		fmt.Fprintf(w, "  avg: %v  p50: %v  p95: %v  p99: %v  max: %v  (n=%d)\n",
			s.Avg.Round(time.Microsecond),
			s.P50.Round(time.Microsecond),
			s.P95.Round(time.Microsecond),
			s.P99.Round(time.Microsecond),
			s.Max.Round(time.Microsecond),
			s.N,
		)
	}
	fmt.Fprintln(w)
}
