// Package analytics derives counts, wait/serve durations, and throughput
// from a session stream. Every function here is pure: given the same
// sessions and time range it returns the same result, with no I/O.
package analytics

import (
	"time"

	"github.com/queueforge/vqueue/internal/store"
)

// Counts summarizes how many sessions in a set sit in each terminal or
// non-terminal state.
type Counts struct {
	Waiting  int
	Serving  int
	Released int
	Dropped  int
}

// CountByStatus tallies sessions by their current Status.
func CountByStatus(sessions []*store.UserSession) Counts {
	var c Counts
	for _, s := range sessions {
		switch s.Status {
		case store.SessionWaiting:
			c.Waiting++
		case store.SessionServing:
			c.Serving++
		case store.SessionReleased:
			c.Released++
		case store.SessionDropped:
			c.Dropped++
		}
	}
	return c
}

// AverageWait returns the mean of (released_at - enqueued_at) across
// Released sessions. Zero if none are Released.
func AverageWait(sessions []*store.UserSession) time.Duration {
	var total time.Duration
	var n int
	for _, s := range sessions {
		if s.Status != store.SessionReleased || s.ReleasedAt == nil {
			continue
		}
		total += s.ReleasedAt.Sub(s.EnqueuedAt)
		n++
	}
	if n == 0 {
		return 0
	}
	return total / time.Duration(n)
}

// AverageServe returns the mean of (released_at - served_at) across
// Released sessions that were also Serving at some point. Zero if none
// qualify.
func AverageServe(sessions []*store.UserSession) time.Duration {
	var total time.Duration
	var n int
	for _, s := range sessions {
		if s.Status != store.SessionReleased || s.ReleasedAt == nil || s.ServedAt == nil {
			continue
		}
		total += s.ReleasedAt.Sub(*s.ServedAt)
		n++
	}
	if n == 0 {
		return 0
	}
	return total / time.Duration(n)
}

// Bucket summarizes one hourly or daily window.
type Bucket struct {
	Start       time.Time
	New         int
	Released    int
	AvgWait     time.Duration
	StillWaiting int
}

// Granularity selects the bucket width for Bucketize.
type Granularity int

const (
	Hourly Granularity = iota
	Daily
)

func (g Granularity) truncate(t time.Time) time.Time {
	switch g {
	case Daily:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	default:
		return t.Truncate(time.Hour)
	}
}

func (g Granularity) step() time.Duration {
	if g == Daily {
		return 24 * time.Hour
	}
	return time.Hour
}

// Bucketize partitions sessions into consecutive [from, to) windows of the
// given granularity, each reporting how many sessions newly entered Waiting
// in that window (by enqueued_at), how many were Released in that window
// (by released_at), the average wait of those released, and how many of
// the window's new arrivals are still Waiting as of `asOf`.
func Bucketize(sessions []*store.UserSession, from, to time.Time, g Granularity, asOf time.Time) []Bucket {
	start := g.truncate(from)
	step := g.step()

	var buckets []Bucket
	for t := start; t.Before(to); t = t.Add(step) {
		buckets = append(buckets, Bucket{Start: t})
	}
	if len(buckets) == 0 {
		return buckets
	}

	indexFor := func(ts time.Time) (int, bool) {
		if ts.Before(start) || !ts.Before(to) {
			return 0, false
		}
		idx := int(ts.Sub(start) / step)
		if idx < 0 || idx >= len(buckets) {
			return 0, false
		}
		return idx, true
	}

	waitTotals := make([]time.Duration, len(buckets))
	waitCounts := make([]int, len(buckets))

	for _, s := range sessions {
		if idx, ok := indexFor(s.EnqueuedAt); ok {
			buckets[idx].New++
			if s.Status == store.SessionWaiting && !s.EnqueuedAt.After(asOf) {
				buckets[idx].StillWaiting++
			}
		}
		if s.Status == store.SessionReleased && s.ReleasedAt != nil {
			if idx, ok := indexFor(*s.ReleasedAt); ok {
				buckets[idx].Released++
				waitTotals[idx] += s.ReleasedAt.Sub(s.EnqueuedAt)
				waitCounts[idx]++
			}
		}
	}

	for i := range buckets {
		if waitCounts[i] > 0 {
			buckets[i].AvgWait = waitTotals[i] / time.Duration(waitCounts[i])
		}
	}
	return buckets
}

// Throughput returns Released-per-hour over [from, to).
func Throughput(sessions []*store.UserSession, from, to time.Time) float64 {
	hours := to.Sub(from).Hours()
	if hours <= 0 {
		return 0
	}
	released := 0
	for _, s := range sessions {
		if s.Status == store.SessionReleased && s.ReleasedAt != nil &&
			!s.ReleasedAt.Before(from) && s.ReleasedAt.Before(to) {
			released++
		}
	}
	return float64(released) / hours
}

// Peak returns the maximum Released count across the given sub-windows.
func Peak(buckets []Bucket) int {
	var peak int
	for _, b := range buckets {
		if b.Released > peak {
			peak = b.Released
		}
	}
	return peak
}

// Report bundles the full rollup for a (tenant, queue, range) request.
type Report struct {
	Counts     Counts
	AvgWait    time.Duration
	AvgServe   time.Duration
	Hourly     []Bucket
	Daily      []Bucket
	Throughput float64
	Peak       int
}

// Rollup computes the complete analytics report for sessions observed in
// [from, to), as of asOf (normally time.Now()).
func Rollup(sessions []*store.UserSession, from, to, asOf time.Time) Report {
	hourly := Bucketize(sessions, from, to, Hourly, asOf)
	daily := Bucketize(sessions, from, to, Daily, asOf)
	return Report{
		Counts:     CountByStatus(sessions),
		AvgWait:    AverageWait(sessions),
		AvgServe:   AverageServe(sessions),
		Hourly:     hourly,
		Daily:      daily,
		Throughput: Throughput(sessions, from, to),
		Peak:       Peak(hourly),
	}
}
