package analytics

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/queueforge/vqueue/internal/store"
)

func at(base time.Time, offset time.Duration) *time.Time {
	t := base.Add(offset)
	return &t
}

func TestCountByStatusTalliesEachState(t *testing.T) {
	sessions := []*store.UserSession{
		{Status: store.SessionWaiting},
		{Status: store.SessionWaiting},
		{Status: store.SessionServing},
		{Status: store.SessionReleased},
		{Status: store.SessionDropped},
	}
	got := CountByStatus(sessions)
	want := Counts{Waiting: 2, Serving: 1, Released: 1, Dropped: 1}
	if got != want {
		t.Fatalf("CountByStatus = %+v, want %+v", got, want)
	}
}

func TestAverageWaitOnlyCountsReleasedSessions(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sessions := []*store.UserSession{
		{Status: store.SessionReleased, EnqueuedAt: base, ReleasedAt: at(base, 10*time.Minute)},
		{Status: store.SessionReleased, EnqueuedAt: base, ReleasedAt: at(base, 20*time.Minute)},
		{Status: store.SessionWaiting, EnqueuedAt: base},
	}
	got := AverageWait(sessions)
	if got != 15*time.Minute {
		t.Fatalf("AverageWait = %v, want 15m", got)
	}
}

func TestAverageWaitIsZeroWithNoReleasedSessions(t *testing.T) {
	sessions := []*store.UserSession{{Status: store.SessionWaiting}}
	if got := AverageWait(sessions); got != 0 {
		t.Fatalf("AverageWait = %v, want 0", got)
	}
}

func TestAverageServeRequiresServedAt(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sessions := []*store.UserSession{
		{
			Status:     store.SessionReleased,
			EnqueuedAt: base,
			ServedAt:   at(base, 5*time.Minute),
			ReleasedAt: at(base, 15*time.Minute),
		},
		{
			// Released without ever having been Serving: excluded from avg_serve.
			Status:     store.SessionReleased,
			EnqueuedAt: base,
			ReleasedAt: at(base, 30*time.Minute),
		},
	}
	got := AverageServe(sessions)
	if got != 10*time.Minute {
		t.Fatalf("AverageServe = %v, want 10m", got)
	}
}

func TestBucketizeHourlyAssignsNewAndReleasedToCorrectWindow(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sessions := []*store.UserSession{
		{ID: uuid.New(), Status: store.SessionReleased, EnqueuedAt: base, ReleasedAt: at(base, 30*time.Minute)},
		{ID: uuid.New(), Status: store.SessionWaiting, EnqueuedAt: base.Add(90 * time.Minute)},
	}
	buckets := Bucketize(sessions, base, base.Add(2*time.Hour), Hourly, base.Add(2*time.Hour))

	if len(buckets) != 2 {
		t.Fatalf("expected 2 hourly buckets, got %d", len(buckets))
	}
	if buckets[0].New != 1 || buckets[0].Released != 1 {
		t.Fatalf("bucket 0 = %+v, want New=1 Released=1", buckets[0])
	}
	if buckets[1].New != 1 || buckets[1].StillWaiting != 1 {
		t.Fatalf("bucket 1 = %+v, want New=1 StillWaiting=1", buckets[1])
	}
}

func TestBucketizeReturnsEmptyForDegenerateRange(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	buckets := Bucketize(nil, base, base, Hourly, base)
	if len(buckets) != 0 {
		t.Fatalf("expected no buckets for an empty range, got %d", len(buckets))
	}
}

func TestThroughputDividesReleasedByWindowHours(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sessions := []*store.UserSession{
		{Status: store.SessionReleased, ReleasedAt: at(base, 10*time.Minute)},
		{Status: store.SessionReleased, ReleasedAt: at(base, 3*time.Hour+10*time.Minute)},
		{Status: store.SessionReleased, ReleasedAt: at(base, 5*time.Hour)}, // outside [from,to)
	}
	got := Throughput(sessions, base, base.Add(4*time.Hour))
	if got != 0.5 {
		t.Fatalf("Throughput = %v, want 0.5", got)
	}
}

func TestPeakReturnsMaxReleasedAcrossBuckets(t *testing.T) {
	buckets := []Bucket{{Released: 3}, {Released: 7}, {Released: 2}}
	if got := Peak(buckets); got != 7 {
		t.Fatalf("Peak = %d, want 7", got)
	}
}

func TestRollupIsDeterministicForAFixedInputSet(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sessions := []*store.UserSession{
		{Status: store.SessionReleased, EnqueuedAt: base, ServedAt: at(base, 5*time.Minute), ReleasedAt: at(base, 20*time.Minute)},
		{Status: store.SessionWaiting, EnqueuedAt: base.Add(30 * time.Minute)},
	}
	to := base.Add(time.Hour)

	r1 := Rollup(sessions, base, to, to)
	r2 := Rollup(sessions, base, to, to)

	if r1.Counts != r2.Counts || r1.AvgWait != r2.AvgWait || r1.Throughput != r2.Throughput {
		t.Fatal("Rollup produced different results for identical input")
	}
}
