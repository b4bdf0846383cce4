package storage

import (
	"testing"
	"time"
)

func TestLatencySinceP95(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	// Insert 20 samples: 10ms, 20ms, ..., 200ms
	for i := 1; i <= 20; i++ {
		status := 200
		if i%10 == 0 {
			status = 422
		}
		if err := store.RecordLatency("PATCH agent", status, time.Duration(i*10)*time.Millisecond, now); err != nil {
			t.Fatalf("RecordLatency: %v", err)
		}
	}

	stats, err := store.LatencySince(now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("LatencySince: %v", err)
	}
	if stats.Samples != 20 {
		t.Errorf("samples = %d, want 20", stats.Samples)
	}
	if stats.Errors != 2 {
		t.Errorf("errors = %d, want 2", stats.Errors)
	}
	// index 18 of the sorted samples
	if stats.P95 != 190*time.Millisecond {
		t.Errorf("p95 = %v, want 190ms", stats.P95)
	}
}

func TestLatencySinceEmpty(t *testing.T) {
	store := newTestStore(t)

	stats, err := store.LatencySince(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("LatencySince: %v", err)
	}
	if stats != (LatencyStats{}) {
		t.Errorf("stats = %+v, want zero", stats)
	}
}

func TestPruneLatency(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	if err := store.RecordLatency("GET layout", 200, 5*time.Millisecond, now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("RecordLatency: %v", err)
	}
	if err := store.RecordLatency("GET layout", 200, 7*time.Millisecond, now); err != nil {
		t.Fatalf("RecordLatency: %v", err)
	}

	deleted, err := store.PruneLatency(now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("PruneLatency: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	stats, err := store.LatencySince(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("LatencySince: %v", err)
	}
	if stats.Samples != 1 || stats.P95 != 7*time.Millisecond {
		t.Errorf("stats = %+v, want the recent sample only", stats)
	}
}
