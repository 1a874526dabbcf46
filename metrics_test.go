package main

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestSinkAppendOrder(t *testing.T) {
	sink := NewSink()
	for i := 1; i <= 3; i++ {
		sink.Append(AttemptRecord{
			Endpoint:   "users",
			Method:     "GET",
			StatusCode: 200,
			Attempt:    i,
			Duration:   time.Duration(i) * time.Millisecond,
		})
	}

	records := sink.Records()
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i, rec := range records {
		if rec.Attempt != i+1 {
			t.Errorf("record %d: expected attempt %d, got %d", i, i+1, rec.Attempt)
		}
	}
}

func TestSinkRecordsReturnsCopy(t *testing.T) {
	sink := NewSink()
	sink.Append(AttemptRecord{Endpoint: "users", StatusCode: 200})

	records := sink.Records()
	records[0].Endpoint = "mutated"

	if sink.Records()[0].Endpoint != "users" {
		t.Error("mutating the snapshot changed the sink contents")
	}
}

func TestSinkConcurrentAppends(t *testing.T) {
	sink := NewSink()
	var wg sync.WaitGroup

	const writers = 10
	const perWriter = 50
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				sink.Append(AttemptRecord{
					Endpoint:   fmt.Sprintf("endpoint-%d", w),
					StatusCode: 200,
					Attempt:    1,
				})
			}
		}(w)
	}
	wg.Wait()

	if sink.Len() != writers*perWriter {
		t.Errorf("expected %d records, got %d", writers*perWriter, sink.Len())
	}
}

func TestSinkStats(t *testing.T) {
	sink := NewSink()
	for _, ms := range []int{100, 200, 300, 400} {
		sink.Append(AttemptRecord{
			Endpoint:   "users",
			StatusCode: 200,
			Duration:   time.Duration(ms) * time.Millisecond,
		})
	}

	stats := sink.Stats()
	if stats.Count != 4 {
		t.Errorf("expected count 4, got %d", stats.Count)
	}
	if stats.Average != 250*time.Millisecond {
		t.Errorf("expected average 250ms, got %v", stats.Average)
	}
	if stats.Min != 100*time.Millisecond {
		t.Errorf("expected min 100ms, got %v", stats.Min)
	}
	if stats.Max != 400*time.Millisecond {
		t.Errorf("expected max 400ms, got %v", stats.Max)
	}
	if stats.Median != 200*time.Millisecond {
		t.Errorf("expected median 200ms, got %v", stats.Median)
	}
	if stats.P99 != 400*time.Millisecond {
		t.Errorf("expected p99 400ms, got %v", stats.P99)
	}
}

func TestSinkStatsEmpty(t *testing.T) {
	stats := NewSink().Stats()
	if stats.Count != 0 || stats.Average != 0 || stats.Max != 0 {
		t.Errorf("expected zero stats for empty sink, got %+v", stats)
	}
}

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		30 * time.Millisecond,
		40 * time.Millisecond,
		50 * time.Millisecond,
	}

	tests := []struct {
		p        float64
		expected time.Duration
	}{
		{0.50, 30 * time.Millisecond},
		{0.90, 50 * time.Millisecond},
		{0.99, 50 * time.Millisecond},
	}

	for _, tt := range tests {
		if got := percentile(sorted, tt.p); got != tt.expected {
			t.Errorf("percentile(%v) = %v, want %v", tt.p, got, tt.expected)
		}
	}
}

func TestSinkByEndpoint(t *testing.T) {
	sink := NewSink()
	sink.Append(AttemptRecord{Endpoint: "users", Method: "GET", StatusCode: 200, Duration: 100 * time.Millisecond})
	sink.Append(AttemptRecord{Endpoint: "users", Method: "GET", StatusCode: 200, Duration: 300 * time.Millisecond})
	sink.Append(AttemptRecord{Endpoint: "orders", Method: "POST", Error: "connection refused", Duration: 500 * time.Millisecond})

	summaries := sink.ByEndpoint()
	if len(summaries) != 2 {
		t.Fatalf("expected 2 endpoint summaries, got %d", len(summaries))
	}

	// Slowest average first.
	if summaries[0].Endpoint != "orders" {
		t.Errorf("expected orders first, got %s", summaries[0].Endpoint)
	}
	if summaries[0].Errors != 1 {
		t.Errorf("expected 1 error for orders, got %d", summaries[0].Errors)
	}

	users := summaries[1]
	if users.Calls != 2 {
		t.Errorf("expected 2 calls for users, got %d", users.Calls)
	}
	if users.Average != 200*time.Millisecond {
		t.Errorf("expected average 200ms for users, got %v", users.Average)
	}
	if users.Max != 300*time.Millisecond {
		t.Errorf("expected max 300ms for users, got %v", users.Max)
	}
}
