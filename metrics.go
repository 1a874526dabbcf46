package main

import (
	"sort"
	"sync"
	"time"
)

// AttemptRecord is one row per physical network attempt within a logical call.
// Exactly one of StatusCode or Error is meaningful: StatusCode is zero when
// the attempt failed at the transport level before a response arrived.
type AttemptRecord struct {
	Endpoint   string
	Method     string
	Duration   time.Duration
	StatusCode int
	Error      string
	Attempt    int // 1-based within the logical call
	Timestamp  time.Time
}

// Sink is an append-only, concurrency-safe record of attempt outcomes shared
// across all logical calls in a run. Records are never mutated or removed.
// Cross-call ordering under parallel runs is whatever the appends happened to
// interleave as; readers must rely on the Timestamp and Attempt fields.
type Sink struct {
	mu      sync.Mutex
	records []AttemptRecord
}

func NewSink() *Sink {
	return &Sink{}
}

func (s *Sink) Append(rec AttemptRecord) {
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
}

// Records returns a copy of the sink contents in append order.
func (s *Sink) Records() []AttemptRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AttemptRecord, len(s.records))
	copy(out, s.records)
	return out
}

func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// DurationStats summarizes attempt durations for reporting.
type DurationStats struct {
	Count   int
	Average time.Duration
	Median  time.Duration
	Min     time.Duration
	Max     time.Duration
	P90     time.Duration
	P95     time.Duration
	P99     time.Duration
}

// Stats computes duration statistics over every recorded attempt,
// successful or not. Returns a zero value when the sink is empty.
func (s *Sink) Stats() DurationStats {
	records := s.Records()
	if len(records) == 0 {
		return DurationStats{}
	}

	durations := make([]time.Duration, len(records))
	var total time.Duration
	for i, rec := range records {
		durations[i] = rec.Duration
		total += rec.Duration
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	return DurationStats{
		Count:   len(durations),
		Average: total / time.Duration(len(durations)),
		Median:  percentile(durations, 0.50),
		Min:     durations[0],
		Max:     durations[len(durations)-1],
		P90:     percentile(durations, 0.90),
		P95:     percentile(durations, 0.95),
		P99:     percentile(durations, 0.99),
	}
}

// EndpointSummary aggregates attempts per endpoint for the report tables.
type EndpointSummary struct {
	Endpoint string
	Method   string
	Calls    int
	Errors   int
	Average  time.Duration
	Max      time.Duration
}

// ByEndpoint groups attempt records by method+endpoint, slowest average first.
func (s *Sink) ByEndpoint() []EndpointSummary {
	type bucket struct {
		summary EndpointSummary
		total   time.Duration
	}

	buckets := make(map[string]*bucket)
	var order []string
	for _, rec := range s.Records() {
		key := rec.Method + " " + rec.Endpoint
		b, ok := buckets[key]
		if !ok {
			b = &bucket{summary: EndpointSummary{Endpoint: rec.Endpoint, Method: rec.Method}}
			buckets[key] = b
			order = append(order, key)
		}
		b.summary.Calls++
		b.total += rec.Duration
		if rec.Error != "" {
			b.summary.Errors++
		}
		if rec.Duration > b.summary.Max {
			b.summary.Max = rec.Duration
		}
	}

	out := make([]EndpointSummary, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		b.summary.Average = b.total / time.Duration(b.summary.Calls)
		out = append(out, b.summary)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Average > out[j].Average })
	return out
}

// percentile returns the value at fraction p of an ascending-sorted slice
// using nearest-rank selection.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p*float64(len(sorted))+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
