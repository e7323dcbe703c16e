// Package profiler - Explicit per-stage timing collector passed into pipeline calls.
package profiler

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxSamples is the number of durations kept per stage.
const DefaultMaxSamples = 600

// Timings collects stage durations for one caller. A nil *Timings is valid and records
// nothing, so pipeline code can time stages unconditionally.
type Timings struct {
	// ID identifies the collector in logs and reports.
	ID uuid.UUID

	mu         sync.Mutex
	maxSamples int
	order      []string
	stages     map[string]*TimeTracker
}

// TimeTracker tracks operation timing statistics.
type TimeTracker struct {
	name      string
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// StageStats is a snapshot of one stage.
//
// Count, Total, Min and Max cover every recorded sample. Mean covers the rolling window of
// the most recent samples.
type StageStats struct {
	Name  string        `json:"name"  yaml:"name"`
	Count int64         `json:"count" yaml:"count"`
	Total time.Duration `json:"total" yaml:"total"`
	Min   time.Duration `json:"min"   yaml:"min"`
	Max   time.Duration `json:"max"   yaml:"max"`
	Mean  time.Duration `json:"mean"  yaml:"mean"`
}

// New creates a collector with a fresh trace id.
//
// Arguments:
//   - maxSamples: The number of durations kept per stage for the rolling mean (0 = default).
//
// Returns:
//   - *Timings: The collector.
func New(maxSamples int) *Timings {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &Timings{
		ID:         uuid.New(),
		maxSamples: maxSamples,
		stages:     make(map[string]*TimeTracker),
	}
}

// Track begins timing a stage.
//
// Arguments:
//   - stage: The name of the stage to track.
//
// Returns:
//   - func(): A function to call when the stage completes.
//
// @example
// done := timings.Track("postprocess")
// defer done()
func (t *Timings) Track(stage string) func() {
	if t == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		t.Record(stage, time.Since(start))
	}
}

// Record adds one duration for a stage.
func (t *Timings) Record(stage string, duration time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	tracker, exists := t.stages[stage]
	if !exists {
		tracker = &TimeTracker{
			name:    stage,
			minTime: duration,
			maxTime: duration,
		}
		t.stages[stage] = tracker
		t.order = append(t.order, stage)
	}

	tracker.durations = append(tracker.durations, duration)
	if len(tracker.durations) > t.maxSamples {
		// Remove oldest sample
		tracker.totalTime -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}

	tracker.totalTime += duration
	tracker.count++

	if duration < tracker.minTime {
		tracker.minTime = duration
	}
	if duration > tracker.maxTime {
		tracker.maxTime = duration
	}
}

// Stats returns a snapshot of every stage in first-recorded order.
func (t *Timings) Stats() []StageStats {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]StageStats, 0, len(t.order))
	for _, name := range t.order {
		tr := t.stages[name]
		s := StageStats{Name: name, Count: tr.count, Total: tr.totalTime, Min: tr.minTime, Max: tr.maxTime}
		var sum time.Duration
		for _, d := range tr.durations {
			sum += d
		}
		if n := len(tr.durations); n > 0 {
			s.Mean = sum / time.Duration(n)
		}
		out = append(out, s)
	}
	return out
}

// Stage returns the snapshot of one stage.
func (t *Timings) Stage(name string) (StageStats, bool) {
	for _, s := range t.Stats() {
		if s.Name == name {
			return s, true
		}
	}
	return StageStats{}, false
}

// Summary renders the stage table.
func (t *Timings) Summary() string {
	stats := t.Stats()
	if len(stats) == 0 {
		return "no timings recorded"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "timings %s\n", t.ID)
	fmt.Fprintf(&b, "%-14s %8s %12s %12s %12s\n", "stage", "count", "mean", "min", "max")
	for _, s := range stats {
		fmt.Fprintf(&b, "%-14s %8d %12s %12s %12s\n", s.Name, s.Count, s.Mean, s.Min, s.Max)
	}
	return b.String()
}
