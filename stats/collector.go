// Package stats accumulates per-session decode statistics.
//
// The Collector folds one DecodeResult at a time into running counters
// and bounded diagnostic lists. It is a leaf package with no I/O. A
// session uses a single Collector as the sole writer; parallel decode
// gives each worker its own Collector and merges the partials in
// partition order.
package stats

import (
	"sync"

	"github.com/pithecene-io/canmill/types"
)

// ErrorCap bounds the stored decode error list. Errors beyond the cap
// are counted but not retained.
const ErrorCap = 30

// IDCounters are the per-identifier counts.
type IDCounters struct {
	// Seen counts every frame with this identifier, decodable or not.
	Seen int64
	// Decoded counts frames whose every signal extracted.
	Decoded int64
	// Corrected counts frames whose payload was padded or truncated.
	Corrected int64
}

// Snapshot is an immutable point-in-time view of a Collector.
// Safe to read concurrently after creation.
type Snapshot struct {
	TotalFrames   int64
	DecodedFrames int64
	// TotalSignals counts individual decoded signal values.
	TotalSignals int64
	// TotalErrors counts all decode failures, including those beyond
	// the stored-error cap.
	TotalErrors int64
	PerID       map[uint32]IDCounters
	// Adjustments holds every length correction in frame order.
	Adjustments []types.LengthAdjustment
	// Errors holds the first ErrorCap decode errors in encounter order.
	Errors []types.DecodeError
}

// Collector accumulates decode statistics for one session.
// Thread-safe via sync.Mutex; the fold itself is a single-writer
// sequence per collector.
type Collector struct {
	mu sync.Mutex

	totalFrames   int64
	decodedFrames int64
	totalSignals  int64
	totalErrors   int64
	perID         map[uint32]*IDCounters
	adjustments   []types.LengthAdjustment
	errors        []types.DecodeError
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{
		perID: make(map[uint32]*IDCounters),
	}
}

// Fold accumulates one frame's decode outcome.
//
// Every frame counts toward TotalFrames and its identifier's Seen. A
// decoded frame adds to DecodedFrames, the bucket's Decoded, and
// TotalSignals. An adjustment (present on decoded or failed frames)
// adds to the bucket's Corrected and the adjustment list. A failure is
// stored while fewer than ErrorCap errors are held and always counts
// toward TotalErrors. Unknown identifiers mutate nothing beyond Seen.
func (c *Collector) Fold(frame types.Frame, result types.DecodeResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalFrames++

	bucket, ok := c.perID[frame.ID]
	if !ok {
		bucket = &IDCounters{}
		c.perID[frame.ID] = bucket
	}
	bucket.Seen++

	if result.Adjustment != nil {
		bucket.Corrected++
		c.adjustments = append(c.adjustments, *result.Adjustment)
	}

	switch result.Status {
	case types.StatusDecoded:
		c.decodedFrames++
		bucket.Decoded++
		c.totalSignals += int64(len(result.Signals))
	case types.StatusFailed:
		c.totalErrors++
		if len(c.errors) < ErrorCap && result.Err != nil {
			c.errors = append(c.errors, *result.Err)
		}
	}
}

// Merge folds another collector's accumulated state into this one.
// Counters sum; adjustment and error lists concatenate in call order,
// with the error list re-capped at ErrorCap. Merging partials in
// partition order reproduces the sequential fold exactly.
func (c *Collector) Merge(other *Collector) {
	snap := other.Snapshot()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalFrames += snap.TotalFrames
	c.decodedFrames += snap.DecodedFrames
	c.totalSignals += snap.TotalSignals
	c.totalErrors += snap.TotalErrors

	for id, counters := range snap.PerID {
		bucket, ok := c.perID[id]
		if !ok {
			bucket = &IDCounters{}
			c.perID[id] = bucket
		}
		bucket.Seen += counters.Seen
		bucket.Decoded += counters.Decoded
		bucket.Corrected += counters.Corrected
	}

	c.adjustments = append(c.adjustments, snap.Adjustments...)
	for i := range snap.Errors {
		if len(c.errors) >= ErrorCap {
			break
		}
		c.errors = append(c.errors, snap.Errors[i])
	}
}

// Snapshot returns a deep copy of the accumulated statistics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	perID := make(map[uint32]IDCounters, len(c.perID))
	for id, bucket := range c.perID {
		perID[id] = *bucket
	}

	adjustments := make([]types.LengthAdjustment, len(c.adjustments))
	copy(adjustments, c.adjustments)
	errs := make([]types.DecodeError, len(c.errors))
	copy(errs, c.errors)

	return Snapshot{
		TotalFrames:   c.totalFrames,
		DecodedFrames: c.decodedFrames,
		TotalSignals:  c.totalSignals,
		TotalErrors:   c.totalErrors,
		PerID:         perID,
		Adjustments:   adjustments,
		Errors:        errs,
	}
}
