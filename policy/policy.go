// Package policy controls how decoded rows reach their sink.
package policy

import (
	"context"
	"sync"

	"github.com/pithecene-io/canmill/types"
)

// Policy decides when buffered rows are written to the sink.
//
// Rows are never dropped: a policy either persists a row, keeps it
// buffered for a later flush, or returns an error. Policy failure
// terminates the session.
type Policy interface {
	// IngestRow accepts one decoded row.
	// The row must eventually reach the sink; return error to
	// terminate the session.
	IngestRow(ctx context.Context, row types.Row) error

	// Flush writes any buffered rows to the sink.
	// Called at session completion and on runtime termination.
	Flush(ctx context.Context) error

	// Close cleans up policy resources.
	Close() error

	// Stats returns policy statistics for observability.
	// Returns an atomic snapshot of policy metrics at a point in time.
	// All counters in the returned Stats are consistent with each other.
	Stats() Stats
}

// Stats represents policy observability metrics.
type Stats struct {
	// TotalRows is the total number of rows received.
	TotalRows int64
	// RowsPersisted is the number of rows written to the sink.
	RowsPersisted int64
	// BufferedRows is the current buffer occupancy (if buffered).
	BufferedRows int64
	// FlushCount is the number of flush operations.
	FlushCount int64
	// Errors is the count of sink errors encountered.
	Errors int64
}

// statsRecorder is an internal helper for thread-safe stats management.
// Policies call explicit methods to record mutations; recorder does not
// infer or automate any policy decisions.
//
// Lock discipline:
//   - StrictPolicy uses the locking methods (incTotalRows, snapshot, etc.)
//   - BufferedPolicy and StreamingPolicy use the Locked methods only while
//     holding their own mu. This ensures atomicity between buffer state
//     and stats counters.
type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func newStatsRecorder() *statsRecorder {
	return &statsRecorder{}
}

func (r *statsRecorder) incTotalRows() {
	r.mu.Lock()
	r.stats.TotalRows++
	r.mu.Unlock()
}

func (r *statsRecorder) incRowsPersisted(n int64) {
	r.mu.Lock()
	r.stats.RowsPersisted += n
	r.mu.Unlock()
}

func (r *statsRecorder) incErrors() {
	r.mu.Lock()
	r.stats.Errors++
	r.mu.Unlock()
}

func (r *statsRecorder) incFlush() {
	r.mu.Lock()
	r.stats.FlushCount++
	r.mu.Unlock()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.stats
}

// --- Locked methods for BufferedPolicy and StreamingPolicy ---
// Caller must hold the policy's mu.

func (r *statsRecorder) incTotalRowsLocked() {
	r.stats.TotalRows++
}

func (r *statsRecorder) incRowsPersistedLocked(n int64) {
	r.stats.RowsPersisted += n
}

func (r *statsRecorder) incErrorsLocked() {
	r.stats.Errors++
}

func (r *statsRecorder) incFlushLocked() {
	r.stats.FlushCount++
}

func (r *statsRecorder) setBufferedRowsLocked(n int64) {
	r.stats.BufferedRows = n
}

// snapshotLocked returns an atomic snapshot of stats with the given
// buffer occupancy. Caller must hold the policy's mu.
func (r *statsRecorder) snapshotLocked(bufferedRows int64) Stats {
	s := r.stats
	s.BufferedRows = bufferedRows
	return s
}
