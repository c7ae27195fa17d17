package policy

import (
	"context"
	"sync"

	"github.com/pithecene-io/canmill/types"
)

// Sink abstracts row persistence for policies.
// Implementations write to files, object storage, or stub for testing.
//
// WriteRows is batch-oriented to support both strict (batch of 1) and
// buffered policies.
type Sink interface {
	// WriteRows persists a batch of rows.
	// Must preserve ordering within the batch.
	// Returns error on failure; caller decides whether to retry or fail.
	WriteRows(ctx context.Context, rows []types.Row) error

	// Close releases any resources held by the sink.
	Close() error
}

// StubSink is a test sink that accepts writes without persisting.
// Tracks write statistics for test assertions.
type StubSink struct {
	mu sync.Mutex

	// RowsWritten is the total count of rows written.
	RowsWritten int64
	// Batches is the number of WriteRows calls.
	Batches int64
	// BatchSizes records the size of each batch in call order.
	BatchSizes []int
	// Closed indicates whether Close was called.
	Closed bool

	// Rows stores all written rows for inspection.
	Rows []types.Row

	// ErrorOnWrite, if non-nil, is returned by WriteRows.
	ErrorOnWrite error
}

// NewStubSink creates a new stub sink for testing.
func NewStubSink() *StubSink {
	return &StubSink{
		Rows: make([]types.Row, 0),
	}
}

// WriteRows records the rows without persisting.
func (s *StubSink) WriteRows(_ context.Context, rows []types.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ErrorOnWrite != nil {
		return s.ErrorOnWrite
	}

	s.Batches++
	s.RowsWritten += int64(len(rows))
	s.BatchSizes = append(s.BatchSizes, len(rows))
	s.Rows = append(s.Rows, rows...)

	return nil
}

// Close marks the sink as closed.
func (s *StubSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Closed = true
	return nil
}

// SetError sets the error returned by subsequent WriteRows calls.
// Pass nil to let writes succeed again.
func (s *StubSink) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ErrorOnWrite = err
}

// Stats returns a snapshot of sink statistics.
func (s *StubSink) Stats() StubSinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return StubSinkStats{
		RowsWritten: s.RowsWritten,
		Batches:     s.Batches,
		Closed:      s.Closed,
	}
}

// StubSinkStats is a snapshot of StubSink statistics.
type StubSinkStats struct {
	RowsWritten int64
	Batches     int64
	Closed      bool
}
