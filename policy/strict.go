package policy

import (
	"context"

	"github.com/pithecene-io/canmill/types"
)

// StrictPolicy implements synchronous, unbuffered persistence.
//
//   - No buffering: each row is written immediately (batch of 1)
//   - Backpressure: caller blocks on sink latency
//   - Sink errors fail the session
type StrictPolicy struct {
	sink  Sink
	stats *statsRecorder
}

// NewStrictPolicy creates a new strict policy writing to the given sink.
func NewStrictPolicy(sink Sink) *StrictPolicy {
	return &StrictPolicy{
		sink:  sink,
		stats: newStatsRecorder(),
	}
}

// IngestRow writes the row immediately to the sink.
// Returns error on sink failure (terminates session).
func (p *StrictPolicy) IngestRow(ctx context.Context, row types.Row) error {
	p.stats.incTotalRows()

	if err := p.sink.WriteRows(ctx, []types.Row{row}); err != nil {
		p.stats.incErrors()
		return err
	}

	p.stats.incRowsPersisted(1)
	return nil
}

// Flush is a no-op for strict policy (nothing is buffered).
func (p *StrictPolicy) Flush(_ context.Context) error {
	p.stats.incFlush()
	return nil
}

// Close closes the underlying sink.
func (p *StrictPolicy) Close() error {
	return p.sink.Close()
}

// Stats returns policy statistics.
func (p *StrictPolicy) Stats() Stats {
	return p.stats.snapshot()
}

// Verify StrictPolicy implements Policy.
var _ Policy = (*StrictPolicy)(nil)
