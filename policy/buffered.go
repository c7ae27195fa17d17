package policy

import (
	"context"
	"errors"
	"sync"

	"github.com/pithecene-io/canmill/log"
	"github.com/pithecene-io/canmill/types"
)

// BufferedConfig configures a BufferedPolicy.
type BufferedConfig struct {
	// MaxBufferRows is the buffer capacity in rows.
	// When the buffer reaches capacity it is flushed to the sink.
	MaxBufferRows int

	// MaxBufferBytes caps the buffer by estimated size. Zero disables
	// the byte trigger and the buffer is bounded by rows alone.
	MaxBufferBytes int64

	// Logger is an optional logger for policy observability.
	// If nil, no logging is emitted.
	Logger *log.Logger
}

// DefaultBufferedConfig returns sensible defaults for buffered policy.
func DefaultBufferedConfig() BufferedConfig {
	return BufferedConfig{
		MaxBufferRows:  1000,
		MaxBufferBytes: 10 * 1024 * 1024, // 10MB
	}
}

// ErrInvalidConfig is returned when BufferedConfig is invalid.
var ErrInvalidConfig = errors.New("invalid config: MaxBufferRows must be positive")

// BufferedPolicy implements bounded buffering with batch writes.
//
//   - Rows accumulate in a bounded in-memory buffer
//   - Reaching capacity in rows or estimated bytes triggers a flush,
//     so rows are never dropped
//   - Flush failure preserves the buffer: the next flush retries the
//     same rows, preferring duplicates over loss
//   - A failed capacity flush surfaces through IngestRow and fails
//     the session
type BufferedPolicy struct {
	sink   Sink
	config BufferedConfig
	logger *log.Logger

	mu          sync.Mutex // guards buffer state and stats
	rows        []types.Row
	bufferBytes int64
	stats       *statsRecorder
}

// NewBufferedPolicy creates a new buffered policy.
// Returns error if config is invalid.
func NewBufferedPolicy(sink Sink, config BufferedConfig) (*BufferedPolicy, error) {
	if config.MaxBufferRows <= 0 {
		return nil, ErrInvalidConfig
	}

	return &BufferedPolicy{
		sink:   sink,
		config: config,
		logger: config.Logger,
		rows:   make([]types.Row, 0, config.MaxBufferRows),
		stats:  newStatsRecorder(),
	}, nil
}

// IngestRow buffers the row and flushes when the buffer reaches
// capacity. Returns error if a capacity flush fails; the rows remain
// buffered for a retry.
func (p *BufferedPolicy) IngestRow(ctx context.Context, row types.Row) error {
	p.mu.Lock()
	p.stats.incTotalRowsLocked()
	p.rows = append(p.rows, row)
	p.bufferBytes += p.estimateRowSize(row)
	p.stats.setBufferedRowsLocked(int64(len(p.rows)))
	full := len(p.rows) >= p.config.MaxBufferRows ||
		(p.config.MaxBufferBytes > 0 && p.bufferBytes >= p.config.MaxBufferBytes)
	p.mu.Unlock()

	if full {
		return p.Flush(ctx)
	}
	return nil
}

// Flush writes all buffered rows to the sink.
// On failure the rows are restored to the front of the buffer, so a
// later flush retries them in the original order.
func (p *BufferedPolicy) Flush(ctx context.Context) error {
	p.mu.Lock()
	p.stats.incFlushLocked()
	rows := p.rows
	if len(rows) == 0 {
		p.mu.Unlock()
		return nil
	}

	// Install a fresh buffer so ingestion can continue during the write
	batchBytes := p.bufferBytes
	p.rows = make([]types.Row, 0, p.config.MaxBufferRows)
	p.bufferBytes = 0
	p.stats.setBufferedRowsLocked(0)
	p.mu.Unlock()

	if err := p.sink.WriteRows(ctx, rows); err != nil {
		p.mu.Lock()
		p.stats.incErrorsLocked()
		p.rows = append(rows, p.rows...)
		p.bufferBytes += batchBytes
		p.stats.setBufferedRowsLocked(int64(len(p.rows)))
		p.mu.Unlock()
		p.logFlushFailure(len(rows), err)
		return err
	}

	p.mu.Lock()
	p.stats.incRowsPersistedLocked(int64(len(rows)))
	p.mu.Unlock()

	return nil
}

// Close flushes remaining rows and closes the sink.
func (p *BufferedPolicy) Close() error {
	// Best-effort flush on close
	_ = p.Flush(context.Background())
	return p.sink.Close()
}

// Stats returns policy statistics.
// Returns an atomic snapshot: the buffer mutex is held while taking the
// snapshot, ensuring all counters and buffer occupancy are captured from
// the same point in time.
func (p *BufferedPolicy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.stats.snapshotLocked(int64(len(p.rows)))
}

// estimateRowSize returns an estimated size in bytes for a row.
// This is a rough estimate for buffer accounting.
func (p *BufferedPolicy) estimateRowSize(row types.Row) int64 {
	// Base size for row structure
	size := int64(64 + len(row.Message))

	for _, sig := range row.Signals {
		size += int64(48 + len(sig.Name) + len(sig.Label))
	}

	return size
}

func (p *BufferedPolicy) logFlushFailure(rows int, err error) {
	if p.logger == nil {
		return
	}
	p.logger.Error("flush failed", map[string]any{
		"rows":   rows,
		"error":  err.Error(),
		"policy": "buffered",
	})
}

// Verify BufferedPolicy implements Policy.
var _ Policy = (*BufferedPolicy)(nil)
