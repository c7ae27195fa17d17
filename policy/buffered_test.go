package policy

import (
	"context"
	"errors"
	"testing"
)

func TestBufferedPolicy_InvalidConfig(t *testing.T) {
	if _, err := NewBufferedPolicy(NewStubSink(), BufferedConfig{}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewBufferedPolicy() error = %v, want %v", err, ErrInvalidConfig)
	}
	// A byte cap alone is not enough; rows bound the buffer
	if _, err := NewBufferedPolicy(NewStubSink(), BufferedConfig{MaxBufferBytes: 1 << 20}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewBufferedPolicy() bytes-only error = %v, want %v", err, ErrInvalidConfig)
	}
}

func TestBufferedPolicy_BuffersBelowCapacity(t *testing.T) {
	sink := NewStubSink()
	p, err := NewBufferedPolicy(sink, BufferedConfig{MaxBufferRows: 10})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for i := 0; i < 9; i++ {
		if err := p.IngestRow(ctx, testRow(float64(i), 0x100)); err != nil {
			t.Fatalf("IngestRow() error: %v", err)
		}
	}

	if got := sink.Stats().RowsWritten; got != 0 {
		t.Errorf("RowsWritten = %d, want 0 before capacity", got)
	}
	if got := p.Stats().BufferedRows; got != 9 {
		t.Errorf("BufferedRows = %d, want 9", got)
	}
}

func TestBufferedPolicy_CapacityFlush(t *testing.T) {
	sink := NewStubSink()
	p, err := NewBufferedPolicy(sink, BufferedConfig{MaxBufferRows: 10})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := p.IngestRow(ctx, testRow(float64(i), 0x100)); err != nil {
			t.Fatalf("IngestRow() error: %v", err)
		}
	}

	stats := sink.Stats()
	if stats.RowsWritten != 10 {
		t.Errorf("RowsWritten = %d, want 10 after capacity flush", stats.RowsWritten)
	}
	if stats.Batches != 1 {
		t.Errorf("Batches = %d, want 1 (single batched write)", stats.Batches)
	}
	if got := p.Stats().BufferedRows; got != 0 {
		t.Errorf("BufferedRows = %d, want 0 after flush", got)
	}
}

func TestBufferedPolicy_ByteCapacityFlush(t *testing.T) {
	sink := NewStubSink()
	rowSize := (&BufferedPolicy{}).estimateRowSize(testRow(0, 0x100))
	p, err := NewBufferedPolicy(sink, BufferedConfig{
		MaxBufferRows:  1000,
		MaxBufferBytes: 3 * rowSize,
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := p.IngestRow(ctx, testRow(float64(i), 0x100)); err != nil {
			t.Fatalf("IngestRow() error: %v", err)
		}
	}
	if got := sink.Stats().RowsWritten; got != 0 {
		t.Errorf("RowsWritten = %d, want 0 below byte capacity", got)
	}

	if err := p.IngestRow(ctx, testRow(2, 0x100)); err != nil {
		t.Fatalf("IngestRow() error: %v", err)
	}
	stats := sink.Stats()
	if stats.RowsWritten != 3 {
		t.Errorf("RowsWritten = %d, want 3 after byte capacity flush", stats.RowsWritten)
	}
	if stats.Batches != 1 {
		t.Errorf("Batches = %d, want 1", stats.Batches)
	}

	// Byte accounting resets with the flush
	for i := 3; i < 5; i++ {
		if err := p.IngestRow(ctx, testRow(float64(i), 0x100)); err != nil {
			t.Fatalf("IngestRow() error: %v", err)
		}
	}
	if got := sink.Stats().RowsWritten; got != 3 {
		t.Errorf("RowsWritten = %d, want 3 (no flush until cap reached again)", got)
	}
}

func TestBufferedPolicy_FlushDrainsRemainder(t *testing.T) {
	sink := NewStubSink()
	p, err := NewBufferedPolicy(sink, BufferedConfig{MaxBufferRows: 10})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for i := 0; i < 23; i++ {
		if err := p.IngestRow(ctx, testRow(float64(i), 0x100)); err != nil {
			t.Fatalf("IngestRow() error: %v", err)
		}
	}
	if err := p.Flush(ctx); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	if got := sink.Stats().RowsWritten; got != 23 {
		t.Errorf("RowsWritten = %d, want 23", got)
	}
	wantSizes := []int{10, 10, 3}
	if len(sink.BatchSizes) != len(wantSizes) {
		t.Fatalf("BatchSizes = %v, want %v", sink.BatchSizes, wantSizes)
	}
	for i, want := range wantSizes {
		if sink.BatchSizes[i] != want {
			t.Errorf("BatchSizes[%d] = %d, want %d", i, sink.BatchSizes[i], want)
		}
	}

	// Order preserved across batches
	for i, row := range sink.Rows {
		if row.Timestamp != float64(i) {
			t.Errorf("Rows[%d].Timestamp = %v, want %v", i, row.Timestamp, float64(i))
		}
	}
}

func TestBufferedPolicy_FlushFailurePreservesRows(t *testing.T) {
	sink := NewStubSink()
	p, err := NewBufferedPolicy(sink, BufferedConfig{MaxBufferRows: 100})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		if err := p.IngestRow(ctx, testRow(float64(i), 0x100)); err != nil {
			t.Fatalf("IngestRow() error: %v", err)
		}
	}

	sinkErr := errors.New("connection reset")
	sink.SetError(sinkErr)
	if err := p.Flush(ctx); !errors.Is(err, sinkErr) {
		t.Fatalf("Flush() error = %v, want %v", err, sinkErr)
	}
	if got := p.Stats().BufferedRows; got != 7 {
		t.Errorf("BufferedRows = %d, want 7 after failed flush", got)
	}

	// Retry succeeds without losing rows
	sink.SetError(nil)
	if err := p.Flush(ctx); err != nil {
		t.Fatalf("Flush() retry error: %v", err)
	}
	if got := sink.Stats().RowsWritten; got != 7 {
		t.Errorf("RowsWritten = %d, want 7 after retry", got)
	}
	for i, row := range sink.Rows {
		if row.Timestamp != float64(i) {
			t.Errorf("Rows[%d].Timestamp = %v, want %v (order lost in retry)", i, row.Timestamp, float64(i))
		}
	}
}

func TestBufferedPolicy_CapacityFlushFailureSurfaces(t *testing.T) {
	sink := NewStubSink()
	sinkErr := errors.New("disk full")
	sink.SetError(sinkErr)

	p, err := NewBufferedPolicy(sink, BufferedConfig{MaxBufferRows: 3})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := p.IngestRow(ctx, testRow(float64(i), 0x100)); err != nil {
			t.Fatalf("IngestRow() error before capacity: %v", err)
		}
	}
	if err := p.IngestRow(ctx, testRow(2, 0x100)); !errors.Is(err, sinkErr) {
		t.Errorf("IngestRow() at capacity error = %v, want %v", err, sinkErr)
	}

	// All three rows still buffered
	if got := p.Stats().BufferedRows; got != 3 {
		t.Errorf("BufferedRows = %d, want 3", got)
	}
}

func TestBufferedPolicy_CloseFlushes(t *testing.T) {
	sink := NewStubSink()
	p, err := NewBufferedPolicy(sink, BufferedConfig{MaxBufferRows: 100})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 4; i++ {
		if err := p.IngestRow(context.Background(), testRow(float64(i), 0x100)); err != nil {
			t.Fatalf("IngestRow() error: %v", err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	stats := sink.Stats()
	if stats.RowsWritten != 4 {
		t.Errorf("RowsWritten = %d, want 4 after close", stats.RowsWritten)
	}
	if !stats.Closed {
		t.Error("sink not closed")
	}
}

func TestBufferedPolicy_Stats(t *testing.T) {
	sink := NewStubSink()
	p, err := NewBufferedPolicy(sink, BufferedConfig{MaxBufferRows: 5})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		if err := p.IngestRow(ctx, testRow(float64(i), 0x100)); err != nil {
			t.Fatalf("IngestRow() error: %v", err)
		}
	}

	stats := p.Stats()
	if stats.TotalRows != 8 {
		t.Errorf("TotalRows = %d, want 8", stats.TotalRows)
	}
	if stats.RowsPersisted != 5 {
		t.Errorf("RowsPersisted = %d, want 5 (one capacity flush)", stats.RowsPersisted)
	}
	if stats.BufferedRows != 3 {
		t.Errorf("BufferedRows = %d, want 3", stats.BufferedRows)
	}
	if stats.FlushCount != 1 {
		t.Errorf("FlushCount = %d, want 1", stats.FlushCount)
	}
}
