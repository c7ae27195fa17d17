package policy

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStreamingPolicy_InvalidConfig(t *testing.T) {
	if _, err := NewStreamingPolicy(NewStubSink(), StreamingConfig{}); !errors.Is(err, ErrStreamingInvalidConfig) {
		t.Errorf("NewStreamingPolicy() error = %v, want %v", err, ErrStreamingInvalidConfig)
	}
}

func TestStreamingPolicy_CountTrigger(t *testing.T) {
	sink := NewStubSink()
	p, err := NewStreamingPolicy(sink, StreamingConfig{FlushCount: 5})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		if err := p.IngestRow(ctx, testRow(float64(i), 0x100)); err != nil {
			t.Fatalf("IngestRow() error: %v", err)
		}
	}

	stats := sink.Stats()
	if stats.RowsWritten != 10 {
		t.Errorf("RowsWritten = %d, want 10 (two count flushes)", stats.RowsWritten)
	}
	if stats.Batches != 2 {
		t.Errorf("Batches = %d, want 2", stats.Batches)
	}

	triggers := p.FlushTriggerStats()
	if triggers[FlushTriggerCount] != 2 {
		t.Errorf("count triggers = %d, want 2", triggers[FlushTriggerCount])
	}
}

func TestStreamingPolicy_TerminationFlush(t *testing.T) {
	sink := NewStubSink()
	p, err := NewStreamingPolicy(sink, StreamingConfig{FlushCount: 100})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := p.IngestRow(ctx, testRow(float64(i), 0x100)); err != nil {
			t.Fatalf("IngestRow() error: %v", err)
		}
	}
	if err := p.Flush(ctx); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	if got := sink.Stats().RowsWritten; got != 3 {
		t.Errorf("RowsWritten = %d, want 3", got)
	}
	if got := p.FlushTriggerStats()[FlushTriggerTermination]; got != 1 {
		t.Errorf("termination triggers = %d, want 1", got)
	}
}

func TestStreamingPolicy_IntervalTrigger(t *testing.T) {
	sink := NewStubSink()
	p, err := NewStreamingPolicy(sink, StreamingConfig{FlushInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if err := p.IngestRow(context.Background(), testRow(1, 0x100)); err != nil {
		t.Fatalf("IngestRow() error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sink.Stats().RowsWritten == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("interval flush did not fire: RowsWritten = %d", sink.Stats().RowsWritten)
}

func TestStreamingPolicy_FlushFailurePreservesRows(t *testing.T) {
	sink := NewStubSink()
	p, err := NewStreamingPolicy(sink, StreamingConfig{FlushCount: 100})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		if err := p.IngestRow(ctx, testRow(float64(i), 0x100)); err != nil {
			t.Fatalf("IngestRow() error: %v", err)
		}
	}

	sinkErr := errors.New("remote unavailable")
	sink.SetError(sinkErr)
	if err := p.Flush(ctx); !errors.Is(err, sinkErr) {
		t.Fatalf("Flush() error = %v, want %v", err, sinkErr)
	}
	if got := p.Stats().BufferedRows; got != 6 {
		t.Errorf("BufferedRows = %d, want 6 after failed flush", got)
	}

	sink.SetError(nil)
	if err := p.Flush(ctx); err != nil {
		t.Fatalf("Flush() retry error: %v", err)
	}
	if got := sink.Stats().RowsWritten; got != 6 {
		t.Errorf("RowsWritten = %d, want 6 after retry", got)
	}
	for i, row := range sink.Rows {
		if row.Timestamp != float64(i) {
			t.Errorf("Rows[%d].Timestamp = %v, want %v", i, row.Timestamp, float64(i))
		}
	}
}

func TestStreamingPolicy_CloseFlushesAndStops(t *testing.T) {
	sink := NewStubSink()
	p, err := NewStreamingPolicy(sink, StreamingConfig{FlushCount: 100, FlushInterval: time.Hour})
	if err != nil {
		t.Fatal(err)
	}

	if err := p.IngestRow(context.Background(), testRow(1, 0x100)); err != nil {
		t.Fatalf("IngestRow() error: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	stats := sink.Stats()
	if stats.RowsWritten != 1 {
		t.Errorf("RowsWritten = %d, want 1 after close", stats.RowsWritten)
	}
	if !stats.Closed {
		t.Error("sink not closed")
	}

	// Second close must not panic on the closed stop channel
	if err := p.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}
}
