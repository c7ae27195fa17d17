package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pithecene-io/canmill/policy"
	"github.com/pithecene-io/canmill/types"
)

// JSONLSink encodes rows as newline-delimited JSON in encounter order.
// Each row is one self-describing Record. The encoded stream is held in
// memory and written to the store at Close.
type JSONLSink struct {
	store Store
	part  Partition

	mu     sync.Mutex
	buf    bytes.Buffer
	enc    *json.Encoder
	closed bool
}

// NewJSONLSink creates a JSONL sink writing rows.jsonl into the partition.
func NewJSONLSink(store Store, part Partition) *JSONLSink {
	s := &JSONLSink{
		store: store,
		part:  part,
	}
	s.enc = json.NewEncoder(&s.buf)
	return s
}

// WriteRows encodes the rows immediately.
func (s *JSONLSink) WriteRows(_ context.Context, rows []types.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range rows {
		if err := s.enc.Encode(recordFor(row)); err != nil {
			return fmt.Errorf("encode jsonl row: %w", err)
		}
	}
	return nil
}

// Close writes the encoded stream to the store.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), putTimeout)
	defer cancel()
	return s.store.Put(ctx, s.part.Key("rows.jsonl"), s.buf.Bytes())
}

// Verify JSONLSink implements policy.Sink.
var _ policy.Sink = (*JSONLSink)(nil)
