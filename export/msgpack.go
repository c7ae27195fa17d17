package export

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/canmill/policy"
	"github.com/pithecene-io/canmill/types"
)

// MsgpackSink encodes rows as a MessagePack stream in encounter order.
// Each row is one self-describing Record, decodable with a streaming
// decoder. The encoded stream is held in memory and written to the
// store at Close.
type MsgpackSink struct {
	store Store
	part  Partition

	mu     sync.Mutex
	buf    bytes.Buffer
	enc    *msgpack.Encoder
	closed bool
}

// NewMsgpackSink creates a MessagePack sink writing rows.msgpack into
// the partition.
func NewMsgpackSink(store Store, part Partition) *MsgpackSink {
	s := &MsgpackSink{
		store: store,
		part:  part,
	}
	s.enc = msgpack.NewEncoder(&s.buf)
	return s
}

// WriteRows encodes the rows immediately.
func (s *MsgpackSink) WriteRows(_ context.Context, rows []types.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range rows {
		if err := s.enc.Encode(recordFor(row)); err != nil {
			return fmt.Errorf("encode msgpack row: %w", err)
		}
	}
	return nil
}

// Close writes the encoded stream to the store.
func (s *MsgpackSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), putTimeout)
	defer cancel()
	return s.store.Put(ctx, s.part.Key("rows.msgpack"), s.buf.Bytes())
}

// Verify MsgpackSink implements policy.Sink.
var _ policy.Sink = (*MsgpackSink)(nil)
