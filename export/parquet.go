package export

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/parquet-go/parquet-go"

	"github.com/pithecene-io/canmill/policy"
	"github.com/pithecene-io/canmill/types"
)

// ParquetSink renders rows as one wide parquet file.
//
// The schema is derived from the layout up front: timestamp is a
// required double, every signal becomes an optional double column
// ("Message.signal"), and signals with labels get an additional
// optional string column ("Message.signal_label"). Rows are sorted by
// timestamp at Close, when the finished object is written to the store.
type ParquetSink struct {
	store  Store
	part   Partition
	schema *parquet.Schema

	mu     sync.Mutex
	rows   []types.Row
	closed bool
}

// NewParquetSink creates a parquet sink writing rows.parquet into the
// partition, with a schema derived from layout.
func NewParquetSink(store Store, part Partition, layout *types.Layout) *ParquetSink {
	return &ParquetSink{
		store:  store,
		part:   part,
		schema: parquetSchema(layout),
	}
}

func parquetSchema(layout *types.Layout) *parquet.Schema {
	group := parquet.Group{
		"timestamp": parquet.Leaf(parquet.DoubleType),
	}
	for _, msg := range layout.Messages() {
		for i := range msg.Signals {
			sig := &msg.Signals[i]
			col := msg.Name + "." + sig.Name
			group[col] = parquet.Optional(parquet.Leaf(parquet.DoubleType))
			if len(sig.Labels) > 0 {
				group[col+"_label"] = parquet.Optional(parquet.String())
			}
		}
	}
	return parquet.NewSchema("rows", group)
}

// WriteRows buffers the rows.
func (s *ParquetSink) WriteRows(_ context.Context, rows []types.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows = append(s.rows, rows...)
	return nil
}

// Close encodes the buffered rows and writes the file to the store.
func (s *ParquetSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	sort.SliceStable(s.rows, func(i, j int) bool {
		return s.rows[i].Timestamp < s.rows[j].Timestamp
	})

	var buf bytes.Buffer
	w := parquet.NewGenericWriter[map[string]any](&buf, s.schema)

	for _, row := range s.rows {
		if _, err := w.Write([]map[string]any{rowColumns(row)}); err != nil {
			return fmt.Errorf("encode parquet row: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize parquet: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), putTimeout)
	defer cancel()
	return s.store.Put(ctx, s.part.Key("rows.parquet"), buf.Bytes())
}

// rowColumns maps a row onto the wide column space.
// Absent columns become nulls.
func rowColumns(row types.Row) map[string]any {
	columns := make(map[string]any, len(row.Signals)+1)
	columns["timestamp"] = row.Timestamp
	for _, sig := range row.Signals {
		col := row.Message + "." + sig.Name
		columns[col] = sig.Value
		if sig.Label != "" {
			columns[col+"_label"] = sig.Label
		}
	}
	return columns
}

// Verify ParquetSink implements policy.Sink.
var _ policy.Sink = (*ParquetSink)(nil)
