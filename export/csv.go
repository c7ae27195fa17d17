package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/pithecene-io/canmill/policy"
	"github.com/pithecene-io/canmill/types"
)

// CSVSink renders rows as one wide CSV table.
//
// Columns are qualified signal names ("Message.signal") in first-seen
// order, with timestamp first. Rows are sorted by timestamp at Close;
// cells for signals absent from a row stay empty. Labeled values render
// as the label string, numeric otherwise.
//
// The whole table is buffered in memory until Close, when the finished
// object is written to the store.
type CSVSink struct {
	store Store
	part  Partition

	mu     sync.Mutex
	rows   []types.Row
	cols   []string
	seen   map[string]int
	closed bool
}

// NewCSVSink creates a CSV sink writing rows.csv into the partition.
func NewCSVSink(store Store, part Partition) *CSVSink {
	return &CSVSink{
		store: store,
		part:  part,
		seen:  make(map[string]int),
	}
}

// WriteRows buffers the rows and tracks new columns.
func (s *CSVSink) WriteRows(_ context.Context, rows []types.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range rows {
		for _, sig := range row.Signals {
			col := row.Message + "." + sig.Name
			if _, ok := s.seen[col]; !ok {
				s.seen[col] = len(s.cols)
				s.cols = append(s.cols, col)
			}
		}
	}
	s.rows = append(s.rows, rows...)
	return nil
}

// Close renders the table and writes it to the store.
func (s *CSVSink) Close() error {
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
	w := csv.NewWriter(&buf)

	header := make([]string, 0, len(s.cols)+1)
	header = append(header, "timestamp")
	header = append(header, s.cols...)
	_ = w.Write(header)

	for _, row := range s.rows {
		record := make([]string, len(header))
		record[0] = strconv.FormatFloat(row.Timestamp, 'f', -1, 64)
		for _, sig := range row.Signals {
			idx, ok := s.seen[row.Message+"."+sig.Name]
			if !ok {
				continue
			}
			if sig.Label != "" {
				record[idx+1] = sig.Label
			} else {
				record[idx+1] = strconv.FormatFloat(sig.Value, 'f', -1, 64)
			}
		}
		_ = w.Write(record)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode csv: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), putTimeout)
	defer cancel()
	return s.store.Put(ctx, s.part.Key("rows.csv"), buf.Bytes())
}

// Verify CSVSink implements policy.Sink.
var _ policy.Sink = (*CSVSink)(nil)
