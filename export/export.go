// Package export persists decoded rows to files or object storage.
//
// Row sinks implement policy.Sink, so any policy can drive any format.
// Finished objects land under hive-style partition keys, letting decoded
// datasets from many sessions share one store.
package export

import (
	"fmt"
	"path"
	"time"

	"github.com/pithecene-io/canmill/policy"
	"github.com/pithecene-io/canmill/types"
)

// Format identifiers accepted by NewSink.
const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
	FormatJSONL   = "jsonl"
	FormatMsgpack = "msgpack"
)

// DefaultDataset is the dataset partition name when none is configured.
const DefaultDataset = "canmill"

// putTimeout bounds the final object write at sink close.
const putTimeout = 30 * time.Second

// Partition identifies where a session's exported objects land.
// All keys are required.
type Partition struct {
	// Dataset is the top-level dataset name (defaults to "canmill").
	Dataset string
	// Source is the partition key for the input log, its base filename.
	Source string
	// Day is the partition key derived from the first frame timestamp
	// (YYYY-MM-DD UTC).
	Day string
	// RunID is the partition key for the session identifier.
	RunID string
}

// Key computes the hive-partitioned object key for a filename.
// Format: dataset=<ds>/source=<s>/day=<d>/run_id=<r>/<filename>
func (p Partition) Key(filename string) string {
	return fmt.Sprintf("dataset=%s/source=%s/day=%s/run_id=%s/%s",
		p.Dataset, p.Source, p.Day, p.RunID, filename)
}

// DeriveDay computes the partition day from a frame timestamp.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(ts float64) string {
	sec := int64(ts)
	return time.Unix(sec, 0).UTC().Format("2006-01-02")
}

// Record is the self-describing row shape used by the JSONL and
// MessagePack sinks.
type Record struct {
	Timestamp float64            `json:"timestamp" msgpack:"timestamp"`
	ID        string             `json:"id" msgpack:"id"`
	Message   string             `json:"message" msgpack:"message"`
	Signals   map[string]float64 `json:"signals" msgpack:"signals"`
	Labels    map[string]string  `json:"labels,omitempty" msgpack:"labels,omitempty"`
}

func recordFor(row types.Row) Record {
	rec := Record{
		Timestamp: row.Timestamp,
		ID:        fmt.Sprintf("0x%X", row.ID),
		Message:   row.Message,
		Signals:   make(map[string]float64, len(row.Signals)),
	}
	for _, sig := range row.Signals {
		rec.Signals[sig.Name] = sig.Value
		if sig.Label != "" {
			if rec.Labels == nil {
				rec.Labels = make(map[string]string)
			}
			rec.Labels[sig.Name] = sig.Label
		}
	}
	return rec
}

// NewSink creates a row sink for the given format writing to store.
// The layout is only required by the parquet format, which derives its
// schema from it; other formats ignore it.
func NewSink(format string, store Store, part Partition, layout *types.Layout) (policy.Sink, error) {
	switch format {
	case FormatCSV:
		return NewCSVSink(store, part), nil
	case FormatParquet:
		return NewParquetSink(store, part, layout), nil
	case FormatJSONL:
		return NewJSONLSink(store, part), nil
	case FormatMsgpack:
		return NewMsgpackSink(store, part), nil
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

// contentTypeFor maps an object key to its MIME content type.
func contentTypeFor(key string) string {
	switch path.Ext(key) {
	case ".csv":
		return "text/csv"
	case ".jsonl":
		return "application/x-ndjson"
	case ".json":
		return "application/json"
	case ".parquet":
		return "application/vnd.apache.parquet"
	case ".msgpack":
		return "application/msgpack"
	default:
		return "application/octet-stream"
	}
}
