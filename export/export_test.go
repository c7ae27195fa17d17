package export

import (
	"testing"

	"github.com/pithecene-io/canmill/types"
)

func TestPartition_Key(t *testing.T) {
	p := Partition{
		Dataset: "canmill",
		Source:  "drive.log",
		Day:     "2026-08-25",
		RunID:   "run-123",
	}

	got := p.Key("rows.csv")
	want := "dataset=canmill/source=drive.log/day=2026-08-25/run_id=run-123/rows.csv"
	if got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}

func TestDeriveDay(t *testing.T) {
	tests := []struct {
		ts   float64
		want string
	}{
		{1234567890.234567, "2009-02-13"},
		{0, "1970-01-01"},
		{1756080000.0, "2025-08-25"},
	}
	for _, tt := range tests {
		if got := DeriveDay(tt.ts); got != tt.want {
			t.Errorf("DeriveDay(%v) = %q, want %q", tt.ts, got, tt.want)
		}
	}
}

func TestNewSink_Formats(t *testing.T) {
	store := NewStubStore()
	part := Partition{Dataset: "canmill", Source: "a.log", Day: "2026-01-01", RunID: "r"}
	layout, err := types.NewLayout(nil)
	if err != nil {
		t.Fatal(err)
	}

	for _, format := range []string{FormatCSV, FormatParquet, FormatJSONL, FormatMsgpack} {
		sink, err := NewSink(format, store, part, layout)
		if err != nil {
			t.Errorf("NewSink(%q) error: %v", format, err)
			continue
		}
		if sink == nil {
			t.Errorf("NewSink(%q) = nil", format)
		}
	}

	if _, err := NewSink("xml", store, part, layout); err == nil {
		t.Error("NewSink(xml): expected error, got nil")
	}
}
