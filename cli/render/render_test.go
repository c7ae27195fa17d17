package render

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Format
		wantErr bool
	}{
		{"json lowercase", "json", FormatJSON, false},
		{"json uppercase", "JSON", FormatJSON, false},
		{"table", "table", FormatTable, false},
		{"yaml", "yaml", FormatYAML, false},
		{"empty", "", "", false},
		{"invalid", "xml", "", true},
		{"invalid with message", "csv", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseFormat_InvalidErrorMessage(t *testing.T) {
	_, err := ParseFormat("xml")
	if err == nil {
		t.Fatal("expected error for invalid format")
	}
	if !strings.Contains(err.Error(), "json, table, or yaml") {
		t.Errorf("error message should mention valid formats, got: %v", err)
	}
}

func TestRenderer_JSON(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatJSON, false, &buf)

	data := map[string]string{"outcome": "completed"}
	if err := r.Render(data); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, `"outcome"`) || !strings.Contains(got, `"completed"`) {
		t.Errorf("JSON output missing expected content: %s", got)
	}
}

func TestRenderer_YAML(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatYAML, false, &buf)

	data := map[string]string{"outcome": "completed"}
	if err := r.Render(data); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "outcome:") || !strings.Contains(got, "completed") {
		t.Errorf("YAML output missing expected content: %s", got)
	}
}

func TestRenderer_Table_Struct(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, false, &buf)

	type summary struct {
		Message string `json:"message"`
		Frames  int    `json:"frames"`
	}

	data := summary{Message: "EngineStatus", Frames: 42}
	if err := r.Render(data); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "message:") || !strings.Contains(got, "EngineStatus") {
		t.Errorf("Table output missing message field: %s", got)
	}
	if !strings.Contains(got, "frames:") || !strings.Contains(got, "42") {
		t.Errorf("Table output missing frames field: %s", got)
	}
}

func TestRenderer_Table_Slice(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, false, &buf)

	type entry struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	data := []entry{
		{ID: "0x2B4", Name: "EngineStatus"},
		{ID: "0x3FF", Name: "BrakePressure"},
	}

	if err := r.Render(data); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	got := buf.String()
	// Should have header row
	if !strings.Contains(got, "id") || !strings.Contains(got, "name") {
		t.Errorf("Table output missing headers: %s", got)
	}
	// Should have data rows
	if !strings.Contains(got, "EngineStatus") || !strings.Contains(got, "BrakePressure") {
		t.Errorf("Table output missing data: %s", got)
	}
}

func TestRenderer_Table_EmptySlice(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, false, &buf)

	data := []string{}
	if err := r.Render(data); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "(no results)") {
		t.Errorf("Empty slice should show '(no results)', got: %s", got)
	}
}

func TestRenderer_Table_FloatNotation(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, false, &buf)

	type sample struct {
		Timestamp float64 `json:"timestamp"`
		Value     float64 `json:"value"`
	}

	data := sample{Timestamp: 1700000000.000125, Value: 0.4}
	if err := r.Render(data); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "1700000000.000125") {
		t.Errorf("timestamp should render in plain decimal, got: %s", got)
	}
	if strings.Contains(got, "e+") {
		t.Errorf("float output should not use scientific notation: %s", got)
	}
}

func TestRenderer_Table_NestedStruct(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, false, &buf)

	type totals struct {
		Frames  int `json:"frames"`
		Decoded int `json:"decoded"`
	}
	type idEntry struct {
		ID   string `json:"id"`
		Seen int    `json:"seen"`
	}
	type report struct {
		RunID  string    `json:"run_id"`
		Totals totals    `json:"totals"`
		PerID  []idEntry `json:"per_id"`
	}

	data := report{
		RunID:  "run-1",
		Totals: totals{Frames: 42, Decoded: 40},
		PerID: []idEntry{
			{ID: "0x2B4", Seen: 30},
			{ID: "0x100", Seen: 12},
		},
	}
	if err := r.Render(data); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	got := buf.String()
	// Nested struct fields flatten with dotted names.
	if !strings.Contains(got, "totals.frames:") || !strings.Contains(got, "totals.decoded:") {
		t.Errorf("nested struct should flatten to dotted rows: %s", got)
	}
	// Slice-of-struct fields render as a titled sub-table.
	if !strings.Contains(got, "per_id:") {
		t.Errorf("slice field should render a sub-table title: %s", got)
	}
	if !strings.Contains(got, "0x2B4") || !strings.Contains(got, "0x100") {
		t.Errorf("sub-table should list the slice rows: %s", got)
	}
}

func TestRenderer_Table_NilPointerField(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, false, &buf)

	type policy struct {
		Name string `json:"name"`
	}
	type report struct {
		RunID  string  `json:"run_id"`
		Policy *policy `json:"policy"`
	}

	if err := r.Render(report{RunID: "run-1"}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "run_id:") {
		t.Errorf("scalar fields should still render with a nil pointer field: %s", buf.String())
	}
}

func TestRenderer_Table_SliceWithNestedColumns(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, false, &buf)

	type example struct {
		Timestamp float64 `json:"timestamp"`
		From      int     `json:"from"`
		To        int     `json:"to"`
	}
	type adjustment struct {
		ID    string  `json:"id"`
		Count int     `json:"count"`
		First example `json:"first"`
	}

	data := []adjustment{
		{ID: "0x2B4", Count: 3, First: example{Timestamp: 1700000000.25, From: 2, To: 8}},
	}
	if err := r.Render(data); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	got := buf.String()
	for _, col := range []string{"first.timestamp", "first.from", "first.to"} {
		if !strings.Contains(got, col) {
			t.Errorf("nested slice element fields should become dotted columns, missing %q: %s", col, got)
		}
	}
	if !strings.Contains(got, "1700000000.25") {
		t.Errorf("nested column values should render in row order: %s", got)
	}
}

func TestRenderer_NoColor_DoesNotAffectJSON(t *testing.T) {
	// --no-color should not change JSON output
	var bufColor, bufNoColor bytes.Buffer

	rColor := NewRendererWithWriter(FormatJSON, false, &bufColor)
	rNoColor := NewRendererWithWriter(FormatJSON, true, &bufNoColor)

	data := map[string]string{"outcome": "completed"}

	if err := rColor.Render(data); err != nil {
		t.Fatalf("Render with color failed: %v", err)
	}
	if err := rNoColor.Render(data); err != nil {
		t.Fatalf("Render without color failed: %v", err)
	}

	if bufColor.String() != bufNoColor.String() {
		t.Errorf("--no-color should not affect JSON output")
	}
}
