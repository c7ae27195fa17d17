package runtime

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pithecene-io/canmill/stats"
	"github.com/pithecene-io/canmill/types"
)

// SessionReport is the structured JSON report written by --report.
// All fields use json tags matching the documented contract.
type SessionReport struct {
	RunID        string        `json:"run_id"`
	Input        string        `json:"input,omitempty"`
	Schema       string        `json:"schema,omitempty"`
	Outcome      OutcomeStatus `json:"outcome"`
	Message      string        `json:"message"`
	ExitCode     int           `json:"exit_code"`
	DurationMs   int64         `json:"duration_ms"`
	FramesRead   int64         `json:"frames_read"`
	LinesSkipped int64         `json:"lines_skipped"`

	Totals ReportTotals  `json:"totals"`
	Policy *ReportPolicy `json:"policy"`

	PerID       []ReportIDEntry    `json:"per_id,omitempty"`
	Adjustments []ReportAdjustment `json:"adjustments,omitempty"`
	Errors      []ReportError      `json:"errors,omitempty"`
}

// ReportTotals holds session-wide decode counts.
type ReportTotals struct {
	Frames  int64 `json:"frames"`
	Decoded int64 `json:"decoded"`
	Signals int64 `json:"signals"`
	// Errors counts all decode failures, including those beyond the
	// stored-error cap.
	Errors int64 `json:"errors"`
}

// ReportPolicy holds row ingestion stats in the report.
type ReportPolicy struct {
	Name          string `json:"name"`
	RowsReceived  int64  `json:"rows_received"`
	RowsPersisted int64  `json:"rows_persisted"`
	Flushes       int64  `json:"flushes"`
	Errors        int64  `json:"errors"`
}

// ReportIDEntry holds per-identifier counts, identifiers rendered as
// 0x-prefixed hex.
type ReportIDEntry struct {
	ID        string `json:"id"`
	Seen      int64  `json:"seen"`
	Decoded   int64  `json:"decoded"`
	Corrected int64  `json:"corrected"`
}

// ReportAdjustment summarizes payload corrections for one identifier.
type ReportAdjustment struct {
	ID    string                  `json:"id"`
	Count int64                   `json:"count"`
	First ReportAdjustmentExample `json:"first"`
}

// ReportAdjustmentExample is the earliest correction recorded for an
// identifier. Payloads are hex encoded.
type ReportAdjustmentExample struct {
	Timestamp float64 `json:"timestamp"`
	From      int     `json:"from"`
	To        int     `json:"to"`
	Original  string  `json:"original"`
	Adjusted  string  `json:"adjusted"`
}

// ReportError is one stored decode failure.
type ReportError struct {
	ID        string  `json:"id"`
	Timestamp float64 `json:"timestamp"`
	Message   string  `json:"message"`
}

// BuildSessionReport composes a SessionReport from a session result.
// The policyName is the policy name string (e.g. "strict", "buffered",
// "streaming").
func BuildSessionReport(result *SessionResult, policyName string) *SessionReport {
	snap := result.Stats

	report := &SessionReport{
		RunID:        result.RunID,
		Input:        result.Input,
		Schema:       result.Schema,
		Outcome:      result.Outcome.Status,
		Message:      result.Outcome.Message,
		ExitCode:     result.Outcome.ExitCode(),
		DurationMs:   result.Duration.Milliseconds(),
		FramesRead:   result.FramesRead,
		LinesSkipped: result.LinesSkipped,
		Totals: ReportTotals{
			Frames:  snap.TotalFrames,
			Decoded: snap.DecodedFrames,
			Signals: snap.TotalSignals,
			Errors:  snap.TotalErrors,
		},
		Policy: &ReportPolicy{
			Name:          policyName,
			RowsReceived:  result.PolicyStats.TotalRows,
			RowsPersisted: result.PolicyStats.RowsPersisted,
			Flushes:       result.PolicyStats.FlushCount,
			Errors:        result.PolicyStats.Errors,
		},
		PerID:       buildPerIDEntries(snap),
		Adjustments: groupAdjustments(snap),
	}

	for _, decErr := range snap.Errors {
		report.Errors = append(report.Errors, ReportError{
			ID:        fmt.Sprintf("0x%X", decErr.ID),
			Timestamp: decErr.Timestamp,
			Message:   decErr.Message,
		})
	}

	return report
}

// buildPerIDEntries renders per-identifier counts sorted by identifier.
func buildPerIDEntries(snap stats.Snapshot) []ReportIDEntry {
	if len(snap.PerID) == 0 {
		return nil
	}

	ids := make([]uint32, 0, len(snap.PerID))
	for id := range snap.PerID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	entries := make([]ReportIDEntry, 0, len(ids))
	for _, id := range ids {
		counters := snap.PerID[id]
		entries = append(entries, ReportIDEntry{
			ID:        fmt.Sprintf("0x%X", id),
			Seen:      counters.Seen,
			Decoded:   counters.Decoded,
			Corrected: counters.Corrected,
		})
	}
	return entries
}

// groupAdjustments collapses the adjustment list into one group per
// identifier, keeping the earliest correction as the example. Groups
// are sorted by identifier.
func groupAdjustments(snap stats.Snapshot) []ReportAdjustment {
	if len(snap.Adjustments) == 0 {
		return nil
	}

	type group struct {
		count int64
		first types.LengthAdjustment
	}
	byID := make(map[uint32]*group)
	for _, adj := range snap.Adjustments {
		if g, ok := byID[adj.ID]; ok {
			g.count++
			continue
		}
		byID[adj.ID] = &group{count: 1, first: adj}
	}

	ids := make([]uint32, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	groups := make([]ReportAdjustment, 0, len(ids))
	for _, id := range ids {
		g := byID[id]
		groups = append(groups, ReportAdjustment{
			ID:    fmt.Sprintf("0x%X", id),
			Count: g.count,
			First: ReportAdjustmentExample{
				Timestamp: g.first.Timestamp,
				From:      g.first.OriginalLength,
				To:        g.first.AdjustedLength,
				Original:  hex.EncodeToString(g.first.Original),
				Adjusted:  hex.EncodeToString(g.first.Adjusted),
			},
		})
	}
	return groups
}

// WriteSessionReport writes the report as JSON to the specified path.
// If path is "-", writes to stderr (stdout is reserved for decoded
// rows).
func WriteSessionReport(report *SessionReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}

	if path == "-" {
		return writeSessionReportTo(report, os.Stderr)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := writeSessionReportTo(report, f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// writeSessionReportTo writes report JSON to any writer (for testing).
func writeSessionReportTo(report *SessionReport, w io.Writer) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// PrintSessionSummary prints a human-readable session summary to stdout:
// totals, a per-identifier table, grouped payload corrections with the
// first example per identifier, and the stored decode errors.
func PrintSessionSummary(result *SessionResult, policyName string) {
	printSessionSummaryTo(os.Stdout, result, policyName)
}

func printSessionSummaryTo(w io.Writer, result *SessionResult, policyName string) {
	snap := result.Stats
	ps := result.PolicyStats

	fmt.Fprintf(w, "\n=== Session Summary ===\n")
	fmt.Fprintf(w, "Outcome:   %s (%s)\n", result.Outcome.Status, result.Outcome.Message)
	fmt.Fprintf(w, "Frames:    %d read, %d decoded, %d failed, %d lines skipped\n",
		result.FramesRead, snap.DecodedFrames, snap.TotalErrors, result.LinesSkipped)
	fmt.Fprintf(w, "Signals:   %d decoded\n", snap.TotalSignals)
	fmt.Fprintf(w, "Rows:      %d received, %d persisted, %d flushes (%s policy)\n",
		ps.TotalRows, ps.RowsPersisted, ps.FlushCount, policyName)
	fmt.Fprintf(w, "Duration:  %s\n", result.Duration)

	if len(snap.PerID) > 0 {
		fmt.Fprintf(w, "\n%8s | %8s | %8s | %9s\n", "CAN-ID", "Seen", "Decoded", "Corrected")
		fmt.Fprintln(w, strings.Repeat("-", 42))
		ids := make([]uint32, 0, len(snap.PerID))
		for id := range snap.PerID {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			counters := snap.PerID[id]
			fmt.Fprintf(w, "0x%06X | %8d | %8d | %9d\n",
				id, counters.Seen, counters.Decoded, counters.Corrected)
		}
	}

	if adjustments := groupAdjustments(snap); len(adjustments) > 0 {
		fmt.Fprintf(w, "\nPayload corrections:\n")
		for _, adj := range adjustments {
			fmt.Fprintf(w, "  %s: %d frames corrected, first example:\n", adj.ID, adj.Count)
			fmt.Fprintf(w, "    Timestamp: %s\n", formatTimestamp(adj.First.Timestamp))
			fmt.Fprintf(w, "    Length: %d → %d\n", adj.First.From, adj.First.To)
			fmt.Fprintf(w, "    Original: %s\n", adj.First.Original)
			fmt.Fprintf(w, "    Adjusted: %s\n", adj.First.Adjusted)
		}
	}

	if len(snap.Errors) > 0 {
		if snap.TotalErrors > int64(len(snap.Errors)) {
			fmt.Fprintf(w, "\nDecode errors (first %d of %d):\n", len(snap.Errors), snap.TotalErrors)
		} else {
			fmt.Fprintf(w, "\nDecode errors:\n")
		}
		for _, decErr := range snap.Errors {
			fmt.Fprintf(w, "  %s: 0x%X - %s\n",
				formatTimestamp(decErr.Timestamp), decErr.ID, decErr.Message)
		}
	}
}

// formatTimestamp renders a log timestamp in plain decimal. %v would
// switch to scientific notation for epoch-scale values.
func formatTimestamp(ts float64) string {
	return strconv.FormatFloat(ts, 'f', -1, 64)
}
