package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/canmill/runtime"
)

// topIDRows caps the per-identifier table in the stats view.
const topIDRows = 10

// StatsModel is a Bubble Tea model for the session stats view.
type StatsModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(viewType string, data any) StatsModel {
	return StatsModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case "stats_session":
		content = m.renderSessionStats()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m StatsModel) renderSessionStats() string {
	report, ok := m.data.(*runtime.SessionReport)
	if !ok {
		return "Invalid data type for stats_session"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Session Statistics"))
	b.WriteString("\n\n")

	b.WriteString(m.renderHeader(report))
	b.WriteString("\n\n")

	var corrected int64
	for _, adj := range report.Adjustments {
		corrected += adj.Count
	}

	top := []string{
		m.renderStatBox("Frames", report.Totals.Frames, highlightColor),
		m.renderStatBox("Decoded", report.Totals.Decoded, successColor),
		m.renderStatBox("Signals", report.Totals.Signals, primaryColor),
	}
	bottom := []string{
		m.renderStatBox("Corrected", corrected, warningColor),
		m.renderStatBox("Errors", report.Totals.Errors, errorColor),
		m.renderStatBox("Skipped", report.LinesSkipped, mutedColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, top...))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, bottom...))

	if table := m.renderTopIDs(report); table != "" {
		b.WriteString("\n\n")
		b.WriteString(table)
	}

	return b.String()
}

func (m StatsModel) renderHeader(report *runtime.SessionReport) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("%s %s\n",
		LabelStyle.Render("Run ID:"),
		ValueStyle.Render(report.RunID)))
	if report.Input != "" {
		b.WriteString(fmt.Sprintf("%s %s\n",
			LabelStyle.Render("Input:"),
			ValueStyle.Render(report.Input)))
	}
	if report.Schema != "" {
		b.WriteString(fmt.Sprintf("%s %s\n",
			LabelStyle.Render("Schema:"),
			ValueStyle.Render(report.Schema)))
	}
	b.WriteString(fmt.Sprintf("%s %s\n",
		LabelStyle.Render("Outcome:"),
		OutcomeStyle(string(report.Outcome)).Render(string(report.Outcome))))
	b.WriteString(fmt.Sprintf("%s %s",
		LabelStyle.Render("Duration:"),
		ValueStyle.Render(fmt.Sprintf("%dms", report.DurationMs))))

	return BoxStyle.Render(b.String())
}

// renderTopIDs renders the busiest identifiers, most seen first.
func (m StatsModel) renderTopIDs(report *runtime.SessionReport) string {
	if len(report.PerID) == 0 {
		return ""
	}

	entries := make([]runtime.ReportIDEntry, len(report.PerID))
	copy(entries, report.PerID)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Seen > entries[j].Seen })
	if len(entries) > topIDRows {
		entries = entries[:topIDRows]
	}

	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(highlightColor).Render("Top Identifiers"))
	b.WriteString("\n")
	b.WriteString(LabelStyle.Width(0).Render(
		fmt.Sprintf("%-10s %8s %8s %10s", "CAN-ID", "Seen", "Decoded", "Corrected")))
	for _, e := range entries {
		b.WriteString("\n")
		b.WriteString(ValueStyle.Render(
			fmt.Sprintf("%-10s %8d %8d %10d", e.ID, e.Seen, e.Decoded, e.Corrected)))
	}

	return b.String()
}

func (m StatsModel) renderStatBox(label string, value int64, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}

// RunStatsTUI runs the stats TUI.
func RunStatsTUI(viewType string, data any) error {
	model := NewStatsModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatsStatic renders stats data without full TUI (for fallback).
func RenderStatsStatic(viewType string, data any) string {
	model := NewStatsModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
