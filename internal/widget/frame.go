package widget

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/loykin/taskbridge/internal/reentry"
	"github.com/loykin/taskbridge/internal/snapshot"
)

// RowHeight is the fixed height of every row, in lines.
const RowHeight = 1

const (
	DoneMarker     = "✓"
	EmptyStateText = "No tasks"
	AddTaskLabel   = "+ Add task"
)

// Theme holds the colours rows are drawn with.
type Theme struct {
	Emphasized string
	Muted      string
	Accent     string
}

// DefaultTheme matches a dark launcher background.
func DefaultTheme() Theme {
	return Theme{Emphasized: "#ECEFF4", Muted: "#6C7086", Accent: "#89B4FA"}
}

// TargetKind says what a click target points at.
type TargetKind string

const (
	TargetRow     TargetKind = "row"
	TargetAddTask TargetKind = "add_task"
)

// ClickTarget is a tappable region of the widget.
type ClickTarget struct {
	Kind   TargetKind `json:"kind"`
	TaskID string     `json:"taskId,omitempty"`
}

// Action is the re-entry action a tap on t posts. Row taps open the app on
// the task; they carry no code so they never collide with notification actions.
func (t ClickTarget) Action() reentry.Action {
	if t.Kind == TargetAddTask {
		return reentry.Action{Code: reentry.CodeAddTask, Source: reentry.SourceWidget}
	}
	return reentry.Action{Code: reentry.CodeNone, Source: reentry.SourceWidget, TaskID: t.TaskID}
}

// Row is one task line.
type Row struct {
	TaskID        string      `json:"taskId"`
	Title         string      `json:"title"`
	Marker        string      `json:"marker"`
	Color         string      `json:"color"`
	Strikethrough bool        `json:"strikethrough"`
	Done          bool        `json:"done"`
	Click         ClickTarget `json:"click"`
}

// RowFor maps a task onto its row
func RowFor(t snapshot.Task, theme Theme) Row {
	r := Row{
		TaskID: t.ID,
		Title:  t.Title,
		Done:   t.IsDone,
		Color:  theme.Emphasized,
		Click:  ClickTarget{Kind: TargetRow, TaskID: t.ID},
	}
	if t.IsDone {
		r.Marker = DoneMarker
		r.Color = theme.Muted
		r.Strikethrough = true
	}
	return r
}

// Frame is one complete widget render.
type Frame struct {
	Version uint64      `json:"version"`
	Rows    []Row       `json:"rows"`
	Empty   bool        `json:"empty"`
	AddTask ClickTarget `json:"addTask"`
	Theme   Theme       `json:"-"`
}

func emptyFrame(theme Theme) Frame {
	return Frame{Rows: []Row{}, Empty: true, AddTask: ClickTarget{Kind: TargetAddTask}, Theme: theme}
}

// lineBreaks flattens a title onto its single row.
var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\v", " ", "\f", " ")

// Height returns the rendered height of the row list in lines
func (f Frame) Height() int {
	return len(f.Rows) * RowHeight
}

// Render draws the frame as terminal text, width columns wide.
func (f Frame) Render(width int) string {
	if width < 8 {
		width = 8
	}
	theme := f.Theme
	if theme == (Theme{}) {
		theme = DefaultTheme()
	}

	lines := make([]string, 0, len(f.Rows)+1)
	if f.Empty || len(f.Rows) == 0 {
		muted := lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Muted)).Italic(true)
		lines = append(lines, lipgloss.PlaceHorizontal(width, lipgloss.Center, muted.Render(EmptyStateText)))
	}
	for _, r := range f.Rows {
		marker := lipgloss.NewStyle().Width(2).Foreground(lipgloss.Color(theme.Accent)).Render(r.Marker)
		title := lipgloss.NewStyle().
			Foreground(lipgloss.Color(r.Color)).
			Strikethrough(r.Strikethrough).
			Height(RowHeight).
			MaxHeight(RowHeight).
			MaxWidth(width - 2).
			Render(lineBreaks.Replace(r.Title))
		lines = append(lines, marker+title)
	}
	add := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(theme.Accent)).Render(AddTaskLabel)
	lines = append(lines, add)
	return strings.Join(lines, "\n")
}
