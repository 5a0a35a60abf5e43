package reentry

import (
	"fmt"
	"strings"
)

// Code is the intent a notification or widget tap hands back to the app.
type Code string

const (
	CodeNone    Code = ""
	CodePause   Code = "PAUSE"
	CodeDone    Code = "DONE"
	CodeAddTask Code = "ADD_TASK"
)

// ParseCode accepts the wire names case-insensitively. "" and "none" map to CodeNone.
func ParseCode(s string) (Code, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NONE":
		return CodeNone, nil
	case string(CodePause):
		return CodePause, nil
	case string(CodeDone):
		return CodeDone, nil
	case string(CodeAddTask):
		return CodeAddTask, nil
	default:
		return CodeNone, fmt.Errorf("unknown action code %q", s)
	}
}

// Source identifies which surface produced an action.
type Source string

const (
	SourceNotification Source = "notification"
	SourceWidget       Source = "widget"
)

// Valid reports whether s is a known surface
func (s Source) Valid() bool {
	return s == SourceNotification || s == SourceWidget
}

// Action is delivered to the app on its next foreground activation. It never
// mutates tasks itself; the app decides what PAUSE or DONE means.
type Action struct {
	Code   Code   `json:"code"`
	Source Source `json:"source"`
	TaskID string `json:"taskId,omitempty"`
}

// IsZero reports whether a carries no intent at all
func (a Action) IsZero() bool {
	return a.Code == CodeNone && a.TaskID == ""
}

func (a Action) String() string {
	code := string(a.Code)
	if code == "" {
		code = "NONE"
	}
	if a.TaskID != "" {
		return fmt.Sprintf("%s/%s(%s)", a.Source, code, a.TaskID)
	}
	return fmt.Sprintf("%s/%s", a.Source, code)
}
