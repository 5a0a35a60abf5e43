package notify

import (
	"fmt"
	"strings"

	"github.com/loykin/taskbridge/internal/reentry"
)

// Progress sentinels. Values 0..100 are a percentage; anything above 100 is
// shown as 100 and any other negative value means idle.
const (
	ProgressNone               = -1
	ProgressSyncing            = -2
	ProgressActiveNoPercentage = -3
)

// Mode is the state of the persistent notification.
type Mode int

const (
	ModeInert Mode = iota
	ModeIdle
	ModeSyncing
	ModeActiveTask
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeSyncing:
		return "syncing"
	case ModeActiveTask:
		return "active"
	default:
		return "inert"
	}
}

// State is what the app pushes through the bridge.
type State struct {
	Title      string `json:"title"`
	Message    string `json:"message"`
	Progress   int    `json:"progress"`
	Actionable bool   `json:"actionable"`
}

// Mode derives the notification mode from the progress value
func (s State) Mode() Mode {
	switch {
	case s.Progress == ProgressSyncing:
		return ModeSyncing
	case s.Progress == ProgressActiveNoPercentage, s.Progress >= 0:
		return ModeActiveTask
	default:
		return ModeIdle
	}
}

// Indicator is the progress widget drawn under the text.
type Indicator int

const (
	IndicatorNone Indicator = iota
	IndicatorSpinner
	IndicatorBar
	IndicatorPulse
)

// Button is a notification action. Invoking it only posts Action.
type Button struct {
	Label  string
	Action reentry.Action
}

// Rendering is the fully resolved content handed to a Surface.
type Rendering struct {
	Mode      Mode
	Title     string
	Message   string
	Indicator Indicator
	Percent   int
	Buttons   []Button
}

// Button returns the button carrying code, if shown
func (r Rendering) Button(code reentry.Code) (Button, bool) {
	for _, b := range r.Buttons {
		if b.Action.Code == code {
			return b, true
		}
	}
	return Button{}, false
}

const barWidth = 20

func (r Rendering) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", r.Mode, r.Title)
	if r.Message != "" {
		fmt.Fprintf(&b, ": %s", r.Message)
	}
	switch r.Indicator {
	case IndicatorSpinner:
		b.WriteString(" (syncing...)")
	case IndicatorPulse:
		b.WriteString(" [" + strings.Repeat("~", barWidth) + "]")
	case IndicatorBar:
		filled := r.Percent * barWidth / 100
		fmt.Fprintf(&b, " [%s%s] %d%%", strings.Repeat("#", filled), strings.Repeat("-", barWidth-filled), r.Percent)
	}
	if len(r.Buttons) > 0 {
		labels := make([]string, len(r.Buttons))
		for i, btn := range r.Buttons {
			labels[i] = btn.Label
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(labels, "|"))
	}
	return b.String()
}

// build resolves a pushed state into what the surface draws.
func build(s State) Rendering {
	r := Rendering{Mode: s.Mode(), Title: s.Title, Message: s.Message}
	switch r.Mode {
	case ModeSyncing:
		r.Indicator = IndicatorSpinner
	case ModeActiveTask:
		if s.Progress == ProgressActiveNoPercentage {
			r.Indicator = IndicatorPulse
		} else {
			r.Indicator = IndicatorBar
			r.Percent = min(s.Progress, 100)
		}
		if s.Actionable {
			r.Buttons = []Button{
				{Label: "Pause", Action: reentry.Action{Code: reentry.CodePause, Source: reentry.SourceNotification}},
				{Label: "Done", Action: reentry.Action{Code: reentry.CodeDone, Source: reentry.SourceNotification}},
			}
		}
	}
	return r
}
