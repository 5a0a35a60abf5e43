package reentry

import (
	"context"
	"sync/atomic"

	"github.com/loykin/taskbridge/internal/common"
)

// Foreground tracks whether the app is visible and delivers the pending
// action when it becomes so.
type Foreground struct {
	visible atomic.Bool
	mailbox Mailbox
	logger  *common.Logger
}

// NewForeground starts in the background.
func NewForeground(mb Mailbox) *Foreground {
	if mb == nil {
		mb = NewMemoryMailbox()
	}
	return &Foreground{mailbox: mb, logger: common.GetLogger().WithComponent("reentry")}
}

// Mailbox returns the mailbox surfaces post to
func (f *Foreground) Mailbox() Mailbox { return f.mailbox }

// Activate marks the app visible and takes the pending action, if any.
// Mailbox errors are logged and reported as no action.
func (f *Foreground) Activate(ctx context.Context) (Action, bool) {
	f.visible.Store(true)
	a, ok, err := f.mailbox.Take(ctx)
	if err != nil {
		f.logger.Error("failed to take pending action", "error", err)
		return Action{}, false
	}
	if ok {
		f.logger.Info("delivering re-entry action", "action", a.String())
	}
	return a, ok
}

// Background marks the app hidden
func (f *Foreground) Background() {
	f.visible.Store(false)
}

// IsForeground reports whether the app is currently visible
func (f *Foreground) IsForeground() bool {
	return f.visible.Load()
}
