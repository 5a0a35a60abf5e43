package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/loykin/taskbridge/internal/common"
	"github.com/loykin/taskbridge/internal/constants"
	"github.com/loykin/taskbridge/internal/metrics"
	"github.com/loykin/taskbridge/internal/reentry"
	"github.com/loykin/taskbridge/internal/signal"
	"github.com/loykin/taskbridge/internal/snapshot"
	"github.com/loykin/taskbridge/internal/util"
)

var ErrNoSuchAction = errors.New("action is not offered by the current notification")

// Options configures a Controller. A nil Surface discards renderings.
type Options struct {
	Surface    Surface
	Emitter    signal.Emitter
	Snapshots  snapshot.Source
	Foreground *reentry.Foreground
	Metrics    *metrics.Metrics

	DefaultTitle   string
	DefaultMessage string
}

// Controller owns the persistent notification. Pushes only record state and
// signal; the Run loop re-renders from the latest state, so a burst of pushes
// costs one render.
type Controller struct {
	opts     Options
	state    atomic.Pointer[State]
	last     atomic.Pointer[Rendering]
	renderMu sync.Mutex
	logger   *common.Logger
}

func NewController(opts Options) *Controller {
	opts.DefaultTitle = util.TrimWithDefault(opts.DefaultTitle, constants.DefaultNotificationTitle)
	opts.DefaultMessage = util.TrimWithDefault(opts.DefaultMessage, constants.DefaultNotificationMessage)
	if opts.Surface == nil {
		opts.Surface = NewTextSurface(io.Discard)
	}
	if opts.Foreground == nil {
		opts.Foreground = reentry.NewForeground(nil)
	}
	return &Controller{opts: opts, logger: common.GetLogger().WithComponent("notification")}
}

// Push records s as the latest state. Without an emitter it renders inline.
func (c *Controller) Push(s State) {
	c.state.Store(&s)
	c.logger.Debug("state pushed", "mode", s.Mode().String(), "progress", s.Progress)
	if c.opts.Emitter == nil {
		c.Render(context.Background())
		return
	}
	c.opts.Emitter.Emit(signal.TopicNotification)
}

// State returns the latest pushed state, if any
func (c *Controller) State() (State, bool) {
	p := c.state.Load()
	if p == nil {
		return State{}, false
	}
	return *p, true
}

// Render draws the latest state. Surface errors are logged and swallowed.
func (c *Controller) Render(ctx context.Context) Rendering {
	c.renderMu.Lock()
	defer c.renderMu.Unlock()

	var r Rendering
	if s, ok := c.State(); ok {
		r = build(s)
	} else {
		r = c.inert(ctx)
	}
	if err := c.opts.Surface.Render(r); err != nil {
		c.logger.Error("failed to render notification", "error", err, "mode", r.Mode.String())
	}
	c.last.Store(&r)
	c.opts.Metrics.RecordNotification(r.Mode.String())
	return r
}

// Last returns the most recent rendering
func (c *Controller) Last() (Rendering, bool) {
	p := c.last.Load()
	if p == nil {
		return Rendering{}, false
	}
	return *p, true
}

func (c *Controller) inert(ctx context.Context) Rendering {
	r := Rendering{Mode: ModeInert, Title: c.opts.DefaultTitle, Message: c.opts.DefaultMessage}
	if c.opts.Snapshots == nil {
		return r
	}
	snap, err := c.opts.Snapshots.Load(ctx)
	if err != nil {
		c.logger.Warn("snapshot unavailable, showing default text", "error", err)
		return r
	}
	switch n := snap.OpenCount(); {
	case snap.IsEmpty() || n == 0:
	case n == 1:
		r.Message = "1 open task"
	default:
		r.Message = fmt.Sprintf("%d open tasks", n)
	}
	return r
}

// Run renders once, then again on every wake-up until ctx ends or wake closes.
func (c *Controller) Run(ctx context.Context, wake <-chan struct{}) error {
	c.Render(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-wake:
			if !ok {
				return nil
			}
			c.opts.Metrics.RecordDelivery(string(signal.TopicNotification))
			c.Render(ctx)
		}
	}
}

// Invoke handles a tap on a notification button by posting its re-entry
// action. Buttons not on the current rendering are rejected.
func (c *Controller) Invoke(ctx context.Context, code reentry.Code) error {
	r, ok := c.Last()
	if !ok {
		return ErrNoSuchAction
	}
	btn, ok := r.Button(code)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchAction, code)
	}
	return c.opts.Foreground.Mailbox().Post(ctx, btn.Action)
}

// ShowAlert shows a one-shot notification. An empty or "undefined" body is omitted.
func (c *Controller) ShowAlert(title, body string) {
	a := Alert{Title: util.TrimWithDefault(title, c.opts.DefaultTitle)}
	if !util.IsUndefined(body) {
		a.Body = body
	}
	if err := c.opts.Surface.Alert(a); err != nil {
		c.logger.Error("failed to show alert", "error", err)
	}
}

// ShowAlertIfBackground shows the alert only while the app is not visible and
// reports whether it did.
func (c *Controller) ShowAlertIfBackground(title, body string) bool {
	if c.opts.Foreground.IsForeground() {
		return false
	}
	c.ShowAlert(title, body)
	return true
}
