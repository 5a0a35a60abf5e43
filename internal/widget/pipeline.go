package widget

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/loykin/taskbridge/internal/common"
	"github.com/loykin/taskbridge/internal/metrics"
	"github.com/loykin/taskbridge/internal/reentry"
	"github.com/loykin/taskbridge/internal/signal"
	"github.com/loykin/taskbridge/internal/snapshot"
)

var ErrNoMailbox = errors.New("widget has no re-entry mailbox")

// Options configures a Pipeline. Source is required.
type Options struct {
	Source  snapshot.Source
	Mailbox reentry.Mailbox
	Theme   Theme
	Metrics *metrics.Metrics
}

// Pipeline turns host lifecycle callbacks into frames. It keeps no task
// state of its own: every callback re-reads the latest snapshot.
type Pipeline struct {
	opts   Options
	last   atomic.Pointer[Frame]
	logger *common.Logger
}

func NewPipeline(opts Options) *Pipeline {
	if opts.Theme == (Theme{}) {
		opts.Theme = DefaultTheme()
	}
	return &Pipeline{opts: opts, logger: common.GetLogger().WithComponent("widget")}
}

// OnCreate is called when the host first lays the widget out.
func (p *Pipeline) OnCreate(ctx context.Context) Frame {
	return p.refresh(ctx, "create")
}

// OnInvalidate is called on a scheduled or requested refresh.
func (p *Pipeline) OnInvalidate(ctx context.Context) Frame {
	return p.refresh(ctx, "invalidate")
}

// Last returns the most recent frame
func (p *Pipeline) Last() (Frame, bool) {
	f := p.last.Load()
	if f == nil {
		return Frame{}, false
	}
	return *f, true
}

func (p *Pipeline) refresh(ctx context.Context, reason string) (frame Frame) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("widget refresh panicked, showing empty state", "reason", reason, "panic", fmt.Sprint(r))
			frame = emptyFrame(p.opts.Theme)
		}
		p.last.Store(&frame)
		p.opts.Metrics.RecordWidgetRender()
	}()

	frame = emptyFrame(p.opts.Theme)
	if p.opts.Source == nil {
		return frame
	}
	snap, err := p.opts.Source.Load(ctx)
	if err != nil {
		p.logger.Warn("snapshot unavailable, showing empty state", "reason", reason, "error", err)
		return frame
	}
	frame.Version = snap.Version
	if len(snap.Tasks) == 0 {
		return frame
	}
	frame.Empty = false
	frame.Rows = make([]Row, len(snap.Tasks))
	for i, t := range snap.Tasks {
		frame.Rows[i] = RowFor(t, p.opts.Theme)
	}
	p.logger.Debug("widget refreshed", "reason", reason, "version", snap.Version, "rows", len(frame.Rows))
	return frame
}

// Run emits a frame on create and after every wake-up until ctx ends or wake
// closes. Each wake-up re-reads the latest snapshot, so skipped signals are harmless.
func (p *Pipeline) Run(ctx context.Context, wake <-chan struct{}, out func(Frame)) error {
	out(p.OnCreate(ctx))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-wake:
			if !ok {
				return nil
			}
			p.opts.Metrics.RecordDelivery(string(signal.TopicWidget))
			out(p.OnInvalidate(ctx))
		}
	}
}

// Click posts the re-entry action for target.
func (p *Pipeline) Click(ctx context.Context, target ClickTarget) error {
	if p.opts.Mailbox == nil {
		return ErrNoMailbox
	}
	a := target.Action()
	p.logger.Info("widget tapped", "action", a.String())
	return p.opts.Mailbox.Post(ctx, a)
}
