package taskbridge

import (
	"context"
	"errors"
	"sync"

	"github.com/loykin/taskbridge/internal/common"
	"github.com/loykin/taskbridge/internal/constants"
	"github.com/loykin/taskbridge/internal/exchange"
	"github.com/loykin/taskbridge/internal/httpc"
	"github.com/loykin/taskbridge/internal/kv"
	"github.com/loykin/taskbridge/internal/metrics"
	"github.com/loykin/taskbridge/internal/notify"
	"github.com/loykin/taskbridge/internal/reentry"
	"github.com/loykin/taskbridge/internal/relay"
	"github.com/loykin/taskbridge/internal/retry"
	"github.com/loykin/taskbridge/internal/signal"
	"github.com/loykin/taskbridge/internal/snapshot"
	"github.com/loykin/taskbridge/internal/widget"
)

// Re-export the types that cross the bridge boundary

// Request is one bridged HTTP exchange.
type Request = exchange.Request

// Header is a request header.
type Header = exchange.Header

// Credentials enable Basic authentication.
type Credentials = exchange.Credentials

// Result is the outcome of an exchange; negative statuses are local failures.
type Result = exchange.Result

// HTTPConfig tunes the exchange transport.
type HTTPConfig = httpc.Httpc

// StoreConfig selects the key-value store driver.
type StoreConfig = kv.Config

type SqliteConfig = kv.SqliteConfig
type PostgresConfig = kv.PostgresConfig

// Task is one entry of a published snapshot.
type Task = snapshot.Task

// Snapshot is the published task list.
type Snapshot = snapshot.Snapshot

// Action is a re-entry action delivered on foreground activation.
type Action = reentry.Action

// Surface draws notifications.
type Surface = notify.Surface

// RelayOptions configures Serve.
type RelayOptions struct {
	Addr string
	JWT  *relay.VerifyConfig
}

// Options configures New. The zero value gives an in-memory sqlite store and
// a notification surface that discards output.
type Options struct {
	HTTP    *HTTPConfig
	Store   StoreConfig
	Retry   *retry.Config
	Surface Surface

	NotificationTitle   string
	NotificationMessage string
}

var _ relay.Bridge = (*Bridge)(nil)

// Bridge is the process-wide call surface. Create one with New, share it, and
// Close it on shutdown.
type Bridge struct {
	exec    *exchange.Executor
	kv      *kv.Store
	hub     *signal.Hub
	snaps   *snapshot.Store
	notify  *notify.Controller
	widget  *widget.Pipeline
	fg      *reentry.Foreground
	metrics *metrics.Metrics
	logger  *common.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New wires every component and starts the notification loop. A store that
// cannot open is logged, not fatal: key-value calls then become no-ops that
// return defaults.
func New(ctx context.Context, opts Options) (*Bridge, error) {
	if ctx == nil {
		return nil, errors.New("taskbridge: nil context")
	}
	m := metrics.New()
	b := &Bridge{
		metrics: m,
		logger:  common.GetLogger().WithComponent("bridge"),
		exec:    exchange.NewExecutor(exchange.Options{HTTP: opts.HTTP, Metrics: m}),
		hub:     signal.NewHub(m),
	}
	b.snaps = snapshot.NewStore(b.hub, m)

	kvOpts := []kv.Option{kv.WithMetrics(m)}
	if opts.Retry != nil {
		kvOpts = append(kvOpts, kv.WithRetry(opts.Retry))
	}
	store, err := kv.Open(ctx, opts.Store, kvOpts...)
	if err != nil {
		b.logger.Error("key-value store unavailable, continuing without persistence", "error", err)
	}
	b.kv = store

	var mb reentry.Mailbox = reentry.NewMemoryMailbox()
	if store != nil {
		pending, err := store.Sibling(ctx, constants.DefaultReentryTable)
		if err != nil {
			b.logger.Error("re-entry table unavailable, pending actions stay in memory", "error", err)
		} else {
			mb = reentry.NewKVMailbox(pending)
		}
	}
	b.fg = reentry.NewForeground(mb)

	b.notify = notify.NewController(notify.Options{
		Surface:        opts.Surface,
		Emitter:        b.hub,
		Snapshots:      b.snaps,
		Foreground:     b.fg,
		Metrics:        m,
		DefaultTitle:   opts.NotificationTitle,
		DefaultMessage: opts.NotificationMessage,
	})
	b.widget = widget.NewPipeline(widget.Options{Source: b.snaps, Mailbox: mb, Metrics: m})

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.cancel = cancel
	sub := b.hub.Subscribe(signal.TopicNotification)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer sub.Close()
		_ = b.notify.Run(runCtx, sub.C())
	}()
	return b, nil
}

// Execute performs a bridged HTTP exchange. It never fails: local failures
// come back as negative statuses.
func (b *Bridge) Execute(ctx context.Context, req Request) Result {
	return b.exec.Execute(ctx, req)
}

// KVSet stores value under key. Errors are logged and dropped.
func (b *Bridge) KVSet(ctx context.Context, key, value string) {
	if b.kv == nil {
		return
	}
	if err := b.kv.Set(ctx, key, value); err != nil {
		b.logger.Warn("kvSet dropped", "key", key, "error", err)
	}
}

// KVPut stores *value under key; a nil value removes the key. Errors are
// logged and dropped.
func (b *Bridge) KVPut(ctx context.Context, key string, value *string) {
	if b.kv == nil {
		return
	}
	if err := b.kv.Put(ctx, key, value); err != nil {
		b.logger.Warn("kvPut dropped", "key", key, "deleted", value == nil, "error", err)
	}
}

// KVGet returns the stored value or def.
func (b *Bridge) KVGet(ctx context.Context, key, def string) string {
	if b.kv == nil {
		return def
	}
	v, err := b.kv.Get(ctx, key, def)
	if err != nil {
		b.logger.Warn("kvGet failed, returning default", "key", key, "error", err)
		return def
	}
	return v
}

// KVRemove deletes key. Errors are logged and dropped.
func (b *Bridge) KVRemove(ctx context.Context, key string) {
	if b.kv == nil {
		return
	}
	if err := b.kv.Remove(ctx, key); err != nil {
		b.logger.Warn("kvRemove dropped", "key", key, "error", err)
	}
}

// KVClear removes every key. Errors are logged and dropped.
func (b *Bridge) KVClear(ctx context.Context) {
	if b.kv == nil {
		return
	}
	if err := b.kv.Clear(ctx); err != nil {
		b.logger.Warn("kvClear dropped", "error", err)
	}
}

// PublishTaskSnapshot replaces the task list shown by the notification and
// the widget. Malformed JSON is rejected and the previous list stays.
func (b *Bridge) PublishTaskSnapshot(raw []byte) error {
	_, err := b.snaps.PublishJSON(raw)
	return err
}

// PublishNotification updates the persistent notification.
func (b *Bridge) PublishNotification(title, message string, progress int, actionable bool) {
	b.notify.Push(notify.State{Title: title, Message: message, Progress: progress, Actionable: actionable})
}

// ShowNotification shows a one-shot notification.
func (b *Bridge) ShowNotification(title, body string) {
	b.notify.ShowAlert(title, body)
}

// ShowNotificationIfAppIsNotOpen shows a one-shot notification only while
// the app is in the background.
func (b *Bridge) ShowNotificationIfAppIsNotOpen(title, body string) bool {
	return b.notify.ShowAlertIfBackground(title, body)
}

// Resume marks the app as foreground and hands over the pending re-entry
// action, if any.
func (b *Bridge) Resume(ctx context.Context) (Action, bool) {
	return b.fg.Activate(ctx)
}

// Background marks the app as no longer visible.
func (b *Bridge) Background() {
	b.fg.Background()
}

// Snapshots returns the snapshot store
func (b *Bridge) Snapshots() *snapshot.Store { return b.snaps }

// Signals returns the signal hub
func (b *Bridge) Signals() *signal.Hub { return b.hub }

// Notifications returns the notification controller
func (b *Bridge) Notifications() *notify.Controller { return b.notify }

// Widget returns the in-process widget pipeline
func (b *Bridge) Widget() *widget.Pipeline { return b.widget }

// Mailbox returns the re-entry mailbox
func (b *Bridge) Mailbox() reentry.Mailbox { return b.fg.Mailbox() }

// Metrics returns the bridge's collectors
func (b *Bridge) Metrics() *metrics.Metrics { return b.metrics }

// StoreAvailable reports whether key-value calls are persisted
func (b *Bridge) StoreAvailable() bool { return b.kv != nil }

// Serve exposes the bridge over the relay until ctx ends.
func (b *Bridge) Serve(ctx context.Context, opts RelayOptions) error {
	return b.RelayServer(opts).Run(ctx)
}

// RelayServer builds the relay for this bridge without starting it.
func (b *Bridge) RelayServer(opts RelayOptions) *relay.Server {
	return relay.NewServer(relay.ServerOptions{
		Addr:      opts.Addr,
		Bridge:    b,
		Snapshots: b.snaps,
		Hub:       b.hub,
		Mailbox:   b.fg.Mailbox(),
		Metrics:   b.metrics,
		JWT:       opts.JWT,
	})
}

// Close stops the notification loop, closes every signal subscription and
// releases the store. It is safe to call more than once.
func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.cancel()
		b.hub.Close()
		b.wg.Wait()
		if b.kv != nil {
			err = b.kv.Close()
		}
	})
	return err
}
