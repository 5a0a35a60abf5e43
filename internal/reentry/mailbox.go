package reentry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/loykin/taskbridge/internal/common"
)

// PendingKey holds the cross-process pending action. The bridge keeps it in
// its own table, apart from the app's keys.
const PendingKey = "taskbridge.reentry.pending"

var ErrInvalidAction = errors.New("invalid re-entry action")

// Mailbox holds at most one pending action. A later Post replaces an earlier
// one that was never taken.
type Mailbox interface {
	Post(ctx context.Context, a Action) error
	Take(ctx context.Context) (Action, bool, error)
}

func validate(a Action) error {
	if !a.Source.Valid() {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidAction, a.Source)
	}
	if _, err := ParseCode(string(a.Code)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	return nil
}

// MemoryMailbox is a Mailbox for surfaces living in the app's own process.
type MemoryMailbox struct {
	mu      sync.Mutex
	pending *Action
}

func NewMemoryMailbox() *MemoryMailbox {
	return &MemoryMailbox{}
}

func (m *MemoryMailbox) Post(_ context.Context, a Action) error {
	if err := validate(a); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = &a
	return nil
}

func (m *MemoryMailbox) Take(context.Context) (Action, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return Action{}, false, nil
	}
	a := *m.pending
	m.pending = nil
	return a, true, nil
}

// Updater is the read-modify-write primitive of the key-value store.
type Updater interface {
	Update(ctx context.Context, key string, fn func(current string, found bool) (*string, error)) error
}

// KVMailbox keeps the pending action in the shared key-value store so a
// widget host in another process can hand it to the app.
type KVMailbox struct {
	store  Updater
	key    string
	logger *common.Logger
}

func NewKVMailbox(store Updater) *KVMailbox {
	return &KVMailbox{
		store:  store,
		key:    PendingKey,
		logger: common.GetLogger().WithComponent("reentry").WithKey(PendingKey),
	}
}

func (m *KVMailbox) Post(ctx context.Context, a Action) error {
	if err := validate(a); err != nil {
		return err
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	v := string(raw)
	return m.store.Update(ctx, m.key, func(string, bool) (*string, error) {
		return &v, nil
	})
}

func (m *KVMailbox) Take(ctx context.Context) (Action, bool, error) {
	var (
		out Action
		ok  bool
	)
	err := m.store.Update(ctx, m.key, func(cur string, found bool) (*string, error) {
		if !found {
			return nil, nil
		}
		if err := json.Unmarshal([]byte(cur), &out); err != nil {
			// drop it so one bad write cannot wedge every later activation
			m.logger.Warn("discarding unreadable pending action", "error", err)
			return nil, nil
		}
		ok = true
		return nil, nil
	})
	if err != nil {
		return Action{}, false, err
	}
	return out, ok, nil
}
