package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/taskbridge/internal/common"
	"github.com/loykin/taskbridge/internal/metrics"
	"github.com/loykin/taskbridge/internal/signal"
	"github.com/tidwall/gjson"
)

// ErrMalformed is returned when published task JSON cannot be parsed.
var ErrMalformed = errors.New("malformed task snapshot")

// Task is the projection of an application task shown on the display surfaces.
type Task struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	IsDone bool   `json:"isDone"`
}

// Snapshot is an immutable, wholesale replacement of the task list.
// Version 0 is reserved for the empty sentinel.
type Snapshot struct {
	Version     uint64    `json:"version"`
	PublishedAt time.Time `json:"publishedAt"`
	Tasks       []Task    `json:"tasks"`
}

// Empty is returned by Current before anything has been published.
var Empty = Snapshot{Tasks: []Task{}}

// IsEmpty reports whether s is the "nothing published yet" sentinel
func (s Snapshot) IsEmpty() bool {
	return s.Version == 0
}

// OpenCount returns the number of tasks not yet done
func (s Snapshot) OpenCount() int {
	n := 0
	for _, t := range s.Tasks {
		if !t.IsDone {
			n++
		}
	}
	return n
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Tasks = make([]Task, len(s.Tasks))
	copy(out.Tasks, s.Tasks)
	return out
}

// Source yields the latest snapshot. The in-process Store and the relay
// client both implement it.
type Source interface {
	Load(ctx context.Context) (Snapshot, error)
}

// Store holds the current snapshot behind an atomic pointer: readers never
// block the writer and always see a complete snapshot.
type Store struct {
	cur     atomic.Pointer[Snapshot]
	writeMu sync.Mutex
	emitter signal.Emitter
	metrics *metrics.Metrics
	logger  *common.Logger
}

// NewStore creates a store that signals emitter after each publish. emitter
// and m may be nil.
func NewStore(emitter signal.Emitter, m *metrics.Metrics) *Store {
	return &Store{
		emitter: emitter,
		metrics: m,
		logger:  common.GetLogger().WithComponent("snapshot"),
	}
}

// Publish replaces the current snapshot and signals both display surfaces.
func (s *Store) Publish(tasks []Task) Snapshot {
	next := Snapshot{PublishedAt: time.Now().UTC(), Tasks: make([]Task, len(tasks))}
	copy(next.Tasks, tasks)

	s.writeMu.Lock()
	if prev := s.cur.Load(); prev != nil {
		next.Version = prev.Version + 1
	} else {
		next.Version = 1
	}
	s.cur.Store(&next)
	s.writeMu.Unlock()

	s.metrics.RecordPublish(len(next.Tasks))
	s.logger.Debug("snapshot published", "version", next.Version, "tasks", len(next.Tasks), "open", next.OpenCount())
	if s.emitter != nil {
		for _, t := range signal.Topics() {
			s.emitter.Emit(t)
		}
	}
	return next.clone()
}

// PublishJSON parses the bridge payload and publishes it. Malformed input is
// rejected and the previous snapshot stays current.
func (s *Store) PublishJSON(raw []byte) (Snapshot, error) {
	tasks, err := ParseTasks(raw)
	if err != nil {
		s.logger.Warn("rejected task snapshot", "error", err, "size", len(raw))
		return s.Current(), err
	}
	return s.Publish(tasks), nil
}

// Current returns a copy of the latest snapshot, or Empty.
func (s *Store) Current() Snapshot {
	p := s.cur.Load()
	if p == nil {
		return Empty.clone()
	}
	return p.clone()
}

// Load implements Source
func (s *Store) Load(context.Context) (Snapshot, error) {
	return s.Current(), nil
}

// ParseTasks decodes `[{"id":..,"title":..,"isDone":..}]`. Ids may be strings
// or numbers; a missing isDone means open. Anything but an array of objects is
// rejected.
func ParseTasks(raw []byte) ([]Task, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformed)
	}
	root := gjson.ParseBytes(raw)
	if !root.IsArray() {
		return nil, fmt.Errorf("%w: expected an array, got %s", ErrMalformed, root.Type)
	}

	tasks := make([]Task, 0, len(root.Array()))
	var perr error
	root.ForEach(func(idx, item gjson.Result) bool {
		if !item.IsObject() {
			perr = fmt.Errorf("%w: element %d is not an object", ErrMalformed, idx.Int())
			return false
		}
		id := item.Get("id")
		var tid string
		switch id.Type {
		case gjson.String:
			tid = id.String()
		case gjson.Number:
			tid = id.Raw
			if strings.ContainsAny(id.Raw, ".eE") {
				tid = strconv.FormatFloat(id.Float(), 'f', -1, 64)
			}
		case gjson.Null:
		default:
			if id.Exists() {
				perr = fmt.Errorf("%w: element %d has an invalid id", ErrMalformed, idx.Int())
				return false
			}
		}
		tasks = append(tasks, Task{
			ID:     tid,
			Title:  item.Get("title").String(),
			IsDone: item.Get("isDone").Bool(),
		})
		return true
	})
	if perr != nil {
		return nil, perr
	}
	return tasks, nil
}
