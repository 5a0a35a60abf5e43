package signal

import (
	"sync"

	"github.com/loykin/taskbridge/internal/common"
	"github.com/loykin/taskbridge/internal/metrics"
)

// Topic names a class of invalidation signal.
type Topic string

const (
	TopicNotification Topic = "notification"
	TopicWidget       Topic = "widget"
)

// Topics lists every topic a snapshot publish invalidates.
func Topics() []Topic {
	return []Topic{TopicNotification, TopicWidget}
}

// Valid reports whether t is a known topic
func (t Topic) Valid() bool {
	return t == TopicNotification || t == TopicWidget
}

// Emitter is the publishing side of a Hub.
type Emitter interface {
	Emit(topic Topic)
}

// Hub fans signals out to subscribers. Signals carry no payload: a receiver
// re-reads the latest state. Each subscription buffers at most one pending
// signal, so Emit never blocks and bursts coalesce into one wake-up.
type Hub struct {
	mu      sync.RWMutex
	subs    map[Topic]map[*Subscription]struct{}
	closed  bool
	metrics *metrics.Metrics
	logger  *common.Logger
}

// NewHub creates an empty hub. m may be nil.
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		subs:    make(map[Topic]map[*Subscription]struct{}),
		metrics: m,
		logger:  common.GetLogger().WithComponent("signal"),
	}
}

// Subscribe registers a receiver for topic. On a closed hub the returned
// subscription's channel is already closed.
func (h *Hub) Subscribe(topic Topic) *Subscription {
	s := &Subscription{hub: h, topic: topic, ch: make(chan struct{}, 1)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.closed = true
		close(s.ch)
		return s
	}
	set := h.subs[topic]
	if set == nil {
		set = make(map[*Subscription]struct{})
		h.subs[topic] = set
	}
	set[s] = struct{}{}
	h.logger.WithTopic(string(topic)).Debug("subscribed", "subscribers", len(set))
	return s
}

// Emit wakes every subscriber of topic.
func (h *Hub) Emit(topic Topic) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for s := range h.subs[topic] {
		select {
		case s.ch <- struct{}{}:
		default:
			// a wake-up is already pending
		}
	}
	h.metrics.RecordSignal(string(topic))
}

// EmitAll wakes subscribers of every topic.
func (h *Hub) EmitAll() {
	for _, t := range Topics() {
		h.Emit(t)
	}
}

// Subscribers returns the number of live subscriptions for topic
func (h *Hub) Subscribers(topic Topic) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

// Close closes every subscription channel. Later emits are dropped.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, set := range h.subs {
		for s := range set {
			s.closed = true
			close(s.ch)
		}
	}
	h.subs = nil
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	delete(h.subs[s.topic], s)
	close(s.ch)
}

// Subscription receives wake-ups for one topic.
type Subscription struct {
	hub   *Hub
	topic Topic
	ch    chan struct{}
	// guarded by hub.mu
	closed bool
}

// C returns the wake-up channel. It is closed when the subscription or hub closes.
func (s *Subscription) C() <-chan struct{} {
	return s.ch
}

// Topic returns the subscribed topic
func (s *Subscription) Topic() Topic {
	return s.topic
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}
