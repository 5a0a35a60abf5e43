package kv

import (
	"hash/fnv"
	"sync"
)

// keyLocks serializes operations on the same key while letting distinct keys
// proceed in parallel. Distinct keys may share a stripe.
type keyLocks struct {
	stripes []sync.Mutex
}

func newKeyLocks(n int) *keyLocks {
	if n <= 0 {
		n = 1
	}
	return &keyLocks{stripes: make([]sync.Mutex, n)}
}

func (l *keyLocks) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &l.stripes[h.Sum32()%uint32(len(l.stripes))]
}

// lock acquires the stripe for key and returns its unlock function.
func (l *keyLocks) lock(key string) func() {
	m := l.stripe(key)
	m.Lock()
	return m.Unlock
}

// lockAll acquires every stripe in order, for whole-table operations.
func (l *keyLocks) lockAll() func() {
	for i := range l.stripes {
		l.stripes[i].Lock()
	}
	return func() {
		for i := len(l.stripes) - 1; i >= 0; i-- {
			l.stripes[i].Unlock()
		}
	}
}
