package ledger

import (
	"context"
	"sort"
	"sync"
)

// keyLocks serializes mutations per period key. Unrelated periods never
// wait on each other. Mutexes are reference counted and dropped when idle.
type keyLocks struct {
	mu    sync.Mutex
	locks map[Key]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[Key]*refMutex)}
}

// Lock acquires every distinct key in a fixed order and returns the
// matching unlock function.
func (l *keyLocks) Lock(keys ...Key) func() {
	keys = uniqueSorted(keys)
	held := make([]*refMutex, 0, len(keys))
	for _, k := range keys {
		m := l.acquire(k)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
			l.release(keys[i])
		}
	}
}

func (l *keyLocks) acquire(k Key) *refMutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[k]
	if !ok {
		m = &refMutex{}
		l.locks[k] = m
	}
	m.refs++
	return m
}

func (l *keyLocks) release(k Key) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := l.locks[k]
	m.refs--
	if m.refs == 0 {
		delete(l.locks, k)
	}
}

// withTx runs fn in a store transaction. The caller already holds the
// in-process locks for keys; stores shared between processes lock them
// again inside the transaction, in the same order.
func (l *Ledger) withTx(ctx context.Context, keys []Key, fn func(Store) error) error {
	return l.store.WithTx(ctx, func(s Store) error {
		if kl, ok := s.(KeyLocker); ok {
			if err := kl.LockKeys(ctx, uniqueSorted(keys)...); err != nil {
				return Persistence("lock keys", err)
			}
		}
		return fn(s)
	})
}

func uniqueSorted(keys []Key) []Key {
	out := make([]Key, 0, len(keys))
	seen := make(map[Key]bool, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SellerID != out[j].SellerID {
			return out[i].SellerID < out[j].SellerID
		}
		return out[i].Period < out[j].Period
	})
	return out
}
