package ledger

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyLocks_SerializesSameKey(t *testing.T) {
	locks := newKeyLocks()
	key := Key{SellerID: "s1", Period: "2025-10"}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(key)
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, locks.locks, "idle mutexes are dropped")
}

func TestKeyLocks_UnrelatedKeysDoNotBlock(t *testing.T) {
	locks := newKeyLocks()
	unlockA := locks.Lock(Key{SellerID: "s1", Period: "2025-10"})
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := locks.Lock(Key{SellerID: "s2", Period: "2025-10"})
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on an unrelated key blocked")
	}
}

func TestKeyLocks_OpposingPairsDoNotDeadlock(t *testing.T) {
	locks := newKeyLocks()
	a := Key{SellerID: "s1", Period: "2025-09"}
	b := Key{SellerID: "s1", Period: "2025-10"}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			locks.Lock(a, b)()
		}()
		go func() {
			defer wg.Done()
			locks.Lock(b, a)()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("opposing lock orders deadlocked")
	}
}

func TestKeyLocks_DuplicateKeysLockOnce(t *testing.T) {
	locks := newKeyLocks()
	key := Key{SellerID: "s1", Period: "2025-10"}

	unlock := locks.Lock(key, key)
	unlock()

	assert.Empty(t, locks.locks)
}
