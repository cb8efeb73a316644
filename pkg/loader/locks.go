package loader

import (
	"sync"

	"github.com/1satmarket/marketapi/pkg/market"
	"github.com/puzpuzpuz/xsync/v4"
)

type keyedLock struct {
	mu sync.Mutex
	// refs counts holders and waiters. Only touched inside Compute.
	refs int
}

// keyedLocks serializes canonical writes per family and TokenKey. An entry
// lives only while someone holds or waits on it.
type keyedLocks struct {
	m *xsync.Map[string, *keyedLock]
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{m: xsync.NewMap[string, *keyedLock]()}
}

func (k *keyedLocks) lock(f market.Family, key string) func() {
	id := string(f) + "/" + key
	l, _ := k.m.Compute(id, func(old *keyedLock, loaded bool) (*keyedLock, xsync.ComputeOp) {
		if !loaded {
			old = &keyedLock{}
		}
		old.refs++
		return old, xsync.UpdateOp
	})
	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			k.m.Compute(id, func(old *keyedLock, loaded bool) (*keyedLock, xsync.ComputeOp) {
				if !loaded {
					return old, xsync.CancelOp
				}
				old.refs--
				if old.refs <= 0 {
					return old, xsync.DeleteOp
				}
				return old, xsync.UpdateOp
			})
		})
	}
}

func (k *keyedLocks) size() int {
	return k.m.Size()
}
