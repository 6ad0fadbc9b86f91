// Package keylock provides a refcounted mutex table keyed by string.
package keylock

import (
	"sort"
	"sync"
)

// Table serializes work per key. Locks are created on first use and
// released from the table once no goroutine holds or waits on them.
type Table struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// New returns an empty Table.
func New() *Table {
	return &Table{locks: map[string]*keyLock{}}
}

// Acquire locks every key in a deterministic order and returns the release
// function. Sorting the keys keeps multi-key callers deadlock free.
func (t *Table) Acquire(keys ...string) func() {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	held := make([]*keyLock, 0, len(sorted))
	for _, key := range sorted {
		t.mu.Lock()
		l, ok := t.locks[key]
		if !ok {
			l = &keyLock{}
			t.locks[key] = l
		}
		l.refs++
		t.mu.Unlock()
		l.mu.Lock()
		held = append(held, l)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
		}
		t.mu.Lock()
		for i, key := range sorted {
			held[i].refs--
			if held[i].refs == 0 {
				delete(t.locks, key)
			}
		}
		t.mu.Unlock()
	}
}
