package keylock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableSerializes(t *testing.T) {
	tbl := New()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := tbl.Acquire("vehicle:1")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestTableMultiKeyNoDeadlock(t *testing.T) {
	tbl := New()

	var wg sync.WaitGroup
	// Opposite acquisition orders; sorting inside Acquire keeps this safe.
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unlock := tbl.Acquire("delivery:1", "vehicle:1")
			unlock()
		}()
		go func() {
			defer wg.Done()
			unlock := tbl.Acquire("vehicle:1", "delivery:1")
			unlock()
		}()
	}
	wg.Wait()
}

func TestTableReleasesEntries(t *testing.T) {
	tbl := New()
	unlock := tbl.Acquire("vehicle:7", "delivery:9")
	unlock()

	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	assert.Empty(t, tbl.locks)
}
