package multimutex

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestMutexPoolExclusion tests that the pool provides mutual exclusion for
// callers using the same id, including ids that share a slot.
func TestMutexPoolExclusion(t *testing.T) {
	t.Parallel()

	const (
		poolSize   = 4
		numWorkers = 8
		numIncs    = 1000
	)

	pool := NewMutexPool(poolSize)

	// Every worker uses an id congruent to the same slot, so all
	// increments are serialized by a single pool mutex.
	var (
		counter int
		wg      sync.WaitGroup
	)
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()

			for i := 0; i < numIncs; i++ {
				pool.Lock(id)
				counter++
				pool.Unlock(id)
			}
		}(uint64(w * poolSize))
	}
	wg.Wait()

	require.Equal(t, numWorkers*numIncs, counter)
}

// TestMutexPoolIndependentSlots tests that distinct slots can be held at the
// same time without deadlocking.
func TestMutexPoolIndependentSlots(t *testing.T) {
	t.Parallel()

	pool := NewMutexPool(4)

	pool.Lock(0)
	pool.Lock(1)
	pool.Lock(2)

	pool.Unlock(2)
	pool.Unlock(1)
	pool.Unlock(0)
}

// TestMutexPoolInvalidSize tests that constructing a pool without any slots
// panics.
func TestMutexPoolInvalidSize(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() {
		NewMutexPool(0)
	})
}
