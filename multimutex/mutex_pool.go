package multimutex

import (
	"fmt"
	"sync"
)

// MutexPool is a fixed-size pool of mutexes shared by a set of lock users
// keyed by a numeric identity. Callers requesting the same id always acquire
// the same mutex, so the pool provides mutual exclusion per identity while
// bounding total lock memory regardless of the number of identities. Two
// unrelated identities may map to the same slot; the only consequence is a
// brief false contention between them.
//
// This is intended for very hot, very short critical sections that would
// otherwise need one mutex per object, such as per-host telemetry counters.
type MutexPool struct {
	// mutexes is the fixed slot array. It is never resized after
	// construction, so slot selection requires no synchronization.
	mutexes []sync.Mutex
}

// NewMutexPool creates a new MutexPool with the given number of slots.
func NewMutexPool(size int) *MutexPool {
	if size <= 0 {
		panic(fmt.Sprintf("invalid mutex pool size %v", size))
	}

	return &MutexPool{
		mutexes: make([]sync.Mutex, size),
	}
}

// Lock locks the mutex that the given id hashes to. If another caller holds
// the mutex for this id, or for an id sharing its slot, Lock blocks until
// the mutex is available.
func (p *MutexPool) Lock(id uint64) {
	p.mutexes[id%uint64(len(p.mutexes))].Lock()
}

// Unlock unlocks the mutex that the given id hashes to. It is a run-time
// error if the mutex is not locked on entry to Unlock.
func (p *MutexPool) Unlock(id uint64) {
	p.mutexes[id%uint64(len(p.mutexes))].Unlock()
}
