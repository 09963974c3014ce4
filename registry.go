package hoststate

import (
	"net/netip"
	"sync/atomic"
)

// HostList is one immutable snapshot of cluster membership. Mutation happens
// copy-on-write: the owning collaborator clones the current snapshot,
// applies AddHost/RemoveHost to the clone, and publishes the result. Readers
// holding an older snapshot keep iterating it without locks and never
// observe a partial mutation.
type HostList []*Host

// Clone returns a copy of the list that shares the Host values but not the
// backing array, so the copy can be mutated without disturbing snapshot
// readers.
func (l HostList) Clone() HostList {
	clone := make(HostList, len(l))
	copy(clone, l)

	return clone
}

// AddHost installs host into the list, keyed by address identity: if an
// entry with the same address exists its slot is replaced, otherwise the
// host is appended. Replacement always installs the new value even when the
// entry looks like "the same" host, since its state may have changed.
//
// The list must be one the caller owns, typically a Clone of the published
// snapshot.
func AddHost(hosts *HostList, host *Host) {
	for i, existing := range *hosts {
		if existing.Address() == host.Address() {
			(*hosts)[i] = host
			return
		}
	}

	*hosts = append(*hosts, host)
}

// RemoveHost removes the entry matching the given host's address. It reports
// whether an entry was found.
func RemoveHost(hosts *HostList, host *Host) bool {
	return RemoveHostByAddr(hosts, host.Address())
}

// RemoveHostByAddr removes the first entry with the given address from the
// list, reporting whether one was found. As with AddHost, the list must be
// one the caller owns.
func RemoveHostByAddr(hosts *HostList, addr netip.AddrPort) bool {
	for i, existing := range *hosts {
		if existing.Address() == addr {
			*hosts = append((*hosts)[:i], (*hosts)[i+1:]...)
			return true
		}
	}

	return false
}

// Registry owns the published membership snapshot. A single mutator (the
// cluster-metadata manager) is expected to drive Publish; any number of
// readers may call Snapshot concurrently and iterate the result without
// synchronization.
type Registry struct {
	hosts atomic.Pointer[HostList]
}

// NewRegistry creates a registry publishing an empty snapshot.
func NewRegistry() *Registry {
	r := &Registry{}

	empty := make(HostList, 0)
	r.hosts.Store(&empty)

	return r
}

// Snapshot returns the currently published membership snapshot.
func (r *Registry) Snapshot() HostList {
	return *r.hosts.Load()
}

// Publish atomically installs hosts as the new snapshot. Readers holding the
// previous snapshot are unaffected.
func (r *Registry) Publish(hosts HostList) {
	r.hosts.Store(&hosts)
}

// Update clones the current snapshot, applies mutate to the clone, publishes
// it and returns the published list. It is a convenience for the single
// mutator; concurrent Update calls would lose writes, which is the same
// external synchronization discipline the free functions require.
func (r *Registry) Update(mutate func(*HostList)) HostList {
	next := r.Snapshot().Clone()
	mutate(&next)
	r.Publish(next)

	return next
}
