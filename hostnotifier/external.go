package hostnotifier

import (
	"net/netip"

	"github.com/cqlkit/hoststate"
)

// EventKind tags the lifecycle transition carried by an external host event.
//
// The numeric values, together with the HostAddr layout, form the versioned
// record shape exposed to foreign-callable embeddings and must not change.
type EventKind uint8

const (
	// HostUp indicates the host became reachable.
	HostUp EventKind = iota

	// HostDown indicates the host became unreachable.
	HostDown

	// HostAdded indicates the host joined the cluster view.
	HostAdded

	// HostRemoved indicates the host permanently left the cluster view.
	HostRemoved
)

// String returns a human readable identifier for the event kind.
func (k EventKind) String() string {
	switch k {
	case HostUp:
		return "UP"
	case HostDown:
		return "DOWN"
	case HostAdded:
		return "ADD"
	case HostRemoved:
		return "REMOVE"
	default:
		return "unknown"
	}
}

// HostAddr is a host address flattened into a fixed-size binary
// representation: Len bytes of Bytes are significant, 4 for IPv4 and 16 for
// IPv6.
type HostAddr struct {
	// Bytes holds the raw address bytes.
	Bytes [16]byte

	// Len is the number of significant bytes.
	Len uint8
}

// FlattenAddr converts an address into its fixed-size binary form.
func FlattenAddr(addr netip.AddrPort) HostAddr {
	a := addr.Addr()
	if a.Is4() {
		var flat HostAddr

		b := a.As4()
		copy(flat.Bytes[:], b[:])
		flat.Len = 4

		return flat
	}

	return HostAddr{
		Bytes: a.As16(),
		Len:   16,
	}
}

// Callback is the single entry point external embeddings receive host
// events through. The opaque context is the value supplied when the
// listener was created, passed back verbatim.
type Callback func(kind EventKind, addr HostAddr, ctx interface{})

// ExternalListener flattens host lifecycle events into the external record
// shape and delivers them through a single callback. It translates at the
// boundary only: no internal type leaks through.
type ExternalListener struct {
	callback Callback
	ctx      interface{}
}

// A compile time check to ensure ExternalListener implements the
// HostListener capability set.
var _ hoststate.HostListener = (*ExternalListener)(nil)

// NewExternalListener creates a listener delivering flattened events to
// callback, handing ctx back with every invocation.
func NewExternalListener(callback Callback, ctx interface{}) *ExternalListener {
	return &ExternalListener{
		callback: callback,
		ctx:      ctx,
	}
}

// OnHostUp implements hoststate.HostListener.
func (l *ExternalListener) OnHostUp(host *hoststate.Host) {
	l.callback(HostUp, FlattenAddr(host.Address()), l.ctx)
}

// OnHostDown implements hoststate.HostListener.
func (l *ExternalListener) OnHostDown(host *hoststate.Host) {
	l.callback(HostDown, FlattenAddr(host.Address()), l.ctx)
}

// OnHostAdded implements hoststate.HostListener.
func (l *ExternalListener) OnHostAdded(host *hoststate.Host) {
	l.callback(HostAdded, FlattenAddr(host.Address()), l.ctx)
}

// OnHostRemoved implements hoststate.HostListener.
func (l *ExternalListener) OnHostRemoved(host *hoststate.Host) {
	l.callback(HostRemoved, FlattenAddr(host.Address()), l.ctx)
}
