package hoststate

import "net/netip"

// Row is a decoded metadata record from the cluster's system tables. The
// protocol-decoding collaborator owns the implementation; this package only
// looks fields up by name.
type Row interface {
	// GetString returns the named field decoded as a string, and whether
	// the field was present.
	GetString(name string) (string, bool)

	// Get returns the named field as an opaque value, and whether the
	// field was present.
	Get(name string) (Value, bool)
}

// Value is a single decoded field of a metadata row.
type Value interface {
	// IsNull returns true if the field was present but null.
	IsNull() bool

	// IsCollection returns true if the value is a collection type.
	IsCollection() bool

	// Collection returns the elements of a collection value in iteration
	// order. It returns nil for non-collection values.
	Collection() []Value

	// String returns the value's string representation.
	String() string

	// AsInet decodes the value as a network address, combining it with
	// the given port.
	AsInet(port uint16) (netip.AddrPort, error)
}
