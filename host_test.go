package hoststate

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeValue implements Value for metadata ingestion tests.
type fakeValue struct {
	null       bool
	str        string
	elems      []string
	collection bool
	inet       netip.Addr
	inetErr    error
}

func (v *fakeValue) IsNull() bool {
	return v.null
}

func (v *fakeValue) IsCollection() bool {
	return v.collection
}

func (v *fakeValue) Collection() []Value {
	if !v.collection {
		return nil
	}

	elems := make([]Value, len(v.elems))
	for i, elem := range v.elems {
		elems[i] = &fakeValue{str: elem}
	}

	return elems
}

func (v *fakeValue) String() string {
	return v.str
}

func (v *fakeValue) AsInet(port uint16) (netip.AddrPort, error) {
	if v.inetErr != nil {
		return netip.AddrPort{}, v.inetErr
	}

	return netip.AddrPortFrom(v.inet, port), nil
}

// fakeRow implements Row over a plain map.
type fakeRow map[string]*fakeValue

func (r fakeRow) GetString(name string) (string, bool) {
	v, ok := r[name]
	if !ok {
		return "", false
	}

	return v.str, true
}

func (r fakeRow) Get(name string) (Value, bool) {
	v, ok := r[name]
	if !ok {
		return nil, false
	}

	return v, true
}

// localRow returns a fully populated system.local style row.
func localRow() fakeRow {
	return fakeRow{
		"rack":            {str: "rack1"},
		"data_center":     {str: "dc1"},
		"release_version": {str: "3.11.5"},
		"partitioner":     {str: "org.apache.cassandra.dht.Murmur3Partitioner"},
		"tokens": {
			collection: true,
			elems:      []string{"-9223372036854775808", "0"},
		},
		"rpc_address": {inet: netip.MustParseAddr("192.168.1.5")},
	}
}

// TestHostSet checks a full metadata ingestion pass.
func TestHostSet(t *testing.T) {
	t.Parallel()

	host := testHost(t)
	host.Set(localRow(), true)

	require.Equal(t, "rack1", host.Rack())
	require.Equal(t, "dc1", host.DataCenter())
	require.Equal(t, V(3, 11, 5), host.ServerVersion())
	require.True(t, host.VendorVersion().IsNone())
	require.Equal(
		t, "org.apache.cassandra.dht.Murmur3Partitioner",
		host.Partitioner(),
	)
	require.Equal(
		t, []string{"-9223372036854775808", "0"}, host.Tokens(),
	)

	// The rpc address takes the row's address with the primary port.
	require.Equal(
		t, netip.MustParseAddrPort("192.168.1.5:9042"),
		host.RPCAddress(),
	)

	// The primary address never changes.
	require.Equal(
		t, netip.MustParseAddrPort("10.0.0.1:9042"), host.Address(),
	)
	require.Equal(t, "10.0.0.1:9042", host.String())
}

// TestHostSetBadRelease checks that a malformed release version keeps the
// previously ingested one.
func TestHostSetBadRelease(t *testing.T) {
	t.Parallel()

	host := testHost(t)
	host.Set(localRow(), false)
	require.Equal(t, V(3, 11, 5), host.ServerVersion())

	row := localRow()
	row["release_version"] = &fakeValue{str: "unknown"}
	host.Set(row, false)

	require.Equal(t, V(3, 11, 5), host.ServerVersion())
}

// TestVendorVersionCorrection checks the heuristic that demotes a misreported
// base version on old vendor releases.
func TestVendorVersionCorrection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		release       string
		vendor        string
		expectVersion VersionNumber
		expectVendor  bool
	}{
		{
			name:          "old vendor release corrected",
			release:       "4.0.0",
			vendor:        "6.6.0",
			expectVersion: V(3, 11, 0),
			expectVendor:  true,
		},
		{
			name:          "new vendor release trusted",
			release:       "4.0.0",
			vendor:        "6.7.0",
			expectVersion: V(4, 0, 0),
			expectVendor:  true,
		},
		{
			name:          "base version below floor untouched",
			release:       "3.11.5",
			vendor:        "6.0.0",
			expectVersion: V(3, 11, 5),
			expectVendor:  false,
		},
		{
			name:          "unparseable vendor version skips correction",
			release:       "4.0.0",
			vendor:        "garbage",
			expectVersion: V(4, 0, 0),
			expectVendor:  false,
		},
	}

	for _, test := range tests {
		test := test

		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			row := localRow()
			row["release_version"] = &fakeValue{str: test.release}
			row["dse_version"] = &fakeValue{str: test.vendor}

			host := testHost(t)
			host.Set(row, false)

			require.Equal(
				t, test.expectVersion, host.ServerVersion(),
			)
			require.Equal(
				t, test.expectVendor,
				host.VendorVersion().IsSome(),
			)
		})
	}
}

// TestHostTokens checks that token ingestion appends across refreshes and
// that ResetTokens clears the sequence.
func TestHostTokens(t *testing.T) {
	t.Parallel()

	host := testHost(t)

	host.Set(localRow(), true)
	require.Len(t, host.Tokens(), 2)

	// Another pass with useTokens appends rather than replaces.
	host.Set(localRow(), true)
	require.Len(t, host.Tokens(), 4)

	// A pass without useTokens leaves tokens alone.
	host.Set(localRow(), false)
	require.Len(t, host.Tokens(), 4)

	host.ResetTokens()
	require.Empty(t, host.Tokens())

	host.Set(localRow(), true)
	require.Len(t, host.Tokens(), 2)
}

// TestHostRPCAddress checks the rpc address fallbacks: missing, null and
// undecodable values keep the previous address, while a wildcard address is
// installed as reported.
func TestHostRPCAddress(t *testing.T) {
	t.Parallel()

	primary := netip.MustParseAddrPort("10.0.0.1:9042")

	tests := []struct {
		name   string
		mutate func(fakeRow)
		expect netip.AddrPort
	}{
		{
			name: "missing keeps primary",
			mutate: func(row fakeRow) {
				delete(row, "rpc_address")
			},
			expect: primary,
		},
		{
			name: "null keeps primary",
			mutate: func(row fakeRow) {
				row["rpc_address"] = &fakeValue{null: true}
			},
			expect: primary,
		},
		{
			name: "undecodable keeps primary",
			mutate: func(row fakeRow) {
				row["rpc_address"] = &fakeValue{
					inetErr: errors.New("bad length"),
				}
			},
			expect: primary,
		},
		{
			name: "wildcard installed as reported",
			mutate: func(row fakeRow) {
				row["rpc_address"] = &fakeValue{
					inet: netip.MustParseAddr("0.0.0.0"),
				}
			},
			expect: netip.MustParseAddrPort("0.0.0.0:9042"),
		},
		{
			name: "ipv6 address with primary port",
			mutate: func(row fakeRow) {
				row["rpc_address"] = &fakeValue{
					inet: netip.MustParseAddr("2001:db8::1"),
				}
			},
			expect: netip.MustParseAddrPort("[2001:db8::1]:9042"),
		},
	}

	for _, test := range tests {
		test := test

		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			row := localRow()
			test.mutate(row)

			host := NewHost(primary, DefaultHostConfig())
			host.Set(row, false)

			require.Equal(t, test.expect, host.RPCAddress())
		})
	}
}
