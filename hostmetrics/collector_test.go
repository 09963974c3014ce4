package hostmetrics

import (
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/cqlkit/hoststate"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// TestCollector checks the per-host export, including that hosts without a
// warmed-up latency tracker export no latency series.
func TestCollector(t *testing.T) {
	t.Parallel()

	cfg := hoststate.DefaultHostConfig()
	cfg.Clock = clock.NewTestClock(
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	)

	// The first host has a defined latency average and a couple of
	// marketplace connections.
	cfg.Latency.WarmupSamples = 0
	warm := hoststate.NewHost(
		netip.MustParseAddrPort("10.0.0.1:9042"), cfg,
	)
	warm.LatencyTracker().Update(time.Millisecond * 5)

	require.NoError(t, warm.AddUnpooledConn(newMockConn(2)))
	require.NoError(t, warm.AddUnpooledConn(newMockConn(2)))
	require.NoError(t, warm.AddUnpooledConn(newMockConn(0)))

	// The second host is still warming up and holds nothing.
	cfg.Latency.WarmupSamples = 50
	cold := hoststate.NewHost(
		netip.MustParseAddrPort("10.0.0.2:9042"), cfg,
	)
	cold.LatencyTracker().Update(time.Millisecond * 5)

	collector := NewCollector(func() hoststate.HostList {
		return hoststate.HostList{warm, cold}
	})

	expected := `
		# HELP hoststate_host_count Number of hosts in the cluster view.
		# TYPE hoststate_host_count gauge
		hoststate_host_count 2
		# HELP hoststate_host_latency_ns Current average request latency in nanoseconds by host. Absent until the host's latency tracker has warmed up.
		# TYPE hoststate_host_latency_ns gauge
		hoststate_host_latency_ns{host="10.0.0.1:9042"} 5e+06
		# HELP hoststate_host_unpooled_connections Number of connections held for later adoption by host and shard.
		# TYPE hoststate_host_unpooled_connections gauge
		hoststate_host_unpooled_connections{host="10.0.0.1:9042",shard="0"} 1
		hoststate_host_unpooled_connections{host="10.0.0.1:9042",shard="2"} 2
	`

	err := testutil.CollectAndCompare(
		collector, strings.NewReader(expected),
		"hoststate_host_count",
		"hoststate_host_latency_ns",
		"hoststate_host_unpooled_connections",
	)
	require.NoError(t, err)
}

// mockConn is a minimal hoststate.Conn for marketplace population.
type mockConn struct {
	shardID uint32
}

func newMockConn(shardID uint32) *mockConn {
	return &mockConn{shardID: shardID}
}

func (m *mockConn) ShardID() uint32 {
	return m.shardID
}

func (m *mockConn) Attach(_ hoststate.EventLoop) error {
	return nil
}

func (m *mockConn) Detach() error {
	return nil
}

func (m *mockConn) Close() error {
	return nil
}
