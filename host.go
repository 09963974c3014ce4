// Package hoststate tracks the per-node state a cluster driver needs to
// route requests: resolved contact addresses, the parsed server version with
// vendor-specific correction, a decayed latency average for load-balancing
// consumers, and a per-shard reservoir of established but currently
// unassigned transport connections.
//
// A metadata-ingestion collaborator builds and refreshes Host values from
// decoded system-table rows via Set, then publishes membership through the
// copy-on-write registry operations. Request-execution collaborators record
// latencies through the host's tracker and exchange connections through the
// marketplace. All of that may happen concurrently from independent worker
// goroutines.
package hoststate

import (
	"net/netip"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// VersionCorrection describes the heuristic that corrects a vendor's
// misreported base version. Some vendor releases advertise base-version
// capabilities they do not actually support; when the reported base version
// reaches CapabilityFloor and the vendor version is below VendorFloor, the
// base version is overridden down to CorrectedVersion.
//
// The threshold values are a compatibility contract with observed server
// behavior, not an algorithmic choice, which is why they are configuration
// rather than literals.
type VersionCorrection struct {
	// CapabilityFloor is the reported base version at which the
	// correction becomes a candidate.
	CapabilityFloor VersionNumber

	// VendorFloor is the first vendor version known to truthfully
	// support CapabilityFloor features.
	VendorFloor VersionNumber

	// CorrectedVersion is the base version installed when the correction
	// applies.
	CorrectedVersion VersionNumber
}

// DefaultVersionCorrection returns the correction for vendor releases before
// 6.7 that erroneously report Cassandra 4.0.0 feature support.
func DefaultVersionCorrection() VersionCorrection {
	return VersionCorrection{
		CapabilityFloor:  V(4, 0, 0),
		VendorFloor:      V(6, 7, 0),
		CorrectedVersion: V(3, 11, 0),
	}
}

// HostConfig holds the tunables shared by all state a host maintains.
type HostConfig struct {
	// Clock is the time source for the latency tracker.
	Clock clock.Clock

	// Latency configures the latency tracker.
	Latency LatencyConfig

	// Correction configures the vendor version correction applied during
	// metadata ingestion.
	Correction VersionCorrection
}

// DefaultHostConfig returns the config a production driver uses.
func DefaultHostConfig() HostConfig {
	return HostConfig{
		Clock:      clock.NewDefaultClock(),
		Latency:    DefaultLatencyConfig(),
		Correction: DefaultVersionCorrection(),
	}
}

// Host is the driver's view of one cluster member. A Host is created when
// the member is first observed, refreshed in place on every metadata pass,
// and destroyed only once the member leaves the cluster for good and its
// marketplace has been drained.
//
// The address is immutable after construction and is the host's identity
// within the registry. All other fields are guarded by a single per-host
// mutex; the latency tracker carries its own pool lock and is deliberately
// outside that mutex, and the two locks must never nest.
type Host struct {
	cfg HostConfig

	// addr is the primary (listen) address the host was discovered
	// under. It never changes.
	addr netip.AddrPort

	tracker *LatencyTracker

	// mu guards every field below, including the marketplace in
	// marketplace.go.
	mu sync.Mutex

	// rpcAddr is the possibly-corrected address used for actual
	// connections. It defaults to addr until metadata overrides it.
	rpcAddr netip.AddrPort

	rack          string
	dataCenter    string
	serverVersion VersionNumber
	vendorVersion fn.Option[VersionNumber]
	partitioner   string

	// tokens is only populated when ingestion is asked for it, and is
	// appended to rather than replaced so the caller controls whether
	// stale tokens persist across refreshes.
	tokens []string

	// unpooledConns is the connection marketplace, keyed by shard.
	unpooledConns map[uint32][]*ExportedConn
}

// NewHost creates a host for the given primary address.
func NewHost(addr netip.AddrPort, cfg HostConfig) *Host {
	return &Host{
		cfg:           cfg,
		addr:          addr,
		rpcAddr:       addr,
		tracker:       NewLatencyTracker(cfg.Latency, cfg.Clock),
		unpooledConns: make(map[uint32][]*ExportedConn),
	}
}

// Address returns the host's immutable primary address.
func (h *Host) Address() netip.AddrPort {
	return h.addr
}

// RPCAddress returns the contact address connections should dial.
func (h *Host) RPCAddress() netip.AddrPort {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.rpcAddr
}

// Rack returns the rack reported by the host's metadata.
func (h *Host) Rack() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.rack
}

// DataCenter returns the data center reported by the host's metadata.
func (h *Host) DataCenter() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.dataCenter
}

// ServerVersion returns the host's base server version, after any vendor
// correction.
func (h *Host) ServerVersion() VersionNumber {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.serverVersion
}

// VendorVersion returns the vendor-specific version, if the host reported
// one.
func (h *Host) VendorVersion() fn.Option[VersionNumber] {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.vendorVersion
}

// Partitioner returns the partitioner name reported by the host's metadata.
func (h *Host) Partitioner() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.partitioner
}

// Tokens returns a copy of the host's token strings in ingestion order.
func (h *Host) Tokens() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	tokens := make([]string, len(h.tokens))
	copy(tokens, h.tokens)

	return tokens
}

// ResetTokens clears the token sequence. Set appends rather than replaces,
// so callers refreshing topology call this first when they want a clean
// slate.
func (h *Host) ResetTokens() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.tokens = nil
}

// LatencyTracker returns the host's latency tracker.
func (h *Host) LatencyTracker() *LatencyTracker {
	return h.tracker
}

// LatencyAverage returns the host's current latency state.
func (h *Host) LatencyAverage() TimestampedAverage {
	return h.tracker.CurrentAverage()
}

// Set ingests a decoded metadata row into the host's typed fields. Every
// field is attempted independently: a malformed or missing field logs a
// warning and keeps its previous value, and ingestion never aborts partway.
// Token extraction only happens when useTokens is set, and appends to the
// existing sequence.
func (h *Host) Set(row Row, useTokens bool) {
	rack, _ := row.GetString("rack")
	dc, _ := row.GetString("data_center")
	release, _ := row.GetString("release_version")

	h.mu.Lock()
	defer h.mu.Unlock()

	h.rack = rack
	h.dataCenter = dc

	serverVersion, err := ParseVersion(release)
	if err == nil {
		h.serverVersion = serverVersion
	} else {
		log.Warnf("Invalid release version string %q on host %v",
			release, h.addr)
	}

	// Possibly correct for invalid base version numbers reported by
	// specific vendor releases.
	if h.serverVersion.AtLeast(h.cfg.Correction.CapabilityFloor) {
		if _, ok := row.Get("dse_version"); ok {
			h.correctVendorVersion(row)
		}
	}

	if partitioner, ok := row.GetString("partitioner"); ok {
		h.partitioner = partitioner
	}

	if useTokens {
		if v, ok := row.Get("tokens"); ok && v.IsCollection() {
			for _, token := range v.Collection() {
				h.tokens = append(h.tokens, token.String())
			}
		}
	}

	h.setRPCAddress(row)

	log.Tracef("Refreshed metadata for host %v: %v", h.addr,
		spew.Sdump(hostMeta{
			Rack:          h.rack,
			DataCenter:    h.dataCenter,
			ServerVersion: h.serverVersion,
			Partitioner:   h.partitioner,
			NumTokens:     len(h.tokens),
			RPCAddress:    h.rpcAddr,
		}))
}

// correctVendorVersion parses the vendor version field and applies the
// configured base-version correction when the vendor release is known to
// misreport its capabilities. Called with the host mutex held.
func (h *Host) correctVendorVersion(row Row) {
	vendorStr, _ := row.GetString("dse_version")

	vendorVersion, err := ParseVersion(vendorStr)
	if err != nil {
		log.Warnf("Invalid vendor version string %q on host %v",
			vendorStr, h.addr)
		return
	}

	h.vendorVersion = fn.Some(vendorVersion)

	if vendorVersion.Less(h.cfg.Correction.VendorFloor) {
		log.Debugf("Correcting reported version %v on host %v to %v "+
			"(vendor version %v)", h.serverVersion, h.addr,
			h.cfg.Correction.CorrectedVersion, vendorVersion)

		h.serverVersion = h.cfg.Correction.CorrectedVersion
	}
}

// setRPCAddress resolves the rpc_address field using the primary address'
// port. Called with the host mutex held.
func (h *Host) setRPCAddress(row Row) {
	v, ok := row.Get("rpc_address")
	if !ok || v.IsNull() {
		log.Warnf("No rpc_address for host %v in system.local or "+
			"system.peers", h.addr)
		return
	}

	rpcAddr, err := v.AsInet(h.addr.Port())
	if err != nil {
		log.Warnf("Invalid address format for rpc_address on "+
			"host %v: %v", h.addr, err)
		return
	}

	if rpcAddr.Addr().IsUnspecified() {
		log.Warnf("Found host with 'bind any' for rpc_address; using "+
			"listen_address (%v) to contact instead. If this is "+
			"incorrect you should configure a specific interface "+
			"for rpc_address on the server.", h.addr)
	}

	h.rpcAddr = rpcAddr
}

// hostMeta is a snapshot of the ingested fields for trace logging.
type hostMeta struct {
	Rack          string
	DataCenter    string
	ServerVersion VersionNumber
	Partitioner   string
	NumTokens     int
	RPCAddress    netip.AddrPort
}

// String returns the host's primary address.
func (h *Host) String() string {
	return h.addr.String()
}
