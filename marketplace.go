package hoststate

// The connection marketplace decouples "a connection to this host exists and
// is healthy" from "a connection is currently assigned to a consumer". On
// shard-aware clusters a connection's reachable shard is fixed when the
// connection is negotiated and can never change, so an idle connection
// established for one purpose is worth keeping: any consumer that later
// needs the same shard can withdraw it instead of negotiating a fresh
// transport connection.
//
// All marketplace operations take the owning host's mutex and therefore only
// ever block concurrent marketplace operations on the same host.

// AddUnpooledConn exports conn and deposits it into the marketplace list for
// the shard it is bound to.
func (h *Host) AddUnpooledConn(conn Conn) error {
	exported, err := ExportConn(conn)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	log.Debugf("Connection marketplace consumes a connection to shard "+
		"%v on host %v", exported.ShardID(), h.addr)

	shardID := exported.ShardID()
	h.unpooledConns[shardID] = append(h.unpooledConns[shardID], exported)

	return nil
}

// TakeUnpooledConns removes up to max connections from the front of the
// given shard's list and returns them, transferring ownership to the caller.
// Fewer than max are returned if fewer are available, down to none at all
// for an unknown or empty shard; the caller must treat an empty result as
// "unavailable right now", not as a failure. No connection is ever returned
// to two concurrent withdrawers.
func (h *Host) TakeUnpooledConns(shardID uint32, max int) []*ExportedConn {
	h.mu.Lock()
	defer h.mu.Unlock()

	log.Debugf("Requesting %v connection(s) to shard %v on host %v from "+
		"the marketplace", max, shardID, h.addr)

	conns := h.unpooledConns[shardID]
	if len(conns) == 0 || max <= 0 {
		return nil
	}

	n := max
	if n > len(conns) {
		n = len(conns)
	}

	taken := make([]*ExportedConn, n)
	copy(taken, conns[:n])

	rest := conns[n:]
	if len(rest) == 0 {
		delete(h.unpooledConns, shardID)
	} else {
		h.unpooledConns[shardID] = rest
	}

	return taken
}

// CloseUnpooledConns imports every held connection onto the given event loop
// and closes it, then clears the marketplace. This releases every transport
// resource the marketplace owns and is expected to run once during permanent
// host removal; it leaves the marketplace empty, so a second call is a
// no-op.
func (h *Host) CloseUnpooledConns(loop EventLoop) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for shardID, conns := range h.unpooledConns {
		for _, exported := range conns {
			conn, err := exported.Import(loop)
			if err != nil {
				log.Errorf("Unable to import unpooled "+
					"connection to shard %v on host %v "+
					"for closing: %v", shardID, h.addr,
					err)
				continue
			}

			if err := conn.Close(); err != nil {
				log.Warnf("Unable to close unpooled "+
					"connection to shard %v on host %v: "+
					"%v", shardID, h.addr, err)
			}
		}

		// Importing the same connection twice would hand out shared
		// transport state, so the shard's list is dropped as soon as
		// its connections are closed.
		delete(h.unpooledConns, shardID)
	}
}

// NumUnpooledConns returns how many connections the marketplace currently
// holds for the given shard.
func (h *Host) NumUnpooledConns(shardID uint32) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.unpooledConns[shardID])
}

// UnpooledConnCounts returns the number of held connections per shard.
func (h *Host) UnpooledConnCounts() map[uint32]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	counts := make(map[uint32]int, len(h.unpooledConns))
	for shardID, conns := range h.unpooledConns {
		counts[shardID] = len(conns)
	}

	return counts
}
