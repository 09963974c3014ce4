// Package hostmonitor aggregates host reachability events into the per-host
// telemetry load-balancing consumers ask for: uptime over a window and a
// decaying flap count. It subscribes to the host notifier, so anything that
// drives lifecycle transitions through it is observed automatically.
//
// Hosts that flap rapidly are rate limited: their transitions still count
// toward the flap total, but are no longer recorded into the uptime log once
// they arrive faster than the host's current rate limit tier allows.
package hostmonitor

import (
	"errors"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cqlkit/hoststate"
	"github.com/cqlkit/hoststate/hostnotifier"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
)

var (
	// ErrMonitorShuttingDown is returned when a query cannot be answered
	// because the monitor has received the shutdown signal.
	ErrMonitorShuttingDown = errors.New("host monitor shutting down")

	// ErrHostNotFound is returned when a query is made for a host the
	// monitor has no knowledge of.
	ErrHostNotFound = errors.New("host not found in monitor")
)

// Config provides the monitor with its collaborators. All elements must be
// non-nil for the monitor to operate.
type Config struct {
	// SubscribeHostEvents provides a subscription client delivering a
	// stream of host lifecycle events.
	SubscribeHostEvents func() (*hostnotifier.Client, error)

	// FetchHosts provides the existing cluster view, used to populate
	// the monitor on startup with hosts that predate its subscription.
	FetchHosts func() hoststate.HostList

	// Clock is the time source for event timestamps.
	Clock clock.Clock

	// FlapCountTicker drives the periodic cooldown of all-time flap
	// counts.
	FlapCountTicker ticker.Ticker
}

// uptimeRequest queries the uptime of a host over a range, answered on
// responseChan.
type uptimeRequest struct {
	addr         netip.AddrPort
	startTime    time.Time
	endTime      time.Time
	responseChan chan uptimeResponse
}

// uptimeResponse contains the response to an uptimeRequest and an error if
// one occurred.
type uptimeResponse struct {
	uptime time.Duration
	err    error
}

// flapRequest queries a host's flap count, answered on responseChan.
type flapRequest struct {
	addr         netip.AddrPort
	responseChan chan flapResponse
}

// flapResponse contains the response to a flapRequest and an error if one
// occurred.
type flapResponse struct {
	count    int
	lastFlap time.Time
	err      error
}

// Monitor maintains a set of reachability event logs for the cluster's
// hosts and answers uptime and flap queries from them.
type Monitor struct {
	started uint32
	stopped uint32

	cfg *Config

	// hosts maps host addresses to their event logs. Only the consume
	// goroutine touches it.
	hosts map[netip.AddrPort]*hostEventLog

	uptimeRequests chan uptimeRequest
	flapRequests   chan flapRequest

	quit chan struct{}
	wg   sync.WaitGroup
}

// New initializes a monitor with the config provided. Note that Start must
// be called before any events are consumed.
func New(cfg *Config) *Monitor {
	return &Monitor{
		cfg:            cfg,
		hosts:          make(map[netip.AddrPort]*hostEventLog),
		uptimeRequests: make(chan uptimeRequest),
		flapRequests:   make(chan flapRequest),
		quit:           make(chan struct{}),
	}
}

// Start subscribes to host events, seeds the monitor with the current
// cluster view and launches the main loop. If it fails, the subscription is
// cancelled and an error returned.
func (m *Monitor) Start() error {
	if !atomic.CompareAndSwapUint32(&m.started, 0, 1) {
		return nil
	}

	client, err := m.cfg.SubscribeHostEvents()
	if err != nil {
		return err
	}

	// Add the existing cluster view to the monitor. This is required
	// because added events will not be delivered for hosts that predate
	// our subscription.
	hosts := m.cfg.FetchHosts()

	log.Infof("Adding %v hosts to monitor", len(hosts))

	for _, host := range hosts {
		m.trackHost(host.Address())
	}

	m.cfg.FlapCountTicker.Resume()

	m.wg.Add(1)
	go m.consume(client)

	return nil
}

// Stop terminates the monitor's goroutines.
func (m *Monitor) Stop() {
	if !atomic.CompareAndSwapUint32(&m.stopped, 0, 1) {
		return
	}

	log.Info("Stopping host monitor")

	close(m.quit)
	m.wg.Wait()

	m.cfg.FlapCountTicker.Stop()
}

// trackHost starts monitoring a host, returning early if it is already
// tracked. Called on startup and on host added events.
func (m *Monitor) trackHost(addr netip.AddrPort) {
	if _, ok := m.hosts[addr]; ok {
		log.Errorf("Host %v duplicated in monitor", addr)
		return
	}

	m.hosts[addr] = newHostEventLog(addr, m.cfg.Clock.Now)
}

// removeHost marks a host's event log as terminated. The log is kept so
// queries over the host's lifetime keep working until the monitor is torn
// down.
func (m *Monitor) removeHost(addr netip.AddrPort) {
	eventLog, ok := m.hosts[addr]
	if !ok {
		log.Errorf("Removed host %v unknown to monitor", addr)
		return
	}

	eventLog.remove()
}

// hostEvent records a reachability transition for a host, applying the
// host's current flap rate limit. Rate limited transitions still increase
// the flap count, they are just not recorded into the uptime log.
func (m *Monitor) hostEvent(addr netip.AddrPort, event eventType) {
	eventLog, ok := m.hosts[addr]
	if !ok {
		log.Warnf("Event %v for host %v unknown to monitor", event,
			addr)
		return
	}

	now := m.cfg.Clock.Now()

	limit := rateLimit(eventLog.flapCount)
	rateLimited := !eventLog.lastFlap.IsZero() &&
		now.Sub(eventLog.lastFlap) < limit

	eventLog.flapCount++
	eventLog.lastFlap = now

	if rateLimited {
		log.Debugf("Event %v for host %v rate limited, flap count: "+
			"%v, limit: %v", event, addr, eventLog.flapCount,
			limit)
		return
	}

	eventLog.add(event, now)
}

// cooldownFlapCounts scales down the flap count of every host that has not
// flapped for the cooldown period.
func (m *Monitor) cooldownFlapCounts() {
	now := m.cfg.Clock.Now()

	for _, eventLog := range m.hosts {
		eventLog.flapCount = cooldownFlapCount(
			now, eventLog.flapCount, eventLog.lastFlap,
		)
	}
}

// consume is the monitor's main loop. It consumes the event subscription to
// keep the per-host logs current and serves uptime and flap queries.
func (m *Monitor) consume(client *hostnotifier.Client) {
	defer m.wg.Done()
	defer client.Cancel()

	for {
		select {
		// Process host lifecycle events.
		case e := <-client.Updates():
			switch event := e.(type) {
			case hostnotifier.HostAddedEvent:
				m.trackHost(event.Host.Address())

			case hostnotifier.HostRemovedEvent:
				m.removeHost(event.Host.Address())

			case hostnotifier.HostUpEvent:
				m.hostEvent(
					event.Host.Address(),
					hostOnlineEvent,
				)

			case hostnotifier.HostDownEvent:
				m.hostEvent(
					event.Host.Address(),
					hostOfflineEvent,
				)
			}

		// Periodically forgive hosts that stopped flapping.
		case <-m.cfg.FlapCountTicker.Ticks():
			m.cooldownFlapCounts()

		// Serve requests for host uptime.
		case req := <-m.uptimeRequests:
			var resp uptimeResponse

			eventLog, ok := m.hosts[req.addr]
			if !ok {
				resp.err = ErrHostNotFound
			} else {
				uptime, err := eventLog.uptime(
					req.startTime, req.endTime,
				)
				resp.uptime = uptime
				resp.err = err
			}

			req.responseChan <- resp

		// Serve requests for host flap counts.
		case req := <-m.flapRequests:
			var resp flapResponse

			eventLog, ok := m.hosts[req.addr]
			if !ok {
				resp.err = ErrHostNotFound
			} else {
				resp.count = eventLog.flapCount
				resp.lastFlap = eventLog.lastFlap
			}

			req.responseChan <- resp

		// The notifier has stopped delivering events.
		case <-client.Quit():
			return

		// Exit if the monitor receives the signal to shut down.
		case <-m.quit:
			return
		}
	}
}

// Uptime returns the total time the host was recorded online within the
// inclusive range specified.
func (m *Monitor) Uptime(addr netip.AddrPort, startTime,
	endTime time.Time) (time.Duration, error) {

	request := uptimeRequest{
		addr:         addr,
		startTime:    startTime,
		endTime:      endTime,
		responseChan: make(chan uptimeResponse),
	}

	select {
	case m.uptimeRequests <- request:
	case <-m.quit:
		return 0, ErrMonitorShuttingDown
	}

	select {
	case resp := <-request.responseChan:
		return resp.uptime, resp.err

	case <-m.quit:
		return 0, ErrMonitorShuttingDown
	}
}

// FlapCount returns the host's current decayed flap count and the time of
// its most recent transition.
func (m *Monitor) FlapCount(addr netip.AddrPort) (int, time.Time, error) {
	request := flapRequest{
		addr:         addr,
		responseChan: make(chan flapResponse),
	}

	select {
	case m.flapRequests <- request:
	case <-m.quit:
		return 0, time.Time{}, ErrMonitorShuttingDown
	}

	select {
	case resp := <-request.responseChan:
		return resp.count, resp.lastFlap, resp.err

	case <-m.quit:
		return 0, time.Time{}, ErrMonitorShuttingDown
	}
}
