package hostmonitor

import (
	"errors"
	"net/netip"
	"time"
)

var (
	// errZeroEndTime is returned when a query over a range does not have
	// an end time.
	errZeroEndTime = errors.New("zero end time")

	// errEndBeforeStart is returned when a query over a range has an end
	// time which is before the start time.
	errEndBeforeStart = errors.New("end time before start time")
)

type eventType int

const (
	hostOnlineEvent eventType = iota
	hostOfflineEvent
)

// String provides string representations of host events.
func (e eventType) String() string {
	switch e {
	case hostOnlineEvent:
		return "host_online"

	case hostOfflineEvent:
		return "host_offline"
	}

	return "unknown"
}

// hostEvent is a timestamped reachability transition observed for one host.
type hostEvent struct {
	timestamp time.Time
	eventType eventType
}

// hostEventLog stores the reachability events observed over a host's time in
// the cluster view.
type hostEventLog struct {
	// addr is the primary address of the host being monitored.
	addr netip.AddrPort

	// events is a log of timestamped events observed for the host, in
	// ascending timestamp order.
	events []*hostEvent

	// monitoredSince is the first time this host was seen by the
	// monitor.
	monitoredSince time.Time

	// removedAt is the time the host left the cluster view. It is zero
	// while the host is still a member.
	removedAt time.Time

	// flapCount is the all-time number of reachability transitions
	// recorded for the host, including rate limited ones. It decays over
	// time so hosts that stopped flapping long ago are forgiven.
	flapCount int

	// lastFlap is the time of the most recent transition.
	lastFlap time.Time

	// now is expected to return the current time. It is supplied as an
	// external function to enable deterministic unit tests.
	now func() time.Time
}

// newHostEventLog returns an event log for the host with the given address.
func newHostEventLog(addr netip.AddrPort,
	now func() time.Time) *hostEventLog {

	return &hostEventLog{
		addr:           addr,
		monitoredSince: now(),
		now:            now,
	}
}

// remove marks the host as permanently gone from the cluster view.
func (e *hostEventLog) remove() {
	e.removedAt = e.now()
}

// add appends an event with the given type and timestamp to the event log.
// Events for a removed host are dropped.
func (e *hostEventLog) add(event eventType, ts time.Time) {
	if !e.removedAt.IsZero() {
		return
	}

	e.events = append(e.events, &hostEvent{
		timestamp: ts,
		eventType: event,
	})

	log.Debugf("Host %v recording event: %v", e.addr, event)
}

// onlinePeriod represents a period of time over which a host was online.
type onlinePeriod struct {
	start, end time.Time
}

// getOnlinePeriods returns all the periods over which the event log has
// recorded the host as online. An online period is an online event
// terminated by an offline event; if the log ends on an online event, the
// final period runs until removal time, or until the present for hosts
// still in the view.
func (e *hostEventLog) getOnlinePeriods() []*onlinePeriod {
	if len(e.events) == 0 {
		return nil
	}

	var (
		lastOnline    time.Time
		offline       bool
		onlinePeriods []*onlinePeriod
	)

	for _, event := range e.events {
		switch event.eventType {
		case hostOnlineEvent:
			lastOnline = event.timestamp
			offline = false

		case hostOfflineEvent:
			offline = true

			// A log that starts with an offline event has no
			// preceding online period to close.
			if lastOnline.IsZero() {
				continue
			}

			onlinePeriods = append(onlinePeriods, &onlinePeriod{
				start: lastOnline,
				end:   event.timestamp,
			})
		}
	}

	if offline {
		return onlinePeriods
	}

	// The log ended on an online event, so the final period is still
	// open.
	endTime := e.removedAt
	if endTime.IsZero() {
		endTime = e.now()
	}

	return append(onlinePeriods, &onlinePeriod{
		start: lastOnline,
		end:   endTime,
	})
}

// uptime calculates the total time the host was recorded online within the
// inclusive range specified. An error is returned if the end of the range is
// zero or before the start.
func (e *hostEventLog) uptime(start, end time.Time) (time.Duration, error) {
	if err := validateRange(start, end); err != nil {
		return 0, err
	}

	var uptime time.Duration

	for _, p := range e.getOnlinePeriods() {
		// The online period ends before the range we're looking at.
		if p.end.Before(start) {
			continue
		}

		// The online period starts after the range we're looking at,
		// so no further period can overlap it.
		if p.start.After(end) {
			break
		}

		// Clamp the period to the queried range.
		if p.start.Before(start) {
			p.start = start
		}
		if p.end.After(end) {
			p.end = end
		}

		uptime += p.end.Sub(p.start)
	}

	return uptime, nil
}

// validateRange returns an error if the end time provided is zero or before
// the start time provided.
func validateRange(startTime, endTime time.Time) error {
	if endTime.IsZero() {
		return errZeroEndTime
	}

	if endTime.Before(startTime) {
		return errEndBeforeStart
	}

	return nil
}
