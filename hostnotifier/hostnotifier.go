// Package hostnotifier is the subsystem all host lifecycle events pipe
// through. It takes subscriptions for its events and notifies every
// subscriber whenever a host is added, removed, or changes reachability. It
// also houses the adapter that flattens those events into the fixed record
// shape consumed by foreign-callable embeddings.
package hostnotifier

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/cqlkit/hoststate"
	"github.com/lightningnetwork/lnd/queue"
)

// ErrNotifierShuttingDown is returned when an operation cannot complete
// because the notifier is shutting down.
var ErrNotifierShuttingDown = errors.New("host notifier shutting down")

// HostUpEvent represents a host becoming reachable.
type HostUpEvent struct {
	// Host is the host that came up.
	Host *hoststate.Host
}

// HostDownEvent represents a host becoming unreachable.
type HostDownEvent struct {
	// Host is the host that went down.
	Host *hoststate.Host
}

// HostAddedEvent represents a host joining the cluster view.
type HostAddedEvent struct {
	// Host is the newly added host.
	Host *hoststate.Host
}

// HostRemovedEvent represents a host permanently leaving the cluster view.
// It is the last event delivered for its address.
type HostRemovedEvent struct {
	// Host is the removed host.
	Host *hoststate.Host
}

// Client receives the host events it has subscribed to. Events are buffered
// through a concurrent queue so a slow consumer never blocks the notifier.
type Client struct {
	// cancel should be called when the client no longer wants updates.
	cancel func()

	events *queue.ConcurrentQueue
	quit   chan struct{}
}

// Updates returns a read-only channel delivering the subscribed host events.
func (c *Client) Updates() <-chan interface{} {
	return c.events.ChanOut()
}

// Quit is a channel that is closed if the notifier stops delivering updates
// to this client.
func (c *Client) Quit() <-chan struct{} {
	return c.quit
}

// Cancel withdraws the client's subscription.
func (c *Client) Cancel() {
	c.cancel()
}

// clientUpdate either registers a new subscriber or cancels an existing one.
type clientUpdate struct {
	// cancel indicates this update cancels the subscription identified
	// by clientID rather than adding one.
	cancel bool

	clientID uint64

	// client is the new subscriber. Nil for cancellations.
	client *Client
}

// Notifier fans host lifecycle events out to its subscribers. It also
// implements hoststate.HostListener, so it can be handed directly to the
// collaborators that drive lifecycle transitions.
type Notifier struct {
	started uint32
	stopped uint32

	clientCounter uint64 // To be used atomically.

	clients       map[uint64]*Client
	clientUpdates chan *clientUpdate

	events chan interface{}

	quit chan struct{}
	wg   sync.WaitGroup
}

// A compile time check to ensure Notifier implements the HostListener
// capability set.
var _ hoststate.HostListener = (*Notifier)(nil)

// New creates a new host event notifier.
func New() *Notifier {
	return &Notifier{
		clients:       make(map[uint64]*Client),
		clientUpdates: make(chan *clientUpdate),
		events:        make(chan interface{}),
		quit:          make(chan struct{}),
	}
}

// Start starts the notifier, making it ready to accept subscriptions and
// events.
func (n *Notifier) Start() error {
	if !atomic.CompareAndSwapUint32(&n.started, 0, 1) {
		return nil
	}

	log.Trace("Host notifier starting")

	n.wg.Add(1)
	go n.eventHandler()

	return nil
}

// Stop signals the notifier for a graceful shutdown.
func (n *Notifier) Stop() error {
	if !atomic.CompareAndSwapUint32(&n.stopped, 0, 1) {
		return nil
	}

	close(n.quit)
	n.wg.Wait()

	return nil
}

// SubscribeHostEvents returns a Client that will receive every host event
// the notifier is made aware of from this point on.
func (n *Notifier) SubscribeHostEvents() (*Client, error) {
	// We'll first atomically obtain the next ID for this client from the
	// incrementing client ID counter.
	clientID := atomic.AddUint64(&n.clientCounter, 1)

	client := &Client{
		events: queue.NewConcurrentQueue(20),
		quit:   make(chan struct{}),
		cancel: func() {
			select {
			case n.clientUpdates <- &clientUpdate{
				cancel:   true,
				clientID: clientID,
			}:
			case <-n.quit:
			}
		},
	}

	select {
	case n.clientUpdates <- &clientUpdate{
		clientID: clientID,
		client:   client,
	}:
	case <-n.quit:
		return nil, ErrNotifierShuttingDown
	}

	return client, nil
}

// NotifyHostUp sends a HostUpEvent to all subscribers.
func (n *Notifier) NotifyHostUp(host *hoststate.Host) {
	if err := n.sendEvent(HostUpEvent{Host: host}); err != nil {
		log.Warnf("Unable to send host up event for %v: %v", host,
			err)
	}
}

// NotifyHostDown sends a HostDownEvent to all subscribers.
func (n *Notifier) NotifyHostDown(host *hoststate.Host) {
	if err := n.sendEvent(HostDownEvent{Host: host}); err != nil {
		log.Warnf("Unable to send host down event for %v: %v", host,
			err)
	}
}

// NotifyHostAdded sends a HostAddedEvent to all subscribers.
func (n *Notifier) NotifyHostAdded(host *hoststate.Host) {
	if err := n.sendEvent(HostAddedEvent{Host: host}); err != nil {
		log.Warnf("Unable to send host added event for %v: %v", host,
			err)
	}
}

// NotifyHostRemoved sends a HostRemovedEvent to all subscribers.
func (n *Notifier) NotifyHostRemoved(host *hoststate.Host) {
	if err := n.sendEvent(HostRemovedEvent{Host: host}); err != nil {
		log.Warnf("Unable to send host removed event for %v: %v",
			host, err)
	}
}

// OnHostUp implements hoststate.HostListener.
func (n *Notifier) OnHostUp(host *hoststate.Host) {
	n.NotifyHostUp(host)
}

// OnHostDown implements hoststate.HostListener.
func (n *Notifier) OnHostDown(host *hoststate.Host) {
	n.NotifyHostDown(host)
}

// OnHostAdded implements hoststate.HostListener.
func (n *Notifier) OnHostAdded(host *hoststate.Host) {
	n.NotifyHostAdded(host)
}

// OnHostRemoved implements hoststate.HostListener.
func (n *Notifier) OnHostRemoved(host *hoststate.Host) {
	n.NotifyHostRemoved(host)
}

// sendEvent queues an event for delivery to all active subscribers.
func (n *Notifier) sendEvent(event interface{}) error {
	select {
	case n.events <- event:
		return nil
	case <-n.quit:
		return ErrNotifierShuttingDown
	}
}

// eventHandler is the notifier's main loop, handling subscription changes
// and forwarding events to the registered clients.
//
// NOTE: MUST be run as a goroutine.
func (n *Notifier) eventHandler() {
	defer n.wg.Done()

	for {
		select {

		// If a client update is received, either a new subscription
		// becomes active or we cancel an existing one.
		case update := <-n.clientUpdates:
			clientID := update.clientID

			// In case this is a cancellation, stop the client's
			// underlying queue and remove the client from the set
			// of active subscribers.
			if update.cancel {
				client, ok := n.clients[clientID]
				if ok {
					client.events.Stop()
					close(client.quit)
					delete(n.clients, clientID)
				}

				continue
			}

			// If this was not a cancellation, start the
			// underlying queue and add the client to our set of
			// subscribers.
			update.client.events.Start()
			n.clients[clientID] = update.client

		// A new event was received, forward it to all active
		// clients. Delivery order per client follows send order,
		// which is how producers uphold the add-before-up and
		// remove-is-terminal ordering contract.
		case event := <-n.events:
			for _, client := range n.clients {
				select {
				case client.events.ChanIn() <- event:
				case <-client.quit:
				case <-n.quit:
					return
				}
			}

		// In case the notifier is shutting down, stop the clients
		// and close the quit channels to notify them.
		case <-n.quit:
			for _, client := range n.clients {
				client.events.Stop()
				close(client.quit)
			}
			return
		}
	}
}
