package hoststate

// HostListener is the observer interface for host lifecycle transitions.
// Producers must deliver OnHostAdded for an address before any OnHostUp or
// OnHostDown for it, and OnHostRemoved is terminal: no further events follow
// for that address.
type HostListener interface {
	// OnHostUp is called when a host becomes reachable.
	OnHostUp(host *Host)

	// OnHostDown is called when a host stops being reachable.
	OnHostDown(host *Host)

	// OnHostAdded is called when a host joins the cluster view.
	OnHostAdded(host *Host)

	// OnHostRemoved is called when a host permanently leaves the cluster
	// view.
	OnHostRemoved(host *Host)
}
