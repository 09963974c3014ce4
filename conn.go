package hoststate

import (
	"errors"
	"fmt"
)

// ErrConnImported is returned when an exported connection is imported a
// second time.
var ErrConnImported = errors.New("connection already imported")

// EventLoop is the reactor a connection performs its I/O on. Connections are
// bound to exactly one loop at a time and must not be operated on from
// another; this package only ever threads a loop through to Conn.Attach.
type EventLoop interface {
	// Schedule runs fn on the loop's executor.
	Schedule(fn func())
}

// Conn is the transport connection surface this package depends on. The
// actual dialing, framing and TLS live with the transport collaborator.
type Conn interface {
	// ShardID returns the server-side shard this connection was bound to
	// at negotiation time. The binding is fixed for the connection's
	// lifetime.
	ShardID() uint32

	// Attach binds the connection to the given event loop, making it
	// operable again.
	Attach(loop EventLoop) error

	// Detach unbinds the connection from its current event loop. A
	// detached connection must not be used for any transport operation,
	// including Close.
	Detach() error

	// Close requests an asynchronous close of the connection. The
	// connection must be attached.
	Close() error
}

// ExportedConn is a connection detached from its originating event loop so
// that it can be handed safely to another owner. While exported the
// underlying connection is inert: no transport operation is possible until
// the connection is imported onto a loop again, at which point the wrapper
// is spent and sole ownership passes to the importer.
type ExportedConn struct {
	// conn is the wrapped connection, nil once imported.
	conn Conn

	// shardID caches the connection's shard so it can be read without
	// touching the detached connection.
	shardID uint32
}

// ExportConn detaches conn from its event loop and wraps it for hand-off.
func ExportConn(conn Conn) (*ExportedConn, error) {
	shardID := conn.ShardID()
	if err := conn.Detach(); err != nil {
		return nil, fmt.Errorf("unable to detach connection to "+
			"shard %v: %w", shardID, err)
	}

	return &ExportedConn{
		conn:    conn,
		shardID: shardID,
	}, nil
}

// ShardID returns the shard the wrapped connection is bound to.
func (e *ExportedConn) ShardID() uint32 {
	return e.shardID
}

// Import re-attaches the wrapped connection to the given event loop and
// returns it, transferring ownership to the caller. Import succeeds at most
// once per export; further calls return ErrConnImported. Importing the same
// connection twice would hand two owners the same transport state, so the
// wrapper invalidates itself before attaching.
func (e *ExportedConn) Import(loop EventLoop) (Conn, error) {
	if e.conn == nil {
		return nil, ErrConnImported
	}

	conn := e.conn
	e.conn = nil

	if err := conn.Attach(loop); err != nil {
		return nil, fmt.Errorf("unable to attach connection to "+
			"shard %v: %w", e.shardID, err)
	}

	return conn, nil
}
