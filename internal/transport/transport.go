// Package transport provides the byte-stream abstraction the proxy serves
// clients over, with a TCP implementation.
package transport

// Conn is a single accepted client connection.
type Conn interface {
	// Read receives up to len(buf) bytes from the client.
	Read(buf []byte) (int, error)

	// Write sends buf to the client.
	Write(buf []byte) (int, error)

	// Close closes the connection. Closing twice is a no-op.
	Close() error

	// RemoteAddr returns the client address for logging.
	RemoteAddr() string
}

// Listener hands out client connections one at a time.
type Listener interface {
	// Accept blocks until a client connects or the listener is closed.
	Accept() (Conn, error)

	// Close stops the listener. A blocked Accept returns an error
	// matching net.ErrClosed.
	Close() error

	// Addr returns the bound address as host:port.
	Addr() string
}
