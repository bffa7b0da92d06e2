package transport

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// TCPListener implements Listener over a TCP socket.
type TCPListener struct {
	ln net.Listener
}

// Listen binds a TCP listener on addr (host:port).
func Listen(addr string) (*TCPListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, newError(OpListen, err)
	}
	return &TCPListener{ln: ln}, nil
}

// Accept waits for the next client connection.
func (l *TCPListener) Accept() (Conn, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, newError(OpAccept, err)
	}
	return &TCPConn{conn: conn}, nil
}

// Close stops the listener.
func (l *TCPListener) Close() error {
	if err := l.ln.Close(); err != nil {
		return newError(OpClose, err)
	}
	return nil
}

// Addr returns the bound address.
func (l *TCPListener) Addr() string {
	return l.ln.Addr().String()
}

// TCPConn implements Conn over a TCP connection.
type TCPConn struct {
	conn net.Conn
}

// Read receives data from the client. A clean EOF before any byte is read
// is reported as ErrConnectionClosed.
func (c *TCPConn) Read(buf []byte) (int, error) {
	if c.conn == nil {
		return 0, newError(OpRead, net.ErrClosed)
	}

	n, err := c.conn.Read(buf)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, syscall.ECONNRESET) {
			return n, newError(OpRead, ErrConnectionClosed)
		}
		return n, newError(OpRead, err)
	}
	return n, nil
}

// Write sends buf to the client.
func (c *TCPConn) Write(buf []byte) (int, error) {
	if c.conn == nil {
		return 0, newError(OpWrite, net.ErrClosed)
	}

	n, err := c.conn.Write(buf)
	if err != nil {
		// Broken pipe or reset means the client already hung up.
		if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
			return n, newError(OpWrite, ErrConnectionClosed)
		}
		return n, newError(OpWrite, err)
	}
	return n, nil
}

// Close closes the connection.
func (c *TCPConn) Close() error {
	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil
	if err != nil {
		return newError(OpClose, err)
	}
	return nil
}

// RemoteAddr returns the client address, or an empty string once closed.
func (c *TCPConn) RemoteAddr() string {
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}
