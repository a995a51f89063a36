package uplink

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"
)

// DefaultKeepAlive is the TCP keepalive period set on every connection.
const DefaultKeepAlive = 15 * time.Second

// Conn is one TCP connection to the receiver. It carries raw PCM only; the
// peer never sends anything back that the engine reads.
type Conn struct {
	nc           net.Conn
	addr         string
	writeTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

// Dial resolves host and opens a TCP connection within timeout. Nagle is
// disabled and keepalive is enabled. Any failure is returned as a
// *ConnectError.
func Dial(ctx context.Context, host string, port uint16, timeout time.Duration) (*Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))
	d := net.Dialer{
		Timeout:   timeout,
		KeepAlive: DefaultKeepAlive,
	}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectError{Addr: addr, Err: err}
	}
	if tc, ok := nc.(*net.TCPConn); ok {
		if err := tc.SetNoDelay(true); err != nil {
			nc.Close()
			return nil, &ConnectError{Addr: addr, Err: err}
		}
		_ = tc.SetKeepAlive(true)
	}
	return &Conn{nc: nc, addr: addr}, nil
}

// SetWriteTimeout bounds each subsequent Write. Zero disables the bound.
func (c *Conn) SetWriteTimeout(d time.Duration) {
	c.writeTimeout = d
}

// Write sends all of p or returns an *IOError.
func (c *Conn) Write(p []byte) error {
	if c.writeTimeout > 0 {
		if err := c.nc.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return &IOError{Op: "write", Addr: c.addr, Err: err}
		}
	}
	if _, err := c.nc.Write(p); err != nil {
		return &IOError{Op: "write", Addr: c.addr, Err: err}
	}
	return nil
}

// Addr returns the dialed host:port.
func (c *Conn) Addr() string {
	return c.addr
}

// RemoteAddr returns the resolved peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.nc.RemoteAddr()
}

// Close closes the connection. It is safe to call more than once; only the
// first call does any work.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.nc.Close()
	})
	return c.closeErr
}

// interrupt unblocks a pending Write by moving the deadline into the past.
func (c *Conn) interrupt() {
	_ = c.nc.SetDeadline(time.Unix(1, 0))
}
