package net

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"go.uber.org/atomic"
)

// ConnEndpoint adapts a connected datagram net.Conn, for example a DTLS
// session, to an Endpoint. Every packet goes to the connected peer.
type ConnEndpoint struct {
	conn    net.Conn
	baseURI *url.URL
	secure  bool
	cfg     endpointConfig
	closed  atomic.Bool
}

func NewConnEndpoint(conn net.Conn, baseURI *url.URL, secure bool, opts ...EndpointOption) *ConnEndpoint {
	cfg := defaultEndpointConfig()
	for _, o := range opts {
		o.applyEndpoint(&cfg)
	}
	return &ConnEndpoint{
		conn:    conn,
		baseURI: baseURI,
		secure:  secure,
		cfg:     cfg,
	}
}

func (c *ConnEndpoint) IsMulticast() bool {
	return false
}

func (c *ConnEndpoint) IsSecure() bool {
	return c.secure
}

func (c *ConnEndpoint) BaseURI() *url.URL {
	return c.baseURI
}

func (c *ConnEndpoint) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *ConnEndpoint) Send(ctx context.Context, p Packet) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if c.closed.Load() {
		return ErrConnectionIsClosed
	}
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	n, err := c.conn.Write(p.Data)
	if err != nil {
		return err
	}
	if n != len(p.Data) {
		return ErrWriteInterrupted
	}
	return nil
}

func (c *ConnEndpoint) Receive(ctx context.Context) (Packet, error) {
	if c.closed.Load() {
		return Packet{}, ErrConnectionIsClosed
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(aLongTimeAgo)
	})
	buf := make([]byte, c.cfg.maxMessageSize)
	n, err := c.conn.Read(buf)
	if !stop() {
		_ = c.conn.SetReadDeadline(time.Time{})
	}
	if err != nil {
		if ctx.Err() != nil {
			return Packet{}, ctx.Err()
		}
		if c.closed.Load() {
			return Packet{}, fmt.Errorf("%w: %w", ErrConnectionIsClosed, err)
		}
		return Packet{}, fmt.Errorf("cannot read from connection: %w", err)
	}
	return Packet{Addr: c.conn.RemoteAddr(), Data: buf[:n]}, nil
}

func (c *ConnEndpoint) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.conn.Close()
}
