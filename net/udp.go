package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"go.uber.org/atomic"
)

var aLongTimeAgo = time.Unix(1, 0)

// UDPEndpoint sends and receives CoAP datagrams over an unconnected UDP socket.
//
// Multiple goroutines may invoke Send simultaneously, Receive is expected to be
// called from one goroutine.
type UDPEndpoint struct {
	connection *net.UDPConn
	packetConn packetConn
	remote     *net.UDPAddr
	baseURI    *url.URL
	multicast  bool
	cfg        endpointConfig
	closed     atomic.Bool
}

// NewUDPEndpoint wraps conn. Packets without address are sent to remote. When
// remote is a multicast group the endpoint is a multicast endpoint.
func NewUDPEndpoint(conn *net.UDPConn, remote *net.UDPAddr, baseURI *url.URL, opts ...EndpointOption) *UDPEndpoint {
	cfg := defaultEndpointConfig()
	for _, o := range opts {
		o.applyEndpoint(&cfg)
	}
	return &UDPEndpoint{
		connection: conn,
		packetConn: newPacketConn(conn),
		remote:     remote,
		baseURI:    baseURI,
		multicast:  remote != nil && remote.IP.IsMulticast(),
		cfg:        cfg,
	}
}

func resolveUDPAddr(ctx context.Context, hostport string) (*net.UDPAddr, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return nil, err
	}
	port, err := net.DefaultResolver.LookupPort(ctx, "udp", portStr)
	if err != nil {
		return nil, err
	}
	if ip := net.ParseIP(host); ip != nil {
		return &net.UDPAddr{IP: ip, Port: port}, nil
	}
	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("cannot resolve %v", host)
	}
	return &net.UDPAddr{IP: ips[0].IP, Port: port, Zone: ips[0].Zone}, nil
}

// DialUDP creates an endpoint for a coap:// uri. The socket is not connected
// so answers of multicast group members are received too.
func DialUDP(ctx context.Context, uri string, opts ...EndpointOption) (*UDPEndpoint, error) {
	base, hostport, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if base.Scheme != "coap" {
		return nil, fmt.Errorf("%w: %v is not supported by UDP", ErrInvalidScheme, base.Scheme)
	}
	raddr, err := resolveUDPAddr(ctx, hostport)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve %v: %w", hostport, err)
	}
	network := "udp4"
	if IsIPv6(raddr.IP) {
		network = "udp6"
	}
	conn, err := net.ListenUDP(network, nil)
	if err != nil {
		return nil, err
	}
	return NewUDPEndpoint(conn, raddr, base, opts...), nil
}

// ListenMulticastUDP joins group on the configured interfaces and receives the
// datagrams sent to it.
func ListenMulticastUDP(network string, group *net.UDPAddr, opts ...EndpointOption) (*UDPEndpoint, error) {
	if group == nil || !group.IP.IsMulticast() {
		return nil, fmt.Errorf("invalid multicast group %v", group)
	}
	conn, err := net.ListenUDP(network, &net.UDPAddr{Port: group.Port})
	if err != nil {
		return nil, err
	}
	base := &url.URL{Scheme: "coap", Host: group.String()}
	e := NewUDPEndpoint(conn, group, base, opts...)
	if err = e.joinGroup(group); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return e, nil
}

func (c *UDPEndpoint) interfaces() ([]net.Interface, error) {
	if len(c.cfg.interfaces) > 0 {
		return c.cfg.interfaces, nil
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("cannot get interfaces for multicast connection: %w", err)
	}
	r := make([]net.Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		if iface.Flags&net.FlagMulticast == 0 || iface.Flags&net.FlagUp != net.FlagUp {
			continue
		}
		r = append(r, iface)
	}
	return r, nil
}

func (c *UDPEndpoint) joinGroup(group *net.UDPAddr) error {
	ifaces, err := c.interfaces()
	if err != nil {
		return err
	}
	joined := 0
	var errs []error
	for i := range ifaces {
		if err := c.packetConn.JoinGroup(&ifaces[i], group); err != nil {
			errs = append(errs, fmt.Errorf("%v: %w", ifaces[i].Name, err))
			continue
		}
		joined++
	}
	if joined == 0 {
		return fmt.Errorf("cannot join group %v: %w", group, errors.Join(errs...))
	}
	for _, err := range errs {
		c.cfg.errors(err)
	}
	return c.packetConn.SetMulticastLoopback(c.cfg.multicastLoopback)
}

func (c *UDPEndpoint) LocalAddr() net.Addr {
	return c.connection.LocalAddr()
}

func (c *UDPEndpoint) IsMulticast() bool {
	return c.multicast
}

func (c *UDPEndpoint) IsSecure() bool {
	return false
}

func (c *UDPEndpoint) BaseURI() *url.URL {
	return c.baseURI
}

func (c *UDPEndpoint) setWriteDeadline(ctx context.Context) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	return c.connection.SetWriteDeadline(deadline)
}

func (c *UDPEndpoint) writeMulticast(raddr *net.UDPAddr, data []byte) error {
	ifaces, err := c.interfaces()
	if err != nil {
		return err
	}
	if err = c.packetConn.SetMulticastHopLimit(c.cfg.multicastHopLimit); err != nil {
		return err
	}
	if err = c.packetConn.SetMulticastLoopback(c.cfg.multicastLoopback); err != nil {
		return err
	}
	sent := 0
	var errs []error
	for i := range ifaces {
		if err := c.packetConn.SetMulticastInterface(&ifaces[i]); err != nil {
			errs = append(errs, fmt.Errorf("%v: %w", ifaces[i].Name, err))
			continue
		}
		if _, err := c.connection.WriteToUDP(data, raddr); err != nil {
			errs = append(errs, fmt.Errorf("%v: %w", ifaces[i].Name, err))
			continue
		}
		sent++
	}
	if sent == 0 {
		return fmt.Errorf("cannot write multicast to %v: %w", raddr, errors.Join(errs...))
	}
	for _, err := range errs {
		c.cfg.errors(err)
	}
	return nil
}

// Send writes p to p.Addr, or to the default peer when p.Addr is nil.
func (c *UDPEndpoint) Send(ctx context.Context, p Packet) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if c.closed.Load() {
		return ErrConnectionIsClosed
	}
	raddr := c.remote
	if p.Addr != nil {
		a, ok := p.Addr.(*net.UDPAddr)
		if !ok {
			return fmt.Errorf("invalid address type(%T), UDP address expected", p.Addr)
		}
		raddr = a
	}
	if raddr == nil {
		return errors.New("cannot write: invalid raddr")
	}
	if err := c.setWriteDeadline(ctx); err != nil {
		return err
	}
	if raddr.IP.IsMulticast() {
		return c.writeMulticast(raddr, p.Data)
	}
	n, err := c.connection.WriteToUDP(p.Data, raddr)
	if err != nil {
		return err
	}
	if n != len(p.Data) {
		return ErrWriteInterrupted
	}
	return nil
}

// Receive blocks until a datagram arrives, ctx is done or the endpoint is closed.
func (c *UDPEndpoint) Receive(ctx context.Context) (Packet, error) {
	if c.closed.Load() {
		return Packet{}, ErrConnectionIsClosed
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.connection.SetReadDeadline(aLongTimeAgo)
	})
	buf := make([]byte, c.cfg.maxMessageSize)
	n, dst, src, err := c.packetConn.ReadFrom(buf)
	if !stop() {
		_ = c.connection.SetReadDeadline(time.Time{})
	}
	if err != nil {
		if ctx.Err() != nil {
			return Packet{}, ctx.Err()
		}
		if c.closed.Load() {
			return Packet{}, fmt.Errorf("%w: %w", ErrConnectionIsClosed, err)
		}
		return Packet{}, fmt.Errorf("cannot read from udp connection: %w", err)
	}
	if _, ok := src.(*net.UDPAddr); !ok {
		return Packet{}, fmt.Errorf("cannot read from udp connection: invalid srcAddr type %T", src)
	}
	return Packet{
		Addr:      src,
		Data:      buf[:n],
		Multicast: dst != nil && dst.IsMulticast(),
	}, nil
}

// Close closes the socket.
func (c *UDPEndpoint) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.connection.Close()
}
