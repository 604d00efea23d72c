package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
)

const (
	DefaultPort       = 5683
	DefaultSecurePort = 5684
)

var (
	ErrConnectionIsClosed = errors.New("connection is closed")
	ErrWriteInterrupted   = errors.New("only part data was written to socket")
	ErrInvalidScheme      = errors.New("invalid scheme")
)

// Packet is a single datagram.
type Packet struct {
	// Addr is the remote address. On send a nil Addr means the default peer of the endpoint.
	Addr net.Addr
	Data []byte
	// Multicast is set for datagrams received on or sent to a multicast group.
	Multicast bool
}

// Endpoint is a datagram transport the client engine runs on.
type Endpoint interface {
	Send(ctx context.Context, p Packet) error
	Receive(ctx context.Context) (Packet, error)
	IsMulticast() bool
	IsSecure() bool
	BaseURI() *url.URL
	Close() error
}

// ParseURI validates a coap:// or coaps:// uri and fills in the default port.
// It returns the parsed uri and host:port of the peer.
func ParseURI(uri string) (*url.URL, string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, "", fmt.Errorf("cannot parse uri %v: %w", uri, err)
	}
	var port int
	switch u.Scheme {
	case "coap":
		port = DefaultPort
	case "coaps":
		port = DefaultSecurePort
	default:
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidScheme, u.Scheme)
	}
	if u.Port() != "" {
		p, err := strconv.ParseUint(u.Port(), 10, 16)
		if err != nil {
			return nil, "", fmt.Errorf("invalid port %v: %w", u.Port(), err)
		}
		port = int(p)
	}
	hostport := net.JoinHostPort(u.Hostname(), strconv.Itoa(port))
	base := &url.URL{Scheme: u.Scheme, Host: hostport}
	return base, hostport, nil
}

// IsMulticastAddr reports whether addr is an IPv4 or IPv6 multicast address.
func IsMulticastAddr(addr net.Addr) bool {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP.IsMulticast()
	case *net.IPAddr:
		return a.IP.IsMulticast()
	}
	return false
}

// IsIPv6 return's true if addr is IPV6.
func IsIPv6(addr net.IP) bool {
	if ip := addr.To16(); ip != nil && ip.To4() == nil {
		return true
	}
	return false
}

// IsCancelOrCloseError reports errors caused by closing the endpoint or cancelling the context.
func IsCancelOrCloseError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, ErrConnectionIsClosed)
}
