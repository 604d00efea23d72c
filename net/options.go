package net

import (
	"net"

	"github.com/alecthomas/units"
)

// DefaultMaxMessageSize bounds the datagrams read from the socket.
const DefaultMaxMessageSize = int(64 * units.KiB)

type endpointConfig struct {
	maxMessageSize    int
	multicastHopLimit int
	multicastLoopback bool
	interfaces        []net.Interface
	errors            func(err error)
}

func defaultEndpointConfig() endpointConfig {
	return endpointConfig{
		maxMessageSize:    DefaultMaxMessageSize,
		multicastHopLimit: 1,
		errors: func(error) {
			// don't log any error from fails for multicast requests
		},
	}
}

// An EndpointOption sets options such as the receive buffer size or multicast parameters.
type EndpointOption interface {
	applyEndpoint(*endpointConfig)
}

type MaxMessageSizeOpt struct {
	maxMessageSize int
}

func (o MaxMessageSizeOpt) applyEndpoint(cfg *endpointConfig) {
	if o.maxMessageSize > 0 {
		cfg.maxMessageSize = o.maxMessageSize
	}
}

// WithMaxMessageSize limits the size of a received datagram.
func WithMaxMessageSize(size int) MaxMessageSizeOpt {
	return MaxMessageSizeOpt{maxMessageSize: size}
}

type MulticastOpt struct {
	hopLimit   int
	loopback   bool
	interfaces []net.Interface
}

func (o MulticastOpt) applyEndpoint(cfg *endpointConfig) {
	if o.hopLimit > 0 {
		cfg.multicastHopLimit = o.hopLimit
	}
	cfg.multicastLoopback = o.loopback
	cfg.interfaces = o.interfaces
}

// WithMulticast sets the hop limit of outgoing multicast datagrams, whether they
// are looped back to the host and the interfaces used. No interfaces means all
// interfaces which are up and support multicast.
func WithMulticast(hopLimit int, loopback bool, interfaces ...net.Interface) MulticastOpt {
	return MulticastOpt{hopLimit: hopLimit, loopback: loopback, interfaces: interfaces}
}

type ErrorsOpt struct {
	errors func(err error)
}

func (h ErrorsOpt) applyEndpoint(cfg *endpointConfig) {
	if h.errors != nil {
		cfg.errors = h.errors
	}
}

// WithErrors sets the handler of errors which do not fail the operation, like
// one interface failing during a multicast write.
func WithErrors(v func(err error)) ErrorsOpt {
	return ErrorsOpt{
		errors: v,
	}
}
