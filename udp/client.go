package udp

import (
	"context"
	"fmt"
	"net"

	"github.com/pion/dtls/v2"
	coapNet "github.com/plgd-dev/coap-engine/net"
	"github.com/plgd-dev/coap-engine/udp/client"
)

// An Option overrides the client configuration.
type Option interface {
	UDPClientApply(cfg *client.Config)
}

func newConfig(opts []Option) client.Config {
	cfg := client.DefaultConfig
	for _, o := range opts {
		o.UDPClientApply(&cfg)
	}
	return cfg
}

func endpointOptions(cfg client.Config) []coapNet.EndpointOption {
	opts := []coapNet.EndpointOption{coapNet.WithMaxMessageSize(cfg.MaxMessageSize)}
	if cfg.Errors != nil {
		opts = append(opts, coapNet.WithErrors(cfg.Errors))
	}
	return opts
}

// Dial creates a client for a coap:// uri. A multicast host gives a client
// which accepts only non-confirmable messages.
func Dial(ctx context.Context, uri string, opts ...Option) (*client.Conn, error) {
	cfg := newConfig(opts)
	e, err := coapNet.DialUDP(ctx, uri, endpointOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("cannot dial %v: %w", uri, err)
	}
	return client.NewConn(e, cfg), nil
}

// DialDTLS creates a client for a coaps:// uri.
func DialDTLS(ctx context.Context, uri string, dtlsCfg *dtls.Config, opts ...Option) (*client.Conn, error) {
	cfg := newConfig(opts)
	e, err := coapNet.DialDTLS(ctx, uri, dtlsCfg, endpointOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("cannot dial %v: %w", uri, err)
	}
	return client.NewConn(e, cfg), nil
}

// ListenMulticast creates a client which receives the messages sent to group.
func ListenMulticast(network string, group *net.UDPAddr, opts ...Option) (*client.Conn, error) {
	cfg := newConfig(opts)
	e, err := coapNet.ListenMulticastUDP(network, group, endpointOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("cannot listen on %v: %w", group, err)
	}
	return client.NewConn(e, cfg), nil
}

// NewConn creates a client over an existing endpoint.
func NewConn(e coapNet.Endpoint, opts ...Option) *client.Conn {
	return client.NewConn(e, newConfig(opts))
}
