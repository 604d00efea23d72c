package net

import (
	"context"
	"fmt"

	"github.com/pion/dtls/v2"
)

// DialDTLS performs the DTLS handshake with the peer of a coaps:// uri.
func DialDTLS(ctx context.Context, uri string, dtlsCfg *dtls.Config, opts ...EndpointOption) (*ConnEndpoint, error) {
	base, hostport, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if base.Scheme != "coaps" {
		return nil, fmt.Errorf("%w: %v is not supported by DTLS", ErrInvalidScheme, base.Scheme)
	}
	raddr, err := resolveUDPAddr(ctx, hostport)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve %v: %w", hostport, err)
	}
	conn, err := dtls.DialWithContext(ctx, "udp", raddr, dtlsCfg)
	if err != nil {
		return nil, fmt.Errorf("cannot dial %v: %w", raddr, err)
	}
	return NewConnEndpoint(conn, base, true, opts...), nil
}
