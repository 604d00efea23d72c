package net

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		name     string
		uri      string
		base     string
		hostport string
		wantErr  error
	}{
		{name: "coap default port", uri: "coap://127.0.0.1/a/b", base: "coap://127.0.0.1:5683", hostport: "127.0.0.1:5683"},
		{name: "coaps default port", uri: "coaps://example.com", base: "coaps://example.com:5684", hostport: "example.com:5684"},
		{name: "explicit port", uri: "coap://[ff02::fd]:1234/x", base: "coap://[ff02::fd]:1234", hostport: "[ff02::fd]:1234"},
		{name: "http", uri: "http://example.com", wantErr: ErrInvalidScheme},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, hostport, err := ParseURI(tt.uri)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.base, base.String())
			require.Equal(t, tt.hostport, hostport)
		})
	}
}

func TestIsMulticastAddr(t *testing.T) {
	require.True(t, IsMulticastAddr(&net.UDPAddr{IP: net.ParseIP("224.0.1.187"), Port: DefaultPort}))
	require.True(t, IsMulticastAddr(&net.UDPAddr{IP: net.ParseIP("ff05::fd"), Port: DefaultPort}))
	require.False(t, IsMulticastAddr(&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: DefaultPort}))
	require.False(t, IsMulticastAddr(nil))
}

func TestIsCancelOrCloseError(t *testing.T) {
	require.False(t, IsCancelOrCloseError(nil))
	require.True(t, IsCancelOrCloseError(context.Canceled))
	require.True(t, IsCancelOrCloseError(net.ErrClosed))
	require.False(t, IsCancelOrCloseError(errors.New("x")))
}
