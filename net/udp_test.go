package net

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newLoopbackEndpoint(t *testing.T) *UDPEndpoint {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	e := NewUDPEndpoint(conn, nil, nil)
	t.Cleanup(func() {
		_ = e.Close()
	})
	return e
}

func TestUDPEndpointSendReceive(t *testing.T) {
	server := newLoopbackEndpoint(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	client, err := DialUDP(ctx, "coap://"+server.LocalAddr().String()+"/a")
	require.NoError(t, err)
	defer func() {
		_ = client.Close()
	}()
	require.False(t, client.IsMulticast())
	require.False(t, client.IsSecure())
	require.Equal(t, "coap://"+server.LocalAddr().String(), client.BaseURI().String())

	err = client.Send(ctx, Packet{Data: []byte("ping")})
	require.NoError(t, err)
	p, err := server.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("ping"), p.Data)
	require.False(t, p.Multicast)

	err = server.Send(ctx, Packet{Addr: p.Addr, Data: []byte("pong")})
	require.NoError(t, err)
	p, err = client.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("pong"), p.Data)
	require.Equal(t, server.LocalAddr().String(), p.Addr.String())
}

func TestUDPEndpointReceiveCanceled(t *testing.T) {
	e := newLoopbackEndpoint(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*50)
	defer cancel()
	_, err := e.Receive(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// a canceled receive doesn't break the next one
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel2()
	sender, err := net.DialUDP("udp4", nil, e.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer func() {
		_ = sender.Close()
	}()
	_, err = sender.Write([]byte("x"))
	require.NoError(t, err)
	p, err := e.Receive(ctx2)
	require.NoError(t, err)
	require.Equal(t, []byte("x"), p.Data)
}

func TestUDPEndpointClosed(t *testing.T) {
	e := newLoopbackEndpoint(t)
	errCh := make(chan error, 1)
	go func() {
		_, err := e.Receive(context.Background())
		errCh <- err
	}()
	time.Sleep(time.Millisecond * 50)
	require.NoError(t, e.Close())
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrConnectionIsClosed)
	case <-time.After(time.Second * 5):
		require.FailNow(t, "receive is still blocked")
	}
	require.ErrorIs(t, e.Send(context.Background(), Packet{Addr: e.LocalAddr(), Data: []byte{1}}), ErrConnectionIsClosed)
	require.NoError(t, e.Close())
}

func TestUDPEndpointSendWithoutAddr(t *testing.T) {
	e := newLoopbackEndpoint(t)
	require.Error(t, e.Send(context.Background(), Packet{Data: []byte{1}}))
}

func TestDialUDPInvalidScheme(t *testing.T) {
	_, err := DialUDP(context.Background(), "coaps://127.0.0.1")
	require.ErrorIs(t, err, ErrInvalidScheme)
}
