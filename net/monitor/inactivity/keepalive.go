package inactivity

import (
	"context"
	"net"

	"go.uber.org/atomic"
)

type PingConn = interface {
	Conn
	Ping(ctx context.Context, addr net.Addr) error
}

// KeepAlive pings the peer of an idle connection. Each idle check counts as a
// failure until a pong arrives, onInactive is called once maxRetries is exceeded.
type KeepAlive[C PingConn] struct {
	onInactive OnInactiveFunc[C]
	numFails   atomic.Uint32
	pinging    atomic.Bool
	maxRetries uint32
}

func NewKeepAlive[C PingConn](maxRetries uint32, onInactive OnInactiveFunc[C]) *KeepAlive[C] {
	return &KeepAlive[C]{
		maxRetries: maxRetries,
		onInactive: onInactive,
	}
}

func (m *KeepAlive[C]) OnInactive(cc C) {
	if m.numFails.Inc() > m.maxRetries {
		m.onInactive(cc)
		return
	}
	// one ping at a time, the retransmission of the ping runs on its own
	if !m.pinging.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer m.pinging.Store(false)
		if err := cc.Ping(cc.Context(), nil); err == nil {
			m.numFails.Store(0)
		}
	}()
}

func (m *KeepAlive[C]) Fails() uint32 {
	return m.numFails.Load()
}
