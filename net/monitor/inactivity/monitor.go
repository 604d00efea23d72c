package inactivity

import (
	"context"
	"time"

	"go.uber.org/atomic"
)

type OnInactiveFunc[C Conn] func(cc C)

type Conn = interface {
	Context() context.Context
	Close() error
}

// Monitor reports a connection which received nothing for the configured
// duration. Time comes from the caller so a fake clock drives it in tests.
type Monitor[C Conn] struct {
	lastActivity atomic.Time
	duration     time.Duration
	onInactive   OnInactiveFunc[C]
}

func (m *Monitor[C]) Notify(now time.Time) {
	m.lastActivity.Store(now)
}

func (m *Monitor[C]) LastActivity() time.Time {
	return m.lastActivity.Load()
}

func CloseConn(cc Conn) {
	// call cc.Close() directly to check and handle error if necessary
	_ = cc.Close()
}

func New[C Conn](duration time.Duration, onInactive OnInactiveFunc[C]) *Monitor[C] {
	return &Monitor[C]{
		duration:   duration,
		onInactive: onInactive,
	}
}

func (m *Monitor[C]) CheckInactivity(now time.Time, cc C) {
	if m.onInactive == nil || m.duration == time.Duration(0) {
		return
	}
	last := m.LastActivity()
	if last.IsZero() {
		m.Notify(now)
		return
	}
	if now.Sub(last) >= m.duration {
		m.onInactive(cc)
	}
}

type NilMonitor[C Conn] struct{}

func (m *NilMonitor[C]) CheckInactivity(time.Time, C) {
	// do nothing
}

func (m *NilMonitor[C]) Notify(time.Time) {
	// do nothing
}

func NewNilMonitor[C Conn]() *NilMonitor[C] {
	return &NilMonitor[C]{}
}
