package options

import (
	"net"
	"time"

	"github.com/plgd-dev/coap-engine/net/blockwise"
	"github.com/plgd-dev/coap-engine/net/monitor/inactivity"
	udpClient "github.com/plgd-dev/coap-engine/udp/client"
)

// TransmissionOpt transmission options.
type TransmissionOpt struct {
	transmissionNStart             int64
	transmissionAcknowledgeTimeout time.Duration
	transmissionMaxRetransmit      uint32
}

func (o TransmissionOpt) UDPClientApply(cfg *udpClient.Config) {
	cfg.TransmissionNStart = o.transmissionNStart
	cfg.TransmissionAcknowledgeTimeout = o.transmissionAcknowledgeTimeout
	cfg.TransmissionMaxRetransmit = o.transmissionMaxRetransmit
}

// WithTransmission set options for (re)transmission for Confirmable message-s.
func WithTransmission(transmissionNStart int64,
	transmissionAcknowledgeTimeout time.Duration,
	transmissionMaxRetransmit uint32,
) TransmissionOpt {
	return TransmissionOpt{
		transmissionNStart:             transmissionNStart,
		transmissionAcknowledgeTimeout: transmissionAcknowledgeTimeout,
		transmissionMaxRetransmit:      transmissionMaxRetransmit,
	}
}

// DeduplicationOpt deduplication option.
type DeduplicationOpt struct {
	retention time.Duration
}

func (o DeduplicationOpt) UDPClientApply(cfg *udpClient.Config) {
	cfg.DedupRetention = o.retention
}

// WithDeduplication sets how long a received message ID is remembered.
func WithDeduplication(retention time.Duration) DeduplicationOpt {
	return DeduplicationOpt{retention: retention}
}

// ExchangeLifetimeOpt exchange lifetime option.
type ExchangeLifetimeOpt struct {
	lifetime time.Duration
}

func (o ExchangeLifetimeOpt) UDPClientApply(cfg *udpClient.Config) {
	cfg.ExchangeLifetime = o.lifetime
}

// WithExchangeLifetime sets how long a response is awaited and an acknowledgement is cached.
func WithExchangeLifetime(lifetime time.Duration) ExchangeLifetimeOpt {
	return ExchangeLifetimeOpt{lifetime: lifetime}
}

// ReceivedMessageQueueSizeOpt queue size option.
type ReceivedMessageQueueSizeOpt struct {
	size int
}

func (o ReceivedMessageQueueSizeOpt) UDPClientApply(cfg *udpClient.Config) {
	cfg.ReceivedMessageQueueSize = o.size
}

// WithReceivedMessageQueueSize bounds the queue read by Receive, the oldest
// message is dropped when it is full.
func WithReceivedMessageQueueSize(size int) ReceivedMessageQueueSizeOpt {
	return ReceivedMessageQueueSizeOpt{size: size}
}

// GetMIDOpt message ID option.
type GetMIDOpt struct {
	getMID udpClient.GetMIDFunc
}

func (o GetMIDOpt) UDPClientApply(cfg *udpClient.Config) {
	cfg.GetMID = o.getMID
}

// WithGetMID set function for generating message IDs.
func WithGetMID(getMID udpClient.GetMIDFunc) GetMIDOpt {
	return GetMIDOpt{getMID: getMID}
}

// PeerOpt peer address option.
type PeerOpt struct {
	addr net.Addr
}

func (o PeerOpt) BlockwiseApply(cfg *blockwise.Config) {
	cfg.Addr = o.addr
}

// WithPeer sends the blocks of a stream to addr instead of the peer of the connection.
func WithPeer(addr net.Addr) PeerOpt {
	return PeerOpt{addr: addr}
}

// InactivityMonitorOpt notifies when a connection is inactive.
type InactivityMonitorOpt struct {
	duration   time.Duration
	onInactive inactivity.OnInactiveFunc[*udpClient.Conn]
}

func (o InactivityMonitorOpt) UDPClientApply(cfg *udpClient.Config) {
	cfg.CreateInactivityMonitor = func() udpClient.InactivityMonitor {
		return inactivity.New(o.duration, o.onInactive)
	}
}

// WithInactivityMonitor calls onInactive when nothing was received for duration.
func WithInactivityMonitor(duration time.Duration, onInactive inactivity.OnInactiveFunc[*udpClient.Conn]) InactivityMonitorOpt {
	return InactivityMonitorOpt{
		duration:   duration,
		onInactive: onInactive,
	}
}

// KeepAliveOpt keepalive option.
type KeepAliveOpt struct {
	timeout    time.Duration
	maxRetries uint32
	onInactive inactivity.OnInactiveFunc[*udpClient.Conn]
}

func (o KeepAliveOpt) UDPClientApply(cfg *udpClient.Config) {
	cfg.CreateInactivityMonitor = func() udpClient.InactivityMonitor {
		keepalive := inactivity.NewKeepAlive(o.maxRetries, o.onInactive)
		return inactivity.New(o.timeout/time.Duration(o.maxRetries+1), keepalive.OnInactive)
	}
}

// WithKeepAlive pings an idle peer, onInactive is called when the peer did
// not answer maxRetries pings within timeout.
func WithKeepAlive(maxRetries uint32, timeout time.Duration, onInactive inactivity.OnInactiveFunc[*udpClient.Conn]) KeepAliveOpt {
	return KeepAliveOpt{
		maxRetries: maxRetries,
		timeout:    timeout,
		onInactive: onInactive,
	}
}
