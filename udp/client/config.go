package client

import (
	"time"

	"github.com/alecthomas/units"
	"github.com/jonboulle/clockwork"
	"github.com/plgd-dev/coap-engine/message"
	"github.com/plgd-dev/coap-engine/net/monitor/inactivity"
	"github.com/plgd-dev/coap-engine/pkg/metrics"
	"github.com/plgd-dev/coap-engine/pkg/runner/periodic"
	"go.uber.org/zap"
)

type (
	ErrorFunc                   = func(error)
	GetMIDFunc                  = func() uint16
	GetTokenFunc                = func() (message.Token, error)
	CreateInactivityMonitorFunc = func() InactivityMonitor
)

// InactivityMonitor is notified about every received datagram and checked by
// the periodic runner.
type InactivityMonitor interface {
	Notify(now time.Time)
	CheckInactivity(now time.Time, cc *Conn)
}

func newNilMonitor() InactivityMonitor {
	return inactivity.NewNilMonitor[*Conn]()
}

var DefaultConfig = func() Config {
	return Config{
		TransmissionAcknowledgeTimeout: time.Second * 2,
		TransmissionMaxRetransmit:      3,
		TransmissionNStart:             1,
		DedupRetention:                 time.Minute * 5,
		ExchangeLifetime:               time.Second * 247,
		ReceivedMessageQueueSize:       256,
		MaxMessageSize:                 int(64 * units.KiB),
		Clock:                          clockwork.NewRealClock(),
		Logger:                         zap.NewNop(),
		GetToken:                       message.GetToken,
		CreateInactivityMonitor:        newNilMonitor,
	}
}()

type Config struct {
	// TransmissionAcknowledgeTimeout is the base timeout, attempt n waits n times as long.
	TransmissionAcknowledgeTimeout time.Duration
	// TransmissionMaxRetransmit is the number of writes of a confirmable message.
	TransmissionMaxRetransmit uint32
	// TransmissionNStart limits the number of unacknowledged confirmable messages.
	TransmissionNStart       int64
	DedupRetention           time.Duration
	ExchangeLifetime         time.Duration
	ReceivedMessageQueueSize int
	MaxMessageSize           int

	Clock  clockwork.Clock
	Logger *zap.Logger
	// Errors receives errors which cannot be returned to a caller. Nil logs them.
	Errors  ErrorFunc
	Metrics *metrics.Metrics
	// GetMID allocates message IDs. Nil uses a per connection counter.
	GetMID   GetMIDFunc
	GetToken GetTokenFunc
	// PeriodicRunner drives expiration sweeps. Nil creates one bound to the connection.
	PeriodicRunner periodic.Func
	// Registry is used to decode inbound options. Nil means the default registry.
	Registry                *message.Registry
	CreateInactivityMonitor CreateInactivityMonitorFunc
}
