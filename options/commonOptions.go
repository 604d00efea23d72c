package options

import (
	"github.com/jonboulle/clockwork"
	"github.com/plgd-dev/coap-engine/message"
	"github.com/plgd-dev/coap-engine/net/blockwise"
	"github.com/plgd-dev/coap-engine/pkg/metrics"
	"github.com/plgd-dev/coap-engine/pkg/runner/periodic"
	udpClient "github.com/plgd-dev/coap-engine/udp/client"
	"go.uber.org/zap"
)

type ErrorFunc = udpClient.ErrorFunc

// MaxMessageSizeOpt limits the size of a datagram.
type MaxMessageSizeOpt struct {
	maxMessageSize int
}

func (o MaxMessageSizeOpt) UDPClientApply(cfg *udpClient.Config) {
	cfg.MaxMessageSize = o.maxMessageSize
}

// WithMaxMessageSize limits the size of sent and received datagrams.
func WithMaxMessageSize(maxMessageSize int) MaxMessageSizeOpt {
	return MaxMessageSizeOpt{maxMessageSize: maxMessageSize}
}

// ErrorsOpt errors option.
type ErrorsOpt struct {
	errors ErrorFunc
}

func (o ErrorsOpt) UDPClientApply(cfg *udpClient.Config) {
	cfg.Errors = o.errors
}

// WithErrors set function for logging error.
func WithErrors(errors ErrorFunc) ErrorsOpt {
	return ErrorsOpt{errors: errors}
}

// LoggerOpt logger option.
type LoggerOpt struct {
	logger *zap.Logger
}

func (o LoggerOpt) UDPClientApply(cfg *udpClient.Config) {
	cfg.Logger = o.logger
}

func (o LoggerOpt) BlockwiseApply(cfg *blockwise.Config) {
	cfg.Logger = o.logger
}

// WithLogger sets the logger of the connection and of block-wise streams.
func WithLogger(logger *zap.Logger) LoggerOpt {
	return LoggerOpt{logger: logger}
}

// ClockOpt clock option.
type ClockOpt struct {
	clock clockwork.Clock
}

func (o ClockOpt) UDPClientApply(cfg *udpClient.Config) {
	cfg.Clock = o.clock
}

// WithClock replaces the clock used for timeouts and expirations.
func WithClock(clock clockwork.Clock) ClockOpt {
	return ClockOpt{clock: clock}
}

// MetricsOpt metrics option.
type MetricsOpt struct {
	metrics *metrics.Metrics
}

func (o MetricsOpt) UDPClientApply(cfg *udpClient.Config) {
	cfg.Metrics = o.metrics
}

// WithMetrics sets the counters updated by the connection.
func WithMetrics(m *metrics.Metrics) MetricsOpt {
	return MetricsOpt{metrics: m}
}

// PeriodicRunnerOpt function which is executed in every ticks
type PeriodicRunnerOpt struct {
	periodicRunner periodic.Func
}

func (o PeriodicRunnerOpt) UDPClientApply(cfg *udpClient.Config) {
	cfg.PeriodicRunner = o.periodicRunner
}

// WithPeriodicRunner set function which is executed in every ticks.
func WithPeriodicRunner(periodicRunner periodic.Func) PeriodicRunnerOpt {
	return PeriodicRunnerOpt{periodicRunner: periodicRunner}
}

// GetTokenOpt token option.
type GetTokenOpt struct {
	getToken udpClient.GetTokenFunc
}

func (o GetTokenOpt) UDPClientApply(cfg *udpClient.Config) {
	cfg.GetToken = o.getToken
}

// WithGetToken set function for generating tokens.
func WithGetToken(getToken udpClient.GetTokenFunc) GetTokenOpt {
	return GetTokenOpt{getToken: getToken}
}

// RegistryOpt option registry option.
type RegistryOpt struct {
	registry *message.Registry
}

func (o RegistryOpt) UDPClientApply(cfg *udpClient.Config) {
	cfg.Registry = o.registry
}

// WithRegistry sets the option definitions used to decode inbound messages.
func WithRegistry(registry *message.Registry) RegistryOpt {
	return RegistryOpt{registry: registry}
}

// BlockwiseOpt block-wise option.
type BlockwiseOpt struct {
	szx blockwise.SZX
}

func (o BlockwiseOpt) BlockwiseApply(cfg *blockwise.Config) {
	cfg.SZX = o.szx
}

// WithBlockwiseSZX sets the initial block size of block-wise streams.
func WithBlockwiseSZX(szx blockwise.SZX) BlockwiseOpt {
	return BlockwiseOpt{szx: szx}
}
