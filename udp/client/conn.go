package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/LK4D4/joincontext"
	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/plgd-dev/coap-engine/message"
	"github.com/plgd-dev/coap-engine/message/codes"
	coapNet "github.com/plgd-dev/coap-engine/net"
	"github.com/plgd-dev/coap-engine/pkg/cache"
	coapErrors "github.com/plgd-dev/coap-engine/pkg/errors"
	"github.com/plgd-dev/coap-engine/pkg/fn"
	pkgMath "github.com/plgd-dev/coap-engine/pkg/math"
	"github.com/plgd-dev/coap-engine/pkg/metrics"
	"github.com/plgd-dev/coap-engine/pkg/runner/periodic"
	coapSync "github.com/plgd-dev/coap-engine/pkg/sync"
	"github.com/plgd-dev/coap-engine/udp/coder"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	errFmtWriteRequest  = "cannot write request: %w"
	errFmtWriteResponse = "cannot write response: %w"
)

type PendingMap = coapSync.Map[uint16, *pendingResponse]

// Transmission holds the retransmission parameters, they can be changed
// while the connection is running.
type Transmission struct {
	acknowledgeTimeout *atomic.Duration
	maxRetransmit      *atomic.Uint32
}

func (t *Transmission) SetTransmissionAcknowledgeTimeout(d time.Duration) {
	t.acknowledgeTimeout.Store(d)
}

func (t *Transmission) SetTransmissionMaxRetransmit(d uint32) {
	t.maxRetransmit.Store(d)
}

// Conn is a CoAP client engine running over a datagram endpoint.
//
// A single goroutine started by NewConn reads the endpoint. It acknowledges
// confirmable responses, drops duplicates, resolves pending requests and
// queues every decoded message for Receive.
type Conn struct {
	endpoint coapNet.Endpoint
	coder    *coder.Coder
	cfg      Config
	clock    clockwork.Clock
	logger   *zap.Logger
	errors   ErrorFunc
	metrics  *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	transmission     *Transmission
	nstart           *semaphore.Weighted
	msgID            atomic.Uint32
	pending          *PendingMap
	dedup            *dedupCache
	responseMsgCache *cache.Cache[string, []byte]
	inbound          *inboundQueue
	inactivity       InactivityMonitor

	onCloseMutex sync.Mutex
	onClose      fn.FuncList

	closeOnce        sync.Once
	closeErr         error
	closeEndpointErr error
}

// NewConn creates a connection over endpoint and starts reading from it.
// The connection owns the endpoint and closes it on Close.
func NewConn(endpoint coapNet.Endpoint, cfg Config) *Conn {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.GetToken == nil {
		cfg.GetToken = message.GetToken
	}
	if cfg.CreateInactivityMonitor == nil {
		cfg.CreateInactivityMonitor = newNilMonitor
	}
	if cfg.TransmissionNStart <= 0 {
		cfg.TransmissionNStart = 1
	}
	errorsFunc := cfg.Errors
	if errorsFunc == nil {
		logger := cfg.Logger
		errorsFunc = func(err error) {
			logger.Error("coap client", zap.Error(err))
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cc := &Conn{
		endpoint: endpoint,
		coder:    coder.NewCoder(cfg.Registry),
		cfg:      cfg,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		errors:   errorsFunc,
		metrics:  cfg.Metrics,
		ctx:      ctx,
		cancel:   cancel,
		group:    new(errgroup.Group),
		transmission: &Transmission{
			acknowledgeTimeout: atomic.NewDuration(cfg.TransmissionAcknowledgeTimeout),
			maxRetransmit:      atomic.NewUint32(cfg.TransmissionMaxRetransmit),
		},
		nstart:           semaphore.NewWeighted(cfg.TransmissionNStart),
		pending:          coapSync.NewMap[uint16, *pendingResponse](),
		dedup:            newDedupCache(cfg.DedupRetention),
		responseMsgCache: cache.NewCacheWithClock[string, []byte](cfg.Clock.Now),
		inbound:          newInboundQueue(cfg.ReceivedMessageQueueSize),
		inactivity:       cfg.CreateInactivityMonitor(),
	}
	cc.msgID.Store(uint32(message.RandMID()))
	cc.inactivity.Notify(cfg.Clock.Now())

	runner := cfg.PeriodicRunner
	if runner == nil {
		runner = periodic.New(ctx.Done(), cfg.Clock, time.Second)
	}
	runner(func(now time.Time) bool {
		cc.CheckExpirations(now)
		cc.inactivity.CheckInactivity(now, cc)
		return cc.ctx.Err() == nil
	})
	cc.group.Go(cc.run)
	return cc
}

func (cc *Conn) Transmission() *Transmission {
	return cc.transmission
}

func (cc *Conn) Endpoint() coapNet.Endpoint {
	return cc.endpoint
}

// Context is canceled when the connection is closed.
func (cc *Conn) Context() context.Context {
	return cc.ctx
}

func (cc *Conn) Done() <-chan struct{} {
	return cc.ctx.Done()
}

// AddOnClose registers f to run when the connection is closed.
func (cc *Conn) AddOnClose(f func()) {
	cc.onCloseMutex.Lock()
	defer cc.onCloseMutex.Unlock()
	cc.onClose = append(cc.onClose, f)
}

// GetMessageID allocates the next message ID. Zero is never returned.
func (cc *Conn) GetMessageID() uint16 {
	if cc.cfg.GetMID != nil {
		return cc.cfg.GetMID()
	}
	for {
		// the counter wraps around
		if v := pkgMath.CastTo[uint16](cc.msgID.Inc()); v != 0 {
			return v
		}
	}
}

func endpointKey(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}

func (cc *Conn) isMulticast(req *message.Message, addr net.Addr) bool {
	return req.IsMulticast || cc.endpoint.IsMulticast() || coapNet.IsMulticastAddr(addr)
}

func (cc *Conn) closeError() error {
	if cc.closeErr != nil {
		return cc.closeErr
	}
	return ErrConnectionClosed
}

// contextError returns the reason why a context joined with the connection
// context is done.
func (cc *Conn) contextError(ctx context.Context) error {
	if cc.ctx.Err() != nil {
		return cc.closeError()
	}
	return ctx.Err()
}

func (cc *Conn) write(ctx context.Context, data []byte, addr net.Addr, multicast bool) error {
	err := cc.endpoint.Send(ctx, coapNet.Packet{Addr: addr, Data: data, Multicast: multicast})
	if err != nil {
		return err
	}
	cc.metrics.IncSent()
	return nil
}

// Send writes req to addr, a nil addr means the peer of the endpoint.
//
// A zero message ID is replaced by a newly allocated one and requests without
// a token get a fresh token; both are set on req. A confirmable message is
// retransmitted until it is acknowledged, reset or the attempts are exhausted.
// Requests keep a pending slot which must be consumed by GetResponse.
func (cc *Conn) Send(ctx context.Context, req *message.Message, addr net.Addr) (uint16, error) {
	multicast := cc.isMulticast(req, addr)
	if multicast {
		if req.Type != message.NonConfirmable {
			return 0, fmt.Errorf("%w: %v", ErrMulticastConfirmable, req.Type)
		}
		req.IsMulticast = true
	}
	if cc.ctx.Err() != nil {
		return 0, cc.closeError()
	}
	if req.MessageID == 0 {
		req.MessageID = cc.GetMessageID()
	}
	if req.Code.IsRequest() && len(req.Token) == 0 {
		token, err := cc.cfg.GetToken()
		if err != nil {
			return 0, fmt.Errorf("cannot get token: %w", err)
		}
		req.Token = token
	}
	data, err := cc.coder.Marshal(*req)
	if err != nil {
		return 0, fmt.Errorf(errFmtWriteRequest, err)
	}
	if req.Type != message.Confirmable && !req.Code.IsRequest() {
		if err = cc.write(ctx, data, addr, multicast); err != nil {
			return 0, fmt.Errorf(errFmtWriteRequest, err)
		}
		return req.MessageID, nil
	}

	endpoint := endpointKey(addr)
	if multicast {
		// responses come from the unicast addresses of the group members
		endpoint = ""
	}
	p := newPendingResponse(req.Clone(), data, addr, endpoint, cc.clock.Now())
	if _, loaded := cc.pending.LoadOrStore(req.MessageID, p); loaded {
		return 0, fmt.Errorf("message id %v: %w", req.MessageID, coapErrors.ErrKeyAlreadyExists)
	}
	cc.dedup.forgetReplies(req.MessageID)
	cc.metrics.SetPending(cc.pending.Length())

	if !p.confirmable {
		p.acknowledge()
		if err = cc.write(ctx, data, addr, multicast); err != nil {
			cc.removePending(p)
			return 0, fmt.Errorf(errFmtWriteRequest, err)
		}
		return req.MessageID, nil
	}
	if err = cc.transmit(ctx, p); err != nil {
		cc.removePending(p)
		return 0, err
	}
	return req.MessageID, nil
}

// transmit writes a confirmable message until it is acknowledged or
// resolved. The n-th attempt waits n times the acknowledge timeout.
func (cc *Conn) transmit(ctx context.Context, p *pendingResponse) error {
	p.transmitMutex.Lock()
	defer p.transmitMutex.Unlock()
	if p.isAcknowledged() {
		return p.ackError()
	}
	ctx, cancel := joincontext.Join(ctx, cc.ctx)
	defer cancel()
	if err := cc.nstart.Acquire(ctx, 1); err != nil {
		return cc.contextError(ctx)
	}
	defer cc.nstart.Release(1)

	b := newRetransmitBackOff(cc.transmission.acknowledgeTimeout.Load(), cc.transmission.maxRetransmit.Load())
	for attempt := 1; ; attempt++ {
		timeout := b.NextBackOff()
		if timeout == backoff.Stop {
			err := fmt.Errorf("message id %v: %w", p.mid(), ErrRetransmitExhausted)
			p.resolve(nil, err)
			return err
		}
		if attempt > 1 {
			cc.metrics.IncRetransmissions()
			cc.logger.Debug("retransmit", zap.Uint16("mid", p.mid()), zap.Int("attempt", attempt), zap.String("remote", endpointKey(p.addr)))
		}
		if err := cc.write(ctx, p.data, p.addr, false); err != nil {
			if ctx.Err() != nil {
				return cc.contextError(ctx)
			}
			return fmt.Errorf(errFmtWriteRequest, err)
		}
		timer := cc.clock.NewTimer(timeout)
		select {
		case <-p.acked:
			timer.Stop()
			return p.ackError()
		case <-timer.Chan():
		case <-ctx.Done():
			timer.Stop()
			return cc.contextError(ctx)
		}
	}
}

// removePending deletes the slot of p if it is still registered.
func (cc *Conn) removePending(p *pendingResponse) bool {
	removed := false
	cc.pending.ReplaceWithFunc(p.mid(), func(old *pendingResponse, loaded bool) (*pendingResponse, bool) {
		if loaded && old == p {
			removed = true
			return nil, true
		}
		return old, !loaded
	})
	cc.metrics.SetPending(cc.pending.Length())
	return removed
}

// GetResponse waits for the response of the request sent with message ID mid
// and consumes its pending slot. An unacknowledged confirmable request is
// retransmitted meanwhile. After the acknowledgement the response must
// arrive within the exchange lifetime.
func (cc *Conn) GetResponse(ctx context.Context, mid uint16) (*message.Message, error) {
	p, ok := cc.pending.Load(mid)
	if !ok {
		return nil, fmt.Errorf("message id %v: %w", mid, ErrPendingNotFound)
	}
	defer cc.removePending(p)
	if p.confirmable {
		if err := cc.transmit(ctx, p); err != nil {
			return nil, err
		}
	}
	ctx, cancel := joincontext.Join(ctx, cc.ctx)
	defer cancel()
	timer := cc.clock.NewTimer(cc.cfg.ExchangeLifetime)
	defer timer.Stop()
	select {
	case <-p.done:
		return p.result()
	case <-timer.Chan():
		return nil, fmt.Errorf("message id %v: %w", mid, ErrExchangeTimeout)
	case <-ctx.Done():
		return nil, cc.contextError(ctx)
	}
}

// Do sends req and waits for its response.
func (cc *Conn) Do(ctx context.Context, req *message.Message, addr net.Addr) (*message.Message, error) {
	mid, err := cc.Send(ctx, req, addr)
	if err != nil {
		return nil, err
	}
	return cc.GetResponse(ctx, mid)
}

// Ping sends an empty confirmable message. Both an acknowledgement and a
// reset count as the pong.
func (cc *Conn) Ping(ctx context.Context, addr net.Addr) error {
	req := &message.Message{Type: message.Confirmable, Code: codes.Empty}
	mid, err := cc.Send(ctx, req, addr)
	if errors.Is(err, ErrMessageReset) {
		return nil
	}
	if err != nil {
		return err
	}
	if p, ok := cc.pending.Load(mid); ok {
		cc.removePending(p)
	}
	return nil
}

// Receive returns the next inbound message in arrival order. A datagram which
// could not be decoded is returned as an error, a *message.FormatError or a
// *message.OptionError.
func (cc *Conn) Receive(ctx context.Context) (*message.Message, net.Addr, error) {
	r, err := cc.inbound.pop(ctx)
	if err != nil {
		return nil, nil, err
	}
	return r.Message, r.Addr, r.Err
}

// CheckExpirations removes expired cache entries and abandoned pending slots.
func (cc *Conn) CheckExpirations(now time.Time) {
	cc.responseMsgCache.CheckExpirations(now)
	cc.dedup.prune(now)
	cc.pending.Range(func(_ uint16, p *pendingResponse) bool {
		if p.isAcknowledged() && now.Sub(p.created) > cc.cfg.ExchangeLifetime && cc.removePending(p) {
			p.resolve(nil, fmt.Errorf("message id %v: %w", p.mid(), ErrExchangeTimeout))
		}
		return true
	})
}

func (cc *Conn) shutdown(cause error) {
	cc.closeOnce.Do(func() {
		cc.closeErr = cause
		cc.cancel()
		if err := cc.endpoint.Close(); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, coapNet.ErrConnectionIsClosed) {
			cc.closeEndpointErr = err
		}
		// slots stay registered until GetResponse consumes them
		cc.pending.Range(func(_ uint16, p *pendingResponse) bool {
			p.resolve(nil, cause)
			return true
		})
		cc.inbound.close(cause)
		cc.onCloseMutex.Lock()
		onClose := cc.onClose
		cc.onClose = nil
		cc.onCloseMutex.Unlock()
		onClose.Execute()
		cc.logger.Debug("connection closed", zap.Error(cause))
	})
}

// Close stops the receive loop, closes the endpoint and fails every pending
// request with ErrConnectionClosed.
func (cc *Conn) Close() error {
	cc.shutdown(ErrConnectionClosed)
	err := cc.group.Wait()
	return errors.Join(err, cc.closeEndpointErr)
}
