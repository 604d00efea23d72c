package client

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/plgd-dev/coap-engine/message"
	"github.com/plgd-dev/coap-engine/message/codes"
	coapNet "github.com/plgd-dev/coap-engine/net"
	"github.com/plgd-dev/coap-engine/pkg/cache"
	"go.uber.org/zap"
)

func (cc *Conn) run() error {
	for {
		p, err := cc.endpoint.Receive(cc.ctx)
		if err != nil {
			if cc.ctx.Err() != nil {
				return nil
			}
			err = fmt.Errorf("cannot receive: %w", err)
			cc.errors(err)
			cc.shutdown(fmt.Errorf("%w: %w", ErrConnectionClosed, err))
			return err
		}
		cc.process(p)
	}
}

func (cc *Conn) process(p coapNet.Packet) {
	endpoint := endpointKey(p.Addr)
	multicast := p.Multicast || cc.endpoint.IsMulticast()
	cc.inactivity.Notify(cc.clock.Now())
	m := new(message.Message)
	if _, err := cc.coder.Decode(p.Data, m); err != nil {
		cc.handleDecodeError(p.Addr, multicast, err)
		return
	}
	m.IsMulticast = multicast
	cc.metrics.IncReceived()

	if m.Type == message.Reset && !m.IsEmpty() {
		cc.logger.Debug("non-empty reset dropped", zap.Uint16("mid", m.MessageID), zap.String("remote", endpoint))
		return
	}
	// acknowledgements and resets carry our message IDs, they are kept apart
	// from the IDs chosen by the peer
	reply := m.Type == message.Acknowledgement || m.Type == message.Reset
	if cc.dedup.check(cc.clock.Now(), endpoint, m.MessageID, reply) {
		cc.metrics.IncDuplicates()
		cc.logger.Debug("duplicate message dropped", zap.Uint16("mid", m.MessageID), zap.String("remote", endpoint))
		if m.Type == message.Confirmable {
			cc.replayAcknowledgement(p.Addr, endpoint, m.MessageID)
		}
		return
	}
	cc.checkMyMessageID(m)

	if !cc.dispatch(p.Addr, endpoint, m) {
		return
	}
	if dropped := cc.inbound.push(Received{Addr: p.Addr, Message: m}); dropped != nil && cc.ctx.Err() == nil {
		cc.metrics.IncDropped()
		cc.errors(fmt.Errorf("receive queue is full: dropped message %v from %v", dropped.Message, endpointKey(dropped.Addr)))
	}
}

// dispatch resolves pending requests and answers messages which need an
// immediate reply. It returns false for a message which must not be delivered.
func (cc *Conn) dispatch(addr net.Addr, endpoint string, m *message.Message) bool {
	switch m.Type {
	case message.Acknowledgement, message.Reset:
		p, ok := cc.pending.Load(m.MessageID)
		if !ok || !p.fromEndpoint(endpoint) {
			return true
		}
		switch {
		case m.Type == message.Reset:
			cc.metrics.IncResets()
			cc.logger.Debug("reset received", zap.Uint16("mid", m.MessageID), zap.String("remote", endpoint))
			p.resolve(nil, fmt.Errorf("message id %v: %w", m.MessageID, ErrMessageReset))
		case m.IsEmpty() && !p.request.IsEmpty():
			// separate response follows
			p.acknowledge()
		case !m.IsEmpty() && !p.id.Matches(message.NewIdentifier(m, endpoint, message.RoleResponse)):
			cc.logger.Debug("acknowledgement with foreign token dropped", zap.Uint16("mid", m.MessageID), zap.String("remote", endpoint))
			cc.dedup.forgetReplies(m.MessageID)
			return false
		default:
			p.resolve(m.Clone(), nil)
		}
	case message.Confirmable:
		if m.IsMulticast || m.Code.IsRequest() {
			return true
		}
		if m.IsPing() {
			cc.sendReset(addr, m.MessageID)
			return true
		}
		cc.resolveSeparate(endpoint, m)
		cc.acknowledge(addr, endpoint, m.MessageID)
	case message.NonConfirmable:
		if !m.IsEmpty() && !m.Code.IsRequest() {
			cc.resolveSeparate(endpoint, m)
		}
	}
	return true
}

// resolveSeparate resolves the request whose token matches a response which
// does not come in an acknowledgement.
func (cc *Conn) resolveSeparate(endpoint string, m *message.Message) {
	id := message.NewIdentifier(m, endpoint, message.RoleResponse)
	cc.pending.Range(func(_ uint16, p *pendingResponse) bool {
		if p.request.IsEmpty() || !p.id.Matches(id) {
			return true
		}
		p.resolve(m.Clone(), nil)
		return false
	})
}

func responseMsgCacheID(endpoint string, mid uint16) string {
	return endpoint + "#" + strconv.FormatUint(uint64(mid), 10)
}

// acknowledge sends an empty acknowledgement and keeps it to answer
// retransmissions of the same message.
func (cc *Conn) acknowledge(addr net.Addr, endpoint string, mid uint16) {
	data, err := cc.coder.Marshal(message.Message{Type: message.Acknowledgement, Code: codes.Empty, MessageID: mid})
	if err != nil {
		cc.errors(fmt.Errorf(errFmtWriteResponse, err))
		return
	}
	cc.responseMsgCache.LoadOrStore(responseMsgCacheID(endpoint, mid), cache.NewElement(data, cc.clock.Now().Add(cc.cfg.ExchangeLifetime), nil))
	if err = cc.write(cc.ctx, data, addr, false); err != nil {
		cc.errors(fmt.Errorf(errFmtWriteResponse, err))
	}
}

func (cc *Conn) replayAcknowledgement(addr net.Addr, endpoint string, mid uint16) {
	e := cc.responseMsgCache.Load(responseMsgCacheID(endpoint, mid))
	if e == nil {
		return
	}
	if err := cc.write(cc.ctx, e.Data(), addr, false); err != nil {
		cc.errors(fmt.Errorf(errFmtWriteResponse, err))
	}
}

func (cc *Conn) sendReset(addr net.Addr, mid uint16) {
	data, err := cc.coder.Marshal(message.Message{Type: message.Reset, Code: codes.Empty, MessageID: mid})
	if err != nil {
		cc.errors(fmt.Errorf(errFmtWriteResponse, err))
		return
	}
	cc.metrics.IncResets()
	if err = cc.write(cc.ctx, data, addr, false); err != nil {
		cc.errors(fmt.Errorf(errFmtWriteResponse, err))
	}
}

// handleDecodeError rejects a confirmable unicast message with a reset and
// queues the error for Receive.
func (cc *Conn) handleDecodeError(addr net.Addr, multicast bool, err error) {
	cc.metrics.IncDecodeErrors()
	var formatErr *message.FormatError
	var optionErr *message.OptionError
	var mid uint16
	var typ message.Type
	parsed := false
	switch {
	case errors.As(err, &formatErr):
		mid, typ, parsed = formatErr.MessageID, formatErr.Type, formatErr.HeaderParsed
	case errors.As(err, &optionErr):
		mid, typ, parsed = optionErr.MessageID, optionErr.Type, true
	}
	if parsed && typ == message.Confirmable && !multicast {
		cc.sendReset(addr, mid)
	}
	cc.logger.Debug("cannot decode message", zap.String("remote", endpointKey(addr)), zap.Error(err))
	if dropped := cc.inbound.push(Received{Addr: addr, Err: err}); dropped != nil && cc.ctx.Err() == nil {
		cc.metrics.IncDropped()
		cc.errors(fmt.Errorf("receive queue is full: dropped message from %v", endpointKey(dropped.Addr)))
	}
}

// checkMyMessageID moves the local message ID counter away from the IDs the
// peer uses. Otherwise a cached acknowledgement could answer our own request.
func (cc *Conn) checkMyMessageID(m *message.Message) {
	if m.Type != message.Confirmable || cc.cfg.GetMID != nil {
		return
	}
	for {
		oldID := cc.msgID.Load()
		if m.MessageID-uint16(oldID) >= 0xffff/4 {
			return
		}
		if cc.msgID.CompareAndSwap(oldID, oldID+0xffff/2) {
			return
		}
	}
}
