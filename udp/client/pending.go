package client

import (
	"net"
	"sync"
	"time"

	"github.com/plgd-dev/coap-engine/message"
)

// pendingResponse is the single-resolution slot of an outstanding request.
// acked is closed once retransmission must stop, done once the result is known.
type pendingResponse struct {
	request     *message.Message
	data        []byte
	addr        net.Addr
	id          message.Identifier
	confirmable bool
	created     time.Time

	transmitMutex sync.Mutex

	ackOnce sync.Once
	acked   chan struct{}

	doneOnce sync.Once
	done     chan struct{}
	response *message.Message
	err      error
}

func newPendingResponse(req *message.Message, data []byte, addr net.Addr, endpoint string, now time.Time) *pendingResponse {
	return &pendingResponse{
		request:     req,
		data:        data,
		addr:        addr,
		id:          message.NewIdentifier(req, endpoint, message.RoleRequest),
		confirmable: req.Type == message.Confirmable,
		created:     now,
		acked:       make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (p *pendingResponse) mid() uint16 {
	return p.request.MessageID
}

func (p *pendingResponse) acknowledge() {
	p.ackOnce.Do(func() {
		close(p.acked)
	})
}

func (p *pendingResponse) isAcknowledged() bool {
	select {
	case <-p.acked:
		return true
	default:
		return false
	}
}

// resolve stores the result. Only the first call has an effect.
func (p *pendingResponse) resolve(resp *message.Message, err error) bool {
	resolved := false
	p.doneOnce.Do(func() {
		p.response = resp
		p.err = err
		resolved = true
		close(p.done)
	})
	p.acknowledge()
	return resolved
}

func (p *pendingResponse) isResolved() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// result must be called after done is closed.
func (p *pendingResponse) result() (*message.Message, error) {
	return p.response, p.err
}

// ackError is the error which stopped the retransmission, nil for an acknowledgement.
func (p *pendingResponse) ackError() error {
	if !p.isResolved() {
		return nil
	}
	return p.err
}

// fromEndpoint reports whether a message from endpoint may belong to this slot.
func (p *pendingResponse) fromEndpoint(endpoint string) bool {
	return p.id.Endpoint == "" || endpoint == "" || p.id.Endpoint == endpoint
}
