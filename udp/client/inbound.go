package client

import (
	"context"
	"net"
	"sync"

	"github.com/plgd-dev/coap-engine/message"
)

// Received is a decoded inbound message or the error of a datagram which
// could not be decoded.
type Received struct {
	Addr    net.Addr
	Message *message.Message
	Err     error
}

// inboundQueue hands received messages to Receive callers in arrival order.
// signal has capacity one and wakes one waiting consumer; a consumer that
// leaves items behind re-arms it for the next one.
type inboundQueue struct {
	mutex  sync.Mutex
	items  []Received
	limit  int
	closed error
	signal chan struct{}
}

func newInboundQueue(limit int) *inboundQueue {
	return &inboundQueue{
		limit:  limit,
		signal: make(chan struct{}, 1),
	}
}

func (q *inboundQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// push appends r and returns the item dropped to stay within the limit.
func (q *inboundQueue) push(r Received) (dropped *Received) {
	q.mutex.Lock()
	if q.closed != nil {
		q.mutex.Unlock()
		return &r
	}
	q.items = append(q.items, r)
	if q.limit > 0 && len(q.items) > q.limit {
		d := q.items[0]
		q.items[0] = Received{}
		q.items = q.items[1:]
		dropped = &d
	}
	q.mutex.Unlock()
	q.notify()
	return dropped
}

func (q *inboundQueue) tryPop() (Received, bool, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if len(q.items) == 0 {
		if q.closed != nil {
			q.notify()
		}
		return Received{}, false, q.closed
	}
	r := q.items[0]
	q.items[0] = Received{}
	q.items = q.items[1:]
	if len(q.items) > 0 {
		q.notify()
	}
	return r, true, nil
}

func (q *inboundQueue) pop(ctx context.Context) (Received, error) {
	for {
		r, ok, err := q.tryPop()
		if ok {
			return r, nil
		}
		if err != nil {
			return Received{}, err
		}
		select {
		case <-q.signal:
		case <-ctx.Done():
			return Received{}, ctx.Err()
		}
	}
}

// close makes pop return err once the queue is drained.
func (q *inboundQueue) close(err error) {
	q.mutex.Lock()
	if q.closed == nil {
		q.closed = err
	}
	q.mutex.Unlock()
	// each waiter re-arms the signal after it sees the error
	q.notify()
}

func (q *inboundQueue) length() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.items)
}
