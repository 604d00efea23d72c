package client

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// linearBackOff waits base*n before the n-th retransmission.
type linearBackOff struct {
	base    time.Duration
	attempt int64
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.base * time.Duration(b.attempt)
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}

// newRetransmitBackOff returns the per attempt timeouts of a confirmable
// message. It yields exactly maxRetransmit values and then backoff.Stop.
func newRetransmitBackOff(acknowledgeTimeout time.Duration, maxRetransmit uint32) backoff.BackOff {
	if maxRetransmit == 0 {
		maxRetransmit = 1
	}
	return backoff.WithMaxRetries(&linearBackOff{base: acknowledgeTimeout}, uint64(maxRetransmit))
}
