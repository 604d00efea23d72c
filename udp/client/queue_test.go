package client

import (
	"context"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/plgd-dev/coap-engine/message"
	"github.com/stretchr/testify/require"
)

func TestDedupCache(t *testing.T) {
	d := newDedupCache(time.Minute)
	now := time.Now()
	require.False(t, d.check(now, "a", 1, false))
	require.True(t, d.check(now.Add(time.Second), "a", 1, false))
	require.False(t, d.check(now.Add(time.Second), "b", 1, false))
	require.False(t, d.check(now.Add(time.Second), "a", 2, false))
	require.Equal(t, 3, d.length())

	// the first entry is out of the window, the others are not
	require.False(t, d.check(now.Add(time.Minute+time.Millisecond), "a", 1, false))
	require.Equal(t, 3, d.length())

	d.prune(now.Add(time.Hour))
	require.Equal(t, 0, d.length())
}

func TestDedupCacheReplies(t *testing.T) {
	d := newDedupCache(time.Minute)
	now := time.Now()
	require.False(t, d.check(now, "a", 1, false))
	require.False(t, d.check(now, "a", 1, true))
	require.True(t, d.check(now, "a", 1, true))
	require.True(t, d.check(now, "a", 1, false))

	// a reused message ID is acknowledged again
	d.forgetReplies(1)
	require.Equal(t, 1, d.length())
	require.False(t, d.check(now, "a", 1, true))
	require.True(t, d.check(now, "a", 1, false))
}

func TestInboundQueueOrder(t *testing.T) {
	q := newInboundQueue(0)
	for i := 1; i <= 3; i++ {
		require.Nil(t, q.push(Received{Message: &message.Message{MessageID: uint16(i)}}))
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 1; i <= 3; i++ {
		r, err := q.pop(ctx)
		require.NoError(t, err)
		require.Equal(t, uint16(i), r.Message.MessageID)
	}
	require.Equal(t, 0, q.length())
}

func TestInboundQueueLimit(t *testing.T) {
	q := newInboundQueue(1)
	require.Nil(t, q.push(Received{Message: &message.Message{MessageID: 1}}))
	dropped := q.push(Received{Message: &message.Message{MessageID: 2}})
	require.NotNil(t, dropped)
	require.Equal(t, uint16(1), dropped.Message.MessageID)
	require.Equal(t, 1, q.length())
}

func TestInboundQueueWakesWaiters(t *testing.T) {
	q := newInboundQueue(0)
	const waiters = 4
	results := make(chan uint16, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			r, err := q.pop(context.Background())
			if err != nil {
				results <- 0
				return
			}
			results <- r.Message.MessageID
		}()
	}
	q.push(Received{Message: &message.Message{MessageID: 1}})
	q.push(Received{Message: &message.Message{MessageID: 2}})
	got := map[uint16]bool{<-results: true, <-results: true}
	require.Equal(t, map[uint16]bool{1: true, 2: true}, got)

	q.close(ErrConnectionClosed)
	require.Equal(t, uint16(0), <-results)
	require.Equal(t, uint16(0), <-results)
	_, err := q.pop(context.Background())
	require.ErrorIs(t, err, ErrConnectionClosed)
}

func TestInboundQueueCanceled(t *testing.T) {
	q := newInboundQueue(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.pop(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRetransmitBackOff(t *testing.T) {
	b := newRetransmitBackOff(time.Second*2, 3)
	require.Equal(t, time.Second*2, b.NextBackOff())
	require.Equal(t, time.Second*4, b.NextBackOff())
	require.Equal(t, time.Second*6, b.NextBackOff())
	require.Equal(t, backoff.Stop, b.NextBackOff())

	b.Reset()
	require.Equal(t, time.Second*2, b.NextBackOff())
}
