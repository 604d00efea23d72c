package client

import "errors"

var (
	ErrRetransmitExhausted  = errors.New("retransmission attempts exhausted")
	ErrMulticastConfirmable = errors.New("only non-confirmable messages can be sent to multicast")
	ErrConnectionClosed     = errors.New("connection closed")
	ErrMessageReset         = errors.New("message was reset by peer")
	ErrPendingNotFound      = errors.New("pending response not found")
	ErrExchangeTimeout      = errors.New("exchange lifetime elapsed before response arrived")
)
