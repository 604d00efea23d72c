package message

import (
	"fmt"

	"github.com/plgd-dev/coap-engine/message/codes"
)

// MaxTokenSize maximum of token size that can be used in message
const MaxTokenSize = 8

// Version is the only protocol version supported on the wire.
const Version = 1

type Message struct {
	Token   Token
	Options Options
	Code    codes.Code
	Payload []byte

	// MessageID 0 asks the client to allocate one on send.
	MessageID uint16
	Type      Type
	// IsMulticast is not part of the wire format. It marks messages sent to or
	// received from a multicast group.
	IsMulticast bool
}

// New creates a message and fails when version is not 1.
func New(version uint8, typ Type, code codes.Code, messageID uint16) (*Message, error) {
	if version != Version {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVersion, version)
	}
	if !ValidateType(typ) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessageType, typ)
	}
	return &Message{
		Type:      typ,
		Code:      code,
		MessageID: messageID,
	}, nil
}

// NewResponse creates a response with a text/plain payload. An empty text
// leaves the payload and the content format unset.
func NewResponse(code codes.Code, text string) *Message {
	m := &Message{
		Type: Acknowledgement,
		Code: code,
	}
	if text != "" {
		m.Options = m.Options.SetContentFormat(TextPlain)
		m.Payload = []byte(text)
	}
	return m
}

// IsEmpty reports a header only message.
func (r *Message) IsEmpty() bool {
	return r.Code == codes.Empty
}

// IsPing reports an empty confirmable message.
func (r *Message) IsPing() bool {
	return r.Code == codes.Empty && r.Type == Confirmable
}

// Clone returns a deep copy of the message.
func (r *Message) Clone() *Message {
	if r == nil {
		return nil
	}
	c := *r
	c.Token = append(Token(nil), r.Token...)
	c.Options = r.Options.Clone()
	if r.Payload != nil {
		c.Payload = append([]byte{}, r.Payload...)
	}
	return &c
}

func (r *Message) String() string {
	if r == nil {
		return "nil"
	}
	buf := fmt.Sprintf("Code: %v, Type: %v, MessageID: %v, Token: %v", r.Code, r.Type, r.MessageID, r.Token)
	path, err := r.Options.Path()
	if err == nil {
		buf = fmt.Sprintf("%s, Path: %v", buf, path)
	}
	cf, err := r.Options.ContentFormat()
	if err == nil {
		buf = fmt.Sprintf("%s, ContentFormat: %v", buf, cf)
	}
	queries, err := r.Options.Queries()
	if err == nil {
		buf = fmt.Sprintf("%s, Queries: %+v", buf, queries)
	}
	if r.IsMulticast {
		buf += ", Multicast"
	}
	if len(r.Payload) > 0 {
		buf = fmt.Sprintf("%s, PayloadLen: %v", buf, len(r.Payload))
	}
	return buf
}
