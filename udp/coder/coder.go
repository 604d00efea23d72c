package coder

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/plgd-dev/coap-engine/message"
	"github.com/plgd-dev/coap-engine/message/codes"
)

const headerLen = 4

var DefaultCoder = NewCoder(nil)

// Coder encodes and decodes UDP/DTLS CoAP messages.
type Coder struct {
	registry *message.Registry
}

// NewCoder creates a coder validating options against registry. A nil
// registry means message.DefaultRegistry.
func NewCoder(registry *message.Registry) *Coder {
	if registry == nil {
		registry = message.DefaultRegistry()
	}
	return &Coder{registry: registry}
}

func (c *Coder) Registry() *message.Registry {
	return c.registry
}

func sortedOptions(options message.Options) message.Options {
	if sort.SliceIsSorted(options, func(i, j int) bool { return options[i].ID < options[j].ID }) {
		return options
	}
	o := append(message.Options(nil), options...)
	sort.SliceStable(o, func(i, j int) bool { return o[i].ID < o[j].ID })
	return o
}

// Size returns the encoded length of m.
func (c *Coder) Size(m message.Message) (int, error) {
	if m.Code == codes.Empty {
		return headerLen, nil
	}
	if len(m.Token) > message.MaxTokenSize {
		return -1, message.ErrInvalidTokenLen
	}
	size := headerLen + len(m.Token)
	payloadLen := len(m.Payload)
	optionsLen, err := sortedOptions(m.Options).Marshal(nil)
	if !errors.Is(err, message.ErrTooSmall) {
		return -1, err
	}
	if payloadLen > 0 {
		// for separator 0xff
		payloadLen++
	}
	size += payloadLen + optionsLen
	return size, nil
}

// Encode writes m into buf. An Empty message is always encoded as the bare
// header, its token, options and payload are ignored.
func (c *Coder) Encode(m message.Message, buf []byte) (int, error) {
	/*
	     0                   1                   2                   3
	    0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
	   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	   |Ver| T |  TKL  |      Code     |          Message ID           |
	   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	   |   Token (if any, TKL bytes) ...
	   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	   |   Options (if any) ...
	   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	   |1 1 1 1 1 1 1 1|    Payload (if any) ...
	   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	*/
	if !message.ValidateType(m.Type) {
		return -1, fmt.Errorf("invalid Type(%v)", m.Type)
	}
	if m.Code > 0xff {
		return -1, fmt.Errorf("invalid Code(%v)", m.Code)
	}
	size, err := c.Size(m)
	if err != nil {
		return -1, err
	}
	if len(buf) < size {
		return size, message.ErrTooSmall
	}

	tkl := len(m.Token)
	if m.Code == codes.Empty {
		tkl = 0
	}
	buf[0] = (message.Version << 6) | byte(m.Type)<<4 | byte(0xf&tkl)
	buf[1] = byte(m.Code)
	binary.BigEndian.PutUint16(buf[2:4], m.MessageID)
	if m.Code == codes.Empty {
		return headerLen, nil
	}
	buf = buf[headerLen:]

	copy(buf, m.Token)
	buf = buf[len(m.Token):]

	options := sortedOptions(m.Options)
	for _, o := range options {
		if err = c.registry.Validate(o); err != nil {
			return -1, err
		}
	}
	optionsLen, err := options.Marshal(buf)
	switch {
	case err == nil:
	case errors.Is(err, message.ErrTooSmall):
		return size, err
	default:
		return -1, err
	}
	buf = buf[optionsLen:]

	if len(m.Payload) > 0 {
		buf[0] = 0xff
		buf = buf[1:]
	}
	copy(buf, m.Payload)
	return size, nil
}

// Marshal allocates a buffer of the right size and encodes m into it.
func (c *Coder) Marshal(m message.Message) ([]byte, error) {
	size, err := c.Size(m)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	n, err := c.Encode(m, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Decode parses data into m. Token, option values and payload reference data.
//
// Malformed datagrams fail with *message.FormatError. A reserved code fails
// with *message.FormatError and unrecognized critical options fail with
// *message.OptionError, in both cases m is filled in so the caller can answer
// with a Reset carrying the message ID.
func (c *Coder) Decode(data []byte, m *message.Message) (int, error) {
	size := len(data)
	if size < headerLen {
		return -1, &message.FormatError{Err: ErrMessageTruncated}
	}
	if data[0]>>6 != message.Version {
		return -1, &message.FormatError{Err: ErrMessageInvalidVersion}
	}

	typ := message.Type((data[0] >> 4) & 0x3)
	tokenLen := int(data[0] & 0xf)
	code := codes.Code(data[1])
	messageID := binary.BigEndian.Uint16(data[2:4])
	formatErr := func(err error) error {
		return &message.FormatError{HeaderParsed: true, MessageID: messageID, Type: typ, Err: err}
	}
	if code == codes.Empty && size != headerLen {
		return -1, formatErr(message.ErrEmptyMessageLength)
	}
	if tokenLen > message.MaxTokenSize {
		return -1, formatErr(message.ErrInvalidTokenLen)
	}
	data = data[headerLen:]
	if len(data) < tokenLen {
		return -1, formatErr(ErrMessageTruncated)
	}
	token := data[:tokenLen]
	if len(token) == 0 {
		token = nil
	}
	data = data[tokenLen:]

	var unknown message.UnrecognizedCriticalOptions
	m.Options = m.Options[:0]
	proc, err := m.Options.Unmarshal(data, c.registry, &unknown)
	if err != nil {
		return -1, formatErr(err)
	}
	data = data[proc:]
	if len(data) > 0 {
		// payload marker
		data = data[1:]
		if len(data) == 0 {
			return -1, formatErr(ErrEmptyPayload)
		}
	} else {
		data = nil
	}
	if len(m.Options) == 0 {
		m.Options = nil
	}

	m.Payload = data
	m.Code = code
	m.Token = token
	m.Type = typ
	m.MessageID = messageID

	if code.IsReserved() {
		return size, formatErr(fmt.Errorf("%w: %v", message.ErrReservedCode, code.Dotted()))
	}
	if err := unknown.Err(messageID, typ, token); err != nil {
		return size, err
	}
	return size, nil
}

// Unmarshal decodes data into a new message.
func (c *Coder) Unmarshal(data []byte) (*message.Message, error) {
	var m message.Message
	_, err := c.Decode(data, &m)
	return &m, err
}
