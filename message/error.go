package message

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/plgd-dev/coap-engine/message/codes"
)

var (
	ErrTooSmall                     = errors.New("too small bytes buffer")
	ErrInvalidOptionHeaderExt       = errors.New("invalid option header ext")
	ErrInvalidTokenLen              = errors.New("invalid token length")
	ErrInvalidValueLength           = errors.New("invalid value length")
	ErrShortRead                    = errors.New("invalid short read")
	ErrOptionTruncated              = errors.New("option truncated")
	ErrOptionUnexpectedExtendMarker = errors.New("option unexpected extend marker")
	ErrOptionsTooSmall              = errors.New("too small options buffer")
	ErrInvalidEncoding              = errors.New("invalid encoding")
	ErrOptionNotFound               = errors.New("option not found")
	ErrOptionDuplicate              = errors.New("duplicated option")
	ErrInvalidVersion               = errors.New("invalid version")
	ErrInvalidOptionDef             = errors.New("invalid option definition")
	ErrInvalidMessageType           = errors.New("invalid message type")
	ErrReservedCode                 = errors.New("reserved code")
	ErrEmptyMessageLength           = errors.New("empty message must contain only header")
)

// FormatError reports a datagram which cannot be decoded into a message.
// MessageID and Type are valid when HeaderParsed is set.
type FormatError struct {
	HeaderParsed bool
	MessageID    uint16
	Type         Type
	Err          error
}

func (e *FormatError) Error() string {
	if !e.HeaderParsed {
		return fmt.Sprintf("message format error: %v", e.Err)
	}
	return fmt.Sprintf("message format error(MessageID: %v, Type: %v): %v", e.MessageID, e.Type, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// OptionError reports unrecognized critical options or option values out of
// their declared bounds.
type OptionError struct {
	MessageID uint16
	Type      Type
	Token     Token
	IDs       []OptionID
	err       *multierror.Error
}

func newOptionError(id OptionID, err error) *OptionError {
	e := &OptionError{}
	e.append(id, err)
	return e
}

func (e *OptionError) append(id OptionID, err error) {
	e.IDs = append(e.IDs, id)
	e.err = multierror.Append(e.err, fmt.Errorf("option %v: %w", id, err))
}

// ResponseCode is the code a server answers with.
func (e *OptionError) ResponseCode() codes.Code {
	return codes.BadOption
}

func (e *OptionError) Error() string {
	ids := make([]string, 0, len(e.IDs))
	for _, id := range e.IDs {
		ids = append(ids, id.String())
	}
	return fmt.Sprintf("option error(%v): [%v]", strings.Join(ids, ", "), e.err.ErrorOrNil())
}

func (e *OptionError) Unwrap() error {
	return e.err.ErrorOrNil()
}

// UnrecognizedCriticalOptions collects unknown critical options found while
// decoding one message.
type UnrecognizedCriticalOptions struct {
	e *OptionError
}

func (u *UnrecognizedCriticalOptions) Add(id OptionID) {
	if u.e == nil {
		u.e = &OptionError{}
	}
	u.e.append(id, errors.New("unrecognized critical option"))
}

// Err returns the aggregate error or nil when nothing was collected.
func (u *UnrecognizedCriticalOptions) Err(mid uint16, typ Type, token Token) error {
	if u.e == nil {
		return nil
	}
	u.e.MessageID = mid
	u.e.Type = typ
	u.e.Token = token
	return u.e
}
