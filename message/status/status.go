package status

import (
	"context"
	"errors"
	"fmt"

	"github.com/plgd-dev/coap-engine/message"
	"github.com/plgd-dev/coap-engine/message/codes"
)

// Pseudo codes outside of the wire range.
const (
	OK       codes.Code = 10000
	Timeout  codes.Code = 10001
	Canceled codes.Code = 10002
	Unknown  codes.Code = 10003
)

// Status holds error of coap
type Status struct {
	err  error
	msg  *message.Message
	code codes.Code
}

func CodeToString(c codes.Code) string {
	switch c {
	case OK:
		return "OK"
	case Timeout:
		return "Timeout"
	case Canceled:
		return "Canceled"
	case Unknown:
		return "Unknown"
	}
	return c.String()
}

func (se Status) Error() string {
	return fmt.Sprintf("coap error: code = %s desc = %v", CodeToString(se.Code()), se.err)
}

func (se Status) Unwrap() error {
	return se.err
}

// Code returns the status code contained in se.
func (se Status) Code() codes.Code {
	if se.msg != nil {
		return se.msg.Code
	}
	return se.code
}

// Message returns the response which caused the status, if any.
func (se Status) Message() *message.Message {
	return se.msg
}

// COAPError just for check interface
func (se Status) COAPError() Status {
	return se
}

// Error returns a Status for a response message.
func Error(msg *message.Message, err error) Status {
	return Status{
		msg: msg,
		err: err,
	}
}

// Errorf returns Error(msg, fmt.Errorf(format, a...)).
func Errorf(msg *message.Message, format string, a ...interface{}) Status {
	return Error(msg, fmt.Errorf(format, a...))
}

// FromError returns a Status representing err. Decoding errors map to the
// response code a server answers with. Otherwise, ok is false and a Status
// is returned with Unknown and the original error.
func FromError(err error) (s Status, ok bool) {
	if err == nil {
		return Status{
			code: OK,
		}, true
	}
	var se interface {
		COAPError() Status
	}
	if errors.As(err, &se) {
		return se.COAPError(), true
	}
	var optErr *message.OptionError
	if errors.As(err, &optErr) {
		return Status{code: optErr.ResponseCode(), err: err}, true
	}
	var formatErr *message.FormatError
	if errors.As(err, &formatErr) {
		return Status{code: codes.BadRequest, err: err}, true
	}
	return Status{
		code: Unknown,
		err:  err,
	}, false
}

// Convert is a convenience function which removes the need to handle the
// boolean return value from FromError.
func Convert(err error) Status {
	s, _ := FromError(err)
	return s
}

// Code returns the Code of the error if it is a Status error, OK if err
// is nil, or Unknown otherwise.
func Code(err error) codes.Code {
	return Convert(err).Code()
}

// FromContextError converts a context error into a Status.
func FromContextError(err error) Status {
	switch {
	case err == nil:
		return Status{
			code: OK,
		}
	case errors.Is(err, context.DeadlineExceeded):
		return Status{
			code: Timeout,
			err:  err,
		}
	case errors.Is(err, context.Canceled):
		return Status{
			code: Canceled,
			err:  err,
		}
	default:
		return Status{
			code: Unknown,
			err:  err,
		}
	}
}

// ToMessage builds the response a server sends back for err. Pseudo codes map
// to InternalServerError.
func ToMessage(err error) *message.Message {
	s := Convert(err)
	code := s.Code()
	if code > 0xff {
		code = codes.InternalServerError
	}
	text := ""
	if s.err != nil {
		text = s.err.Error()
	}
	return message.NewResponse(code, text)
}
