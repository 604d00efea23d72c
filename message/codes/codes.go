package codes

import (
	"fmt"
	"strconv"
)

// A Code is an unsigned 8-bit CoAP code: 3 bits class, 5 bits detail.
type Code uint16

// Request codes.
const (
	Empty  Code = 0
	GET    Code = 1
	POST   Code = 2
	PUT    Code = 3
	DELETE Code = 4
)

// Response codes.
const (
	Created                 Code = 65
	Deleted                 Code = 66
	Valid                   Code = 67
	Changed                 Code = 68
	Content                 Code = 69
	Continue                Code = 95
	BadRequest              Code = 128
	Unauthorized            Code = 129
	BadOption               Code = 130
	Forbidden               Code = 131
	NotFound                Code = 132
	MethodNotAllowed        Code = 133
	NotAcceptable           Code = 134
	RequestEntityIncomplete Code = 136
	PreconditionFailed      Code = 140
	RequestEntityTooLarge   Code = 141
	UnsupportedMediaType    Code = 143
	InternalServerError     Code = 160
	NotImplemented          Code = 161
	BadGateway              Code = 162
	ServiceUnavailable      Code = 163
	GatewayTimeout          Code = 164
	ProxyingNotSupported    Code = 165
)

const _maxCode = 255

var codeToString = map[Code]string{
	Empty:                   "Empty",
	GET:                     "GET",
	POST:                    "POST",
	PUT:                     "PUT",
	DELETE:                  "DELETE",
	Created:                 "Created",
	Deleted:                 "Deleted",
	Valid:                   "Valid",
	Changed:                 "Changed",
	Content:                 "Content",
	Continue:                "Continue",
	BadRequest:              "BadRequest",
	Unauthorized:            "Unauthorized",
	BadOption:               "BadOption",
	Forbidden:               "Forbidden",
	NotFound:                "NotFound",
	MethodNotAllowed:        "MethodNotAllowed",
	NotAcceptable:           "NotAcceptable",
	RequestEntityIncomplete: "RequestEntityIncomplete",
	PreconditionFailed:      "PreconditionFailed",
	RequestEntityTooLarge:   "RequestEntityTooLarge",
	UnsupportedMediaType:    "UnsupportedMediaType",
	InternalServerError:     "InternalServerError",
	NotImplemented:          "NotImplemented",
	BadGateway:              "BadGateway",
	ServiceUnavailable:      "ServiceUnavailable",
	GatewayTimeout:          "GatewayTimeout",
	ProxyingNotSupported:    "ProxyingNotSupported",
}

var strToCode = func() map[string]Code {
	m := make(map[string]Code, len(codeToString))
	for c, s := range codeToString {
		m[s] = c
	}
	return m
}()

// New builds a code from its class and detail.
func New(class, detail uint8) Code {
	return Code(class&0x7)<<5 | Code(detail&0x1f)
}

func (c Code) Class() uint8 {
	return uint8(c>>5) & 0x7
}

func (c Code) Detail() uint8 {
	return uint8(c) & 0x1f
}

// IsReserved reports codes of the classes 1, 6 and 7 which must not appear on the wire.
func (c Code) IsReserved() bool {
	switch c.Class() {
	case 1, 6, 7:
		return true
	}
	return false
}

func (c Code) IsRequest() bool {
	return c.Class() == 0 && c != Empty
}

func (c Code) IsSuccess() bool {
	return c.Class() == 2
}

func (c Code) String() string {
	if s, ok := codeToString[c]; ok {
		return s
	}
	return "Code(" + strconv.FormatInt(int64(c), 10) + ")"
}

// Dotted returns the c.dd notation used by RFC 7252, e.g. "4.04".
func (c Code) Dotted() string {
	return fmt.Sprintf("%d.%02d", c.Class(), c.Detail())
}

// ToCode parses a code name or its numeric form "Code(N)".
func ToCode(v string) (Code, error) {
	if c, ok := strToCode[v]; ok {
		return c, nil
	}
	var n int
	if _, err := fmt.Sscanf(v, "Code(%d)", &n); err == nil && n >= 0 && n <= _maxCode {
		return Code(n), nil
	}
	return 0, fmt.Errorf("invalid code: %q", v)
}

// UnmarshalJSON unmarshals b into the Code.
func (c *Code) UnmarshalJSON(b []byte) error {
	if c == nil {
		return fmt.Errorf("nil receiver passed to UnmarshalJSON")
	}
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		if ci, err := strconv.ParseUint(string(b), 10, 32); err == nil {
			if ci > _maxCode {
				return fmt.Errorf("invalid code: %v", ci)
			}
			*c = Code(ci)
			return nil
		}
		return fmt.Errorf("invalid code: %q", b)
	}
	v, err := ToCode(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// MarshalJSON encodes the code by name.
func (c Code) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(c.String())), nil
}
