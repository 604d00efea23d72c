package message

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
)

const (
	max1ByteNumber = uint32(^uint8(0))
	max2ByteNumber = uint32(^uint16(0))
	max3ByteNumber = uint32(0xffffff)
)

const (
	ExtendOptionByteCode   = 13
	ExtendOptionByteAddend = 13
	ExtendOptionWordCode   = 14
	ExtendOptionWordAddend = 269
	ExtendOptionError      = 15
)

// OptionID identifies an option in a message.
type OptionID uint16

/*
   +-----+----+---+---+---+----------------+--------+--------+---------+
   | No. | C  | U | N | R | Name           | Format | Length | Default |
   +-----+----+---+---+---+----------------+--------+--------+---------+
   |   1 | x  |   |   | x | If-Match       | opaque | 0-8    | (none)  |
   |   3 | x  | x | - |   | Uri-Host       | string | 1-255  | (see    |
   |     |    |   |   |   |                |        |        | below)  |
   |   4 |    |   |   | x | ETag           | opaque | 1-8    | (none)  |
   |   5 | x  |   |   |   | If-None-Match  | empty  | 0      | (none)  |
   |   7 | x  | x | - |   | Uri-Port       | uint   | 0-2    | (see    |
   |     |    |   |   |   |                |        |        | below)  |
   |   8 |    |   |   | x | Location-Path  | string | 0-255  | (none)  |
   |  11 | x  | x | - | x | Uri-Path       | string | 0-255  | (none)  |
   |  12 |    |   |   |   | Content-Format | uint   | 0-2    | (none)  |
   |  14 |    | x | - |   | Max-Age        | uint   | 0-4    | 60      |
   |  15 | x  | x | - | x | Uri-Query      | string | 0-255  | (none)  |
   |  17 | x  |   |   |   | Accept         | uint   | 0-2    | (none)  |
   |  20 |    |   |   | x | Location-Query | string | 0-255  | (none)  |
   |  23 | x  | x | - | - | Block2         | uint   | 0-3    | (none)  |
   |  27 | x  | x | - | - | Block1         | uint   | 0-3    | (none)  |
   |  28 |    |   | x |   | Size2          | uint   | 0-4    | (none)  |
   |  35 | x  | x | - |   | Proxy-Uri      | string | 1-1034 | (none)  |
   |  39 | x  | x | - |   | Proxy-Scheme   | string | 1-255  | (none)  |
   |  60 |    |   | x |   | Size1          | uint   | 0-4    | (none)  |
   +-----+----+---+---+---+----------------+--------+--------+---------+
   C=Critical, U=Unsafe, N=NoCacheKey, R=Repeatable
*/

// Option IDs.
const (
	IfMatch       OptionID = 1
	URIHost       OptionID = 3
	ETag          OptionID = 4
	IfNoneMatch   OptionID = 5
	Observe       OptionID = 6
	URIPort       OptionID = 7
	LocationPath  OptionID = 8
	URIPath       OptionID = 11
	ContentFormat OptionID = 12
	MaxAge        OptionID = 14
	URIQuery      OptionID = 15
	Accept        OptionID = 17
	LocationQuery OptionID = 20
	Block2        OptionID = 23
	Block1        OptionID = 27
	Size2         OptionID = 28
	ProxyURI      OptionID = 35
	ProxyScheme   OptionID = 39
	Size1         OptionID = 60
)

var optionIDToString = map[OptionID]string{
	IfMatch:       "IfMatch",
	URIHost:       "URIHost",
	ETag:          "ETag",
	IfNoneMatch:   "IfNoneMatch",
	Observe:       "Observe",
	URIPort:       "URIPort",
	LocationPath:  "LocationPath",
	URIPath:       "URIPath",
	ContentFormat: "ContentFormat",
	MaxAge:        "MaxAge",
	URIQuery:      "URIQuery",
	Accept:        "Accept",
	LocationQuery: "LocationQuery",
	Block2:        "Block2",
	Block1:        "Block1",
	Size2:         "Size2",
	ProxyURI:      "ProxyURI",
	ProxyScheme:   "ProxyScheme",
	Size1:         "Size1",
}

func (o OptionID) String() string {
	str, ok := optionIDToString[o]
	if !ok {
		return "Option(" + strconv.FormatInt(int64(o), 10) + ")"
	}
	return str
}

func ToOptionID(v string) (OptionID, error) {
	for key, val := range optionIDToString {
		if val == v {
			return key, nil
		}
	}
	return 0, fmt.Errorf("not found")
}

// IsCritical reports whether an unrecognized option must cause the message to be rejected.
func (o OptionID) IsCritical() bool {
	return o&1 != 0
}

// IsUnsafe reports whether a proxy which does not understand the option must not forward it.
func (o OptionID) IsUnsafe() bool {
	return o&2 != 0
}

func (o OptionID) NoCacheKey() bool {
	return o&0x1e == 0x1c
}

// MediaType specifies the content format of a message.
type MediaType uint16

// Content formats.
const (
	TextPlain     MediaType = 0     // text/plain;charset=utf-8
	AppLinkFormat MediaType = 40    // application/link-format
	AppXML        MediaType = 41    // application/xml
	AppOctets     MediaType = 42    // application/octet-stream
	AppExi        MediaType = 47    // application/exi
	AppJSON       MediaType = 50    // application/json
	AppCBOR       MediaType = 60    // application/cbor (RFC 7049)
	AppSenmlJSON  MediaType = 110   // application/senml+json
	AppSenmlCbor  MediaType = 112   // application/senml+cbor
	AppCoapGroup  MediaType = 256   // coap-group+json (RFC 7390)
	AppOcfCbor    MediaType = 10000 // application/vnd.ocf+cbor
)

var mediaTypeToString = map[MediaType]string{
	TextPlain:     "text/plain;charset=utf-8",
	AppLinkFormat: "application/link-format",
	AppXML:        "application/xml",
	AppOctets:     "application/octet-stream",
	AppExi:        "application/exi",
	AppJSON:       "application/json",
	AppCBOR:       "application/cbor",
	AppSenmlJSON:  "application/senml+json",
	AppSenmlCbor:  "application/senml+cbor",
	AppCoapGroup:  "application/coap-group+json",
	AppOcfCbor:    "application/vnd.ocf+cbor",
}

func (c MediaType) String() string {
	str, ok := mediaTypeToString[c]
	if !ok {
		return "unknown media type: 0x" + strconv.FormatInt(int64(c), 16)
	}
	return str
}

func ToMediaType(v string) (MediaType, error) {
	for key, val := range mediaTypeToString {
		if val == v {
			return key, nil
		}
	}
	return 0, fmt.Errorf("not found")
}

// Option is a single option as carried on the wire.
type Option struct {
	ID    OptionID
	Value []byte
}

// Key identifies the kind of the option regardless of its value.
func (o Option) Key() OptionID {
	return o.ID
}

// Equal compares options of the same ID by value. Unsigned values are compared
// numerically so that non-minimal encodings still match. The format comes from
// the default definitions, use Registry.Equal for registered options.
func (o Option) Equal(other Option) bool {
	def, ok := defaultDefs[o.ID]
	return o.equal(other, def, ok)
}

func (o Option) equal(other Option, def OptionDef, known bool) bool {
	if o.ID != other.ID {
		return false
	}
	if known && def.Format == ValueUint {
		a, _, errA := DecodeUint32(o.Value)
		b, _, errB := DecodeUint32(other.Value)
		return errA == nil && errB == nil && a == b
	}
	return bytes.Equal(o.Value, other.Value)
}

func (o Option) String() string {
	return fmt.Sprintf("%v: %x", o.ID, o.Value)
}

func extendOpt(opt int) (int, int) {
	ext := 0
	if opt >= ExtendOptionByteAddend {
		if opt >= ExtendOptionWordAddend {
			ext = opt - ExtendOptionWordAddend
			opt = ExtendOptionWordCode
		} else {
			ext = opt - ExtendOptionByteAddend
			opt = ExtendOptionByteCode
		}
	}
	return opt, ext
}

func marshalOptionHeaderExt(buf []byte, opt, ext int) (int, error) {
	switch opt {
	case ExtendOptionByteCode:
		if len(buf) > 0 {
			buf[0] = byte(ext)
			return 1, nil
		}
		return 1, ErrTooSmall
	case ExtendOptionWordCode:
		if len(buf) > 1 {
			binary.BigEndian.PutUint16(buf, uint16(ext))
			return 2, nil
		}
		return 2, ErrTooSmall
	}
	return 0, nil
}

// marshalOptionHeader writes the delta/length byte and their extensions.
// When buf is too small it returns the needed length and ErrTooSmall.
func marshalOptionHeader(buf []byte, delta, length int) (int, error) {
	d, dx := extendOpt(delta)
	l, lx := extendOpt(length)

	size := 1
	if len(buf) > 0 {
		buf[0] = byte(d<<4) | byte(l)
	}
	var tooSmall bool
	n, err := marshalOptionHeaderExt(sub(buf, size), d, dx)
	size += n
	if err != nil {
		tooSmall = true
	}
	n, err = marshalOptionHeaderExt(sub(buf, size), l, lx)
	size += n
	if err != nil || len(buf) == 0 {
		tooSmall = true
	}
	if tooSmall {
		return size, ErrTooSmall
	}
	return size, nil
}

func sub(buf []byte, off int) []byte {
	if off >= len(buf) {
		return nil
	}
	return buf[off:]
}

// Marshal writes the option relative to previousID.
func (o Option) Marshal(buf []byte, previousID OptionID) (int, error) {
	delta := int(o.ID) - int(previousID)
	if delta < 0 {
		return -1, fmt.Errorf("options are not sorted: %v after %v", o.ID, previousID)
	}
	length := len(o.Value)
	if length > int(max2ByteNumber) {
		return -1, ErrInvalidValueLength
	}
	hdr, err := marshalOptionHeader(buf, delta, length)
	if err != nil {
		return hdr + length, ErrTooSmall
	}
	if len(buf) < hdr+length {
		return hdr + length, ErrTooSmall
	}
	copy(buf[hdr:], o.Value)
	return hdr + length, nil
}

func parseExtOpt(data []byte, opt int) (int, int, error) {
	processed := 0
	switch opt {
	case ExtendOptionByteCode:
		if len(data) < 1 {
			return 0, -1, ErrOptionTruncated
		}
		opt = int(data[0]) + ExtendOptionByteAddend
		processed = 1
	case ExtendOptionWordCode:
		if len(data) < 2 {
			return 0, -1, ErrOptionTruncated
		}
		opt = int(binary.BigEndian.Uint16(data[:2])) + ExtendOptionWordAddend
		processed = 2
	}
	return processed, opt, nil
}
