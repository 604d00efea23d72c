package coder

import (
	"bytes"
	"errors"
	"testing"

	"github.com/plgd-dev/coap-engine/message"
	"github.com/plgd-dev/coap-engine/message/codes"
	"github.com/stretchr/testify/require"
)

func testMarshalMessage(t *testing.T, msg message.Message, buf []byte, expectedOut []byte) {
	length, err := DefaultCoder.Encode(msg, buf)

	require.NoError(t, err)
	buf = buf[:length]
	require.Equal(t, expectedOut, buf)
}

func testUnmarshalMessage(t *testing.T, buf []byte, expectedOut message.Message) {
	var msg message.Message
	_, err := DefaultCoder.Decode(buf, &msg)
	require.NoError(t, err)
	require.Equal(t, expectedOut, msg)
}

var nonBadRequest = []byte{
	88, 128, 107, 170, 134, 237, 158, 132, 150, 19, 19, 159,
	72, 20, 210, 14, 23, 231, 160, 183, 145, 128, 177, 14, 82, 20, 210,
}

var nonBadRequestMsg = message.Message{
	Code:      codes.BadRequest,
	Token:     []byte{0x86, 0xed, 0x9e, 0x84, 0x96, 0x13, 0x13, 0x9f},
	MessageID: 27562,
	Type:      message.NonConfirmable,
	Options: message.Options{
		{
			ID:    message.ETag,
			Value: []byte{0x14, 0xd2, 0xe, 0x17, 0xe7, 0xa0, 0xb7, 0x91},
		},
		{
			ID:    message.ContentFormat,
			Value: []byte{},
		},
		{
			ID:    message.Block2,
			Value: []byte{0x0e},
		},
		{
			ID:    message.Size2,
			Value: []byte{0x14, 0xd2},
		},
	},
}

func TestMarshalMessage(t *testing.T) {
	buf := make([]byte, 1024)

	_, err := DefaultCoder.Encode(message.Message{Type: message.Reset}, buf)
	require.NoError(t, err)
	_, err = DefaultCoder.Encode(message.Message{Type: message.Reset + 1}, buf)
	require.Error(t, err)
	_, err = DefaultCoder.Encode(message.Message{Code: 256}, buf)
	require.Error(t, err)
	_, err = DefaultCoder.Encode(message.Message{Code: codes.GET, Token: make([]byte, 9)}, buf)
	require.ErrorIs(t, err, message.ErrInvalidTokenLen)

	testMarshalMessage(t, message.Message{}, buf, []byte{64, 0, 0, 0})
	testMarshalMessage(t, message.Message{Code: codes.GET, MessageID: 0xabcd}, buf, []byte{64, byte(codes.GET), 0xab, 0xcd})
	testMarshalMessage(t, message.Message{Code: codes.GET, Payload: []byte{0x1}}, buf, []byte{64, byte(codes.GET), 0, 0, 0xff, 0x1})
	testMarshalMessage(t, message.Message{Code: codes.GET, Payload: []byte{0x1}, Token: []byte{0x1, 0x2, 0x3}}, buf, []byte{67, byte(codes.GET), 0, 0, 0x1, 0x2, 0x3, 0xff, 0x1})
	testMarshalMessage(t, nonBadRequestMsg, buf, nonBadRequest)

	options, err := message.Options{}.SetPath("/a/b/c/d/e")
	require.NoError(t, err)
	options = options.SetContentFormat(message.TextPlain)
	testMarshalMessage(t, message.Message{
		Code:    codes.GET,
		Payload: []byte{0x1},
		Token:   []byte{0x1, 0x2, 0x3},
		Options: options,
	}, buf, []byte{67, 1, 0, 0, 1, 2, 3, 177, 97, 1, 98, 1, 99, 1, 100, 1, 101, 16, 255, 1})
}

func TestMarshalUnsortedOptions(t *testing.T) {
	msg := message.Message{
		Code: codes.GET,
		Options: message.Options{
			{ID: message.URIQuery, Value: []byte("q")},
			{ID: message.URIPath, Value: []byte("a")},
			{ID: message.URIPath, Value: []byte("b")},
		},
	}
	data, err := DefaultCoder.Marshal(msg)
	require.NoError(t, err)
	require.Equal(t, []byte{64, 1, 0, 0, 0xb1, 'a', 0x01, 'b', 0x41, 'q'}, data)
}

func TestMarshalOptionOutOfBounds(t *testing.T) {
	buf := make([]byte, 64)
	_, err := DefaultCoder.Encode(message.Message{
		Code:    codes.GET,
		Options: message.Options{{ID: message.ETag, Value: make([]byte, 9)}},
	}, buf)
	var optErr *message.OptionError
	require.ErrorAs(t, err, &optErr)
	require.Equal(t, []message.OptionID{message.ETag}, optErr.IDs)
	require.Equal(t, codes.BadOption, optErr.ResponseCode())
}

func TestMarshalTooSmall(t *testing.T) {
	msg := message.Message{Code: codes.POST, Token: []byte{1, 2}, Payload: []byte("hello")}
	size, err := DefaultCoder.Size(msg)
	require.NoError(t, err)
	require.Equal(t, 4+2+1+5, size)
	n, err := DefaultCoder.Encode(msg, make([]byte, size-1))
	require.ErrorIs(t, err, message.ErrTooSmall)
	require.Equal(t, size, n)
}

func TestMarshalWithoutOptions(t *testing.T) {
	tests := []struct {
		name string
		msg  message.Message
		want []byte
	}{
		{
			name: "payload",
			msg:  message.Message{Type: message.Acknowledgement, Code: codes.Content, MessageID: 7, Payload: []byte("hi")},
			want: []byte{0x60, byte(codes.Content), 0, 7, 0xff, 'h', 'i'},
		},
		{
			name: "token",
			msg:  message.Message{Type: message.Confirmable, Code: codes.POST, MessageID: 0x0102, Token: []byte{0xaa}},
			want: []byte{0x41, byte(codes.POST), 1, 2, 0xaa},
		},
		{
			name: "response",
			msg:  *message.NewResponse(codes.Changed, ""),
			want: []byte{0x60, byte(codes.Changed), 0, 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, err := DefaultCoder.Size(tt.msg)
			require.NoError(t, err)
			require.Equal(t, len(tt.want), size)
			data, err := DefaultCoder.Marshal(tt.msg)
			require.NoError(t, err)
			require.Equal(t, tt.want, data)
			got, err := DefaultCoder.Unmarshal(data)
			require.NoError(t, err)
			require.Equal(t, tt.msg.Code, got.Code)
			require.Equal(t, tt.msg.MessageID, got.MessageID)
			require.Empty(t, got.Options)
		})
	}
}

func TestEmptyMessageIsHeaderOnly(t *testing.T) {
	msg := message.Message{
		Type:      message.Acknowledgement,
		Code:      codes.Empty,
		MessageID: 0x1234,
		Token:     []byte{1, 2, 3, 4},
		Options:   message.Options{}.SetString(message.URIPath, "ignored"),
		Payload:   []byte("ignored"),
	}
	size, err := DefaultCoder.Size(msg)
	require.NoError(t, err)
	require.Equal(t, 4, size)
	data, err := DefaultCoder.Marshal(msg)
	require.NoError(t, err)
	require.Equal(t, []byte{0x60, 0x00, 0x12, 0x34}, data)
}

func TestOptionDeltaForms(t *testing.T) {
	ifMatch := bytes.Repeat([]byte{0xaa}, 8)
	opt124 := bytes.Repeat([]byte{0xbb}, 255)
	opt43690 := bytes.Repeat([]byte{0xcc}, 65535)
	msg := message.Message{
		Code: codes.GET,
		Options: message.Options{
			{ID: message.IfMatch, Value: ifMatch},
			{ID: 124, Value: opt124},
			{ID: 43690, Value: opt43690},
		},
	}

	want := []byte{0x40, 0x01, 0x00, 0x00}
	// delta 1, length 8: both fit the nibble
	want = append(want, 0x18)
	want = append(want, ifMatch...)
	// delta 123 and length 255: one extra byte each, value - 13
	want = append(want, 0xdd, 123-13, 255-13)
	want = append(want, opt124...)
	// delta 43566 and length 65535: two extra bytes each, value - 269
	want = append(want, 0xee, 0xa9, 0x21, 0xfe, 0xf2)
	want = append(want, opt43690...)

	data, err := DefaultCoder.Marshal(msg)
	require.NoError(t, err)
	require.Equal(t, len(want), len(data))
	require.Equal(t, want, data)

	// even unknown options are dropped on decode
	decoded, err := DefaultCoder.Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, message.Options{{ID: message.IfMatch, Value: ifMatch}}, decoded.Options)

	reg := message.DefaultRegistry()
	for _, id := range []int{124, 43690} {
		def, err := message.NewOptionDef(id, 0, 65535, false, message.ValueOpaque, nil)
		require.NoError(t, err)
		reg.Register(def)
	}
	decoded, err = NewCoder(reg).Unmarshal(data)
	require.NoError(t, err)
	require.True(t, msg.Options.Equal(decoded.Options))
}

func TestUnmarshalMessage(t *testing.T) {
	testUnmarshalMessage(t, nonBadRequest, nonBadRequestMsg)
	testUnmarshalMessage(t, []byte{0x48, 0x01, 0x00, 0x00, 0xB0, 0x35, 0x4C, 0xF5, 0xD9, 0x72, 0x24, 0x0D, 0x60, 0x55, 0x6C, 0x69, 0x67, 0x68, 0x74, 0x05, 0x6C, 0x69, 0x67, 0x68, 0x74}, message.Message{
		Code:  codes.GET,
		Token: []byte{0xb0, 0x35, 0x4c, 0xf5, 0xd9, 0x72, 0x24, 0x0d},
		Type:  message.Confirmable,
		Options: message.Options{
			{
				ID:    message.Observe,
				Value: []byte{},
			},
			{
				ID:    message.URIPath,
				Value: []byte{0x6c, 0x69, 0x67, 0x68, 0x74},
			},
			{
				ID:    message.URIPath,
				Value: []byte{0x6c, 0x69, 0x67, 0x68, 0x74},
			},
		},
	})
	testUnmarshalMessage(t, []byte{64, 0, 0, 0}, message.Message{})
	testUnmarshalMessage(t, []byte{64, byte(codes.GET), 0, 0}, message.Message{Code: codes.GET})
	testUnmarshalMessage(t, []byte{64, byte(codes.GET), 0, 0, 0xff, 0x1}, message.Message{Code: codes.GET, Payload: []byte{0x1}})
	testUnmarshalMessage(t, []byte{67, byte(codes.GET), 0, 0, 0x1, 0x2, 0x3, 0xff, 0x1}, message.Message{Code: codes.GET, Payload: []byte{0x1}, Token: []byte{0x1, 0x2, 0x3}})
	testUnmarshalMessage(t, []byte{67, 1, 0, 0, 1, 2, 3, 177, 97, 1, 98, 1, 99, 1, 100, 1, 101, 16, 255, 1}, message.Message{
		Code:    codes.GET,
		Payload: []byte{0x1},
		Token:   []byte{0x1, 0x2, 0x3},
		Options: message.Options{{ID: 11, Value: []byte{97}}, {ID: 11, Value: []byte{98}}, {ID: 11, Value: []byte{99}}, {ID: 11, Value: []byte{100}}, {ID: 11, Value: []byte{101}}, {ID: 12, Value: []byte{}}},
	})
}

func TestUnmarshalFormatErrors(t *testing.T) {
	tests := []struct {
		name         string
		data         []byte
		headerParsed bool
		err          error
	}{
		{name: "empty", data: nil, err: ErrMessageTruncated},
		{name: "short", data: []byte{0x40, 0x01, 0x00}, err: ErrMessageTruncated},
		{name: "version 0", data: []byte{0x00, 0x01, 0x00, 0x01}, err: ErrMessageInvalidVersion},
		{name: "version 2", data: []byte{0x80, 0x01, 0x00, 0x01}, err: ErrMessageInvalidVersion},
		{name: "empty code with token", data: []byte{0x41, 0x00, 0x00, 0x01, 0x01}, headerParsed: true, err: message.ErrEmptyMessageLength},
		{name: "empty code with marker", data: []byte{0x40, 0x00, 0x00, 0x01, 0xff}, headerParsed: true, err: message.ErrEmptyMessageLength},
		{name: "token length 9", data: []byte{0x49, 0x01, 0x00, 0x01, 1, 2, 3, 4, 5, 6, 7, 8, 9}, headerParsed: true, err: message.ErrInvalidTokenLen},
		{name: "token truncated", data: []byte{0x44, 0x01, 0x00, 0x01, 1, 2}, headerParsed: true, err: ErrMessageTruncated},
		{name: "marker without payload", data: []byte{0x40, 0x01, 0x00, 0x01, 0xff}, headerParsed: true, err: ErrEmptyPayload},
		{name: "option truncated", data: []byte{0x40, 0x01, 0x00, 0x01, 0xb3, 'a'}, headerParsed: true, err: message.ErrOptionTruncated},
		{name: "option delta 15", data: []byte{0x40, 0x01, 0x00, 0x01, 0xf1, 'a'}, headerParsed: true, err: message.ErrOptionUnexpectedExtendMarker},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg message.Message
			_, err := DefaultCoder.Decode(tt.data, &msg)
			var formatErr *message.FormatError
			require.ErrorAs(t, err, &formatErr)
			require.ErrorIs(t, err, tt.err)
			require.Equal(t, tt.headerParsed, formatErr.HeaderParsed)
			if tt.headerParsed {
				require.Equal(t, uint16(1), formatErr.MessageID)
			}
		})
	}
}

func TestUnmarshalReservedCode(t *testing.T) {
	for _, class := range []uint8{1, 6, 7} {
		code := codes.New(class, 3)
		t.Run(code.Dotted(), func(t *testing.T) {
			data := []byte{0x42, byte(code), 0xbe, 0xef, 0xa, 0xb, 0xb1, 'x', 0xff, 'p'}
			var msg message.Message
			_, err := DefaultCoder.Decode(data, &msg)
			var formatErr *message.FormatError
			require.ErrorAs(t, err, &formatErr)
			require.ErrorIs(t, err, message.ErrReservedCode)
			require.Equal(t, uint16(0xbeef), formatErr.MessageID)
			require.Equal(t, message.Confirmable, formatErr.Type)
			require.Equal(t, uint16(0xbeef), msg.MessageID)
			require.Equal(t, message.Token{0xa, 0xb}, msg.Token)
			require.Equal(t, []byte("p"), msg.Payload)
		})
	}
}

func TestUnmarshalUnknownCriticalOption(t *testing.T) {
	data := []byte{
		0x48, 0x45, 0x62, 0xA2, 0x8D, 0xA2, 0x29, 0x0C, 0x18, 0x0F, 0xB5, 0x4A,
		0x48, 0x5E, 0x10, 0xA3, 0x88, 0x00, 0x00, 0x00, 0x00, // ETag
		0x82, 0x27, 0x10, // Content-Format
		0x52, 0x27, 0x10, // Accept
		0x61, 0x16, // Block2
		0xE2, 0x06, 0xDD, 0x08, 0x00, // 2049
		0x42, 0x08, 0x00, // 2053
		0xFF, 0x70, 0x73,
	}
	var msg message.Message
	_, err := DefaultCoder.Decode(data, &msg)
	var optErr *message.OptionError
	require.ErrorAs(t, err, &optErr)
	require.Equal(t, []message.OptionID{2049, 2053}, optErr.IDs)
	require.Equal(t, uint16(25250), optErr.MessageID)
	require.Equal(t, message.Confirmable, optErr.Type)
	require.Equal(t, uint16(25250), msg.MessageID)
	require.Equal(t, codes.Content, msg.Code)
	require.Equal(t, []byte{0x70, 0x73}, msg.Payload)
	require.Equal(t, []message.OptionID{message.ETag, message.ContentFormat, message.Accept, message.Block2}, optionIDs(msg.Options))

	// an elective unknown option is dropped silently
	_, err = DefaultCoder.Decode([]byte{0x40, 0x01, 0x00, 0x01, 0xd0, 0x1b, 0xff, 'a'}, &msg)
	require.NoError(t, err)
	require.Empty(t, msg.Options)
}

func optionIDs(options message.Options) []message.OptionID {
	r := make([]message.OptionID, 0, len(options))
	for _, o := range options {
		r = append(r, o.ID)
	}
	return r
}

func TestRoundTrip(t *testing.T) {
	block := []byte{0x1e}
	tests := []message.Message{
		{Type: message.Confirmable, Code: codes.GET, MessageID: 1, Token: []byte{1}},
		{Type: message.NonConfirmable, Code: codes.POST, MessageID: 65535, Token: bytes.Repeat([]byte{7}, 8), Payload: []byte("data")},
		{Type: message.Acknowledgement, Code: codes.Content, MessageID: 300, Options: message.Options{}.SetContentFormat(message.AppCBOR).SetBytes(message.Block2, block), Payload: []byte{0xa0}},
		{Type: message.Reset, Code: codes.Empty, MessageID: 12},
		{Type: message.Acknowledgement, Code: codes.Content, MessageID: 7, Payload: []byte("hi")},
		{Type: message.Confirmable, Code: codes.POST, MessageID: 8, Token: []byte{9}},
		{
			Type:      message.Confirmable,
			Code:      codes.PUT,
			MessageID: 4242,
			Token:     []byte{1, 2, 3, 4},
			Options: message.Options{}.
				SetString(message.URIHost, "example.com").
				SetUint32(message.URIPort, 5683).
				AddString(message.URIPath, "a").
				AddString(message.URIPath, "b").
				AddQuery("x=1").
				SetString(message.ProxyURI, string(bytes.Repeat([]byte{'u'}, 1034))).
				SetUint32(message.Size1, 1<<20),
			Payload: bytes.Repeat([]byte{0x55}, 1024),
		},
	}
	for _, m := range tests {
		t.Run(m.String(), func(t *testing.T) {
			data, err := DefaultCoder.Marshal(m)
			require.NoError(t, err)
			got, err := DefaultCoder.Unmarshal(data)
			require.NoError(t, err)
			require.Equal(t, m.Type, got.Type)
			require.Equal(t, m.Code, got.Code)
			require.Equal(t, m.MessageID, got.MessageID)
			require.True(t, m.Token.Equal(got.Token) || len(m.Token) == len(got.Token))
			require.True(t, m.Options.Equal(got.Options))
			require.Equal(t, len(m.Payload), len(got.Payload))
			if len(m.Payload) > 0 {
				require.Equal(t, m.Payload, got.Payload)
			}
		})
	}
}

func TestUnmarshalTruncatedHeader(t *testing.T) {
	_, err := DefaultCoder.Unmarshal([]byte{0x40})
	require.True(t, errors.Is(err, ErrMessageTruncated))
	require.False(t, errors.Is(err, message.ErrInvalidTokenLen))
}

func BenchmarkMarshalMessage(b *testing.B) {
	options, _ := message.Options{}.SetPath("/a/b/c/d/e")
	options = options.SetContentFormat(message.TextPlain)
	msg := message.Message{
		Code:    codes.GET,
		Payload: []byte{0x1},
		Token:   []byte{0x1, 0x2, 0x3},
		Options: options,
	}
	buffer := make([]byte, 1024)

	b.ResetTimer()
	for i := uint32(0); i < uint32(b.N); i++ {
		_, err := DefaultCoder.Encode(msg, buffer)
		if err != nil {
			b.Fatalf("cannot marshal")
		}
	}
}

func BenchmarkUnmarshalMessage(b *testing.B) {
	buffer := []byte{
		0x40, 0x1, 0x30, 0x39, 0x46, 0x77,
		0x65, 0x65, 0x74, 0x61, 0x67, 0xa1, 0x3,
		0xff, 'h', 'i',
	}
	msg := message.Message{
		Options: make(message.Options, 0, 32),
	}

	b.ResetTimer()
	for i := uint32(0); i < uint32(b.N); i++ {
		_, err := DefaultCoder.Decode(buffer, &msg)
		if err != nil {
			b.Fatalf("cannot unmarshal: %v", err)
		}
	}
}

func FuzzDecode(f *testing.F) {
	f.Add([]byte{0x40, 0x1, 0x30, 0x39, 0x46, 0x77, 0x65, 0x65, 0x74, 0x61, 0x67, 0xa1, 0x3, 0xff, 'h', 'i'})
	f.Add(nonBadRequest)
	f.Add([]byte{0x48, 0x01, 0x00, 0x00, 0xB0, 0x35, 0x4C, 0xF5, 0xD9, 0x72, 0x24, 0x0D, 0x60, 0x55, 0x6C, 0x69, 0x67, 0x68, 0x74, 0x05, 0x6C, 0x69, 0x67, 0x68, 0x74})

	f.Fuzz(func(t *testing.T, inputData []byte) {
		var msg message.Message
		if _, err := DefaultCoder.Decode(inputData, &msg); err != nil {
			return
		}
		data, err := DefaultCoder.Marshal(msg)
		if err != nil {
			return
		}
		var again message.Message
		if _, err = DefaultCoder.Decode(data, &again); err != nil {
			t.Fatalf("cannot decode encoded message %v: %v", msg, err)
		}
	})
}
