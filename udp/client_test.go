package udp

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/plgd-dev/coap-engine/message"
	"github.com/plgd-dev/coap-engine/message/codes"
	"github.com/plgd-dev/coap-engine/net/blockwise"
	"github.com/plgd-dev/coap-engine/options"
	"github.com/plgd-dev/coap-engine/udp/client"
	"github.com/plgd-dev/coap-engine/udp/coder"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const Timeout = time.Second * 8

// serve answers requests on a loopback socket until the test ends.
func serve(t *testing.T, handler func(req *message.Message) *message.Message) string {
	l, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = l.Close()
	})
	go func() {
		buf := make([]byte, 2048)
		for {
			n, addr, err := l.ReadFromUDP(buf)
			if err != nil {
				return
			}
			req, err := coder.DefaultCoder.Unmarshal(buf[:n])
			if err != nil {
				continue
			}
			var resp *message.Message
			if req.IsPing() {
				resp = &message.Message{Type: message.Reset}
			} else if resp = handler(req); resp == nil {
				continue
			} else {
				resp.Type = message.Acknowledgement
			}
			resp.MessageID = req.MessageID
			resp.Token = req.Token
			data, err := coder.DefaultCoder.Marshal(*resp)
			if err != nil {
				continue
			}
			_, _ = l.WriteToUDP(data, addr)
		}
	}()
	return fmt.Sprintf("coap://%v", l.LocalAddr())
}

func TestConnDo(t *testing.T) {
	uri := serve(t, func(req *message.Message) *message.Message {
		path, err := req.Options.Path()
		if err != nil || path != "/a" {
			return message.NewResponse(codes.NotFound, "")
		}
		return message.NewResponse(codes.Content, "hello")
	})
	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	defer cancel()
	cc, err := Dial(ctx, uri,
		options.WithLogger(zaptest.NewLogger(t)),
		options.WithTransmission(1, time.Millisecond*200, 4),
	)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, cc.Close())
	}()

	req := &message.Message{Type: message.Confirmable, Code: codes.GET}
	req.Options, err = req.Options.SetPath("/a")
	require.NoError(t, err)
	resp, err := cc.Do(ctx, req, nil)
	require.NoError(t, err)
	require.Equal(t, codes.Content, resp.Code)
	require.Equal(t, []byte("hello"), resp.Payload)

	req = &message.Message{Type: message.Confirmable, Code: codes.GET}
	req.Options, err = req.Options.SetPath("/b")
	require.NoError(t, err)
	resp, err = cc.Do(ctx, req, nil)
	require.NoError(t, err)
	require.Equal(t, codes.NotFound, resp.Code)

	require.NoError(t, cc.Ping(ctx, nil))
}

func TestConnBlockwiseGet(t *testing.T) {
	body := make([]byte, 5000)
	for i := range body {
		body[i] = byte(i)
	}
	uri := serve(t, func(req *message.Message) *message.Message {
		v, err := req.Options.GetUint32(message.Block2)
		if err != nil {
			return message.NewResponse(codes.BadRequest, "")
		}
		b, err := blockwise.ParseBlock(v)
		if err != nil {
			return message.NewResponse(codes.BadRequest, "")
		}
		start := b.Offset()
		end := start + b.SZX.Size()
		more := end < int64(len(body))
		if !more {
			end = int64(len(body))
		}
		resp := &message.Message{Code: codes.Content, Payload: body[start:end]}
		v, _ = blockwise.Block{Num: b.Num, More: more, SZX: b.SZX}.Value()
		resp.Options = resp.Options.SetUint32(message.Block2, v)
		return resp
	})
	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	defer cancel()
	cc, err := Dial(ctx, uri, options.WithTransmission(1, time.Millisecond*200, 4))
	require.NoError(t, err)
	defer func() {
		require.NoError(t, cc.Close())
	}()

	req := &message.Message{Type: message.Confirmable, Code: codes.GET}
	s, err := blockwise.NewStream(ctx, cc, req, options.WithBlockwiseSZX(blockwise.SZX512))
	require.NoError(t, err)
	got, err := s.ReadAll()
	require.NoError(t, err)
	require.Equal(t, body, got)
	require.NoError(t, s.Close())
}

func TestConnRetransmitExhausted(t *testing.T) {
	// the server never answers
	uri := serve(t, func(*message.Message) *message.Message { return nil })
	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	defer cancel()
	cc, err := Dial(ctx, uri, options.WithTransmission(1, time.Millisecond*20, 2))
	require.NoError(t, err)
	defer func() {
		require.NoError(t, cc.Close())
	}()
	_, err = cc.Do(ctx, &message.Message{Type: message.Confirmable, Code: codes.GET}, nil)
	require.ErrorIs(t, err, client.ErrRetransmitExhausted)
}
