package blockwise

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/dsnet/golib/memfile"
	"github.com/plgd-dev/coap-engine/message"
	"github.com/plgd-dev/coap-engine/message/codes"
	"github.com/plgd-dev/coap-engine/message/status"
	pkgMath "github.com/plgd-dev/coap-engine/pkg/math"
	"github.com/plgd-dev/coap-engine/pkg/queue"
	"go.uber.org/zap"
)

// Sender exchanges single messages with the peer, it is implemented by the
// udp client connection.
type Sender interface {
	Send(ctx context.Context, req *message.Message, addr net.Addr) (uint16, error)
	GetResponse(ctx context.Context, mid uint16) (*message.Message, error)
}

type Config struct {
	// SZX is the block size used until the peer asks for a smaller one.
	SZX SZX
	// Addr of the peer, nil means the peer of the connection.
	Addr   net.Addr
	Logger *zap.Logger
}

var DefaultConfig = Config{
	SZX:    SZX1024,
	Logger: zap.NewNop(),
}

// An Option overrides the stream configuration.
type Option interface {
	BlockwiseApply(cfg *Config)
}

// Stream transfers the body of one request with Block1 and the body of its
// response with Block2. Writes are buffered and sent block by block, each
// block waits for its response before the next one is sent.
//
// A Stream must not be used concurrently.
type Stream struct {
	ctx    context.Context
	sender Sender
	cfg    Config
	logger *zap.Logger

	request  *message.Message
	response *message.Message
	szx      SZX

	pending      *queue.ByteQueue
	written      int64
	writeStarted bool
	writeDone    bool

	body        *memfile.File
	etag        []byte
	received    int64
	readOffset  int64
	readStarted bool
	readDone    bool

	closed bool
}

// NewStream creates a stream for the request. The request is cloned, its
// payload is ignored.
func NewStream(ctx context.Context, sender Sender, request *message.Message, opts ...Option) (*Stream, error) {
	cfg := DefaultConfig
	for _, o := range opts {
		o.BlockwiseApply(&cfg)
	}
	if cfg.SZX > SZX1024 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSZX, cfg.SZX)
	}
	if request == nil {
		return nil, errors.New("invalid request")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	req := request.Clone()
	req.Payload = nil
	req.Options = req.Options.Remove(message.Block1).Remove(message.Block2).Remove(message.Size1)
	return &Stream{
		ctx:     ctx,
		sender:  sender,
		cfg:     cfg,
		logger:  cfg.Logger,
		request: req,
		szx:     cfg.SZX,
		pending: queue.NewByteQueue(int(cfg.SZX.Size()) * 2),
		body:    memfile.New(nil),
	}, nil
}

// SZX is the block size currently in use.
func (s *Stream) SZX() SZX {
	return s.szx
}

// Response returns the last response received, nil before any exchange.
func (s *Stream) Response() *message.Message {
	return s.response
}

func (s *Stream) exchange(req *message.Message) (*message.Message, error) {
	mid, err := s.sender.Send(s.ctx, req, s.cfg.Addr)
	if err != nil {
		return nil, err
	}
	return s.sender.GetResponse(s.ctx, mid)
}

// nextRequest clones the base request with a fresh message ID and token.
func (s *Stream) nextRequest() *message.Message {
	req := s.request.Clone()
	req.MessageID = 0
	req.Token = nil
	return req
}

// Write buffers p. Full blocks are sent as soon as it is clear that more
// data follows them.
func (s *Stream) Write(p []byte) (int, error) {
	if s.closed || s.writeDone || s.readStarted {
		return 0, ErrStreamClosed
	}
	n, _ := s.pending.Write(p)
	for int64(s.pending.Len()) > s.szx.Size() {
		if err := s.sendBlock(true, -1); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Flush sends the buffered data, the last block is marked as final. The
// response to the last block is available through Response and Read.
func (s *Stream) Flush() error {
	if s.closed {
		return ErrStreamClosed
	}
	if s.writeDone {
		return nil
	}
	total := s.written + int64(s.pending.Len())
	for {
		last := int64(s.pending.Len()) <= s.szx.Size()
		if err := s.sendBlock(!last, total); err != nil {
			return err
		}
		if last && s.pending.Len() == 0 {
			break
		}
	}
	s.writeDone = true
	return s.ingest(s.response)
}

// sendBlock sends the next block of the buffered data. A negative total
// leaves out Size1.
func (s *Stream) sendBlock(more bool, total int64) error {
	for {
		size := s.szx.Size()
		n := s.pending.Len()
		if int64(n) > size {
			n = int(size)
		}
		chunkMore := more || int64(s.pending.Len()) > size
		block := Block{Num: s.written / size, More: chunkMore, SZX: s.szx}
		v, err := block.Value()
		if err != nil {
			return fmt.Errorf("cannot encode block %v: %w", block, err)
		}
		req := s.nextRequest()
		req.Options = req.Options.SetUint32(message.Block1, v)
		if total >= 0 {
			size1, errC := pkgMath.SafeCastTo[uint32](total)
			if errC != nil {
				return fmt.Errorf("cannot set Size1: %w", errC)
			}
			req.Options = req.Options.SetUint32(message.Size1, size1)
		}
		req.Payload = s.pending.Peek(n)
		s.writeStarted = true

		resp, err := s.exchange(req)
		if err != nil {
			return fmt.Errorf("cannot send block %v: %w", block, err)
		}
		s.response = resp
		if resp.Code == codes.RequestEntityTooLarge {
			smaller, ok := s.szx.Halve()
			if !ok {
				return fmt.Errorf("block %v: %w", block, ErrBlockSizeExhausted)
			}
			s.logger.Debug("block too large, retrying with smaller size", zap.Stringer("block", block), zap.Stringer("szx", smaller))
			s.szx = smaller
			continue
		}
		if !resp.Code.IsSuccess() {
			return status.Errorf(resp, "block %v rejected: %v", block, resp.Code)
		}
		if bv, errG := resp.Options.GetUint32(message.Block1); errG == nil {
			if acked, errP := ParseBlock(bv); errP == nil && acked.SZX < s.szx {
				s.logger.Debug("peer reduced block size", zap.Stringer("szx", acked.SZX))
				s.szx = acked.SZX
			}
		}
		s.pending.Discard(n)
		s.written += int64(n)
		s.logger.Debug("block sent", zap.Stringer("block", block), zap.Int64("written", s.written))
		return nil
	}
}

// ingest stores the body of a response, it is the next Block2 block or the
// whole body.
func (s *Stream) ingest(resp *message.Message) error {
	s.readStarted = true
	v, err := resp.Options.GetUint32(message.Block2)
	if err != nil {
		if s.received > 0 {
			return fmt.Errorf("%w: response without Block2 after %v bytes", ErrUnexpectedBlock, s.received)
		}
		if _, err = s.body.Write(resp.Payload); err != nil {
			return err
		}
		s.received = int64(len(resp.Payload))
		s.readDone = true
		return nil
	}
	block, err := ParseBlock(v)
	if err != nil {
		return fmt.Errorf("cannot decode Block2: %w", err)
	}
	if block.SZX > SZX1024 {
		return fmt.Errorf("%w: %v", ErrInvalidSZX, block.SZX)
	}
	if block.Offset() != s.received {
		return fmt.Errorf("%w: %v at offset %v, expected %v", ErrUnexpectedBlock, block, block.Offset(), s.received)
	}
	etag, _ := resp.Options.GetBytes(message.ETag)
	if block.Num == 0 {
		s.etag = etag
	} else if !bytes.Equal(s.etag, etag) {
		return ErrResourceChanged
	}
	if block.More && int64(len(resp.Payload)) != block.SZX.Size() {
		return fmt.Errorf("%w: %v carries %v bytes", ErrUnexpectedBlock, block, len(resp.Payload))
	}
	if _, err = s.body.WriteAt(resp.Payload, s.received); err != nil {
		return err
	}
	s.received += int64(len(resp.Payload))
	if block.SZX < s.szx {
		s.szx = block.SZX
	}
	s.readDone = !block.More
	return nil
}

// fetch requests the next Block2 block of the response body. Written data
// is flushed first, its last response carries the first block.
func (s *Stream) fetch() error {
	if !s.readStarted && (s.writeStarted || s.pending.Len() > 0) {
		return s.Flush()
	}
	v, err := Block{Num: s.received / s.szx.Size(), SZX: s.szx}.Value()
	if err != nil {
		return fmt.Errorf("cannot encode Block2: %w", err)
	}
	req := s.nextRequest()
	if s.readStarted {
		// only the first request registers an observation
		req.Options = req.Options.Remove(message.Observe)
	}
	req.Options = req.Options.SetUint32(message.Block2, v)
	resp, err := s.exchange(req)
	if err != nil {
		return fmt.Errorf("cannot fetch block at offset %v: %w", s.received, err)
	}
	s.response = resp
	if !resp.Code.IsSuccess() {
		return status.Errorf(resp, "cannot fetch block at offset %v: %v", s.received, resp.Code)
	}
	return s.ingest(resp)
}

// Read reads the response body, blocks are fetched as needed. A stream with
// written data flushes it first.
func (s *Stream) Read(p []byte) (int, error) {
	if s.closed {
		return 0, ErrStreamClosed
	}
	for s.readOffset >= s.received {
		if s.readStarted && s.readDone {
			return 0, io.EOF
		}
		if err := s.fetch(); err != nil {
			return 0, err
		}
	}
	n, err := s.body.ReadAt(p, s.readOffset)
	s.readOffset += int64(n)
	if errors.Is(err, io.EOF) && n > 0 {
		err = nil
	}
	return n, err
}

// ReadAll fetches the remaining blocks and returns the unread part of the body.
func (s *Stream) ReadAll() ([]byte, error) {
	if s.closed {
		return nil, ErrStreamClosed
	}
	for !s.readStarted || !s.readDone {
		if err := s.fetch(); err != nil {
			return nil, err
		}
	}
	data := s.body.Bytes()[s.readOffset:s.received]
	s.readOffset = s.received
	return append([]byte(nil), data...), nil
}

// Close flushes written data and releases the buffers.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	var err error
	if s.writeStarted || s.pending.Len() > 0 {
		err = s.Flush()
	}
	s.closed = true
	s.pending.Reset()
	s.body = memfile.New(nil)
	return err
}
