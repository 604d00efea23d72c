package blockwise

import (
	"errors"
	"fmt"
)

var (
	ErrBlockNumberExceedLimit = errors.New("block number exceed limit 1,048,575")
	ErrBlockInvalidSize       = errors.New("block has invalid size")
	ErrInvalidSZX             = errors.New("invalid block-wise transfer szx")
	ErrBlockSizeExhausted     = errors.New("peer rejected the smallest block size")
	ErrStreamClosed           = errors.New("stream is closed")
	ErrUnexpectedBlock        = errors.New("unexpected block")
	ErrResourceChanged        = errors.New("resource changed during transfer")
)

// Block option value, https://tools.ietf.org/html/rfc7959#section-2.2
//
//	 0
//	 0 1 2 3 4 5 6 7
//	+-+-+-+-+-+-+-+-+
//	|  NUM  |M| SZX |
//	+-+-+-+-+-+-+-+-+
//
// NUM grows to 12 and 20 bits in the two and three byte forms.
const (
	maxBlockValue  = 0xffffff
	maxBlockNumber = 0xfffff
	moreMask       = 0x8
	szxMask        = 0x7
)

// SZX is the block size exponent, the block carries 2^(4+SZX) bytes.
type SZX uint8

const (
	SZX16   SZX = 0
	SZX32   SZX = 1
	SZX64   SZX = 2
	SZX128  SZX = 3
	SZX256  SZX = 4
	SZX512  SZX = 5
	SZX1024 SZX = 6
	// SZXBERT is reserved for BERT which is not used over UDP.
	SZXBERT SZX = 7
)

// Size returns the block size in bytes or -1 for an unsupported exponent.
func (s SZX) Size() int64 {
	if s > SZX1024 {
		return -1
	}
	return 16 << s
}

func (s SZX) String() string {
	if s > SZX1024 {
		return fmt.Sprintf("SZX(%d)", uint8(s))
	}
	return fmt.Sprintf("SZX%d", s.Size())
}

// Halve returns the next smaller block size, false when s is the smallest one.
func (s SZX) Halve() (SZX, bool) {
	if s == SZX16 || s > SZX1024 {
		return s, false
	}
	return s - 1, true
}

// Block is the decoded value of a Block1 or Block2 option.
type Block struct {
	Num  int64
	More bool
	SZX  SZX
}

// Offset is the position of the first byte of the block in the body.
func (b Block) Offset() int64 {
	return b.Num * b.SZX.Size()
}

func (b Block) String() string {
	return fmt.Sprintf("%d/%v/%d", b.Num, b.More, b.SZX.Size())
}

// EncodeBlockOption packs the block values to the option value.
func EncodeBlockOption(szx SZX, blockNumber int64, moreBlocksFollowing bool) (uint32, error) {
	if szx > SZXBERT {
		return 0, ErrInvalidSZX
	}
	if blockNumber < 0 || blockNumber > maxBlockNumber {
		return 0, ErrBlockNumberExceedLimit
	}
	v := uint32(blockNumber)<<4 | uint32(szx)
	if moreBlocksFollowing {
		v |= moreMask
	}
	return v, nil
}

// DecodeBlockOption unpacks the option value.
func DecodeBlockOption(blockVal uint32) (szx SZX, blockNumber int64, moreBlocksFollowing bool, err error) {
	if blockVal > maxBlockValue {
		return 0, 0, false, ErrBlockInvalidSize
	}
	return SZX(blockVal & szxMask), int64(blockVal >> 4), blockVal&moreMask != 0, nil
}

func (b Block) Value() (uint32, error) {
	return EncodeBlockOption(b.SZX, b.Num, b.More)
}

func ParseBlock(v uint32) (Block, error) {
	szx, num, more, err := DecodeBlockOption(v)
	if err != nil {
		return Block{}, err
	}
	return Block{Num: num, More: more, SZX: szx}, nil
}
