package message

import (
	"encoding/binary"
)

// EncodeUint32 writes value using the minimal number of big-endian bytes;
// zero takes no bytes at all.
func EncodeUint32(buf []byte, value uint32) (int, error) {
	var n int
	switch {
	case value == 0:
		return 0, nil
	case value <= max1ByteNumber:
		n = 1
	case value <= max2ByteNumber:
		n = 2
	case value <= max3ByteNumber:
		n = 3
	default:
		n = 4
	}
	if len(buf) < n {
		return n, ErrTooSmall
	}
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], value)
	copy(buf, tmp[4-n:])
	return n, nil
}

func DecodeUint32(buf []byte) (uint32, int, error) {
	if len(buf) > 4 {
		return 0, -1, ErrInvalidValueLength
	}
	var tmp [4]byte
	copy(tmp[4-len(buf):], buf)
	return binary.BigEndian.Uint32(tmp[:]), len(buf), nil
}
