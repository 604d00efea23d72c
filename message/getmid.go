package message

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	pkgRand "github.com/plgd-dev/coap-engine/pkg/rand"
	"go.uber.org/atomic"
)

var weakRng = pkgRand.NewRand(time.Now().UnixNano())

var msgID = atomic.NewUint32(uint32(RandMID()))

// GetMID generates a message id. Zero is skipped because it asks the client
// to allocate one.
func GetMID() uint16 {
	for {
		if v := uint16(msgID.Inc()); v != 0 {
			return v
		}
	}
}

func RandMID() uint16 {
	b := make([]byte, 2)
	_, err := rand.Read(b)
	if err != nil {
		// fallback to cryptographically insecure pseudo-random generator
		return uint16(weakRng.Uint32() >> 16)
	}
	return binary.BigEndian.Uint16(b)
}
