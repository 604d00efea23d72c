package rand

import (
	"math/rand"
	"sync"
)

// Rand is a math/rand source guarded for concurrent use.
type Rand struct {
	lock sync.Mutex
	src  *rand.Rand
}

func NewRand(seed int64) *Rand {
	return &Rand{
		src: rand.New(rand.NewSource(seed)), //nolint:gosec
	}
}

func (l *Rand) Int63() int64 {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.src.Int63()
}

func (l *Rand) Uint32() uint32 {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.src.Uint32()
}
