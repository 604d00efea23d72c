package queue

import "io"

const minCapacity = 64

// ByteQueue is a growable circular byte buffer. Not safe for concurrent use.
type ByteQueue struct {
	buf  []byte
	head int
	size int
}

func NewByteQueue(capacity int) *ByteQueue {
	if capacity < minCapacity {
		capacity = minCapacity
	}
	return &ByteQueue{buf: make([]byte, capacity)}
}

func (q *ByteQueue) Len() int {
	return q.size
}

func (q *ByteQueue) Cap() int {
	return len(q.buf)
}

func (q *ByteQueue) grow(need int) {
	if q.size+need <= len(q.buf) {
		return
	}
	c := len(q.buf) * 2
	if c == 0 {
		c = minCapacity
	}
	for c < q.size+need {
		c *= 2
	}
	buf := make([]byte, c)
	q.copyOut(buf, q.size)
	q.buf = buf
	q.head = 0
}

// copyOut copies n bytes from the head into dst without consuming them.
func (q *ByteQueue) copyOut(dst []byte, n int) int {
	if n > q.size {
		n = q.size
	}
	first := len(q.buf) - q.head
	if first > n {
		first = n
	}
	copy(dst, q.buf[q.head:q.head+first])
	copy(dst[first:n], q.buf[:n-first])
	return n
}

// Write appends p to the tail. It never fails.
func (q *ByteQueue) Write(p []byte) (int, error) {
	q.grow(len(p))
	tail := (q.head + q.size) % len(q.buf)
	n := copy(q.buf[tail:], p)
	copy(q.buf, p[n:])
	q.size += len(p)
	return len(p), nil
}

// Peek returns a copy of up to n bytes from the head.
func (q *ByteQueue) Peek(n int) []byte {
	if n > q.size {
		n = q.size
	}
	out := make([]byte, n)
	q.copyOut(out, n)
	return out
}

// Discard drops up to n bytes from the head and returns how many were dropped.
func (q *ByteQueue) Discard(n int) int {
	if n > q.size {
		n = q.size
	}
	if n <= 0 {
		return 0
	}
	q.head = (q.head + n) % len(q.buf)
	q.size -= n
	if q.size == 0 {
		q.head = 0
	}
	return n
}

// Read consumes bytes from the head. It returns io.EOF when the queue is empty.
func (q *ByteQueue) Read(p []byte) (int, error) {
	if q.size == 0 {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := q.copyOut(p, len(p))
	q.Discard(n)
	return n, nil
}

func (q *ByteQueue) Reset() {
	q.head = 0
	q.size = 0
}
