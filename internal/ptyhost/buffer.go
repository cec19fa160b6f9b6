package ptyhost

import "sync"

// Buffer is a thread-safe ring holding the most recent output of a session.
// When full, the oldest bytes are overwritten.
type Buffer struct {
	mu   sync.RWMutex
	data []byte
	head int // next write position
	full bool
}

// NewBuffer creates a ring of size bytes.
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = 1
	}
	return &Buffer{data: make([]byte, size)}
}

// Write appends p, discarding the oldest bytes on overflow.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(p)
	size := len(b.data)
	if n >= size {
		copy(b.data, p[n-size:])
		b.head = 0
		b.full = true
		return n, nil
	}

	c := copy(b.data[b.head:], p)
	if c < n {
		copy(b.data, p[c:])
		b.full = true
	}
	next := b.head + n
	if next >= size {
		b.full = true
	}
	b.head = next % size
	return n, nil
}

// Bytes returns a copy of the buffered output, oldest first. The buffer is
// not drained, so every reattach can replay the same history.
func (b *Buffer) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.full {
		out := make([]byte, b.head)
		copy(out, b.data[:b.head])
		return out
	}
	out := make([]byte, len(b.data))
	n := copy(out, b.data[b.head:])
	copy(out[n:], b.data[:b.head])
	return out
}

// Len reports how many bytes are buffered.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.full {
		return len(b.data)
	}
	return b.head
}
