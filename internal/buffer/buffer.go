// Package buffer holds unconsumed stream bytes for incremental frame parsers.
package buffer

import "bytes"

// DefaultMaxSize matches the typical receive window of a GNSS serial port.
const DefaultMaxSize = 4096

// Buffer is an append-at-tail, drain-at-head byte queue with an upper bound.
//
// Views returned by Peek are borrowed: they alias the internal storage and are
// only valid until the next Append or Drain.
type Buffer struct {
	data    []byte
	head    int
	maxSize int
}

func New(maxSize int) *Buffer {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Buffer{data: make([]byte, 0, maxSize), maxSize: maxSize}
}

// Append copies p into the buffer. When the result would exceed the maximum
// size, the oldest bytes are discarded and their count is returned.
func (b *Buffer) Append(p []byte) (dropped int) {
	if len(p) == 0 {
		return 0
	}
	if len(p) >= b.maxSize {
		dropped = b.Len() + len(p) - b.maxSize
		b.data = append(b.data[:0], p[len(p)-b.maxSize:]...)
		b.head = 0
		return dropped
	}
	if over := b.Len() + len(p) - b.maxSize; over > 0 {
		b.head += over
		dropped = over
	}
	b.compact()
	b.data = append(b.data, p...)
	return dropped
}

// Peek returns the unconsumed bytes without copying.
func (b *Buffer) Peek() []byte {
	return b.data[b.head:]
}

// Find returns the offset of the first occurrence of sep at or after from,
// relative to the start of the unconsumed bytes.
func (b *Buffer) Find(sep []byte, from int) (int, bool) {
	view := b.Peek()
	if from < 0 {
		from = 0
	}
	if from > len(view) {
		return 0, false
	}
	i := bytes.Index(view[from:], sep)
	if i < 0 {
		return 0, false
	}
	return from + i, true
}

// Drain discards the first n unconsumed bytes.
func (b *Buffer) Drain(n int) {
	if n <= 0 {
		return
	}
	if n >= b.Len() {
		b.Reset()
		return
	}
	b.head += n
}

func (b *Buffer) Len() int {
	return len(b.data) - b.head
}

func (b *Buffer) IsEmpty() bool {
	return b.Len() == 0
}

func (b *Buffer) MaxSize() int {
	return b.maxSize
}

func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.head = 0
}

// compact moves unconsumed bytes to the front so the backing array does not
// grow past maxSize.
func (b *Buffer) compact() {
	if b.head == 0 {
		return
	}
	n := copy(b.data, b.data[b.head:])
	b.data = b.data[:n]
	b.head = 0
}
