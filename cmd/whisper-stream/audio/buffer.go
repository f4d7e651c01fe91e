package audio

import (
	"sync"
)

// RingBuffer keeps the most recent samples written to it, up to its capacity.
// It is safe for one writer and any number of readers.
type RingBuffer struct {
	mu     sync.RWMutex
	data   []float32
	pos    int
	length int
}

func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{
		data: make([]float32, capacity),
	}
}

func (b *RingBuffer) Write(samples []float32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.data)
	if n == 0 {
		return
	}

	if len(samples) > n {
		samples = samples[len(samples)-n:]
	}

	for len(samples) > 0 {
		copied := copy(b.data[b.pos:], samples)
		samples = samples[copied:]
		b.pos = (b.pos + copied) % n
		b.length = min(b.length+copied, n)
	}
}

// Last returns a copy of the latest n samples written since the last Clear,
// oldest first. All available samples are returned if n is not positive or
// exceeds what is buffered.
func (b *RingBuffer) Last(n int) []float32 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || n > b.length {
		n = b.length
	}

	out := make([]float32, n)
	start := b.pos - n
	if start < 0 {
		start += len(b.data)
	}

	copied := copy(out, b.data[start:])
	if copied < n {
		copy(out[copied:], b.data[:n-copied])
	}

	return out
}

func (b *RingBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.length
}

func (b *RingBuffer) Cap() int {
	return len(b.data)
}

func (b *RingBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.length = 0
}
