package audio

import (
	"sync"
)

// RingBuffer is a thread-safe ring buffer for outbound channel audio.
// Writers append arbitrary chunks, the sender drains whole frames.
type RingBuffer struct {
	buffer []byte
	size   int
	read   int
	write  int
	mu     sync.Mutex
}

// NewRingBuffer creates a new ring buffer with the specified size
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{
		buffer: make([]byte, size),
		size:   size,
	}
}

// Write appends data to the ring buffer
// Returns the number of bytes written (may be less than len(data) if buffer is full)
func (rb *RingBuffer) Write(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	written := 0
	for _, b := range data {
		if (rb.write+1)%rb.size == rb.read {
			break // Buffer full
		}
		rb.buffer[rb.write] = b
		rb.write = (rb.write + 1) % rb.size
		written++
	}

	return written
}

// NextFrame removes and returns the next frameSize bytes. It returns false
// while less than a full frame is buffered, unless flush is set, in which
// case any remainder is returned.
func (rb *RingBuffer) NextFrame(frameSize int, flush bool) ([]byte, bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	available := rb.available()
	if available == 0 || (available < frameSize && !flush) {
		return nil, false
	}

	n := min(frameSize, available)
	frame := make([]byte, n)
	for i := range frame {
		frame[i] = rb.buffer[rb.read]
		rb.read = (rb.read + 1) % rb.size
	}

	return frame, true
}

func (rb *RingBuffer) available() int {
	if rb.write >= rb.read {
		return rb.write - rb.read
	}
	return rb.size - rb.read + rb.write
}

// Clear drops all buffered audio and returns how many bytes were discarded
func (rb *RingBuffer) Clear() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	dropped := rb.available()
	rb.read = 0
	rb.write = 0
	return dropped
}
