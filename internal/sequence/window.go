// Package sequence holds the sliding window of contiguous feature vectors.
package sequence

import "github.com/ayusman/mudra/internal/features"

// DefaultLength is the window capacity used when none is configured.
const DefaultLength = 30

// Window is a chronological FIFO of feature vectors with a fixed capacity.
// Once full, every Push evicts the oldest vector. Not safe for concurrent
// use; the owning session serializes access.
type Window struct {
	frames   []features.Vector
	capacity int
}

// New returns an empty window. Non-positive capacities fall back to DefaultLength.
func New(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultLength
	}
	return &Window{
		frames:   make([]features.Vector, 0, capacity),
		capacity: capacity,
	}
}

// Push appends v, dropping the oldest vector first when the window is full.
func (w *Window) Push(v features.Vector) {
	if len(w.frames) == w.capacity {
		copy(w.frames, w.frames[1:])
		w.frames[len(w.frames)-1] = v
		return
	}
	w.frames = append(w.frames, v)
}

// Reset empties the window.
func (w *Window) Reset() {
	w.frames = w.frames[:0]
}

// IsFull reports whether the window holds exactly Cap vectors.
func (w *Window) IsFull() bool {
	return len(w.frames) == w.capacity
}

// Len returns the number of buffered vectors.
func (w *Window) Len() int {
	return len(w.frames)
}

// Cap returns the window capacity.
func (w *Window) Cap() int {
	return w.capacity
}

// Snapshot returns a copy of the buffered vectors, oldest first.
func (w *Window) Snapshot() []features.Vector {
	out := make([]features.Vector, len(w.frames))
	copy(out, w.frames)
	return out
}
