package engine

import (
	"sync"

	"github.com/hluisi/pausemon/model"
)

// Ring is a fixed-capacity ring buffer of scored samples. Push is O(1);
// when full, the oldest entry is evicted first. It is the single source of
// truth for "what was just happening": the socket server bootstraps new
// clients from it and forensics freezes it on a pause.
type Ring struct {
	mu   sync.RWMutex
	buf  []model.RingSample
	head int
	size int
	cap  int
}

// NewRing creates a ring buffer with the given capacity.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{
		buf: make([]model.RingSample, capacity),
		cap: capacity,
	}
}

// Push appends a sample tagged with the tier active on arrival.
func (r *Ring) Push(s model.Sample, tier model.Tier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.head] = model.RingSample{
		Timestamp: s.Timestamp,
		Sample:    s,
		Tier:      tier,
	}
	r.head = (r.head + 1) % r.cap
	if r.size < r.cap {
		r.size++
	}
}

// Len returns the number of samples stored.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Cap returns the configured capacity.
func (r *Ring) Cap() int { return r.cap }

// Snapshot freezes the current contents, oldest first. The returned copy
// is deep and independent: later pushes cannot be observed through it.
func (r *Ring) Snapshot() model.BufferContents {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.RingSample, 0, r.size)
	for i := 0; i < r.size; i++ {
		idx := (r.head - r.size + i + r.cap) % r.cap
		out = append(out, r.buf[idx].Clone())
	}
	return model.BufferContents{Samples: out}
}

// Tail returns deep copies of the most recent n samples, oldest first.
func (r *Ring) Tail(n int) []model.RingSample {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n > r.size {
		n = r.size
	}
	out := make([]model.RingSample, 0, n)
	for i := r.size - n; i < r.size; i++ {
		idx := (r.head - r.size + i + r.cap) % r.cap
		out = append(out, r.buf[idx].Clone())
	}
	return out
}

// Latest returns a copy of the most recent entry, or false when empty.
func (r *Ring) Latest() (model.RingSample, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.size == 0 {
		return model.RingSample{}, false
	}
	idx := (r.head - 1 + r.cap) % r.cap
	return r.buf[idx].Clone(), true
}
