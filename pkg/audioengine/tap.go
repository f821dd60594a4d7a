package audioengine

import "sync"

// Tap keeps the most recent processed mono samples of a strip so that meters
// can read them from another goroutine.
type Tap struct {
	mu   sync.Mutex
	buf  []float64
	pos  int
	size int
}

// NewTap allocates a ring buffer of the given size.
func NewTap(size int) *Tap {
	if size < 1 {
		size = 1
	}
	return &Tap{buf: make([]float64, size), size: size}
}

// Write captures a mono mix of the frames.
func (t *Tap) Write(samples [][2]float64) {
	t.mu.Lock()
	for i := range samples {
		t.buf[t.pos] = (samples[i][0] + samples[i][1]) / 2
		t.pos = (t.pos + 1) % t.size
	}
	t.mu.Unlock()
}

// Samples returns the last n samples in chronological order.
func (t *Tap) Samples(n int) []float64 {
	if n > t.size {
		n = t.size
	}
	out := make([]float64, n)
	t.mu.Lock()
	start := (t.pos - n + t.size) % t.size
	for i := range out {
		out[i] = t.buf[(start+i)%t.size]
	}
	t.mu.Unlock()
	return out
}

// Reset clears the captured history.
func (t *Tap) Reset() {
	t.mu.Lock()
	for i := range t.buf {
		t.buf[i] = 0
	}
	t.pos = 0
	t.mu.Unlock()
}
