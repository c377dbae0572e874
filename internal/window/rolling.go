// Package window provides fixed-capacity sliding windows over numeric samples.
package window

import "math"

// Rolling is a ring buffer of float64 samples that keeps a running sum and sum
// of squares, so Mean and Std cost O(1) per update. Once full, each Push evicts
// the oldest sample. Len never exceeds Cap.
type Rolling struct {
	buf   []float64
	head  int
	n     int
	sum   float64
	sumSq float64

	// evictions since the running sums were last rebuilt from buf.
	evictions int
}

// New allocates a window holding at most capacity samples.
func New(capacity int) *Rolling {
	if capacity <= 0 {
		capacity = 1
	}
	return &Rolling{buf: make([]float64, capacity)}
}

// Push appends v. When the window is full the oldest sample is evicted and
// returned with ok set.
func (w *Rolling) Push(v float64) (evicted float64, ok bool) {
	c := len(w.buf)
	if w.n < c {
		w.buf[(w.head+w.n)%c] = v
		w.n++
		w.sum += v
		w.sumSq += v * v
		return 0, false
	}

	evicted = w.buf[w.head]
	w.buf[w.head] = v
	w.head = (w.head + 1) % c
	w.sum += v - evicted
	w.sumSq += v*v - evicted*evicted

	w.evictions++
	if w.evictions >= c {
		w.resync()
	}
	return evicted, true
}

// resync rebuilds the running sums to stop floating point drift from
// accumulating over long runs.
func (w *Rolling) resync() {
	w.evictions = 0
	w.sum, w.sumSq = 0, 0
	for i := 0; i < w.n; i++ {
		v := w.At(i)
		w.sum += v
		w.sumSq += v * v
	}
}

// Len returns the number of samples currently held.
func (w *Rolling) Len() int { return w.n }

// Cap returns the configured capacity.
func (w *Rolling) Cap() int { return len(w.buf) }

// Full reports whether Len has reached Cap.
func (w *Rolling) Full() bool { return w.n == len(w.buf) }

// At returns the i-th sample, 0 being the oldest. It panics when i is out of range.
func (w *Rolling) At(i int) float64 {
	if i < 0 || i >= w.n {
		panic("window: index out of range")
	}
	return w.buf[(w.head+i)%len(w.buf)]
}

// Last returns the newest sample, or 0 when empty.
func (w *Rolling) Last() float64 {
	if w.n == 0 {
		return 0
	}
	return w.At(w.n - 1)
}

// Values copies the samples from oldest to newest.
func (w *Rolling) Values() []float64 {
	out := make([]float64, w.n)
	for i := range out {
		out[i] = w.At(i)
	}
	return out
}

// Mean returns the sample mean, or 0 when empty.
func (w *Rolling) Mean() float64 {
	if w.n == 0 {
		return 0
	}
	return w.sum / float64(w.n)
}

// Variance returns the population variance (divisor n), clamped at 0.
func (w *Rolling) Variance() float64 {
	if w.n == 0 {
		return 0
	}
	n := float64(w.n)
	mean := w.sum / n
	v := w.sumSq/n - mean*mean
	if v < 0 {
		return 0
	}
	return v
}

// Std returns the population standard deviation.
func (w *Rolling) Std() float64 {
	return math.Sqrt(w.Variance())
}

// ZScore returns (x - mean) / max(std, floor).
func (w *Rolling) ZScore(x, floor float64) float64 {
	return (x - w.Mean()) / math.Max(w.Std(), floor)
}

// Reset drops every sample but keeps the capacity.
func (w *Rolling) Reset() {
	w.head, w.n = 0, 0
	w.sum, w.sumSq = 0, 0
	w.evictions = 0
}
