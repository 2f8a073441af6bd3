package engine

import "sync"

// ProgressFunc receives a completion fraction in [0, 1].
type ProgressFunc func(float64)

// Band maps progress in [0, 1] onto [lo, hi] of a larger pipeline.
func Band(lo, hi float64, fn ProgressFunc) ProgressFunc {
	if fn == nil {
		return nil
	}
	return func(p float64) {
		fn(lo + (hi-lo)*clamp(p))
	}
}

// renderShare is the part of the run's progress spent rendering and
// appending; finalizing the file takes the rest.
const renderShare = 0.9

// reporter turns frame counts into a throttled, non-decreasing progress
// stream. After stop nothing more is emitted.
type reporter struct {
	mu      sync.Mutex
	fn      ProgressFunc
	total   int64
	done    int64
	last    float64
	emitted bool
	stopped bool
}

func newReporter(fn ProgressFunc, totalFrames int64) *reporter {
	return &reporter{fn: fn, total: totalFrames}
}

// frames records n appended frames. Updates are emitted in steps of 0.1%.
func (r *reporter) frames(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done += n
	if r.total <= 0 {
		return
	}
	p := renderShare * float64(r.done) / float64(r.total)
	if p-r.last >= 0.001 || r.done == r.total {
		r.emit(p)
	}
}

// set emits p if it moves progress forward.
func (r *reporter) set(p float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emit(p)
}

func (r *reporter) emit(p float64) {
	p = clamp(p)
	if r.stopped || r.fn == nil || (r.emitted && p <= r.last) {
		return
	}
	r.last = p
	r.emitted = true
	r.fn(p)
}

func (r *reporter) stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
}

func clamp(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}
