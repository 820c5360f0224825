// Package window keeps the most recent readings in memory for live consumers.
package window

import (
	"sync"

	"github.com/wyolum/home-monitor/internal/modules/airquality/types"
)

// Window is a fixed-capacity FIFO of readings in arrival order. One goroutine
// appends; any number may call Snapshot concurrently.
type Window struct {
	mu    sync.RWMutex
	buf   []types.Reading
	start int
	size  int
}

// New returns an empty window holding at most capacity readings.
func New(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]types.Reading, capacity)}
}

// Hydrate replaces the contents with readings, which must be in ascending order.
// Only the last Cap() readings are kept.
func (w *Window) Hydrate(readings []types.Reading) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if n := len(readings); n > len(w.buf) {
		readings = readings[n-len(w.buf):]
	}
	clear(w.buf)
	for i, r := range readings {
		w.buf[i] = r.Clone()
	}
	w.start = 0
	w.size = len(readings)
}

// Append adds r at the tail, evicting the oldest reading when full.
// Order is not checked.
func (w *Window) Append(r types.Reading) {
	w.mu.Lock()
	defer w.mu.Unlock()

	end := (w.start + w.size) % len(w.buf)
	w.buf[end] = r.Clone()
	if w.size < len(w.buf) {
		w.size++
		return
	}
	w.start = (w.start + 1) % len(w.buf)
}

// Snapshot returns a deep copy of the contents, oldest first. Never nil.
// Callers may modify the result freely.
func (w *Window) Snapshot() []types.Reading {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]types.Reading, w.size)
	for i := range out {
		out[i] = w.buf[(w.start+i)%len(w.buf)].Clone()
	}
	return out
}

// Tail returns a copy of the newest n readings, oldest first.
func (w *Window) Tail(n int) []types.Reading {
	snap := w.Snapshot()
	if n >= 0 && n < len(snap) {
		return snap[len(snap)-n:]
	}
	return snap
}

// Latest returns the newest reading.
func (w *Window) Latest() (types.Reading, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.size == 0 {
		return types.Reading{}, false
	}
	return w.buf[(w.start+w.size-1)%len(w.buf)].Clone(), true
}

func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.size
}

func (w *Window) Cap() int {
	return len(w.buf)
}
