package tcpe

import (
	"sync"
	"time"
)

type timerID int

const (
	// timerState is owned by the current state for its protocol timeouts
	// and restarted freely on state transitions.
	timerState timerID = iota

	// timerMux paces CC debounce resampling while attach detection runs
	// and afterwards carries the long running protocol timeouts that must
	// survive state transitions (NoResponse).
	timerMux

	timerCount
)

// timerFacility is the two hardware-style one-shot timers the state machine
// runs on. Arming an already armed timer replaces it. An expired timer stays
// expired until taken.
type timerFacility interface {
	arm(id timerID, d time.Duration)
	disarm(id timerID)
	take(id timerID) bool
}

// wallTimers implements timerFacility on the runtime clock. A generation
// counter guards against a replaced timer firing late.
type wallTimers struct {
	mu      sync.Mutex
	gen     [timerCount]uint32
	timers  [timerCount]*time.Timer
	expired [timerCount]bool
	wake    func()
}

func newWallTimers(wake func()) *wallTimers {
	return &wallTimers{wake: wake}
}

func (w *wallTimers) arm(id timerID, d time.Duration) {
	w.mu.Lock()
	w.gen[id]++
	g := w.gen[id]
	if w.timers[id] != nil {
		w.timers[id].Stop()
	}
	w.expired[id] = false
	w.timers[id] = time.AfterFunc(d, func() {
		w.mu.Lock()
		stale := w.gen[id] != g
		if !stale {
			w.expired[id] = true
		}
		w.mu.Unlock()
		if !stale {
			w.wake()
		}
	})
	w.mu.Unlock()
}

func (w *wallTimers) disarm(id timerID) {
	w.mu.Lock()
	w.gen[id]++
	if w.timers[id] != nil {
		w.timers[id].Stop()
		w.timers[id] = nil
	}
	w.expired[id] = false
	w.mu.Unlock()
}

func (w *wallTimers) take(id timerID) bool {
	w.mu.Lock()
	t := w.expired[id]
	w.expired[id] = false
	w.mu.Unlock()
	return t
}
