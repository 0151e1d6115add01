package game

import (
	"sync"
	"time"
)

// TimerState is the synchronizer's state machine: idle, counting, running.
type TimerState int

const (
	TimerIdle TimerState = iota
	TimerCounting
	TimerRunning
)

// TimerSync coordinates the pre-game countdown and the authoritative game
// clock across distributed clients. All timing derives from shared anchor
// timestamps (the countdown deadline, then the game start), never from local
// tick counters, so a dashboard, the wall, and late-joining shooter phones
// all agree on the remaining time.
type TimerSync struct {
	mu       sync.Mutex
	state    TimerState
	deadline time.Time // countdown ends at this instant
	startAt  time.Time // authoritative game start, stamped exactly once
	finished bool

	countdownSecs int
	durationSecs  int

	now func() time.Time

	// onRunning fires exactly once, at the counting-to-running transition,
	// with the stamped start timestamp. The owner persists and broadcasts it.
	onRunning func(startAt time.Time)
	// onFinished fires exactly once when the game clock reaches zero.
	onFinished func()
}

// NewTimerSync creates a synchronizer. countdownSecs is the fixed countdown
// length used for both local and broadcast-received triggers.
func NewTimerSync(countdownSecs, durationSecs int, onRunning func(time.Time), onFinished func()) *TimerSync {
	return &TimerSync{
		countdownSecs: countdownSecs,
		durationSecs:  durationSecs,
		now:           time.Now,
		onRunning:     onRunning,
		onFinished:    onFinished,
	}
}

// SetClock overrides the time source. Tests use a manual clock.
func (t *TimerSync) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// StartCountdown enters the counting state with the fixed countdown length
// and returns the deadline. Restarting while already counting rearms the
// deadline; a finished game may be rearmed for a new run. A game in progress
// is left alone.
func (t *TimerSync) StartCountdown() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == TimerRunning && !t.finished {
		return time.Time{}, false
	}
	t.state = TimerCounting
	t.finished = false
	t.startAt = time.Time{}
	t.deadline = t.now().Add(time.Duration(t.countdownSecs) * time.Second)
	return t.deadline, true
}

// SetDuration updates the game length for the next (or current) run.
func (t *TimerSync) SetDuration(durationSecs int) {
	t.mu.Lock()
	t.durationSecs = durationSecs
	t.mu.Unlock()
}

// AdoptCountdown anchors to a countdown deadline received over the broadcast
// channel, so every observer counts toward the same instant.
func (t *TimerSync) AdoptCountdown(deadline time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == TimerRunning && !t.finished {
		return
	}
	t.state = TimerCounting
	t.finished = false
	t.startAt = time.Time{}
	t.deadline = deadline
}

// AdoptStart anchors a late-joining or reconnecting observer directly to a
// persisted start timestamp: its remaining time is immediately correct.
func (t *TimerSync) AdoptStart(startAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == TimerRunning {
		return
	}
	t.state = TimerRunning
	t.startAt = startAt
}

// Resolve advances the state machine against the clock. The owner calls it
// once per tick; it is cheap and idempotent. Transition callbacks fire at
// most once each, outside the lock.
func (t *TimerSync) Resolve() {
	var runCB func(time.Time)
	var finCB func()
	var runAt time.Time

	t.mu.Lock()
	now := t.now()

	if t.state == TimerCounting && !now.Before(t.deadline) {
		// Countdown reached zero: stamp the single authoritative origin.
		t.state = TimerRunning
		t.startAt = t.deadline
		runAt = t.startAt
		runCB = t.onRunning
	}

	if t.state == TimerRunning && !t.finished &&
		RemainingSeconds(now, t.startAt, t.durationSecs) <= 0 {
		t.finished = true
		finCB = t.onFinished
	}
	t.mu.Unlock()

	if runCB != nil {
		runCB(runAt)
	}
	if finCB != nil {
		finCB()
	}
}

// State returns the current timer state.
func (t *TimerSync) State() TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// StartedAt returns the stamped start timestamp (zero until running).
func (t *TimerSync) StartedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startAt
}

// CountdownRemaining returns whole seconds left in the countdown, clamped
// to >= 0, derived from the shared deadline.
func (t *TimerSync) CountdownRemaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TimerCounting {
		return 0
	}
	left := int(t.deadline.Sub(t.now()).Seconds())
	if left < 0 {
		left = 0
	}
	return left
}

// TimeLeft returns whole seconds left on the game clock, clamped to >= 0.
// Before the game starts it reports the full duration.
func (t *TimerSync) TimeLeft() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TimerRunning {
		return t.durationSecs
	}
	return RemainingSeconds(t.now(), t.startAt, t.durationSecs)
}

// Finished reports whether the game clock has expired.
func (t *TimerSync) Finished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finished
}

// RemainingSeconds computes remaining game time from the authoritative start
// anchor: duration - floor(now - startAt), clamped to >= 0. Every observer
// uses this instead of decrementing a local counter, which would drift.
func RemainingSeconds(now, startAt time.Time, durationSecs int) int {
	elapsed := int(now.Sub(startAt) / time.Second)
	left := durationSecs - elapsed
	if left < 0 {
		return 0
	}
	return left
}
