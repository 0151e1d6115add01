package game

import (
	"errors"
	"sync"
	"time"

	"github.com/vdjjd/faninteract/internal/models"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrLaneOccupied    = errors.New("lane already occupied")
	ErrSessionFull     = errors.New("session is full")
	ErrInvalidSettings = errors.New("invalid session settings")
)

// LaneSlot is the in-memory player occupying one lane. The slot array on the
// session makes "at most one connected player per lane" structural: joining
// writes the slot, disconnecting clears it, and every access is bounds-checked.
type LaneSlot struct {
	ID           string    `json:"id"`
	Lane         int       `json:"lane"`
	DisplayName  string    `json:"display_name"`
	PhotoURL     string    `json:"photo_url,omitempty"`
	Score        int       `json:"score"`
	Disconnected bool      `json:"disconnected"`
	JoinedAt     time.Time `json:"joined_at"`
}

// Session is the in-memory authoritative state for one game. The manager is
// the sole writer of Status and TimerStart; the simulator is the sole writer
// of ball state. All field access goes through mu.
type Session struct {
	ID         string
	HostID     string
	Title      string
	Status     string
	Duration   int // seconds
	MaxPlayers int
	LaneCount  int // lanes open on this wall, at most MaxLanes
	WallActive bool
	CreatedAt  time.Time

	CountdownDeadline time.Time // zero until a countdown is armed
	TimerStart        time.Time // zero until running; set exactly once per run

	Sim   *Simulator
	Timer *TimerSync

	lanes [MaxLanes]*LaneSlot

	// pendingScores collects simulator emissions during a Step so they can
	// be applied and persisted after the tick, outside the simulator.
	pendingScores []ScoreEvent

	mu   sync.Mutex
	stop chan struct{} // closes when the run loop must exit
	tick uint64        // run loop tick counter, throttles ball broadcasts
}

// lane returns the slot for a lane index, nil when free or out of range.
func (s *Session) lane(i int) *LaneSlot {
	if i < 0 || i >= MaxLanes {
		return nil
	}
	return s.lanes[i]
}

// connectedCount counts occupied, non-disconnected lanes.
func (s *Session) connectedCount() int {
	n := 0
	for _, p := range s.lanes {
		if p != nil && !p.Disconnected {
			n++
		}
	}
	return n
}

// freeLane returns the lowest unoccupied open lane, or -1 when none is free.
func (s *Session) freeLane() int {
	for i := 0; i < s.LaneCount && i < MaxLanes; i++ {
		if p := s.lanes[i]; p == nil || p.Disconnected {
			return i
		}
	}
	return -1
}

// Players returns a snapshot of all occupied lanes.
func (s *Session) Players() []*LaneSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*LaneSlot, 0, MaxLanes)
	for _, p := range s.lanes {
		if p != nil {
			c := *p
			out = append(out, &c)
		}
	}
	return out
}

// SessionSnapshot is the wire/API view of a session, including the computed
// remaining time so polling clients stay correct without change notification.
type SessionSnapshot struct {
	ID                 string      `json:"id"`
	HostID             string      `json:"host_id"`
	Title              string      `json:"title"`
	Status             string      `json:"status"`
	DurationSecs       int         `json:"duration_seconds"`
	MaxPlayers         int         `json:"max_players"`
	LaneCount          int         `json:"lane_count"`
	WallActive         bool        `json:"wall_active"`
	CountdownDeadline  *time.Time  `json:"countdown_deadline,omitempty"`
	CountdownRemaining int         `json:"countdown_remaining"`
	TimerStart         *time.Time  `json:"timer_start,omitempty"`
	TimeLeft           int         `json:"time_left"`
	Players            []*LaneSlot `json:"players"`
	Balls              []*Ball     `json:"balls,omitempty"`
}

// Snapshot builds the API view under the session lock.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := SessionSnapshot{
		ID:           s.ID,
		HostID:       s.HostID,
		Title:        s.Title,
		Status:       s.Status,
		DurationSecs: s.Duration,
		MaxPlayers:   s.MaxPlayers,
		LaneCount:    s.LaneCount,
		WallActive:   s.WallActive,
		TimeLeft:     s.Duration,
	}
	if !s.CountdownDeadline.IsZero() {
		d := s.CountdownDeadline
		snap.CountdownDeadline = &d
		snap.CountdownRemaining = s.Timer.CountdownRemaining()
	}
	if !s.TimerStart.IsZero() {
		t := s.TimerStart
		snap.TimerStart = &t
		snap.TimeLeft = s.Timer.TimeLeft()
	}
	for _, p := range s.lanes {
		if p != nil {
			c := *p
			snap.Players = append(snap.Players, &c)
		}
	}
	if s.Status == models.SessionRunning {
		for _, b := range s.Sim.ActiveBalls() {
			c := *b
			snap.Balls = append(snap.Balls, &c)
		}
	}
	return snap
}
