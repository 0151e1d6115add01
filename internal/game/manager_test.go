package game

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vdjjd/faninteract/internal/config"
	"github.com/vdjjd/faninteract/internal/models"
)

// fakeBroadcaster records published events for assertions.
type fakeBroadcaster struct {
	mu     sync.Mutex
	events []map[string]interface{}
}

func (f *fakeBroadcaster) BroadcastToSession(sessionID string, message interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := message.(map[string]interface{}); ok {
		f.events = append(f.events, m)
	}
}

func (f *fakeBroadcaster) countType(t string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ev := range f.events {
		if ev["type"] == t {
			n++
		}
	}
	return n
}

// newTestManager builds a manager with no db, no redis, and fixed randomness.
func newTestManager(draw float64) (*GameManager, *fakeBroadcaster) {
	gm := NewGameManager(nil, nil, config.Load())
	gm.newRand = func() Rand { return fixedRand{draw} }
	fb := &fakeBroadcaster{}
	gm.SetBroadcaster(fb)
	return gm, fb
}

// makeRunning puts a session in the running state anchored at the fake clock,
// without spinning up a run loop. Tests tick it with stepSession directly.
func makeRunning(s *Session, clock *fakeClock) {
	s.mu.Lock()
	s.Status = models.SessionRunning
	s.TimerStart = clock.Now()
	s.mu.Unlock()
	s.Timer.SetClock(clock.Now)
	s.Timer.AdoptStart(clock.Now())
}

// tickUntilIdle steps the session until the lane's ball finishes.
func tickUntilIdle(t *testing.T, gm *GameManager, s *Session, lane int) {
	t.Helper()
	for i := 0; i < 3000; i++ {
		gm.stepSession(s, testDT)
		s.mu.Lock()
		b := s.Sim.Ball(lane)
		done := b == nil || !b.Active
		s.mu.Unlock()
		if done {
			return
		}
	}
	t.Fatalf("Shot on lane %d never finished", lane)
}

func laneScore(s *Session, lane int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.lanes[lane]; p != nil {
		return p.Score
	}
	return -1
}

func TestCreateAndGetSession(t *testing.T) {
	gm, _ := newTestManager(0.5)

	s, err := gm.CreateSession("host-1", "Friday Night")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if s.Status != models.SessionLobby {
		t.Errorf("New session status = %q, want lobby", s.Status)
	}
	if s.Duration != gm.cfg.DefaultDurationSecs || s.MaxPlayers != gm.cfg.DefaultMaxPlayers {
		t.Error("New session should carry default settings")
	}

	got, err := gm.GetSession(s.ID)
	if err != nil || got.ID != s.ID {
		t.Fatalf("GetSession: %v", err)
	}
	if _, err := gm.GetSession("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("GetSession(unknown) = %v, want ErrSessionNotFound", err)
	}
	if len(gm.ListSessions()) != 1 {
		t.Error("ListSessions should include the new session")
	}
}

func TestJoinPlayerLaneRules(t *testing.T) {
	gm, _ := newTestManager(0.5)
	s, _ := gm.CreateSession("host-1", "")

	// Auto-assign picks the lowest free lane.
	p0, err := gm.JoinPlayer(s.ID, "Ana", "", -1)
	if err != nil || p0.Lane != 0 {
		t.Fatalf("First auto join: lane=%d err=%v, want lane 0", p0.Lane, err)
	}
	p1, _ := gm.JoinPlayer(s.ID, "Ben", "", -1)
	if p1.Lane != 1 {
		t.Errorf("Second auto join lane = %d, want 1", p1.Lane)
	}

	// An occupied lane is rejected.
	if _, err := gm.JoinPlayer(s.ID, "Cruz", "", 0); !errors.Is(err, ErrLaneOccupied) {
		t.Errorf("Join on occupied lane = %v, want ErrLaneOccupied", err)
	}
	// An explicit free lane works.
	p7, err := gm.JoinPlayer(s.ID, "Cruz", "", 7)
	if err != nil || p7.Lane != 7 {
		t.Fatalf("Explicit lane join: lane=%d err=%v", p7.Lane, err)
	}

	// A disconnected lane frees up for reuse.
	gm.DisconnectPlayer(s.ID, p0.ID)
	p0b, err := gm.JoinPlayer(s.ID, "Dana", "", 0)
	if err != nil || p0b.Lane != 0 {
		t.Fatalf("Rejoin on freed lane: lane=%d err=%v", p0b.Lane, err)
	}
}

func TestLaneCountLimitsJoins(t *testing.T) {
	cfg := config.Load()
	cfg.LaneCount = 4
	gm := NewGameManager(nil, nil, cfg)
	gm.newRand = func() Rand { return fixedRand{0.5} }
	s, _ := gm.CreateSession("host-1", "")

	if s.LaneCount != 4 {
		t.Fatalf("Session LaneCount = %d, want 4", s.LaneCount)
	}
	// Lanes past the configured count are closed even though the wall
	// supports more.
	if _, err := gm.JoinPlayer(s.ID, "Ana", "", 7); err == nil {
		t.Error("Join on a closed lane should fail")
	}
	// Auto-assign only hands out open lanes.
	for i := 0; i < 4; i++ {
		p, err := gm.JoinPlayer(s.ID, "Guest", "", -1)
		if err != nil || p.Lane != i {
			t.Fatalf("Auto join %d: lane=%d err=%v", i, p.Lane, err)
		}
	}
	if _, err := gm.JoinPlayer(s.ID, "Late", "", -1); !errors.Is(err, ErrSessionFull) {
		t.Errorf("Join with all open lanes taken = %v, want ErrSessionFull", err)
	}

	if got := s.Snapshot().LaneCount; got != 4 {
		t.Errorf("Snapshot lane count = %d, want 4", got)
	}
}

func TestJoinPlayerSessionFull(t *testing.T) {
	gm, _ := newTestManager(0.5)
	s, _ := gm.CreateSession("host-1", "")

	two := 2
	if err := gm.UpdateSettings(s.ID, nil, nil, &two); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	gm.JoinPlayer(s.ID, "Ana", "", -1)
	gm.JoinPlayer(s.ID, "Ben", "", -1)

	if _, err := gm.JoinPlayer(s.ID, "Cruz", "", -1); !errors.Is(err, ErrSessionFull) {
		t.Errorf("Join beyond max players = %v, want ErrSessionFull", err)
	}
}

func TestUpdateSettingsValidation(t *testing.T) {
	gm, _ := newTestManager(0.5)
	s, _ := gm.CreateSession("host-1", "")

	bad := 500
	err := gm.UpdateSettings(s.ID, nil, &bad, nil)
	if !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("Duration 500 should be rejected, got %v", err)
	}
	if s.Duration != gm.cfg.DefaultDurationSecs {
		t.Error("Rejected update must leave the stored duration untouched")
	}

	tooMany := 50
	if err := gm.UpdateSettings(s.ID, nil, nil, &tooMany); !errors.Is(err, ErrInvalidSettings) {
		t.Errorf("Max players 50 should be rejected, got %v", err)
	}

	title := "Halftime Shootout"
	dur := 120
	if err := gm.UpdateSettings(s.ID, &title, &dur, nil); err != nil {
		t.Fatalf("Valid update rejected: %v", err)
	}
	if s.Title != title || s.Duration != 120 {
		t.Error("Valid update should apply")
	}
	if got := s.Timer.TimeLeft(); got != 120 {
		t.Errorf("Timer should pick up the new duration, TimeLeft = %d", got)
	}
}

func TestShotOutsideRunningIsDropped(t *testing.T) {
	gm, _ := newTestManager(0.9)
	s, _ := gm.CreateSession("host-1", "")
	gm.JoinPlayer(s.ID, "Ana", "", 0)

	gm.OnShotFired(s.ID, 0, 0.5, ShotFX{})
	if len(s.Sim.ActiveBalls()) != 0 {
		t.Error("A shot in the lobby should be ignored")
	}
	gm.OnShotFired("nope", 0, 0.5, ShotFX{})
}

func TestScoringAccumulatesOnLane(t *testing.T) {
	gm, fb := newTestManager(0.9) // forces makes
	s, _ := gm.CreateSession("host-1", "")
	gm.JoinPlayer(s.ID, "Ana", "", 3)

	clock := newFakeClock()
	makeRunning(s, clock)

	gm.OnShotFired(s.ID, 3, 0.5, ShotFX{})
	tickUntilIdle(t, gm, s, 3)
	if got := laneScore(s, 3); got != 2 {
		t.Fatalf("Score after first make = %d, want 2", got)
	}

	gm.OnShotFired(s.ID, 3, 0.5, ShotFX{})
	tickUntilIdle(t, gm, s, 3)
	if got := laneScore(s, 3); got != 4 {
		t.Fatalf("Score after second make = %d, want 4", got)
	}

	if fb.countType("update_score") != 2 {
		t.Errorf("update_score broadcasts = %d, want 2", fb.countType("update_score"))
	}
	if fb.countType("shot_fired") != 2 {
		t.Errorf("shot_fired relays = %d, want 2", fb.countType("shot_fired"))
	}
}

func TestBallUpdatesStreamWhileRunning(t *testing.T) {
	gm, fb := newTestManager(0.9)
	s, _ := gm.CreateSession("host-1", "")
	gm.JoinPlayer(s.ID, "Ana", "", 0)

	clock := newFakeClock()
	makeRunning(s, clock)

	gm.OnShotFired(s.ID, 0, 0.5, ShotFX{})
	for i := 0; i < 30; i++ {
		gm.stepSession(s, testDT)
	}

	got := fb.countType("ball_update")
	if got == 0 {
		t.Fatal("Running session with a ball in flight should stream ball updates")
	}
	// Throttled below the tick rate.
	if got > 10 {
		t.Errorf("ball_update count = %d over 30 ticks, want at most 10", got)
	}
}

func TestScoreOnEmptyLaneDropped(t *testing.T) {
	gm, fb := newTestManager(0.9)
	s, _ := gm.CreateSession("host-1", "")

	clock := newFakeClock()
	makeRunning(s, clock)

	// Lane 5 has no player; the ball still flies, the score goes nowhere.
	gm.OnShotFired(s.ID, 5, 0.5, ShotFX{})
	tickUntilIdle(t, gm, s, 5)

	if fb.countType("update_score") != 0 {
		t.Error("A make on an empty lane must not produce a score broadcast")
	}
}

func TestIndependentLanesBothScore(t *testing.T) {
	gm, _ := newTestManager(0.9)
	s, _ := gm.CreateSession("host-1", "")
	gm.JoinPlayer(s.ID, "Ana", "", 2)
	gm.JoinPlayer(s.ID, "Ben", "", 6)

	clock := newFakeClock()
	makeRunning(s, clock)

	gm.OnShotFired(s.ID, 2, 0.5, ShotFX{})
	gm.OnShotFired(s.ID, 6, 0.5, ShotFX{})
	tickUntilIdle(t, gm, s, 2)
	tickUntilIdle(t, gm, s, 6)

	if laneScore(s, 2) != 2 || laneScore(s, 6) != 2 {
		t.Errorf("Both lanes should score: lane2=%d lane6=%d", laneScore(s, 2), laneScore(s, 6))
	}
}

func TestForceScoreCreditsLane(t *testing.T) {
	gm, fb := newTestManager(0.5)
	s, _ := gm.CreateSession("host-1", "")
	gm.JoinPlayer(s.ID, "Ana", "", 1)

	// Forcing a score outside a running game is rejected.
	if err := gm.ForceScore(s.ID, 1); err == nil {
		t.Error("ForceScore in the lobby should fail")
	}

	clock := newFakeClock()
	makeRunning(s, clock)

	if err := gm.ForceScore(s.ID, 1); err != nil {
		t.Fatalf("ForceScore: %v", err)
	}
	gm.stepSession(s, testDT)
	if got := laneScore(s, 1); got != 2 {
		t.Fatalf("Score after forced make = %d, want 2", got)
	}

	fb.mu.Lock()
	var ev map[string]interface{}
	for _, e := range fb.events {
		if e["type"] == "update_score" {
			ev = e
		}
	}
	fb.mu.Unlock()
	if ev == nil {
		t.Fatal("Forced make should broadcast update_score")
	}
	if forced, _ := ev["forced"].(bool); !forced {
		t.Error("Forced make broadcast should carry the forced flag")
	}

	// An empty lane has nobody to credit.
	if err := gm.ForceScore(s.ID, 5); err == nil {
		t.Error("ForceScore on an empty lane should fail")
	}
	if err := gm.ForceScore("nope", 1); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("ForceScore on unknown session = %v, want ErrSessionNotFound", err)
	}
}

func TestCountdownThenRunThenFinish(t *testing.T) {
	gm, fb := newTestManager(0.9)
	s, _ := gm.CreateSession("host-1", "")
	gm.JoinPlayer(s.ID, "Ana", "", 0)

	clock := newFakeClock()
	s.Timer.SetClock(clock.Now)
	// Pre-arm the stop channel so StartCountdown does not spawn a real-time
	// run loop; the test ticks by hand.
	s.mu.Lock()
	s.stop = make(chan struct{})
	s.mu.Unlock()

	if err := gm.StartCountdown(s.ID); err != nil {
		t.Fatalf("StartCountdown: %v", err)
	}
	if s.Status != models.SessionCountdown {
		t.Fatalf("Status = %q, want countdown", s.Status)
	}
	if fb.countType("start_countdown") != 1 {
		t.Error("Arming should broadcast start_countdown")
	}

	// A shot during the countdown is dropped.
	gm.OnShotFired(s.ID, 0, 0.5, ShotFX{})
	if len(s.Sim.ActiveBalls()) != 0 {
		t.Error("Shots during countdown should be ignored")
	}

	clock.Advance(time.Duration(gm.cfg.CountdownSecs) * time.Second)
	gm.stepSession(s, testDT)
	if s.Status != models.SessionRunning {
		t.Fatalf("Status after countdown expiry = %q, want running", s.Status)
	}
	if s.TimerStart.IsZero() {
		t.Fatal("Running session must carry a timer start")
	}
	if fb.countType("start_game") != 1 {
		t.Error("The counting->running transition should broadcast start_game once")
	}

	// Restarting a game in progress is a conflict.
	if err := gm.StartCountdown(s.ID); err == nil {
		t.Error("StartCountdown on a running session should fail")
	}

	clock.Advance(time.Duration(s.Duration) * time.Second)
	if done := gm.stepSession(s, testDT); !done {
		t.Fatal("Clock expiry should finish the session")
	}
	if s.Status != models.SessionFinished {
		t.Fatalf("Status = %q, want finished", s.Status)
	}
	if fb.countType("game_over") != 1 {
		t.Error("Finish should broadcast game_over once")
	}

	// Extra ticks after the finish stay quiet.
	gm.stepSession(s, testDT)
	if fb.countType("game_over") != 1 {
		t.Error("Finish must be idempotent")
	}

	// A finished session can be rearmed for another run.
	s.mu.Lock()
	s.stop = make(chan struct{})
	s.mu.Unlock()
	if err := gm.StartCountdown(s.ID); err != nil {
		t.Errorf("Rearming a finished session should work: %v", err)
	}
}

func TestSnapshotReportsRemainingTime(t *testing.T) {
	gm, _ := newTestManager(0.5)
	s, _ := gm.CreateSession("host-1", "")
	gm.JoinPlayer(s.ID, "Ana", "", 0)

	clock := newFakeClock()
	makeRunning(s, clock)
	clock.Advance(25 * time.Second)

	snap := s.Snapshot()
	if snap.TimeLeft != s.Duration-25 {
		t.Errorf("Snapshot TimeLeft = %d, want %d", snap.TimeLeft, s.Duration-25)
	}
	if len(snap.Players) != 1 {
		t.Errorf("Snapshot players = %d, want 1", len(snap.Players))
	}
}

func TestDeleteSession(t *testing.T) {
	gm, fb := newTestManager(0.5)
	s, _ := gm.CreateSession("host-1", "")

	if err := gm.DeleteSession(s.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := gm.GetSession(s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Error("Deleted session should be gone")
	}
	if err := gm.DeleteSession(s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Second delete = %v, want ErrSessionNotFound", err)
	}
	if fb.countType("session_deleted") != 1 {
		t.Error("Delete should broadcast session_deleted")
	}
}
