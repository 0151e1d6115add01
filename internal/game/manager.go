package game

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/vdjjd/faninteract/internal/config"
	"github.com/vdjjd/faninteract/internal/models"
)

// Broadcaster pushes typed events to every client attached to a session
// topic. The ws hub implements it; a nil broadcaster is tolerated so the
// core keeps working for polling-only clients.
type Broadcaster interface {
	BroadcastToSession(sessionID string, message interface{})
}

// GameManager mediates between client-originated events and session state.
// It is the sole mutator of session status, timer anchors and player scores.
type GameManager struct {
	sessions   map[string]*Session
	db         *sqlx.DB      // nil-tolerant: persistence is best-effort
	rdb        *redis.Client // nil-tolerant: cross-instance fan-out is optional
	cfg        *config.Config
	court      Court
	phys       Physics
	bcast      Broadcaster
	newRand    func() Rand // per-session randomness source; tests inject fixed draws
	instanceID string      // marks published events so this instance skips its own echo
	mu         sync.RWMutex
}

// Manager is the global game manager instance.
var Manager *GameManager

// InitializeManager initializes the global game manager and starts the
// expiry sweeper. Sessions finish on time even when no client is connected.
func InitializeManager(ctx context.Context, db *sqlx.DB, rdb *redis.Client, cfg *config.Config) {
	Manager = NewGameManager(db, rdb, cfg)
	go Manager.StartExpiryChecker(ctx)
}

// NewGameManager creates a game manager.
func NewGameManager(db *sqlx.DB, rdb *redis.Client, cfg *config.Config) *GameManager {
	return &GameManager{
		sessions: make(map[string]*Session),
		db:       db,
		rdb:      rdb,
		cfg:      cfg,
		court:    NewCourt(cfg),
		phys:     NewPhysics(cfg),
		newRand: func() Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
		instanceID: uuid.NewString(),
	}
}

// InstanceID identifies this process on the shared event channel.
func (gm *GameManager) InstanceID() string {
	return gm.instanceID
}

// SetBroadcaster wires the push channel. Called once by the ws layer.
func (gm *GameManager) SetBroadcaster(b Broadcaster) {
	gm.mu.Lock()
	gm.bcast = b
	gm.mu.Unlock()
}

// CreateSession initializes a session in the lobby with default duration and
// max player count, and persists the row.
func (gm *GameManager) CreateSession(hostID, title string) (*Session, error) {
	laneCount := gm.cfg.LaneCount
	if laneCount < 1 || laneCount > MaxLanes {
		laneCount = MaxLanes
	}
	s := &Session{
		ID:         uuid.NewString(),
		HostID:     hostID,
		Title:      title,
		Status:     models.SessionLobby,
		Duration:   gm.cfg.DefaultDurationSecs,
		MaxPlayers: gm.cfg.DefaultMaxPlayers,
		LaneCount:  laneCount,
		CreatedAt:  time.Now(),
	}
	s.Sim = NewSimulator(gm.court, gm.phys, gm.newRand(), func(ev ScoreEvent) {
		// Invoked during Step with the session lock held; applied after the tick.
		s.pendingScores = append(s.pendingScores, ev)
	})
	s.Timer = gm.newTimer(s)

	gm.mu.Lock()
	gm.sessions[s.ID] = s
	gm.mu.Unlock()

	if gm.db != nil {
		_, err := gm.db.Exec(
			`INSERT INTO sessions (id, host_id, title, status, duration_seconds, max_players, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			s.ID, s.HostID, s.Title, s.Status, s.Duration, s.MaxPlayers, s.CreatedAt,
		)
		if err != nil {
			log.Printf("[SESSION] Failed to persist session %s: %v", s.ID, err)
		}
	}

	log.Printf("[SESSION] Created session %s (host=%s)", s.ID, hostID)
	return s, nil
}

// newTimer builds the session's timer sync. The transition callbacks run with
// the session lock held (Resolve is called from the run loop); they only set
// fields and queue broadcasts, never re-lock.
func (gm *GameManager) newTimer(s *Session) *TimerSync {
	return NewTimerSync(gm.cfg.CountdownSecs, gm.cfg.DefaultDurationSecs,
		func(startAt time.Time) {
			s.Status = models.SessionRunning
			s.TimerStart = startAt
		},
		func() {
			s.Status = models.SessionFinished
		},
	)
}

// GetSession returns a live session.
func (gm *GameManager) GetSession(id string) (*Session, error) {
	gm.mu.RLock()
	s, ok := gm.sessions[id]
	gm.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// ListSessions returns snapshots of all live sessions, for the dashboard.
func (gm *GameManager) ListSessions() []SessionSnapshot {
	gm.mu.RLock()
	out := make([]SessionSnapshot, 0, len(gm.sessions))
	sessions := make([]*Session, 0, len(gm.sessions))
	for _, s := range gm.sessions {
		sessions = append(sessions, s)
	}
	gm.mu.RUnlock()
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	return out
}

// JoinPlayer places a guest on a lane. lane -1 requests the lowest free
// lane; an occupied lane is an error so two phones never share a slot.
func (gm *GameManager) JoinPlayer(sessionID, name, photoURL string, lane int) (*LaneSlot, error) {
	s, err := gm.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.connectedCount() >= s.MaxPlayers {
		s.mu.Unlock()
		return nil, ErrSessionFull
	}
	if lane < 0 {
		lane = s.freeLane()
		if lane < 0 {
			s.mu.Unlock()
			return nil, ErrSessionFull
		}
	}
	if lane >= s.LaneCount {
		s.mu.Unlock()
		return nil, fmt.Errorf("lane %d out of range", lane)
	}
	if p := s.lanes[lane]; p != nil && !p.Disconnected {
		s.mu.Unlock()
		return nil, ErrLaneOccupied
	}
	player := &LaneSlot{
		ID:          uuid.NewString(),
		Lane:        lane,
		DisplayName: name,
		PhotoURL:    photoURL,
		JoinedAt:    time.Now(),
	}
	s.lanes[lane] = player
	c := *player
	s.mu.Unlock()

	if gm.db != nil {
		_, err := gm.db.Exec(
			`INSERT INTO lane_players (id, session_id, lane, display_name, photo_url, joined_at)
			 VALUES ($1,$2,$3,$4,NULLIF($5,''),$6)`,
			player.ID, sessionID, lane, name, photoURL, player.JoinedAt,
		)
		if err != nil {
			log.Printf("[SESSION] Failed to persist player %s: %v", player.ID, err)
		}
	}

	gm.publish(sessionID, map[string]interface{}{
		"type":   "player_joined",
		"player": &c,
	})
	log.Printf("[SESSION] Player %s joined session %s on lane %d", name, sessionID, lane)
	return &c, nil
}

// DisconnectPlayer soft-removes a player: the row is flagged, not deleted,
// so scores survive for history, and the lane frees up for reuse.
func (gm *GameManager) DisconnectPlayer(sessionID, playerID string) {
	s, err := gm.GetSession(sessionID)
	if err != nil {
		return
	}

	s.mu.Lock()
	var found *LaneSlot
	for _, p := range s.lanes {
		if p != nil && p.ID == playerID {
			p.Disconnected = true
			found = p
			break
		}
	}
	s.mu.Unlock()
	if found == nil {
		return
	}

	if gm.db != nil {
		if _, err := gm.db.Exec(`UPDATE lane_players SET disconnected = TRUE WHERE id = $1`, playerID); err != nil {
			log.Printf("[SESSION] Failed to flag disconnect for player %s: %v", playerID, err)
		}
	}
	gm.publish(sessionID, map[string]interface{}{
		"type":      "player_disconnected",
		"player_id": playerID,
		"lane":      found.Lane,
	})
}

// UpdateSettings applies host edits. Duration and max player bounds are
// validated; a rejected update leaves stored values untouched.
func (gm *GameManager) UpdateSettings(sessionID string, title *string, durationSecs, maxPlayers *int) error {
	s, err := gm.GetSession(sessionID)
	if err != nil {
		return err
	}

	if durationSecs != nil &&
		(*durationSecs < gm.cfg.MinDurationSecs || *durationSecs > gm.cfg.MaxDurationSecs) {
		return fmt.Errorf("%w: duration %d outside [%d,%d]",
			ErrInvalidSettings, *durationSecs, gm.cfg.MinDurationSecs, gm.cfg.MaxDurationSecs)
	}
	if maxPlayers != nil &&
		(*maxPlayers < gm.cfg.MinPlayers || *maxPlayers > gm.cfg.MaxPlayers) {
		return fmt.Errorf("%w: max players %d outside [%d,%d]",
			ErrInvalidSettings, *maxPlayers, gm.cfg.MinPlayers, gm.cfg.MaxPlayers)
	}

	s.mu.Lock()
	if title != nil {
		s.Title = *title
	}
	if durationSecs != nil {
		s.Duration = *durationSecs
		s.Timer.SetDuration(*durationSecs)
	}
	if maxPlayers != nil {
		s.MaxPlayers = *maxPlayers
	}
	title2, dur, maxP := s.Title, s.Duration, s.MaxPlayers
	s.mu.Unlock()

	if gm.db != nil {
		_, err := gm.db.Exec(
			`UPDATE sessions SET title = $1, duration_seconds = $2, max_players = $3 WHERE id = $4`,
			title2, dur, maxP, sessionID,
		)
		if err != nil {
			log.Printf("[SESSION] Failed to persist settings for session %s: %v", sessionID, err)
		}
	}
	return nil
}

// SetWallActive toggles the wall display flag.
func (gm *GameManager) SetWallActive(sessionID string, active bool) error {
	s, err := gm.GetSession(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.WallActive = active
	s.mu.Unlock()

	if gm.db != nil {
		if _, err := gm.db.Exec(`UPDATE sessions SET wall_active = $1 WHERE id = $2`, active, sessionID); err != nil {
			log.Printf("[SESSION] Failed to persist wall flag for session %s: %v", sessionID, err)
		}
	}
	return nil
}

// StartCountdown arms the shared countdown and starts the session run loop.
// A restart while counting rearms the deadline and cancels in-flight shot
// animations; a running game is left alone.
func (gm *GameManager) StartCountdown(sessionID string) error {
	s, err := gm.GetSession(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.Status == models.SessionRunning {
		s.mu.Unlock()
		return fmt.Errorf("session %s already running", sessionID)
	}
	deadline, ok := s.Timer.StartCountdown()
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("session %s already running", sessionID)
	}
	s.Status = models.SessionCountdown
	s.CountdownDeadline = deadline
	s.TimerStart = time.Time{}
	s.Sim.ResetAll()
	if s.stop == nil {
		s.stop = make(chan struct{})
		go gm.runLoop(s)
	}
	s.mu.Unlock()

	if gm.db != nil {
		_, err := gm.db.Exec(
			`UPDATE sessions SET status = $1, countdown_deadline = $2, timer_start = NULL WHERE id = $3`,
			models.SessionCountdown, deadline, sessionID,
		)
		if err != nil {
			log.Printf("[SESSION] Failed to persist countdown for session %s: %v", sessionID, err)
		}
	}

	gm.publish(sessionID, map[string]interface{}{
		"type":     "start_countdown",
		"deadline": deadline.UTC(),
		"seconds":  gm.cfg.CountdownSecs,
	})
	log.Printf("[SESSION] Countdown armed for session %s (deadline=%s)", sessionID, deadline.Format(time.RFC3339))
	return nil
}

// OnShotFired accepts a shot event from a shooter client. Shots outside a
// running session are expected noise from late messages and are dropped
// silently; the simulator clamps power and ignores bad lanes on its own.
func (gm *GameManager) OnShotFired(sessionID string, lane int, power float64, fx ShotFX) {
	s, err := gm.GetSession(sessionID)
	if err != nil {
		return
	}

	s.mu.Lock()
	if s.Status != models.SessionRunning {
		s.mu.Unlock()
		return
	}
	s.Sim.SpawnBall(lane, power, fx)
	s.mu.Unlock()

	// Relay so every wall/dashboard client animates the shot locally.
	gm.publish(sessionID, map[string]interface{}{
		"type":  "shot_fired",
		"lane":  lane,
		"power": clamp01(power),
	})
}

// ForceScore credits a lane with a host-awarded make, bypassing the ball
// simulation. The event goes through the same pending queue as simulator
// makes, so persistence and broadcast follow the normal score path with the
// forced flag set.
func (gm *GameManager) ForceScore(sessionID string, lane int) error {
	s, err := gm.GetSession(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status != models.SessionRunning {
		return fmt.Errorf("session %s not running", sessionID)
	}
	p := s.lane(lane)
	if lane < 0 || lane >= s.LaneCount || p == nil || p.Disconnected {
		return fmt.Errorf("no player on lane %d", lane)
	}
	s.pendingScores = append(s.pendingScores, ScoreEvent{
		Lane:   lane,
		Points: s.Sim.MakePoints,
		Forced: true,
	})
	log.Printf("[SESSION] Forced score on lane %d of session %s", lane, sessionID)
	return nil
}

// DeleteSession is terminal: it stops the run loop, cancels animations and
// removes the session with its player rows.
func (gm *GameManager) DeleteSession(sessionID string) error {
	gm.mu.Lock()
	s, ok := gm.sessions[sessionID]
	if ok {
		delete(gm.sessions, sessionID)
	}
	gm.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	s.Sim.ResetAll()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.mu.Unlock()

	if gm.db != nil {
		// lane_players cascade on the FK.
		if _, err := gm.db.Exec(`DELETE FROM sessions WHERE id = $1`, sessionID); err != nil {
			log.Printf("[SESSION] Failed to delete session %s: %v", sessionID, err)
		}
	}

	gm.publish(sessionID, map[string]interface{}{"type": "session_deleted"})
	log.Printf("[SESSION] Deleted session %s", sessionID)
	return nil
}

// runLoop drives one session: simulator steps at the configured tick rate
// and timer resolution each tick. It exits when the session finishes or is
// deleted. Ticks are strictly sequential within a session.
func (gm *GameManager) runLoop(s *Session) {
	tickRate := gm.cfg.TickRate
	if tickRate <= 0 {
		tickRate = 60
	}
	dt := 1.0 / float64(tickRate)
	ticker := time.NewTicker(time.Second / time.Duration(tickRate))
	defer ticker.Stop()

	s.mu.Lock()
	stop := s.stop
	s.mu.Unlock()

	log.Printf("[SIM] Run loop started for session %s", s.ID)
	for {
		select {
		case <-stop:
			log.Printf("[SIM] Run loop stopped for session %s", s.ID)
			return
		case <-ticker.C:
			if done := gm.stepSession(s, dt); done {
				log.Printf("[SIM] Run loop finished for session %s", s.ID)
				return
			}
		}
	}
}

// stepSession advances one tick: timer transitions first, then ball physics,
// then score application. Returns true when the session has finished.
func (gm *GameManager) stepSession(s *Session, dt float64) bool {
	s.mu.Lock()

	prevStatus := s.Status
	s.Timer.Resolve()
	started := prevStatus != models.SessionRunning && s.Status == models.SessionRunning
	finished := prevStatus != models.SessionFinished && s.Status == models.SessionFinished
	startAt := s.TimerStart

	if s.Status == models.SessionRunning {
		s.Sim.Step(dt)
	}
	s.tick++

	// Ball positions stream to local clients at a third of the tick rate.
	// Remote instances animate from the shot_fired relay instead, so the
	// Redis channel never carries per-tick traffic.
	var balls []*Ball
	if s.Status == models.SessionRunning && s.tick%3 == 0 {
		for _, b := range s.Sim.ActiveBalls() {
			c := *b
			balls = append(balls, &c)
		}
	}

	scores := s.pendingScores
	s.pendingScores = nil

	type scored struct {
		playerID string
		lane     int
		points   int
		total    int
		swish    bool
		forced   bool
	}
	applied := make([]scored, 0, len(scores))
	for _, ev := range scores {
		p := s.lane(ev.Lane)
		if p == nil || p.Disconnected {
			// Player left between shot and resolution: drop the event.
			continue
		}
		p.Score += ev.Points
		applied = append(applied, scored{p.ID, ev.Lane, ev.Points, p.Score, ev.Swish, ev.Forced})
	}

	if finished {
		s.Sim.ResetAll()
		if s.stop != nil {
			close(s.stop)
			s.stop = nil
		}
	}
	s.mu.Unlock()

	if len(balls) > 0 {
		gm.mu.RLock()
		b := gm.bcast
		gm.mu.RUnlock()
		if b != nil {
			b.BroadcastToSession(s.ID, map[string]interface{}{
				"type":       "ball_update",
				"session_id": s.ID,
				"balls":      balls,
			})
		}
	}

	if started {
		gm.persistStart(s.ID, startAt)
		gm.publish(s.ID, map[string]interface{}{
			"type":       "start_game",
			"start_time": startAt.UTC(),
		})
		log.Printf("[SESSION] Session %s running (timer_start=%s)", s.ID, startAt.Format(time.RFC3339))
	}

	for _, sc := range applied {
		gm.persistScore(sc.playerID, sc.total)
		gm.publish(s.ID, map[string]interface{}{
			"type":      "update_score",
			"player_id": sc.playerID,
			"lane":      sc.lane,
			"points":    sc.points,
			"score":     sc.total,
			"swish":     sc.swish,
			"forced":    sc.forced,
		})
	}

	if finished {
		gm.persistFinish(s.ID)
		gm.publish(s.ID, map[string]interface{}{"type": "game_over"})
		log.Printf("[SESSION] Session %s finished", s.ID)
	}
	return finished
}

// persistStart stamps timer_start only while the row still says countdown,
// so redundant detection across observers stays a no-op.
func (gm *GameManager) persistStart(sessionID string, startAt time.Time) {
	if gm.db == nil {
		return
	}
	_, err := gm.db.Exec(
		`UPDATE sessions SET status = $1, timer_start = $2
		 WHERE id = $3 AND timer_start IS NULL`,
		models.SessionRunning, startAt, sessionID,
	)
	if err != nil {
		log.Printf("[SESSION] Failed to persist start for session %s: %v", sessionID, err)
	}
}

// persistScore writes the server-computed absolute score. Absolute writes
// keep a bounded retry safe, unlike blind increments.
func (gm *GameManager) persistScore(playerID string, total int) {
	if gm.db == nil {
		return
	}
	if _, err := gm.db.Exec(`UPDATE lane_players SET score = $1 WHERE id = $2`, total, playerID); err != nil {
		log.Printf("[SESSION] Failed to persist score for player %s: %v", playerID, err)
	}
}

// persistFinish marks a session finished; harmless when already finished.
func (gm *GameManager) persistFinish(sessionID string) {
	if gm.db == nil {
		return
	}
	_, err := gm.db.Exec(
		`UPDATE sessions SET status = $1 WHERE id = $2 AND status <> $1`,
		models.SessionFinished, sessionID,
	)
	if err != nil {
		log.Printf("[SESSION] Failed to persist finish for session %s: %v", sessionID, err)
	}
}

// publish pushes an event to local clients and, when Redis is wired, to the
// cross-instance channel. Both paths are fire-and-forget.
func (gm *GameManager) publish(sessionID string, message map[string]interface{}) {
	message["session_id"] = sessionID
	message["origin"] = gm.instanceID

	gm.mu.RLock()
	b := gm.bcast
	gm.mu.RUnlock()
	if b != nil {
		b.BroadcastToSession(sessionID, message)
	}

	if gm.rdb != nil {
		data, err := json.Marshal(message)
		if err != nil {
			log.Printf("[SESSION] Failed to marshal event for session %s: %v", sessionID, err)
			return
		}
		if err := gm.rdb.Publish(context.Background(), "session_events", data).Err(); err != nil {
			log.Printf("[SESSION] Failed to publish event for session %s: %v", sessionID, err)
		}
	}
}

// StartExpiryChecker sweeps running sessions once per configured interval so
// expiry fires even with no run loop (e.g. after a restart) and polling-only
// clients see finished state. Finishing twice is a no-op.
func (gm *GameManager) StartExpiryChecker(ctx context.Context) {
	interval := time.Duration(gm.cfg.ExpirySweepSecs) * time.Second
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Println("[SESSION] Expiry checker started")
	for {
		select {
		case <-ctx.Done():
			log.Println("[SESSION] Expiry checker stopping")
			return
		case <-ticker.C:
			gm.sweepExpired()
		}
	}
}

func (gm *GameManager) sweepExpired() {
	gm.mu.RLock()
	sessions := make([]*Session, 0, len(gm.sessions))
	for _, s := range gm.sessions {
		sessions = append(sessions, s)
	}
	gm.mu.RUnlock()

	for _, s := range sessions {
		s.mu.Lock()
		active := s.Status == models.SessionCountdown || s.Status == models.SessionRunning
		s.mu.Unlock()
		if active {
			gm.stepSession(s, 0)
		}
	}
}
