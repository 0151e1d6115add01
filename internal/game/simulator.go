package game

import (
	"math"

	"github.com/google/uuid"
)

// BallPhase is the two-segment shot animation model: the ball travels toward
// the rim, then travels back to the shooter.
type BallPhase int

const (
	PhaseForward BallPhase = iota
	PhaseReturn
)

// Scoring window: a score event fires only while forward progress is strictly
// inside this band, modeling "ball is in the net" rather than crediting at the
// rim plane itself.
const (
	scoreWindowLow  = 0.80
	scoreWindowHigh = 0.95
)

// maxBallScale / minBallScale model depth: the ball shrinks approaching the
// rim and grows back on return.
const (
	maxBallScale = 1.0
	minBallScale = 0.45
)

// Ball is one in-flight shot. The simulator is the only writer of ball state.
type Ball struct {
	ID    string  `json:"id"`
	Lane  int     `json:"lane"`
	X     float64 `json:"x"` // percent space, lane-local
	Y     float64 `json:"y"`
	Z     float64 `json:"z"` // depth progress, 0=spawn 1=back wall
	VX    float64 `json:"vx"`
	VY    float64 `json:"vy"` // bounce offset velocity, on top of the arc
	VZ    float64 `json:"vz"`
	Scale float64 `json:"scale"`

	Phase    BallPhase `json:"phase"`
	Progress float64   `json:"progress"` // 0..1 within the current phase
	Power    float64   `json:"power"`
	Spin     float64   `json:"spin"`
	Active   bool      `json:"active"`

	// Cosmetic flags passed through to the wall renderer.
	Rainbow bool `json:"rainbow,omitempty"`
	Fire    bool `json:"fire,omitempty"`

	yOffset  float64 // accumulated bounce offset from rattle/deflection
	resolved bool    // make/miss decided at rim arrival
	made     bool
	scored   bool // score event already emitted for this shot
	boardHit bool
}

// ShotFX carries the cosmetic flags a shooter client may attach to a shot.
type ShotFX struct {
	Rainbow bool `json:"rainbow,omitempty"`
	Fire    bool `json:"fire,omitempty"`
}

// ScoreEvent is emitted by the simulator when a shot drops. At most one per
// shot; the phase transition to return prevents re-entry into the window.
type ScoreEvent struct {
	Lane   int  `json:"lane"`
	Points int  `json:"points"`
	Swish  bool `json:"swish"`
	Forced bool `json:"forced"`
}

// Simulator owns one ball animation per lane and decides scoring. It is not
// safe for concurrent use; the owning session serializes access.
type Simulator struct {
	court   Court
	phys    Physics
	rng     Rand
	onScore func(ScoreEvent)

	lanes [MaxLanes]*Ball

	// MakePoints is the point value credited per make (2 by default, 1 in
	// free-throw mode).
	MakePoints int
}

// NewSimulator creates a simulator. onScore may be nil; events are then
// dropped. rng must not be nil; tests inject a fixed source to force the
// lip-out branch either way.
func NewSimulator(court Court, phys Physics, rng Rand, onScore func(ScoreEvent)) *Simulator {
	return &Simulator{
		court:      court,
		phys:       phys,
		rng:        rng,
		onScore:    onScore,
		MakePoints: 2,
	}
}

// Ball returns the in-flight ball for a lane, or nil.
func (s *Simulator) Ball(lane int) *Ball {
	if lane < 0 || lane >= MaxLanes {
		return nil
	}
	return s.lanes[lane]
}

// ActiveBalls returns all in-flight balls, for state broadcasts.
func (s *Simulator) ActiveBalls() []*Ball {
	out := make([]*Ball, 0, MaxLanes)
	for _, b := range s.lanes {
		if b != nil && b.Active {
			out = append(out, b)
		}
	}
	return out
}

// SpawnBall starts a shot on a lane. A lane outside [0,9] is a silent no-op;
// out-of-range power is clamped, never rejected. A spawn on a lane with a
// ball already in flight replaces it.
func (s *Simulator) SpawnBall(lane int, power float64, fx ShotFX) {
	if lane < 0 || lane >= MaxLanes {
		return
	}
	power = clamp01(power)

	// Small horizontal jitter for realism; drawn from the injected source so
	// a fixed seed reproduces the exact trajectory.
	jitter := (s.rng.Float64() - 0.5) * 3.0
	spin := (s.rng.Float64() - 0.5) * 0.4

	s.lanes[lane] = &Ball{
		ID:      uuid.NewString(),
		Lane:    lane,
		X:       s.court.SpawnX + jitter,
		Y:       s.court.SpawnY,
		VX:      jitter * 0.6,
		VZ:      (0.75 + 0.5*power) / s.phys.ForwardSecs,
		Scale:   maxBallScale,
		Phase:   PhaseForward,
		Power:   power,
		Spin:    spin,
		Active:  true,
		Rainbow: fx.Rainbow,
		Fire:    fx.Fire,
	}
}

// Step advances every active ball by dt seconds. Per ball, in order: gravity
// accretion on the bounce offset, position integration, rim then backboard
// collision, drag decay, termination checks.
func (s *Simulator) Step(dt float64) {
	for _, b := range s.lanes {
		if b == nil || !b.Active {
			continue
		}
		switch b.Phase {
		case PhaseForward:
			s.stepForward(b, dt)
		case PhaseReturn:
			s.stepReturn(b, dt)
		}
	}
}

func (s *Simulator) stepForward(b *Ball, dt float64) {
	// Gravity acts on the bounce offset once the ball has made contact;
	// pre-contact flight is carried entirely by the arc profile.
	if b.resolved || b.boardHit {
		b.VY += s.phys.Gravity * dt
	}

	// Integrate. VY is positive downward; the arc handles the lob itself.
	b.X += b.VX * dt
	b.yOffset += b.VY * dt
	b.Progress += b.VZ * dt
	if b.Progress > 1 {
		b.Progress = 1
	}
	b.Z = b.Progress

	// Baseline path from spawn height to rim height, arched by power, plus
	// the bounce offset.
	base := s.court.SpawnY + (s.court.Rim.Y-s.court.SpawnY)*b.Progress
	b.Y = base - ArcHeight(b.Progress, b.Power) + b.yOffset
	b.Scale = maxBallScale - (maxBallScale-minBallScale)*b.Progress

	radius := 2.5 * b.Scale

	// Rim contact is checked once the ball reaches the rim's depth plane.
	if !b.resolved && b.Progress >= s.court.Rim.Depth {
		s.resolveRim(b, radius)
	}

	// Backboard sits slightly behind the rim plane.
	if !b.boardHit && b.Progress >= s.court.Backboard.Depth &&
		BackboardHit(b.X, b.Y, radius, s.court.Backboard) {
		b.boardHit = true
		b.VY = BounceVertical(b.VY+6.0, s.phys.BoardRestitution)
		b.VZ = -math.Abs(b.VZ) * s.phys.BoardRestitution
	}

	// Drag decay on all velocity components.
	b.VX *= s.phys.Drag
	b.VY *= s.phys.Drag
	b.VZ *= s.phys.Drag

	// Score only inside the window near peak approach, once per shot.
	if b.resolved && b.made && !b.scored &&
		b.Progress > scoreWindowLow && b.Progress < scoreWindowHigh {
		b.scored = true
		s.emit(ScoreEvent{
			Lane:   b.Lane,
			Points: s.MakePoints,
			Swish:  !b.boardHit && math.Abs(b.X-s.court.Rim.X) < s.court.Rim.Width*0.18,
		})
	}

	// Full forward progress, with or without contact, turns the ball around.
	if b.Progress >= 1 {
		b.Phase = PhaseReturn
		b.Progress = 0
		b.VY = 0
		b.yOffset = 0
		return
	}

	// A deflected ball that falls below the visible area is done.
	if b.Y > s.court.FloorY {
		s.deactivate(b)
	}
}

// resolveRim decides make vs miss exactly once, at rim arrival. A ball inside
// the rim band is a make unless the lip-out draw rejects it; anything outside
// the band is deflected. This is the single scoring policy; there is no
// separate mid-arc threshold.
func (s *Simulator) resolveRim(b *Ball, radius float64) {
	b.resolved = true

	if !RimHit(b.X, b.Y, radius, s.court.Rim) {
		// Clean miss: rattle off whatever it grazed and fall.
		b.VX += RimDeflect(b.X, s.court.Rim.X, b.Spin)
		b.VY = BounceVertical(RimRattle(b.Power), s.phys.RimRestitution)
		return
	}

	if LipOut(b.Power, b.Spin, s.rng) {
		// Near-make rejected: kick the ball sideways off the rim, harder
		// than an ordinary graze.
		dir := 1.0
		if b.X < s.court.Rim.X || (b.X == s.court.Rim.X && b.Spin < 0) {
			dir = -1.0
		}
		b.VX = dir*BounceHorizontal(b.Power) + RimDeflect(b.X, s.court.Rim.X, b.Spin)
		b.VY = -RimRattle(b.Power) * s.phys.RimRestitution
		return
	}

	// Make: assist the ball toward center so the drop reads clean.
	b.X += RimAssist(b.X, s.court.Rim.X)
	b.VX *= 0.2
	b.made = true
}

func (s *Simulator) stepReturn(b *Ball, dt float64) {
	b.Progress += dt / s.phys.ReturnSecs
	if b.Progress >= 1 {
		s.deactivate(b)
		return
	}
	// Travel back toward the shooter, growing to full scale.
	b.Z = 1 - b.Progress
	b.Y = s.court.Rim.Y + (s.court.SpawnY-s.court.Rim.Y)*b.Progress
	b.X += b.VX * dt * 0.3
	b.Scale = minBallScale + (maxBallScale-minBallScale)*b.Progress
}

// deactivate ends a shot and resets the lane to its start pose.
func (s *Simulator) deactivate(b *Ball) {
	b.Active = false
	b.X = s.court.SpawnX
	b.Y = s.court.SpawnY
	b.Z = 0
	b.VX, b.VY, b.VZ = 0, 0, 0
	b.Scale = maxBallScale
}

// Reset cancels the in-flight ball on one lane.
func (s *Simulator) Reset(lane int) {
	if lane < 0 || lane >= MaxLanes {
		return
	}
	s.lanes[lane] = nil
}

// ResetAll cancels every in-flight ball; used on countdown restart and
// session delete so stale animations never keep rendering.
func (s *Simulator) ResetAll() {
	for i := range s.lanes {
		s.lanes[i] = nil
	}
}

func (s *Simulator) emit(ev ScoreEvent) {
	if s.onScore != nil {
		s.onScore(ev)
	}
}
