package game

import "github.com/vdjjd/faninteract/internal/config"

// MaxLanes is the number of independent shooter lanes on the wall.
const MaxLanes = 10

// Rim is the scoring band: a thin horizontal strip at a fixed depth plane.
// Coordinates are in normalized percentage space (0-100) local to one lane.
type Rim struct {
	X     float64 // horizontal center
	Y     float64 // height of the rim band
	Width float64 // horizontal extent of the band
	Depth float64 // z progress at which the ball reaches the rim plane
}

// Backboard is a vertical plane just behind and above the rim.
type Backboard struct {
	Y      float64 // top of the board
	Height float64
	Depth  float64 // z progress of the board plane (behind the rim)
}

// Court bundles the per-lane geometry every lane shares.
type Court struct {
	Rim       Rim
	Backboard Backboard

	SpawnX float64 // ball start position (center of the lane)
	SpawnY float64
	FloorY float64 // below this the ball is out of the visible area
}

// NewCourt builds lane geometry from config so rim/board tuning needs no
// code change.
func NewCourt(cfg *config.Config) Court {
	return Court{
		Rim: Rim{
			X:     cfg.RimX,
			Y:     cfg.RimY,
			Width: cfg.RimWidth,
			Depth: cfg.RimDepth,
		},
		Backboard: Backboard{
			Y:      cfg.BackboardY,
			Height: cfg.BackboardHeight,
			Depth:  cfg.RimDepth + 0.08,
		},
		SpawnX: 50,
		SpawnY: 92,
		FloorY: 100,
	}
}

// Physics holds the tunable simulation coefficients.
type Physics struct {
	Gravity          float64 // percent/sec^2 pulling the bounce offset down
	Drag             float64 // per-tick velocity decay factor
	RimRestitution   float64
	BoardRestitution float64
	ForwardSecs      float64 // nominal forward flight time
	ReturnSecs       float64 // return flight time
}

// NewPhysics builds simulation coefficients from config.
func NewPhysics(cfg *config.Config) Physics {
	return Physics{
		Gravity:          cfg.Gravity,
		Drag:             cfg.Drag,
		RimRestitution:   cfg.RimRestitution,
		BoardRestitution: cfg.BoardRestitution,
		ForwardSecs:      cfg.ShotForwardSecs,
		ReturnSecs:       cfg.ShotReturnSecs,
	}
}
