package game

import "math"

// Collision and deflection rules for the shot arc. All functions here are
// pure: numeric in, numeric out, no package state. The one random branch
// (LipOut) takes its source as an argument so tests can force either outcome.

// Rand is the source of gameplay randomness. *math/rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// clamp01 clamps v to [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ArcHeight returns the vertical arc offset for a shot at the given forward
// progress. Zero at progress 0 and 1, peaking at the midpoint with a height
// scaled by power. Sinusoidal, symmetric about progress 0.5.
func ArcHeight(progress, power float64) float64 {
	progress = clamp01(progress)
	power = clamp01(power)
	const maxArc = 38.0 // percent of lane height at full power
	return maxArc * power * math.Sin(math.Pi*progress)
}

// RimHit reports whether a ball circle at (x, y) intersects the rim band.
// The band is a thin horizontal strip of the rim's width at the rim height.
func RimHit(x, y, radius float64, rim Rim) bool {
	halfW := rim.Width / 2
	if x+radius < rim.X-halfW || x-radius > rim.X+halfW {
		return false
	}
	const bandHalf = 1.2 // band thickness in percent space
	return math.Abs(y-rim.Y) <= bandHalf+radius
}

// BackboardHit reports whether a ball circle at (x, y) intersects the
// backboard plane region.
func BackboardHit(x, y, radius float64, board Backboard) bool {
	if y+radius < board.Y || y-radius > board.Y+board.Height {
		return false
	}
	// The board spans the full lane width at its depth plane; the caller
	// gates on depth, so any overlap at board height counts.
	return true
}

// RimDeflect returns the lateral displacement applied when the ball contacts
// the rim off-center. The delta pushes the ball away from dead center,
// growing with distance from the rim center and with spin.
func RimDeflect(x, rimX, spin float64) float64 {
	off := x - rimX
	delta := off * 0.45
	if spin != 0 {
		dir := 1.0
		if off < 0 {
			dir = -1.0
		} else if off == 0 {
			if spin < 0 {
				dir = -1.0
			}
		}
		delta += dir * math.Abs(spin) * 2.5
	}
	return delta
}

// RimRattle returns the vertical bounce magnitude for a ball rattling on the
// rim before settling, proportional to shot power.
func RimRattle(power float64) float64 {
	return 18.0 * clamp01(power)
}

// LipOut draws whether a near-make rejects off the rim instead of dropping.
// Higher power and higher spin magnitude both raise the probability. This is
// the single source of non-determinism in shot resolution.
func LipOut(power, spin float64, rng Rand) bool {
	power = clamp01(power)
	p := 0.05 + 0.35*power*power + 0.4*math.Abs(spin)
	if p > 0.85 {
		p = 0.85
	}
	return rng.Float64() < p
}

// BounceVertical returns the upward velocity after a rim or board bounce.
func BounceVertical(vy, restitution float64) float64 {
	return -vy * restitution
}

// BounceHorizontal returns the sideways rejection speed for a lipped-out or
// rim-rejected ball.
func BounceHorizontal(power float64) float64 {
	return 9.0 + 16.0*clamp01(power)
}

// RimAssist nudges a slightly-off make toward the rim center, modeling a
// friendly roll. Delta moves x toward rimX by a fraction of the offset.
func RimAssist(x, rimX float64) float64 {
	return (rimX - x) * 0.3
}
