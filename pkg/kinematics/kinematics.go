// Package kinematics solves the slide, arm and wrist positions that put the
// end effector on the floor at a requested reach.
//
// The arm pivots at ArmBaseHeight above the floor and the slide telescopes
// along the arm. Reach is the horizontal distance from the pivot to the
// target, so the slide is the hypotenuse of a right triangle with the pivot
// height as the vertical leg. All lengths are centimetres and all angles are
// degrees; the arm angle is measured from horizontal and is negative below it.
package kinematics

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ErrIllegalTarget matches every *IllegalTargetError.
var ErrIllegalTarget = errors.New("illegal kinematic target")

// Limits are the fixed geometry and the legal envelope of the appendage.
type Limits struct {
	ArmBaseHeight        float64 `json:"arm_base_height" yaml:"arm_base_height"`
	SlideBaseLength      float64 `json:"slide_base_length" yaml:"slide_base_length"`
	MaxExtensionDistance float64 `json:"max_extension_distance" yaml:"max_extension_distance"`
	LegalDistanceLimit   float64 `json:"legal_distance_limit" yaml:"legal_distance_limit"`
	MinimumDistanceLimit float64 `json:"minimum_distance_limit" yaml:"minimum_distance_limit"`
	// MinimumAngleLimit is the lowest legal arm angle. Zero derives it from
	// MinimumDistanceLimit.
	MinimumAngleLimit float64 `json:"minimum_angle_limit,omitempty" yaml:"minimum_angle_limit,omitempty"`
}

// DefaultLimits matches the competition build.
func DefaultLimits() Limits {
	return Limits{
		ArmBaseHeight:        31.2,
		SlideBaseLength:      38,
		MaxExtensionDistance: 60,
		LegalDistanceLimit:   80,
		MinimumDistanceLimit: 22,
	}
}

// MaxExtension is the slide length when fully extended.
func (l Limits) MaxExtension() float64 {
	return l.SlideBaseLength + l.MaxExtensionDistance
}

// MaxTargetDistance is the horizontal reach of the fully extended slide.
func (l Limits) MaxTargetDistance() float64 {
	me := l.MaxExtension()
	h := l.ArmBaseHeight
	if me <= h {
		return 0
	}
	return math.Sqrt(me*me - h*h)
}

// MinAngle is the effective lower arm-angle bound.
func (l Limits) MinAngle() float64 {
	if l.MinimumAngleLimit != 0 {
		return l.MinimumAngleLimit
	}
	return ArmAngle(l, l.MinimumDistanceLimit)
}

// Validate reports geometry that cannot produce a legal solution.
func (l Limits) Validate() error {
	switch {
	case !(l.ArmBaseHeight > 0):
		return errors.New("arm_base_height must be positive")
	case l.SlideBaseLength < 0:
		return errors.New("slide_base_length must not be negative")
	case !(l.MaxExtensionDistance > 0):
		return errors.New("max_extension_distance must be positive")
	case l.MaxExtension() <= l.ArmBaseHeight:
		return errors.New("slide cannot reach the floor from the pivot")
	case !(l.MinimumDistanceLimit > 0):
		return errors.New("minimum_distance_limit must be positive")
	case l.LegalDistanceLimit < l.MinimumDistanceLimit:
		return errors.New("legal_distance_limit is below minimum_distance_limit")
	case l.MinimumAngleLimit < -90 || l.MinimumAngleLimit > 0:
		return errors.New("minimum_angle_limit must be within [-90, 0]")
	case SlideLength(l, l.MinimumDistanceLimit) < l.SlideBaseLength:
		return errors.Errorf("minimum_distance_limit %.1f needs a slide shorter than its base length", l.MinimumDistanceLimit)
	}
	return nil
}

// IllegalTargetError describes a rejected reach request.
type IllegalTargetError struct {
	Percent  float64
	Distance float64
	Reason   string
}

func (e *IllegalTargetError) Error() string {
	return fmt.Sprintf("illegal target %.3f (%.1f cm): %s", e.Percent, e.Distance, e.Reason)
}

func (e *IllegalTargetError) Is(target error) bool {
	return target == ErrIllegalTarget
}

// Solution is the set of joint targets for one reach request.
type Solution struct {
	Percent float64
	// Distance is the requested reach before clamping to the minimum.
	Distance          float64
	EffectiveDistance float64
	SlideLength       float64
	// SlideTarget is the extension beyond the base length, normalized to
	// [0, 1] over MaxExtensionDistance.
	SlideTarget float64
	ArmAngle    float64
	WristAngle  float64
	// EndEffector is the slide tip relative to the floor below the pivot,
	// with X along the reach and Z up.
	EndEffector r3.Vector
}

// Clamped reports whether the reach was raised to the minimum distance.
func (s Solution) Clamped() bool {
	return s.EffectiveDistance > s.Distance
}

// SlideLength is the slide length that reaches distance.
func SlideLength(l Limits, distance float64) float64 {
	return math.Hypot(l.ArmBaseHeight, distance)
}

// ArmAngle is the arm angle that points the slide at distance.
func ArmAngle(l Limits, distance float64) float64 {
	return degrees(math.Atan(-l.ArmBaseHeight / distance))
}

// WristAngle keeps the intake level with the floor at distance.
func WristAngle(l Limits, distance float64) float64 {
	return 180 - degrees(math.Atan(distance/l.ArmBaseHeight))
}

// PercentFor converts a reach in centimetres back to a fraction of
// MaxTargetDistance.
func PercentFor(l Limits, distance float64) float64 {
	reach := l.MaxTargetDistance()
	if reach == 0 {
		return 0
	}
	return distance / reach
}

// Solve computes joint targets for percent of the maximum reach.
//
// Requests past the legal limit are rejected; requests closer than the
// minimum distance are raised to it. A rejected request returns the partially
// filled Solution for diagnostics and an *IllegalTargetError.
func Solve(l Limits, percent float64) (Solution, error) {
	sol := Solution{Percent: percent}
	if math.IsNaN(percent) || percent < 0 || percent > 1 {
		return sol, &IllegalTargetError{Percent: percent, Reason: "reach must be within [0, 1]"}
	}

	sol.Distance = percent * l.MaxTargetDistance()
	if sol.Distance > l.LegalDistanceLimit {
		return sol, &IllegalTargetError{
			Percent:  percent,
			Distance: sol.Distance,
			Reason:   fmt.Sprintf("beyond legal limit %.1f cm", l.LegalDistanceLimit),
		}
	}

	sol.EffectiveDistance = math.Max(sol.Distance, l.MinimumDistanceLimit)
	sol.SlideLength = SlideLength(l, sol.EffectiveDistance)
	sol.SlideTarget = (sol.SlideLength - l.SlideBaseLength) / l.MaxExtensionDistance
	sol.ArmAngle = ArmAngle(l, sol.EffectiveDistance)
	sol.WristAngle = WristAngle(l, sol.EffectiveDistance)

	rad := radians(sol.ArmAngle)
	sol.EndEffector = r3.Vector{
		X: sol.SlideLength * math.Cos(rad),
		Z: l.ArmBaseHeight + sol.SlideLength*math.Sin(rad),
	}

	const eps = 1e-9
	if sol.ArmAngle < l.MinAngle()-eps || sol.ArmAngle > 0 {
		return sol, &IllegalTargetError{
			Percent:  percent,
			Distance: sol.Distance,
			Reason:   fmt.Sprintf("arm angle %.2f outside [%.2f, 0]", sol.ArmAngle, l.MinAngle()),
		}
	}
	if sol.SlideTarget < -eps || sol.SlideTarget > 1+eps {
		return sol, &IllegalTargetError{
			Percent:  percent,
			Distance: sol.Distance,
			Reason:   fmt.Sprintf("slide target %.3f outside travel", sol.SlideTarget),
		}
	}
	sol.SlideTarget = math.Min(math.Max(sol.SlideTarget, 0), 1)

	return sol, nil
}

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

func radians(deg float64) float64 { return deg * math.Pi / 180 }
