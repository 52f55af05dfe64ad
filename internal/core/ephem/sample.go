// Package ephem provides positional samples and the orbital models that
// produce them. Positions are expressed in the internal Y-up ecliptic frame
// (see package coord); velocities are in position units per day.
package ephem

import (
	"errors"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/zeusync/skygraph/internal/core/mathx"
)

var (
	ErrInvalidElements = errors.New("invalid orbital elements")
	ErrEmptyTable      = errors.New("tabulated model has no samples")
	ErrDuplicateTime   = errors.New("tabulated model has duplicate sample times")
	ErrNoSolution      = errors.New("kepler equation did not converge")
)

// Sample is a position/velocity pair valid at one instant. It is a value type:
// the accessors return copies, so a caller never aliases the sample's state.
type Sample struct {
	position mgl64.Vec3
	velocity mgl64.Vec3
}

func NewSample(position, velocity mgl64.Vec3) Sample {
	return Sample{position: position, velocity: velocity}
}

func (s Sample) Position() mgl64.Vec3 { return s.position }
func (s Sample) Velocity() mgl64.Vec3 { return s.velocity }

// IsFinite reports whether both vectors are free of NaN and Inf.
func (s Sample) IsFinite() bool {
	return mathx.IsFiniteVec3(s.position) && mathx.IsFiniteVec3(s.velocity)
}

// Model is a pure function of time: the same instant always yields the same sample.
type Model interface {
	At(t time.Time) (Sample, error)
}

// ModelFunc adapts a plain function to Model.
type ModelFunc func(t time.Time) (Sample, error)

func (f ModelFunc) At(t time.Time) (Sample, error) { return f(t) }

// Fixed is a model that never moves.
type Fixed Sample

func (f Fixed) At(time.Time) (Sample, error) { return Sample(f), nil }

// FixedAt is a shorthand for a motionless Fixed model at position.
func FixedAt(position mgl64.Vec3) Fixed {
	return Fixed(NewSample(position, mgl64.Vec3{}))
}
