package ephem

import (
	"fmt"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/soniakeys/meeus/v3/kepler"
	"github.com/soniakeys/unit"
)

const (
	secondsPerDay = 86400.0
	keplerPlaces  = 10
)

// Kepler is a closed-form two-body orbit. Angles are in degrees, the period
// in days; SemiMajorAxis sets the length unit of the produced samples.
type Kepler struct {
	SemiMajorAxis   float64
	Eccentricity    float64
	Inclination     float64
	AscendingNode   float64
	ArgOfPericenter float64
	MeanAnomaly     float64 // at Epoch
	Epoch           time.Time
	Period          float64
}

// Validate rejects elements that do not describe a bound elliptic orbit.
func (k Kepler) Validate() error {
	switch {
	case !(k.SemiMajorAxis > 0):
		return fmt.Errorf("%w: semi-major axis %v", ErrInvalidElements, k.SemiMajorAxis)
	case !(k.Eccentricity >= 0 && k.Eccentricity < 1):
		return fmt.Errorf("%w: eccentricity %v", ErrInvalidElements, k.Eccentricity)
	case !(k.Period > 0):
		return fmt.Errorf("%w: period %v", ErrInvalidElements, k.Period)
	}
	return nil
}

// MeanAnomalyAt returns the mean anomaly in degrees, in [0, 360).
func (k Kepler) MeanAnomalyAt(t time.Time) float64 {
	days := t.Sub(k.Epoch).Seconds() / secondsPerDay
	m := math.Mod(k.MeanAnomaly+360*days/k.Period, 360)
	if m < 0 {
		m += 360
	}
	return m
}

func (k Kepler) At(t time.Time) (Sample, error) {
	if err := k.Validate(); err != nil {
		return Sample{}, err
	}
	e, a := k.Eccentricity, k.SemiMajorAxis

	E, err := kepler.Kepler2(e, unit.AngleFromDeg(k.MeanAnomalyAt(t)), keplerPlaces)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: %w", ErrNoSolution, err)
	}
	nu := kepler.True(E, e)
	r := kepler.Radius(E, e, a)

	// perifocal frame: x towards pericenter, z along the orbital angular momentum
	pos := mgl64.Vec3{r * math.Cos(nu.Rad()), r * math.Sin(nu.Rad()), 0}
	n := 2 * math.Pi / k.Period
	sinE, cosE := math.Sincos(E.Rad())
	f := n * a / (1 - e*cosE)
	vel := mgl64.Vec3{-f * sinE, f * math.Sqrt(1-e*e) * cosE, 0}

	rot := mgl64.Rotate3DZ(mgl64.DegToRad(k.AscendingNode)).
		Mul3(mgl64.Rotate3DX(mgl64.DegToRad(k.Inclination))).
		Mul3(mgl64.Rotate3DZ(mgl64.DegToRad(k.ArgOfPericenter)))

	return NewSample(toInternal(rot.Mul3x1(pos)), toInternal(rot.Mul3x1(vel))), nil
}

// toInternal maps ecliptic cartesian (X to the equinox, Z to the pole) onto
// the Y-up internal frame.
func toInternal(v mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{v[1], v[2], v[0]}
}
