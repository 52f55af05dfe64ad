// Package coord provides astronomical time and reference-frame utilities.
//
// The internal cartesian frame is Y-up: the Y axis points to the ecliptic
// north pole, Z points to the vernal equinox and X completes the right-handed
// system. Frame changes are therefore rotations about Z (the equinox line),
// and rotations in ecliptic longitude are rotations about Y.
package coord

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/soniakeys/meeus/v3/base"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/nutation"
	"github.com/soniakeys/meeus/v3/solar"

	"github.com/zeusync/skygraph/internal/core/mathx"
)

// ObliquityJ2000Deg is the obliquity of the ecliptic at J2000.0 in degrees.
const ObliquityJ2000Deg = 23.4392808

var (
	eclipticToEquatorial = RotationMatrix(0, ObliquityJ2000Deg, 0)
	equatorialToEcliptic = RotationMatrix(0, -ObliquityJ2000Deg, 0)
)

// RotationMatrix builds the rotation for the Euler angles alpha, beta and
// gamma (degrees): Y(gamma) * Z(beta) * Y(alpha).
func RotationMatrix(alpha, beta, gamma float64) mgl64.Mat4 {
	return mathx.RotateYDeg(gamma).
		Mul4(mathx.RotateZDeg(beta)).
		Mul4(mathx.RotateYDeg(alpha))
}

// EclToEq returns the J2000 ecliptic to equatorial frame change.
func EclToEq() mgl64.Mat4 {
	return eclipticToEquatorial
}

// EqToEcl returns the J2000 equatorial to ecliptic frame change.
func EqToEcl() mgl64.Mat4 {
	return equatorialToEcliptic
}

// EclToEqAt uses the mean obliquity of date instead of the J2000 value.
func EclToEqAt(t time.Time) mgl64.Mat4 {
	return RotationMatrix(0, nutation.MeanObliquity(JulianDate(t)).Deg(), 0)
}

// JulianDate converts an instant to a Julian date. The difference between
// UTC and TT is ignored, which is well below the precision the scene needs.
func JulianDate(t time.Time) float64 {
	return julian.TimeToJD(t.UTC())
}

type sunSample struct {
	at  time.Time
	lon float64
}

// lastSun holds the most recent SunLongitude result. Every heliotropic node
// in a frame asks for the same instant.
var lastSun atomic.Pointer[sunSample]

var apparentLongitude = func(T float64) float64 {
	return solar.ApparentLongitude(T).Deg()
}

// SunLongitude returns the Sun's apparent ecliptic longitude in degrees,
// normalized to [0, 360).
func SunLongitude(t time.Time) float64 {
	if s := lastSun.Load(); s != nil && s.at.Equal(t) {
		return s.lon
	}
	T := base.J2000Century(JulianDate(t))
	lon := math.Mod(apparentLongitude(T), 360)
	if lon < 0 {
		lon += 360
	}
	lastSun.Store(&sunSample{at: t, lon: lon})
	return lon
}
