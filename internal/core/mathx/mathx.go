// Package mathx holds the small matrix helpers shared by the transform engine.
// Angles are in degrees unless a name says otherwise.
package mathx

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
)

// RotateXDeg returns a homogeneous rotation about the X axis.
func RotateXDeg(deg float64) mgl64.Mat4 {
	return mgl64.HomogRotate3DX(mgl64.DegToRad(deg))
}

// RotateYDeg returns a homogeneous rotation about the Y (pole) axis.
func RotateYDeg(deg float64) mgl64.Mat4 {
	return mgl64.HomogRotate3DY(mgl64.DegToRad(deg))
}

// RotateZDeg returns a homogeneous rotation about the Z axis.
func RotateZDeg(deg float64) mgl64.Mat4 {
	return mgl64.HomogRotate3DZ(mgl64.DegToRad(deg))
}

// Translate returns the translation matrix for v.
func Translate(v mgl64.Vec3) mgl64.Mat4 {
	return mgl64.Translate3D(v[0], v[1], v[2])
}

// Narrow converts a double-precision matrix into the renderer's float32 form.
func Narrow(m mgl64.Mat4) mgl32.Mat4 {
	var out mgl32.Mat4
	for i, v := range m {
		out[i] = float32(v)
	}
	return out
}

// Translation extracts the translation column of an affine matrix.
func Translation(m mgl64.Mat4) mgl64.Vec3 {
	return m.Col(3).Vec3()
}

func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func IsFiniteVec3(v mgl64.Vec3) bool {
	return IsFinite(v[0]) && IsFinite(v[1]) && IsFinite(v[2])
}

func IsFiniteMat4(m mgl64.Mat4) bool {
	for _, v := range m {
		if !IsFinite(v) {
			return false
		}
	}
	return true
}

// Lint maps x from [x0, x1] to [y0, y1], clamping outside the interval.
// The endpoints may come in either order; the lower one always maps to y0.
func Lint(x, x0, x1, y0, y1 float64) float64 {
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x <= x0 {
		return y0
	}
	if x >= x1 {
		return y1
	}
	return y0 + (y1-y0)*(x-x0)/(x1-x0)
}

// RotationAngleDeg returns the angle of the relative rotation between the
// upper-left 3x3 blocks of a and b. Both blocks must be pure rotations.
func RotationAngleDeg(a, b mgl64.Mat4) float64 {
	rel := a.Mat3().Transpose().Mul3(b.Mat3())
	c := (rel.Trace() - 1) / 2
	c = math.Max(-1, math.Min(1, c))
	return mgl64.RadToDeg(math.Acos(c))
}

// MaxAbsDiff returns the largest element-wise absolute difference of a and b.
func MaxAbsDiff(a, b mgl64.Mat4) float64 {
	var d float64
	for i := range a {
		d = math.Max(d, math.Abs(a[i]-b[i]))
	}
	return d
}
