package scene

import (
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/skygraph/internal/core/coord"
	"github.com/zeusync/skygraph/internal/core/ephem"
	"github.com/zeusync/skygraph/internal/core/mathx"
)

func TestKindString(t *testing.T) {
	assert.Equal(t, "static", KindStatic.String())
	assert.Equal(t, "orbit", KindOrbit.String())
	assert.Equal(t, "heliotropic", KindHeliotropic.String())
	assert.Equal(t, "kind(9)", Kind(9).String())
}

func TestStaticTransform(t *testing.T) {
	s := StaticAt(mgl64.Vec3{1, 2, 3})
	m, err := s.Transform(j2000)
	require.NoError(t, err)
	assert.Equal(t, mgl64.Translate3D(1, 2, 3), m)

	s.Matrix[0] = math.NaN()
	_, err = s.Transform(j2000)
	assert.ErrorIs(t, err, ErrNonFinite)
}

func TestOrbitTranslationThenOrientation(t *testing.T) {
	pos := mgl64.Vec3{4, -2, 9}
	o := NewOrbit(ephem.FixedAt(pos))
	m, err := o.Transform(j2000)
	require.NoError(t, err)
	assert.Equal(t, mgl64.Translate3D(4, -2, 9), m)

	o.Orientation = OrbitOrientation(30, 5, 80)
	m, err = o.Transform(j2000)
	require.NoError(t, err)
	assert.Equal(t, pos, mathx.Translation(m), "orientation must not move the origin")
	assert.Less(t, mathx.MaxAbsDiff(mgl64.Translate3D(4, -2, 9).Mul4(o.Orientation), m), 1e-15)

	want := mathx.RotateYDeg(30).Mul4(mathx.RotateZDeg(5)).Mul4(mathx.RotateYDeg(80))
	assert.Less(t, mathx.MaxAbsDiff(want, o.Orientation), 1e-15)

	bare := &Orbit{Model: ephem.FixedAt(pos)}
	m, err = bare.Transform(j2000)
	require.NoError(t, err)
	assert.Equal(t, mgl64.Translate3D(4, -2, 9), m)
}

func TestOrbitInheritsParentOrientation(t *testing.T) {
	body := mathx.RotateXDeg(23.44)
	g := NewGraph()
	planet, err := g.Add(g.Root(), "planet", WithOrientation(body))
	require.NoError(t, err)

	inherit := NewOrbit(ephem.FixedAt(mgl64.Vec3{1, 0, 0}))
	inherit.InheritOrientation = true
	inherit.Orientation = OrbitOrientation(0, 5, 0)
	moon, err := g.Add(planet, "moon", WithTransformer(inherit))
	require.NoError(t, err)
	plain, err := g.Add(planet, "plain", WithTransformer(NewOrbit(ephem.FixedAt(mgl64.Vec3{1, 0, 0}))))
	require.NoError(t, err)
	marker, err := g.Add(moon, "marker", WithLocalTransform(mgl64.Translate3D(0, 1, 0)))
	require.NoError(t, err)

	require.NoError(t, g.Update(Frame{Instant: j2000}).Err())

	n, _ := g.Node(moon)
	want := mgl64.Translate3D(1, 0, 0).Mul4(body).Mul4(inherit.Orientation)
	assert.Less(t, mathx.MaxAbsDiff(want, n.LocalTransform()), 1e-15)
	n, _ = g.Node(plain)
	assert.Equal(t, mgl64.Translate3D(1, 0, 0), n.LocalTransform())

	// the body frame tilts what hangs below the orbit
	pos, _ := g.AbsolutePosition(marker)
	wantPos := mathx.Translation(want.Mul4(mgl64.Translate3D(0, 1, 0)))
	assert.InDeltaSlice(t, wantPos[:], pos[:], 1e-12)
	assert.Less(t, pos.Y(), 1.0)

	require.NoError(t, g.SetOrientation(planet, mgl64.Ident4()))
	require.NoError(t, g.UpdateLocalTransform(moon, j2000))
	n, _ = g.Node(moon)
	assert.Less(t, mathx.MaxAbsDiff(mgl64.Translate3D(1, 0, 0).Mul4(inherit.Orientation), n.LocalTransform()), 1e-15)

	assert.ErrorIs(t, g.SetOrientation(planet, mgl64.Mat4{math.NaN()}), ErrNonFinite)
}

func TestOrbitPropagatesModelErrors(t *testing.T) {
	_, err := NewOrbit(ephem.Kepler{}).Transform(j2000)
	assert.ErrorIs(t, err, ephem.ErrInvalidElements)

	m, err := NewOrbit(nil).Transform(j2000)
	require.NoError(t, err)
	assert.Equal(t, mgl64.Ident4(), m)
}

func TestHeliotropicComposition(t *testing.T) {
	pos := mgl64.Vec3{0, 0, 1.01}
	h := &Heliotropic{
		Model:        ephem.FixedAt(pos),
		SunLongitude: func(time.Time) float64 { return 90 },
	}
	m, err := h.Transform(j2000)
	require.NoError(t, err)

	want := mathx.Translate(pos).Mul4(coord.EclToEq()).Mul4(mathx.RotateYDeg(270))
	assert.Less(t, mathx.MaxAbsDiff(want, m), 1e-15)
	assert.Equal(t, pos, mathx.Translation(m))
	assert.Equal(t, KindHeliotropic, h.Kind())
}

func TestHeliotropicIsContinuousAcrossWrap(t *testing.T) {
	at := func(lon float64) mgl64.Mat4 {
		h := &Heliotropic{
			Model:        ephem.FixedAt(mgl64.Vec3{1, 2, 3}),
			SunLongitude: func(time.Time) float64 { return lon },
		}
		m, err := h.Transform(j2000)
		require.NoError(t, err)
		return m
	}

	assert.InDelta(t, 2.0, mathx.RotationAngleDeg(at(359), at(1)), 1e-6)
	assert.InDelta(t, 0.2, mathx.RotationAngleDeg(at(359.9), at(0.1)), 1e-6)
	assert.Less(t, mathx.MaxAbsDiff(at(360), at(0)), 1e-12)
	assert.Less(t, mathx.MaxAbsDiff(at(-10), at(350)), 1e-12)
}

func TestHeliotropicFollowsRealSun(t *testing.T) {
	h := NewHeliotropic(ephem.FixedAt(mgl64.Vec3{}))
	day := j2000.Add(24 * time.Hour)
	m0, err := h.Transform(j2000)
	require.NoError(t, err)
	m1, err := h.Transform(day)
	require.NoError(t, err)
	// the apparent sun moves a little less than a degree per day
	assert.InDelta(t, 1.0, mathx.RotationAngleDeg(m0, m1), 0.05)
}

func TestHeliotropicRejectsNonFiniteLongitude(t *testing.T) {
	h := &Heliotropic{SunLongitude: func(time.Time) float64 { return math.NaN() }}
	_, err := h.Transform(j2000)
	assert.ErrorIs(t, err, ErrNonFinite)
}
