package scene

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/skygraph/internal/core/ephem"
	"github.com/zeusync/skygraph/internal/core/mathx"
)

var j2000 = time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)

func randomAffine(r *rand.Rand) mgl64.Mat4 {
	axis := mgl64.Vec3{r.Float64() - 0.5, r.Float64() - 0.5, r.Float64() - 0.5}.Normalize()
	rot := mgl64.HomogRotate3D(r.Float64()*2*math.Pi, axis)
	scale := mgl64.Scale3D(0.5+r.Float64(), 0.5+r.Float64(), 0.5+r.Float64())
	tr := mgl64.Translate3D(r.Float64()*100-50, r.Float64()*100-50, r.Float64()*100-50)
	return tr.Mul4(rot).Mul4(scale)
}

func TestWorldTransformComposesAncestors(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		g := NewGraph()
		parent := g.Root()
		rootLocal := randomAffine(r)
		require.NoError(t, g.SetLocalTransform(g.Root(), rootLocal))
		want := rootLocal
		var ids []NodeID
		for depth := 0; depth < 6; depth++ {
			m := randomAffine(r)
			id, err := g.Add(parent, "n", WithTransformer(NewStatic(m)))
			require.NoError(t, err)
			want = want.Mul4(m)
			ids = append(ids, id)
			parent = id
		}

		report := g.Update(Frame{Instant: j2000})
		require.NoError(t, report.Err())
		assert.Equal(t, 7, report.Visited)

		root, _ := g.Node(g.Root())
		assert.Less(t, mathx.MaxAbsDiff(rootLocal, root.WorldTransform()), 1e-12)
		leaf, _ := g.Node(ids[len(ids)-1])
		assert.Less(t, mathx.MaxAbsDiff(want, leaf.WorldTransform()), 1e-9)
		assert.Equal(t, mathx.Narrow(leaf.WorldTransform()), leaf.RenderTransform())
	}
}

func TestUpdateWorldTransformRecomposesSubtree(t *testing.T) {
	g := NewGraph()
	a, _ := g.Add(g.Root(), "a", WithLocalTransform(mgl64.Translate3D(1, 0, 0)))
	b, _ := g.Add(a, "b", WithLocalTransform(mgl64.Translate3D(0, 2, 0)))

	require.NoError(t, g.UpdateWorldTransform(a))
	pos, err := g.AbsolutePosition(b)
	require.NoError(t, err)
	assert.Equal(t, mgl64.Vec3{1, 2, 0}, pos)

	require.NoError(t, g.SetLocalTransform(a, mgl64.Translate3D(5, 0, 0)))
	pos, _ = g.AbsolutePosition(b)
	assert.Equal(t, mgl64.Vec3{1, 2, 0}, pos, "world stays stale until recomposed")

	require.NoError(t, g.UpdateWorldTransform(b))
	pos, _ = g.AbsolutePosition(b)
	assert.Equal(t, mgl64.Vec3{1, 2, 0}, pos, "recomposing b alone uses a's cached world")

	require.NoError(t, g.UpdateWorldTransform(a))
	pos, _ = g.AbsolutePosition(b)
	assert.Equal(t, mgl64.Vec3{5, 2, 0}, pos)
}

func TestUpdateLocalTransformWithoutStrategyIsNoop(t *testing.T) {
	g := NewGraph()
	m := mgl64.Translate3D(3, 4, 5)
	a, _ := g.Add(g.Root(), "a", WithLocalTransform(m))
	require.NoError(t, g.UpdateLocalTransform(a, j2000))
	n, _ := g.Node(a)
	assert.Equal(t, m, n.LocalTransform())
	assert.Equal(t, KindStatic, n.Kind())
}

func buildSolarSystem(t *testing.T) (*Graph, []NodeID) {
	t.Helper()
	g := NewGraph()
	earthOrbit := ephem.Kepler{
		SemiMajorAxis: 1, Eccentricity: 0.0167, Inclination: 0.00005,
		AscendingNode: -11.26, ArgOfPericenter: 114.2, MeanAnomaly: 358.6,
		Epoch: j2000, Period: 365.256,
	}
	moonOrbit := ephem.Kepler{
		SemiMajorAxis: 0.00257, Eccentricity: 0.0549, Inclination: 5.145,
		AscendingNode: 125.08, ArgOfPericenter: 318.15, MeanAnomaly: 135.27,
		Epoch: j2000, Period: 27.3217,
	}
	sun, err := g.Add(g.Root(), "Sun")
	require.NoError(t, err)
	earth, err := g.Add(sun, "Earth", WithTransformer(NewOrbit(earthOrbit)))
	require.NoError(t, err)
	moon, err := g.Add(earth, "Moon", WithTransformer(&Orbit{Model: moonOrbit, Orientation: OrbitOrientation(10, 20, 30)}))
	require.NoError(t, err)
	l2, err := g.Add(earth, "L2", WithTransformer(&Heliotropic{
		Model:        ephem.FixedAt(mgl64.Vec3{0, 0, 0.01}),
		SunLongitude: func(time.Time) float64 { return 123.4 },
	}))
	require.NoError(t, err)
	return g, []NodeID{sun, earth, moon, l2}
}

func TestUpdateIsDeterministic(t *testing.T) {
	at := j2000.Add(1234 * time.Hour)

	g1, ids1 := buildSolarSystem(t)
	g2, ids2 := buildSolarSystem(t)
	require.NoError(t, g1.Update(Frame{Instant: at}).Err())
	require.NoError(t, g2.Update(Frame{Instant: at}).Err())

	for i := range ids1 {
		n1, _ := g1.Node(ids1[i])
		n2, _ := g2.Node(ids2[i])
		assert.Equal(t, n1.RenderTransform(), n2.RenderTransform(), n1.Name())
		assert.Equal(t, n1.RenderLocalTransform(), n2.RenderLocalTransform(), n1.Name())
	}

	// running another instant and coming back gives the same bits
	first := make([]NodeState, 0)
	first = append(first, g1.Snapshot()...)
	g1.Update(Frame{Instant: at.Add(48 * time.Hour)})
	g1.Update(Frame{Instant: at})
	assert.Equal(t, first, g1.Snapshot())
}

func TestFailingNodeKeepsLastTransform(t *testing.T) {
	errModel := errors.New("ephemeris unavailable")
	fail := false
	model := ephem.ModelFunc(func(tm time.Time) (ephem.Sample, error) {
		if fail {
			return ephem.Sample{}, errModel
		}
		return ephem.NewSample(mgl64.Vec3{1, 2, 3}, mgl64.Vec3{}), nil
	})

	g := NewGraph()
	a, _ := g.Add(g.Root(), "a", WithTransformer(NewOrbit(model)))
	b, _ := g.Add(a, "b", WithLocalTransform(mgl64.Translate3D(10, 0, 0)))
	sibling, _ := g.Add(g.Root(), "sibling", WithTransformer(StaticAt(mgl64.Vec3{7, 7, 7})))

	require.NoError(t, g.Update(Frame{Instant: j2000}).Err())

	fail = true
	report := g.Update(Frame{Instant: j2000.Add(time.Hour)})
	assert.Equal(t, 4, report.Visited)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, a, report.Errors[0].Node)
	assert.Equal(t, "a", report.Errors[0].Name)
	assert.ErrorIs(t, report.Err(), errModel)

	var te *TransformError
	require.ErrorAs(t, report.Err(), &te)
	assert.True(t, te.Instant.Equal(j2000.Add(time.Hour)))

	pos, _ := g.AbsolutePosition(b)
	assert.Equal(t, mgl64.Vec3{11, 2, 3}, pos, "child composed on the last good transform")
	pos, _ = g.AbsolutePosition(sibling)
	assert.Equal(t, mgl64.Vec3{7, 7, 7}, pos, "traversal continued past the failure")
	n, _ := g.Node(a)
	assert.NotNil(t, n.LastError())

	fail = false
	require.NoError(t, g.Update(Frame{Instant: j2000.Add(2 * time.Hour)}).Err())
	assert.Nil(t, n.LastError())
}

type panickingTransformer struct{}

func (panickingTransformer) Kind() Kind { return KindOrbit }
func (panickingTransformer) Transform(time.Time) (mgl64.Mat4, error) {
	panic("no ephemeris")
}

func TestBrokenModelsDoNotHaltTraversal(t *testing.T) {
	g := NewGraph()
	empty, _ := g.Add(g.Root(), "empty table", WithTransformer(NewOrbit(&ephem.Tabulated{})))
	broken, _ := g.Add(g.Root(), "broken", WithTransformer(panickingTransformer{}))
	after, _ := g.Add(g.Root(), "after", WithTransformer(StaticAt(mgl64.Vec3{0, 5, 0})))

	var report FrameReport
	require.NotPanics(t, func() { report = g.Update(Frame{Instant: j2000}) })
	assert.Equal(t, 4, report.Visited)
	assert.Equal(t, 2, report.Skipped)
	require.Len(t, report.Errors, 2)
	assert.Equal(t, empty, report.Errors[0].Node)
	assert.ErrorIs(t, report.Errors[0], ephem.ErrEmptyTable)
	assert.Equal(t, broken, report.Errors[1].Node)
	assert.ErrorIs(t, report.Errors[1], ErrTransformPanic)

	pos, _ := g.AbsolutePosition(after)
	assert.Equal(t, mgl64.Vec3{0, 5, 0}, pos)
}

func TestNonFinitePositionIsReported(t *testing.T) {
	g := NewGraph()
	a, _ := g.Add(g.Root(), "a", WithTransformer(NewOrbit(ephem.FixedAt(mgl64.Vec3{math.Inf(1), 0, 0}))))
	err := g.UpdateLocalTransform(a, j2000)
	assert.ErrorIs(t, err, ErrNonFinite)
	n, _ := g.Node(a)
	assert.Equal(t, mgl64.Ident4(), n.LocalTransform())
}

func TestFadeOpacityIsInherited(t *testing.T) {
	g := NewGraph()
	galaxy, _ := g.Add(g.Root(), "galaxy",
		WithTransformer(StaticAt(mgl64.Vec3{100, 0, 0})),
		WithFade(NewFade(&Range{Near: 10, Far: 20}, nil)),
	)
	star, _ := g.Add(galaxy, "star",
		WithFade(NewFade(nil, &Range{Near: 0, Far: 100})),
	)
	plain, _ := g.Add(g.Root(), "plain")

	g.Update(Frame{Instant: j2000, Camera: mgl64.Vec3{85, 0, 0}})

	gn, _ := g.Node(galaxy)
	sn, _ := g.Node(star)
	pn, _ := g.Node(plain)
	assert.InDelta(t, 0.5, gn.Opacity(), 1e-12)
	// star sits at the galaxy position: 15 units away, out-fade 1 - 0.15
	assert.InDelta(t, 0.5*0.85, sn.Opacity(), 1e-12)
	assert.Equal(t, 1.0, pn.Opacity())

	g.Update(Frame{Instant: j2000, Camera: mgl64.Vec3{100, 0, 0}})
	assert.Equal(t, 0.0, gn.Opacity())
	assert.Equal(t, 0.0, sn.Opacity())
}
