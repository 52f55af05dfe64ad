package stream

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/skygraph/internal/core/ephem"
	"github.com/zeusync/skygraph/internal/core/scene"
)

func TestMirrorAppliesFrames(t *testing.T) {
	m := NewMirror()
	assert.ErrorIs(t, m.Apply(Frame{Type: FrameDelta, Seq: 1}), ErrNoBaseline)

	require.NoError(t, m.Apply(Frame{Type: FrameFull, Seq: 2, Nodes: []NodeMessage{
		{ID: "1.1", Name: "Universe"},
		{ID: "2.1", Name: "Sun", Parent: "1.1"},
		{ID: "3.1", Name: "Earth", Parent: "2.1"},
	}}))
	assert.Equal(t, 3, m.Len())
	assert.EqualValues(t, 2, m.Seq())

	require.NoError(t, m.Apply(Frame{Type: FrameDelta, Seq: 5,
		Nodes:   []NodeMessage{{ID: "2.1", Name: "Sun", Parent: "1.1", Opacity: 0.5}, {ID: "4.1", Name: "Moon", Parent: "1.1"}},
		Removed: []string{"3.1"},
	}))
	assert.EqualValues(t, 5, m.Seq())
	_, ok := m.Node("3.1")
	assert.False(t, ok)
	sun, ok := m.Lookup("Sun")
	require.True(t, ok)
	assert.Equal(t, float32(0.5), sun.Opacity)

	names := []string{}
	for _, n := range m.Nodes() {
		names = append(names, n.Name)
	}
	assert.Equal(t, []string{"Universe", "Sun", "Moon"}, names)

	assert.Error(t, m.Apply(Frame{Type: "bogus"}))
}

func TestClientFollowsHub(t *testing.T) {
	h := NewHub(DefaultConfig())
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer func() { _ = h.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), "")
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	require.Eventually(t, func() bool { return h.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	g := scene.NewGraph()
	sun, err := g.Add(g.Root(), "Sun", scene.WithVisibility(true, scene.Stars))
	require.NoError(t, err)
	g.Update(scene.Frame{Instant: t0})
	require.NoError(t, h.Publish(t0, g.Snapshot()))

	require.NoError(t, g.SetVisible(sun, false))
	g.Update(scene.Frame{Instant: t0})
	require.NoError(t, h.Publish(t0, g.Snapshot()))

	m := NewMirror()
	for _, want := range []string{FrameFull, FrameDelta} {
		f, err := c.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, f.Type)
		require.NoError(t, m.Apply(f))
	}
	n, ok := m.Lookup("Sun")
	require.True(t, ok)
	assert.False(t, n.Visible)
	assert.Equal(t, 2, m.Len())

	require.NoError(t, h.Close())
	_, err = c.Next(ctx)
	assert.Error(t, err)
}

func TestKindChangeReachesMirror(t *testing.T) {
	h := NewHub(DefaultConfig())
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer func() { _ = h.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), "")
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	require.Eventually(t, func() bool { return h.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	g := scene.NewGraph()
	probe, err := g.Add(g.Root(), "Probe")
	require.NoError(t, err)
	g.Update(scene.Frame{Instant: t0})
	require.NoError(t, h.Publish(t0, g.Snapshot()))

	// same place, different strategy
	require.NoError(t, g.SetTransformer(probe, scene.NewOrbit(ephem.FixedAt(mgl64.Vec3{}))))
	g.Update(scene.Frame{Instant: t0})
	require.NoError(t, h.Publish(t0, g.Snapshot()))

	m := NewMirror()
	for i := 0; i < 2; i++ {
		f, err := c.Next(ctx)
		require.NoError(t, err)
		require.NoError(t, m.Apply(f))
	}
	n, ok := m.Lookup("Probe")
	require.True(t, ok)
	assert.Equal(t, "orbit", n.Kind)
}

func TestDialReportsStatus(t *testing.T) {
	h := NewHub(DefaultConfig())
	require.NoError(t, h.Close())
	srv := httptest.NewServer(h)
	defer srv.Close()

	_, err := Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"), "tok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
