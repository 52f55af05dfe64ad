package simclock

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWall struct{ t time.Time }

func (f *fakeWall) now() time.Time          { return f.t }
func (f *fakeWall) advance(d time.Duration) { f.t = f.t.Add(d) }

var epoch = time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)

func TestClockAdvancesWithWarp(t *testing.T) {
	wall := &fakeWall{t: time.Unix(1_700_000_000, 0)}
	c, err := New(epoch, 3600, WithWallClock(wall.now))
	require.NoError(t, err)
	assert.True(t, c.Now().Equal(epoch))

	wall.advance(time.Second)
	assert.True(t, c.Now().Equal(epoch.Add(time.Hour)))

	require.NoError(t, c.SetWarp(0))
	wall.advance(time.Minute)
	assert.True(t, c.Now().Equal(epoch.Add(time.Hour)), "paused clock stands still")
	assert.Equal(t, 0.0, c.Warp())

	require.NoError(t, c.SetWarp(1))
	wall.advance(time.Second)
	assert.True(t, c.Now().Equal(epoch.Add(time.Hour+time.Second)))
}

func TestClockNeverDecreases(t *testing.T) {
	wall := &fakeWall{t: time.Unix(1_700_000_000, 0)}
	c, err := New(epoch, 1, WithWallClock(wall.now))
	require.NoError(t, err)

	wall.advance(10 * time.Second)
	first := c.Now()
	wall.advance(-5 * time.Second)
	assert.False(t, c.Now().Before(first))
	wall.advance(10 * time.Second)
	assert.True(t, c.Now().After(first))
}

func TestClockRejectsBadWarp(t *testing.T) {
	for _, w := range []float64{-1, math.NaN(), math.Inf(1)} {
		_, err := New(epoch, w)
		assert.ErrorIs(t, err, ErrNegativeWarp)
	}
	c, err := New(epoch, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, c.SetWarp(-2), ErrNegativeWarp)
	assert.Equal(t, 1.0, c.Warp())
}

func TestClockSetJumps(t *testing.T) {
	wall := &fakeWall{t: time.Unix(1_700_000_000, 0)}
	c, err := New(epoch, 1, WithWallClock(wall.now))
	require.NoError(t, err)
	wall.advance(time.Hour)
	back := epoch.Add(-24 * time.Hour)
	c.Set(back)
	assert.True(t, c.Now().Equal(back))
}

func TestClockHighWarpKeepsAdvancing(t *testing.T) {
	wall := &fakeWall{t: time.Unix(1_700_000_000, 0)}
	c, err := New(epoch, 1e6, WithWallClock(wall.now))
	require.NoError(t, err)

	wall.advance(time.Hour)
	first := c.Now()
	assert.True(t, first.Equal(time.Unix(epoch.Unix()+3600*1_000_000, 0).UTC()), "got %s", first)

	wall.advance(2 * time.Hour)
	got := c.Now()
	want := time.Unix(epoch.Unix()+3*3600*1_000_000, 0).UTC()
	assert.True(t, got.Equal(want), "got %s want %s", got, want)
	assert.True(t, got.After(first))
}

func TestClockMaxWarp(t *testing.T) {
	wall := &fakeWall{t: time.Unix(1_700_000_000, 0)}
	c, err := New(epoch, MaxWarp, WithWallClock(wall.now))
	require.NoError(t, err)

	wall.advance(time.Second)
	got := c.Now()
	want := time.Unix(epoch.Unix()+MaxWarp, 0).UTC()
	assert.True(t, got.Equal(want), "got %s want %s", got, want)

	wall.advance(time.Second)
	assert.True(t, c.Now().After(got))

	_, err = New(epoch, MaxWarp*2)
	assert.ErrorIs(t, err, ErrWarpTooLarge)
	assert.ErrorIs(t, c.SetWarp(MaxWarp*2), ErrWarpTooLarge)
}
