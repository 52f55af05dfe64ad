package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/skygraph/internal/core/events/bus"
)

func TestObserveFrame(t *testing.T) {
	m := New(nil)
	at := time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)
	m.ObserveFrame(2*time.Millisecond, at, 12, 2)
	m.ObserveFrame(time.Millisecond, at.Add(time.Second), 11, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.frames))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.skippedNodes))
	assert.Equal(t, 11.0, testutil.ToFloat64(m.nodes))
	assert.Equal(t, float64(at.Unix()+1), testutil.ToFloat64(m.simTime))
	assert.Equal(t, 1, testutil.CollectAndCount(m.frameDuration))
}

func TestFeedInstruments(t *testing.T) {
	m := New(nil)
	m.ClientConnected()
	m.ClientConnected()
	m.ClientDisconnected()
	m.FrameSent("full")
	m.FrameSent("delta")
	m.FrameSent("delta")
	m.FrameDropped()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.feedClients))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.feedFrames.WithLabelValues("full")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.feedFrames.WithLabelValues("delta")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.feedDropped))
}

func TestBusObserver(t *testing.T) {
	m := New(nil)
	b := bus.New()
	b.AddObserver(m.BusObserver())
	_, err := b.Subscribe("boom", func(bus.Event) error { return errors.New("fail") })
	require.NoError(t, err)

	_ = b.Publish(bus.NewEvent("scene.node.attached", "test", nil))
	_ = b.Publish(bus.NewEvent("boom", "test", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.busEvents.WithLabelValues("scene.node.attached")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.busErrors))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New(nil)
	m.ObserveFrame(time.Millisecond, time.Now(), 1, 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "skygraph_frames_total 1"), string(body))
}
