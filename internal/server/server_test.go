package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/skygraph/internal/core/scene"
	"github.com/zeusync/skygraph/internal/stream"
)

func testConfig() Config {
	cfg := DefaultServerConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	return cfg
}

func TestNewServerValidates(t *testing.T) {
	_, err := NewServer(Config{}, http.NotFoundHandler())
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewServer(testConfig(), nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestFeedRequiresToken(t *testing.T) {
	hub := stream.NewHub(stream.DefaultConfig())
	defer func() { _ = hub.Close() }()
	cfg := testConfig()
	cfg.Token = "supersecrettoken"
	srv, err := NewServer(cfg, hub)
	require.NoError(t, err)

	s := httptest.NewServer(srv.Handler())
	defer s.Close()
	u := "ws" + strings.TrimPrefix(s.URL, "http") + "/feed"

	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.Error(t, err, "connecting without token")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, _, err = websocket.DefaultDialer.Dial(u+"?token=invalid", nil)
	require.Error(t, err, "connecting with invalid token")

	conn, _, err := websocket.DefaultDialer.Dial(u+"?token=supersecrettoken", nil)
	require.NoError(t, err)
	defer conn.Close()

	header := http.Header{"Authorization": []string{"Bearer supersecrettoken"}}
	conn2, _, err := websocket.DefaultDialer.Dial(u, header)
	require.NoError(t, err)
	defer conn2.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 2 }, 2*time.Second, 5*time.Millisecond)
	g := scene.NewGraph()
	g.Update(scene.Frame{Instant: time.Now()})
	require.NoError(t, hub.Publish(time.Now(), g.Snapshot()))

	var f stream.Frame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, stream.FrameFull, f.Type)
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "skygraph_frames_total 3\n")
	})
	srv, err := NewServer(testConfig(), http.NotFoundHandler(),
		WithMetrics(metrics),
		WithHealth(func() error {
			if healthy.Load() {
				return nil
			}
			return errors.New("engine stalled")
		}))
	require.NoError(t, err)

	s := httptest.NewServer(srv.Handler())
	defer s.Close()

	resp, err := http.Get(s.URL + "/healthz")
	require.NoError(t, err)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	healthy.Store(false)
	resp, err = http.Get(s.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Get(s.URL + "/metrics")
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Contains(t, string(raw), "skygraph_frames_total")
}

func TestStartStopLifecycle(t *testing.T) {
	srv, err := NewServer(testConfig(), http.NotFoundHandler())
	require.NoError(t, err)

	assert.ErrorIs(t, srv.Stop(context.Background()), ErrServerNotRunning)
	require.NoError(t, srv.Start(context.Background()))
	assert.ErrorIs(t, srv.Start(context.Background()), ErrServerAlreadyRunning)

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Stop(context.Background()))
	require.NoError(t, srv.Close())
	assert.ErrorIs(t, srv.Start(context.Background()), ErrServerClosed)
}

func TestStartFailsOnBusyAddress(t *testing.T) {
	first, err := NewServer(testConfig(), http.NotFoundHandler())
	require.NoError(t, err)
	require.NoError(t, first.Start(context.Background()))
	defer func() { _ = first.Close() }()

	cfg := testConfig()
	cfg.ListenAddr = first.Addr()
	second, err := NewServer(cfg, http.NotFoundHandler())
	require.NoError(t, err)
	assert.ErrorIs(t, second.Start(context.Background()), ErrListenerFailed)
}

func TestRunStopsOnCancel(t *testing.T) {
	srv, err := NewServer(testConfig(), http.NotFoundHandler())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	require.Eventually(t, func() bool { return srv.Addr() != "" }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}
