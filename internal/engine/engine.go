// Package engine drives the scene graph frame by frame: it advances the
// simulation clock, runs one traversal per tick and hands the resulting
// snapshot to the renderer feed.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/zeusync/skygraph/internal/core/observability/log"
	"github.com/zeusync/skygraph/internal/core/scene"
)

var (
	ErrNilGraph   = errors.New("engine: nil graph")
	ErrNilClock   = errors.New("engine: nil clock")
	ErrInvalidFPS = errors.New("engine: fps must be positive")
)

// Clock supplies simulation instants.
type Clock interface {
	Now() time.Time
}

// Publisher receives every snapshot. *stream.Hub satisfies it.
type Publisher interface {
	Publish(instant time.Time, states []scene.NodeState) error
}

// Recorder receives per-frame statistics. *metrics.Metrics satisfies it.
type Recorder interface {
	ObserveFrame(d time.Duration, instant time.Time, visited, skipped int)
}

type Config struct {
	FPS    int
	Camera mgl64.Vec3
}

type Option func(*Engine)

func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

func WithLogger(l log.Log) Option {
	return func(e *Engine) { e.logger = l }
}

// Engine serializes traversals and structural changes on one graph.
type Engine struct {
	mu     sync.Mutex
	graph  *scene.Graph
	clock  Clock
	period time.Duration
	camera mgl64.Vec3
	last   scene.FrameReport
	frames uint64

	publisher Publisher
	recorder  Recorder
	logger    log.Log
}

func New(graph *scene.Graph, clock Clock, cfg Config, opts ...Option) (*Engine, error) {
	if graph == nil {
		return nil, ErrNilGraph
	}
	if clock == nil {
		return nil, ErrNilClock
	}
	if cfg.FPS <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFPS, cfg.FPS)
	}
	e := &Engine{
		graph:  graph,
		clock:  clock,
		period: time.Second / time.Duration(cfg.FPS),
		camera: cfg.Camera,
		logger: log.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("engine")
	return e, nil
}

// Step runs one traversal for instant and publishes the snapshot. The
// returned error is the publisher's; node failures are in the report.
func (e *Engine) Step(instant time.Time) (scene.FrameReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	report := e.graph.Update(scene.Frame{Instant: instant, Camera: e.camera})
	states := e.graph.Snapshot()

	var err error
	if e.publisher != nil {
		err = e.publisher.Publish(instant, states)
	}
	if e.recorder != nil {
		e.recorder.ObserveFrame(time.Since(start), instant, report.Visited, report.Skipped)
	}
	if report.Skipped > 0 {
		e.logger.Debug("frame had skipped nodes",
			log.Time("instant", instant),
			log.Int("skipped", report.Skipped),
			log.Int("visited", report.Visited))
	}
	e.last = report
	e.frames++
	return report, err
}

// Tick steps at the clock's current instant.
func (e *Engine) Tick() (scene.FrameReport, error) {
	return e.Step(e.clock.Now())
}

// Run ticks at the configured rate until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.period)
	defer ticker.Stop()

	e.logger.Info("engine started", log.Duration("period", e.period))
	defer e.logger.Info("engine stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := e.Tick(); err != nil {
				e.logger.Warn("snapshot publish failed", log.Error(err))
			}
		}
	}
}

// Mutate runs fn with exclusive access to the graph, between frames.
func (e *Engine) Mutate(fn func(g *scene.Graph) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.graph)
}

// SetCamera moves the fade reference point for subsequent frames.
func (e *Engine) SetCamera(pos mgl64.Vec3) {
	e.mu.Lock()
	e.camera = pos
	e.mu.Unlock()
}

func (e *Engine) Camera() mgl64.Vec3 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.camera
}

// Snapshot returns the node states of the last frame.
func (e *Engine) Snapshot() []scene.NodeState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graph.Snapshot()
}

// LastReport returns the report of the last frame and the number of frames run.
func (e *Engine) LastReport() (scene.FrameReport, uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last, e.frames
}
