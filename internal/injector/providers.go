// Package injector assembles the skygraph process from its configuration.
package injector

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zeusync/skygraph/internal/config"
	"github.com/zeusync/skygraph/internal/core/events/bus"
	"github.com/zeusync/skygraph/internal/core/observability/log"
	"github.com/zeusync/skygraph/internal/core/observability/metrics"
	"github.com/zeusync/skygraph/internal/core/scene"
	"github.com/zeusync/skygraph/internal/core/simclock"
	"github.com/zeusync/skygraph/internal/engine"
	"github.com/zeusync/skygraph/internal/server"
	"github.com/zeusync/skygraph/internal/stream"
)

var ErrNoFrame = errors.New("no frame rendered yet")

// ProviderSet is every provider the App needs.
var ProviderSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideBus,
	ProvideClock,
	ProvideGraph,
	ProvideHub,
	ProvideEngine,
	ProvideServer,
	wire.Struct(new(App), "*"),
)

// App holds the long-lived components of a running process.
type App struct {
	Config  config.Config
	Logger  log.Log
	Metrics *metrics.Metrics
	Bus     bus.EventBus
	Clock   *simclock.Clock
	Graph   *scene.Graph
	Hub     *stream.Hub
	Engine  *engine.Engine
	Server  *server.Server
}

func ProvideLogger(cfg config.Config) log.Log {
	return log.NewWithConfig(cfg.LoggerConfig())
}

func ProvideMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

// ProvideBus returns the bus carrying scene events, counted by m.
func ProvideBus(m *metrics.Metrics) (bus.EventBus, error) {
	b := bus.New()
	b.AddObserver(m.BusObserver())
	if err := b.CreateTopic(scene.EventTopic, bus.TopicConfig{
		Description: "scene graph structure and visibility changes",
	}); err != nil {
		return nil, err
	}
	return b, nil
}

func ProvideClock(cfg config.Config) (*simclock.Clock, error) {
	return simclock.New(cfg.StartTime(time.Now()), cfg.Clock.Warp)
}

// ProvideGraph loads the configured scene file, or starts from a bare root.
func ProvideGraph(cfg config.Config, logger log.Log, b bus.EventBus, clock *simclock.Clock) (*scene.Graph, error) {
	opts := []scene.Option{
		scene.WithSink(bus.ToTopic(b, scene.EventTopic)),
		scene.WithLogger(logger),
		scene.WithClock(clock.Now),
		scene.WithToggles(cfg.SceneToggles()),
	}
	for _, ti := range b.GetTopics() {
		logger.Debug("Bus topic",
			log.String("topic", ti.Name),
			log.String("description", ti.Description),
			log.Int("subscribers", ti.Subs))
	}
	if cfg.Scene.Path == "" {
		return scene.NewGraph(opts...), nil
	}

	d, err := loadScene(cfg.Scene.Path)
	if err != nil {
		return nil, err
	}
	g, ids, err := d.Build(opts...)
	if err != nil {
		return nil, fmt.Errorf("scene %s: %w", cfg.Scene.Path, err)
	}
	logger.Info("Scene loaded",
		log.String("path", cfg.Scene.Path),
		log.Int("nodes", len(ids)))
	return g, nil
}

func loadScene(path string) (*scene.Description, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return scene.LoadJSON(f)
	}
	return scene.LoadYAML(f)
}

// ProvideHub returns the renderer feed and a cleanup that disconnects its clients.
func ProvideHub(cfg config.Config, logger log.Log, m *metrics.Metrics) (*stream.Hub, func()) {
	hub := stream.NewHub(stream.Config{
		SendQueue:    cfg.Feed.SendQueue,
		WriteTimeout: cfg.Feed.WriteTimeout,
	}, stream.WithLogger(logger), stream.WithRecorder(m))
	return hub, func() { _ = hub.Close() }
}

func ProvideEngine(cfg config.Config, g *scene.Graph, clock *simclock.Clock, hub *stream.Hub, m *metrics.Metrics, logger log.Log) (*engine.Engine, error) {
	return engine.New(g, clock, engine.Config{
		FPS:    cfg.Engine.FPS,
		Camera: mgl64.Vec3{cfg.Camera[0], cfg.Camera[1], cfg.Camera[2]},
	}, engine.WithPublisher(hub), engine.WithRecorder(m), engine.WithLogger(logger))
}

// ProvideServer reports healthy once the engine has rendered a frame.
func ProvideServer(cfg config.Config, hub *stream.Hub, m *metrics.Metrics, e *engine.Engine, logger log.Log) (*server.Server, error) {
	opts := []server.Option{
		server.WithLogger(logger),
		server.WithHealth(func() error {
			if _, frames := e.LastReport(); frames == 0 {
				return ErrNoFrame
			}
			return nil
		}),
	}
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
		opts = append(opts, server.WithMetrics(m.Handler()))
	}
	return server.NewServer(server.Config{
		ListenAddr:        cfg.Server.Addr,
		FeedPath:          cfg.Feed.Path,
		MetricsPath:       metricsPath,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		Token:             cfg.Feed.Token,
	}, hub, opts...)
}
