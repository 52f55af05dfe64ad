// Package stream pushes scene snapshots to renderers over WebSocket.
package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zeusync/skygraph/internal/core/observability/log"
	"github.com/zeusync/skygraph/internal/core/scene"
	"github.com/zeusync/skygraph/pkg/generic"
)

var ErrHubClosed = errors.New("feed hub is closed")

const maxClientMessage = 512

// Recorder receives feed statistics. *metrics.Metrics satisfies it.
type Recorder interface {
	ClientConnected()
	ClientDisconnected()
	FrameSent(kind string)
	FrameDropped()
}

type nopRecorder struct{}

func (nopRecorder) ClientConnected()    {}
func (nopRecorder) ClientDisconnected() {}
func (nopRecorder) FrameSent(string)    {}
func (nopRecorder) FrameDropped()       {}

type Config struct {
	// SendQueue bounds the frames waiting for one client.
	SendQueue    int
	WriteTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{SendQueue: 8, WriteTimeout: 5 * time.Second}
}

type Option func(*Hub)

func WithLogger(l log.Log) Option {
	return func(h *Hub) { h.logger = l }
}

func WithRecorder(r Recorder) Option {
	return func(h *Hub) { h.recorder = r }
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	// resync asks for a full frame on the next publish, after connecting or
	// after a dropped frame.
	resync bool
}

// Hub fans snapshots out to connected renderers. Publish never blocks on a
// client: a full queue drops the frame and the client is resynchronized with
// a full frame later.
type Hub struct {
	cfg      Config
	upgrader websocket.Upgrader
	logger   log.Log
	recorder Recorder
	buffers  *generic.Pool[*bytes.Buffer]

	mu      sync.Mutex
	clients map[string]*client
	closed  bool
	seq     uint64
	instant time.Time
	latest  []scene.NodeState
	hashes  map[scene.NodeID]uint64

	wg sync.WaitGroup
}

func NewHub(cfg Config, opts ...Option) *Hub {
	def := DefaultConfig()
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = def.SendQueue
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	h := &Hub{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
		},
		logger:   log.NewNop(),
		recorder: nopRecorder{},
		buffers: generic.NewResetPool(func() *bytes.Buffer {
			return bytes.NewBuffer(make([]byte, 0, 16*1024))
		}, (*bytes.Buffer).Reset),
		clients: make(map[string]*client),
		hashes:  make(map[scene.NodeID]uint64),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.Named("feed")
	return h
}

// Clients counts connected renderers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish records a new snapshot and queues it to every client, as a delta
// or, for clients needing one, a full frame.
func (h *Hub) Publish(instant time.Time, states []scene.NodeState) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}

	hashes := make(map[scene.NodeID]uint64, len(states))
	var changed []NodeMessage
	for i := range states {
		st := &states[i]
		sum := stateHash(st)
		hashes[st.ID] = sum
		if prev, ok := h.hashes[st.ID]; !ok || prev != sum {
			changed = append(changed, nodeMessage(st))
		}
	}
	var removed []string
	for _, st := range h.latest {
		if _, ok := hashes[st.ID]; !ok {
			removed = append(removed, st.ID.String())
		}
	}

	h.seq++
	h.instant = instant
	h.latest = append(h.latest[:0], states...)
	h.hashes = hashes

	var full, delta []byte
	for _, c := range h.clients {
		if c.resync {
			if full == nil {
				full = h.encode(h.fullFrameLocked())
			}
			if h.enqueue(c, full, FrameFull) {
				c.resync = false
			}
			continue
		}
		if len(changed) == 0 && len(removed) == 0 {
			continue
		}
		if delta == nil {
			delta = h.encode(Frame{Type: FrameDelta, Seq: h.seq, Instant: instant, Nodes: changed, Removed: removed})
		}
		if !h.enqueue(c, delta, FrameDelta) {
			c.resync = true
		}
	}
	return nil
}

func (h *Hub) fullFrameLocked() Frame {
	return FullFrame(h.seq, h.instant, h.latest)
}

func (h *Hub) encode(f Frame) []byte {
	buf := h.buffers.Get()
	defer h.buffers.Put(buf)
	if err := json.NewEncoder(buf).Encode(f); err != nil {
		// frames only hold plain values
		panic(err)
	}
	return bytes.Clone(buf.Bytes())
}

func (h *Hub) enqueue(c *client, msg []byte, kind string) bool {
	select {
	case c.send <- msg:
		h.recorder.FrameSent(kind)
		return true
	default:
		h.recorder.FrameDropped()
		h.logger.Debug("client queue full, frame dropped", log.String("client_id", c.id), log.String("type", kind))
		return false
	}
}

// ServeHTTP upgrades the request and streams frames until either side closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, ErrHubClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", log.String("remote_addr", r.RemoteAddr), log.Error(err))
		return
	}

	c := &client{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, h.cfg.SendQueue),
		resync: true,
	}
	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	go func() {
		defer h.wg.Done()
		h.writeLoop(c)
	}()
	h.readLoop(c)
}

// register counts the client's writer in h.wg under the lock, so Close
// never waits on a group still growing.
func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.wg.Add(1)
	h.clients[c.id] = c
	if h.seq > 0 && h.enqueue(c, h.encode(h.fullFrameLocked()), FrameFull) {
		c.resync = false
	}
	h.recorder.ClientConnected()
	h.logger.Info("client connected",
		log.String("client_id", c.id),
		log.String("remote_addr", c.conn.RemoteAddr().String()),
		log.Int("total_clients", len(h.clients)))
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	close(c.send)
	h.recorder.ClientDisconnected()
	h.logger.Info("client disconnected",
		log.String("client_id", c.id),
		log.Int("total_clients", len(h.clients)))
}

// readLoop discards client messages; it exists to notice disconnects and to
// process control frames.
func (h *Hub) readLoop(c *client) {
	defer h.unregister(c)
	c.conn.SetReadLimit(maxClientMessage)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("client read failed", log.String("client_id", c.id), log.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	defer func() { _ = c.conn.Close() }()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Debug("client write failed", log.String("client_id", c.id), log.Error(err))
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(h.cfg.WriteTimeout))
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
		h.recorder.ClientDisconnected()
	}
	h.mu.Unlock()
	h.wg.Wait()
	return nil
}
