package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
)

var (
	ErrClientClosed = errors.New("feed client closed")
	ErrNoBaseline   = errors.New("delta frame before any full frame")
)

// Client reads frames from a feed endpoint.
type Client struct {
	conn   *websocket.Conn
	frames chan Frame
	done   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error
}

// Dial connects to a feed such as ws://localhost:8080/feed. A non-empty token
// is sent as a bearer header.
func Dial(ctx context.Context, feedURL, token string) (*Client, error) {
	u, err := url.Parse(feedURL)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", u.Redacted(), resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}

	c := &Client{
		conn:   conn,
		frames: make(chan Frame, 16),
		done:   make(chan struct{}),
	}
	go c.readFrames()
	return c, nil
}

func (c *Client) readFrames() {
	defer close(c.frames)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.setErr(err)
			}
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.setErr(fmt.Errorf("decode frame: %w", err))
			return
		}
		select {
		case c.frames <- f:
		case <-c.done:
			return
		}
	}
}

func (c *Client) setErr(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
}

// Frames is closed when the connection ends; Err then tells why.
func (c *Client) Frames() <-chan Frame { return c.frames }

// Next blocks for the next frame.
func (c *Client) Next(ctx context.Context) (Frame, error) {
	select {
	case f, ok := <-c.frames:
		if !ok {
			if err := c.Err(); err != nil {
				return Frame{}, err
			}
			return Frame{}, ErrClientClosed
		}
		return f, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = c.conn.Close()
	})
	return err
}

// Mirror rebuilds the renderer state from a frame sequence.
type Mirror struct {
	seq   uint64
	ready bool
	nodes map[string]NodeMessage
	order []string
}

func NewMirror() *Mirror {
	return &Mirror{nodes: make(map[string]NodeMessage)}
}

// Apply folds a frame into the mirror. A full frame replaces everything.
func (m *Mirror) Apply(f Frame) error {
	switch f.Type {
	case FrameFull:
		m.nodes = make(map[string]NodeMessage, len(f.Nodes))
		m.order = m.order[:0]
		for _, n := range f.Nodes {
			m.put(n)
		}
		m.ready = true
	case FrameDelta:
		if !m.ready {
			return ErrNoBaseline
		}
		for _, id := range f.Removed {
			delete(m.nodes, id)
		}
		for _, n := range f.Nodes {
			m.put(n)
		}
		if len(f.Removed) > 0 {
			m.compact()
		}
	default:
		return fmt.Errorf("unknown frame type %q", f.Type)
	}
	m.seq = f.Seq
	return nil
}

func (m *Mirror) put(n NodeMessage) {
	if _, ok := m.nodes[n.ID]; !ok {
		m.order = append(m.order, n.ID)
	}
	m.nodes[n.ID] = n
}

func (m *Mirror) compact() {
	kept := m.order[:0]
	for _, id := range m.order {
		if _, ok := m.nodes[id]; ok {
			kept = append(kept, id)
		}
	}
	m.order = kept
}

func (m *Mirror) Seq() uint64 { return m.seq }
func (m *Mirror) Len() int    { return len(m.nodes) }

func (m *Mirror) Node(id string) (NodeMessage, bool) {
	n, ok := m.nodes[id]
	return n, ok
}

// Lookup finds a node by name.
func (m *Mirror) Lookup(name string) (NodeMessage, bool) {
	for _, id := range m.order {
		if n := m.nodes[id]; n.Name == name {
			return n, true
		}
	}
	return NodeMessage{}, false
}

// Nodes lists nodes in first-seen order.
func (m *Mirror) Nodes() []NodeMessage {
	out := make([]NodeMessage, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.nodes[id])
	}
	return out
}
