package scene

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/zeusync/skygraph/internal/core/events/bus"
	"github.com/zeusync/skygraph/internal/core/mathx"
	"github.com/zeusync/skygraph/internal/core/observability/log"
)

// DefaultRootName names the root when no other name is configured.
const DefaultRootName = "Universe"

type slot struct {
	gen  uint32
	node *Node
}

// Graph owns every node of a scene. Nodes live in an arena and are addressed
// by NodeID; a node is either attached below the root or detached.
//
// A Graph is not safe for concurrent use. Traversals and mutations must be
// serialized by the caller.
type Graph struct {
	slots   []slot
	free    []uint32
	count   int
	root    NodeID
	toggles Toggles

	sink   Sink
	logger log.Log
	clock  func() time.Time
}

// Option configures a Graph.
type Option func(*graphOptions)

type graphOptions struct {
	rootName string
	sink     Sink
	logger   log.Log
	toggles  *Toggles
	clock    func() time.Time
}

// WithSink sets where structural and visibility events go.
func WithSink(s Sink) Option {
	return func(o *graphOptions) { o.sink = s }
}

func WithLogger(l log.Log) Option {
	return func(o *graphOptions) { o.logger = l }
}

func WithRootName(name string) Option {
	return func(o *graphOptions) { o.rootName = name }
}

// WithToggles sets the initial component type gates. The default has every
// type on.
func WithToggles(t Toggles) Option {
	return func(o *graphOptions) { o.toggles = &t }
}

// WithClock sets the time source used to stamp events, typically the
// simulation clock.
func WithClock(now func() time.Time) Option {
	return func(o *graphOptions) { o.clock = now }
}

// NewGraph creates a graph holding only its root.
func NewGraph(opts ...Option) *Graph {
	o := graphOptions{rootName: DefaultRootName}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sink == nil {
		o.sink = nopSink{}
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	if o.logger == nil {
		o.logger = log.NewNop()
	}
	toggles := NewToggles()
	if o.toggles != nil {
		toggles = *o.toggles
	}

	g := &Graph{
		slots:   make([]slot, 1, 64), // slot 0 is never used so NoNode stays invalid
		toggles: toggles,
		sink:    o.sink,
		logger:  o.logger.Named("scene"),
		clock:   o.clock,
	}
	g.root = g.alloc(newNode(o.rootName))
	return g
}

func (g *Graph) alloc(n *Node) NodeID {
	var idx uint32
	if k := len(g.free); k > 0 {
		idx = g.free[k-1]
		g.free = g.free[:k-1]
	} else {
		g.slots = append(g.slots, slot{})
		idx = uint32(len(g.slots) - 1)
	}
	s := &g.slots[idx]
	s.gen++
	s.node = n
	n.id = newNodeID(idx, s.gen)
	g.count++
	return n.id
}

func (g *Graph) release(id NodeID) {
	s := &g.slots[id.index()]
	s.node = nil
	g.free = append(g.free, id.index())
	g.count--
}

func (g *Graph) get(id NodeID) (*Node, error) {
	idx := id.index()
	if id == NoNode || int(idx) >= len(g.slots) {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	s := g.slots[idx]
	if s.node == nil || s.gen != id.gen() {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return s.node, nil
}

// Root returns the id of the root node.
func (g *Graph) Root() NodeID { return g.root }

// Len counts live nodes, attached or not, root included.
func (g *Graph) Len() int { return g.count }

// Contains reports whether id refers to a live node.
func (g *Graph) Contains(id NodeID) bool {
	_, err := g.get(id)
	return err == nil
}

// Node resolves an id. The returned node must not be retained across removals.
func (g *Graph) Node(id NodeID) (*Node, error) { return g.get(id) }

// NewNode creates a detached node. Attach it with AddChild.
func (g *Graph) NewNode(name string, opts ...NodeOption) NodeID {
	return g.alloc(newNode(name, opts...))
}

// Add creates a node directly below parent.
func (g *Graph) Add(parent NodeID, name string, opts ...NodeOption) (NodeID, error) {
	if _, err := g.get(parent); err != nil {
		return NoNode, err
	}
	id := g.NewNode(name, opts...)
	if err := g.AddChild(parent, id); err != nil {
		g.release(id)
		return NoNode, err
	}
	return id, nil
}

// AddChild makes child the last child of parent, detaching it from any
// previous parent first. Edges that would close a cycle are rejected and
// leave the graph unchanged.
func (g *Graph) AddChild(parent, child NodeID) error {
	p, err := g.get(parent)
	if err != nil {
		return err
	}
	c, err := g.get(child)
	if err != nil {
		return err
	}
	for cur := parent; cur != NoNode; {
		if cur == child {
			return fmt.Errorf("%w: %q under %q", ErrCycle, c.name, p.name)
		}
		n, _ := g.get(cur)
		cur = n.parent
	}
	if child == g.root {
		return ErrRootImmutable
	}
	if c.parent == parent {
		return nil
	}
	if c.parent != NoNode {
		g.unlink(c)
	}
	p.children = append(p.children, child)
	c.parent = parent

	g.publish(EventNodeAttached, AttachEvent{Node: child, Name: c.name, Parent: parent})
	return nil
}

// Detach unlinks a node and its subtree from its parent. The nodes stay alive.
func (g *Graph) Detach(id NodeID) error {
	n, err := g.get(id)
	if err != nil {
		return err
	}
	if id == g.root {
		return ErrRootImmutable
	}
	if n.parent == NoNode {
		return nil
	}
	former := n.parent
	g.unlink(n)
	g.publish(EventNodeDetached, AttachEvent{Node: id, Name: n.name, Parent: former})
	return nil
}

// Remove destroys a node and its whole subtree. Their ids stop resolving.
func (g *Graph) Remove(id NodeID) error {
	n, err := g.get(id)
	if err != nil {
		return err
	}
	if id == g.root {
		return ErrRootImmutable
	}
	if n.parent != NoNode {
		g.unlink(n)
	}
	removed := make([]NodeID, 0, 1+len(n.children))
	g.walk(id, func(x *Node) bool {
		removed = append(removed, x.id)
		return true
	})
	for _, rid := range removed {
		g.release(rid)
	}
	g.publish(EventNodeRemoved, RemoveEvent{Node: id, Name: n.name, Removed: removed})
	return nil
}

func (g *Graph) unlink(n *Node) {
	p, err := g.get(n.parent)
	if err == nil {
		for i, cid := range p.children {
			if cid == n.id {
				p.children = append(p.children[:i], p.children[i+1:]...)
				break
			}
		}
	}
	n.parent = NoNode
}

// Parent returns NoNode for the root and for detached nodes.
func (g *Graph) Parent(id NodeID) (NodeID, error) {
	n, err := g.get(id)
	if err != nil {
		return NoNode, err
	}
	return n.parent, nil
}

func (g *Graph) Children(id NodeID) ([]NodeID, error) {
	n, err := g.get(id)
	if err != nil {
		return nil, err
	}
	return n.Children(), nil
}

// IsAttached reports whether the node is reachable from the root.
func (g *Graph) IsAttached(id NodeID) bool {
	for cur := id; cur != NoNode; {
		if cur == g.root {
			return true
		}
		n, err := g.get(cur)
		if err != nil {
			return false
		}
		cur = n.parent
	}
	return false
}

// Depth is the number of edges between the node and the top of its tree.
func (g *Graph) Depth(id NodeID) (int, error) {
	n, err := g.get(id)
	if err != nil {
		return 0, err
	}
	depth := 0
	for n.parent != NoNode {
		n, _ = g.get(n.parent)
		depth++
	}
	return depth, nil
}

// Lookup finds the first attached node with the given name, case-insensitively,
// in depth-first order.
func (g *Graph) Lookup(name string) (NodeID, bool) {
	found := NoNode
	g.walk(g.root, func(n *Node) bool {
		if found != NoNode {
			return false
		}
		if strings.EqualFold(n.name, name) {
			found = n.id
			return false
		}
		return true
	})
	return found, found != NoNode
}

// Walk visits attached nodes depth-first, parents before children and
// children in insertion order. Returning false skips the node's subtree.
func (g *Graph) Walk(fn func(n *Node) bool) {
	g.walk(g.root, fn)
}

func (g *Graph) walk(id NodeID, fn func(n *Node) bool) {
	n, err := g.get(id)
	if err != nil || !fn(n) {
		return
	}
	for _, cid := range n.children {
		g.walk(cid, fn)
	}
}

// SetTransformer replaces the node's local-transform strategy.
func (g *Graph) SetTransformer(id NodeID, t Transformer) error {
	n, err := g.get(id)
	if err != nil {
		return err
	}
	n.transformer = t
	return nil
}

// SetOrientation sets the body orientation that child orbits with
// InheritOrientation compose on the next traversal.
func (g *Graph) SetOrientation(id NodeID, m mgl64.Mat4) error {
	n, err := g.get(id)
	if err != nil {
		return err
	}
	if !mathx.IsFiniteMat4(m) {
		return ErrNonFinite
	}
	n.orientation = m
	return nil
}

// SetLocalTransform stores a local transform directly. Nodes with a
// transformer overwrite it on the next traversal.
func (g *Graph) SetLocalTransform(id NodeID, m mgl64.Mat4) error {
	n, err := g.get(id)
	if err != nil {
		return err
	}
	if !mathx.IsFiniteMat4(m) {
		return ErrNonFinite
	}
	n.setLocal(m)
	return nil
}

// AbsolutePosition is the translation part of the node's world transform as
// of the last traversal.
func (g *Graph) AbsolutePosition(id NodeID) (mgl64.Vec3, error) {
	n, err := g.get(id)
	if err != nil {
		return mgl64.Vec3{}, err
	}
	return mathx.Translation(n.world), nil
}

// Visibility is the capability lookup for a node's visibility switch.
func (g *Graph) Visibility(id NodeID) (Switch, error) {
	n, err := g.get(id)
	if err != nil {
		return nil, err
	}
	if n.visibility == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoVisibility, n.name)
	}
	return n.visibility, nil
}

// SetVisible flips the node's own visibility flag.
func (g *Graph) SetVisible(id NodeID, visible bool) error {
	sw, err := g.Visibility(id)
	if err != nil {
		return err
	}
	if sw.IsVisible() == visible {
		return nil
	}
	sw.SetVisible(visible)
	g.publish(EventVisibilityChanged, VisibilityEvent{Node: id, Name: sw.Name(), Visible: visible})
	return nil
}

// IsVisible evaluates the full gate for a node: its own flag and the global
// toggles of all its component types. Nodes without a switch are visible.
func (g *Graph) IsVisible(id NodeID) (bool, error) {
	n, err := g.get(id)
	if err != nil {
		return false, err
	}
	return g.visible(n), nil
}

func (g *Graph) visible(n *Node) bool {
	if n.visibility == nil {
		return true
	}
	return n.visibility.IsVisibleFor(g.toggles.AllOn(n.ComponentTypes()))
}

// SetToggle switches a whole component type on or off.
func (g *Graph) SetToggle(ct ComponentType, on bool) {
	g.toggles.Set(ct, on)
}

func (g *Graph) Toggles() Toggles { return g.toggles }

func (g *Graph) publish(typ string, payload any) {
	e := bus.NewEventAt(typ, eventSource, g.clock(), payload, nil)
	if err := g.sink.Publish(e); err != nil {
		g.logger.Debug("event delivery failed", log.String("type", typ), log.Error(err))
	}
}
