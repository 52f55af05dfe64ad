package scene

import (
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/zeusync/skygraph/internal/core/mathx"
)

// NodeID addresses a node in its graph: the low half is the arena slot, the
// high half the slot generation. Ids of removed nodes never resolve again.
type NodeID uint64

// NoNode is the zero id; it never refers to a node.
const NoNode NodeID = 0

func newNodeID(index, gen uint32) NodeID {
	return NodeID(uint64(gen)<<32 | uint64(index))
}

func (id NodeID) index() uint32 { return uint32(id) }
func (id NodeID) gen() uint32   { return uint32(id >> 32) }

func (id NodeID) String() string {
	if id == NoNode {
		return "none"
	}
	return fmt.Sprintf("%d.%d", id.index(), id.gen())
}

// Node is one element of the hierarchy. Its transforms are as fresh as the
// last traversal that visited it.
type Node struct {
	id          NodeID
	name        string
	description string
	parent      NodeID
	children    []NodeID

	transformer Transformer
	local       mgl64.Mat4
	localF      mgl32.Mat4
	world       mgl64.Mat4
	worldF      mgl32.Mat4
	opacity     float64
	lastErr     *TransformError
	// orientation is the body frame children may inherit; identity by default.
	orientation mgl64.Mat4

	visibility Switch
	fade       *Fade
}

// NodeOption configures a node at creation.
type NodeOption func(*Node)

func WithDescription(description string) NodeOption {
	return func(n *Node) { n.description = description }
}

// WithTransformer sets the local-transform strategy. Without one the node is
// static and keeps whatever SetLocalTransform stored.
func WithTransformer(t Transformer) NodeOption {
	return func(n *Node) { n.transformer = t }
}

// WithLocalTransform sets the initial local transform.
func WithLocalTransform(m mgl64.Mat4) NodeOption {
	return func(n *Node) { n.setLocal(m) }
}

// WithVisibility attaches the stock visibility component.
func WithVisibility(visible bool, types ...ComponentType) NodeOption {
	return func(n *Node) {
		n.visibility = NewVisibility(n.name, n.description, visible, TypesOf(types...))
	}
}

// WithSwitch attaches a custom visibility capability.
func WithSwitch(s Switch) NodeOption {
	return func(n *Node) { n.visibility = s }
}

// WithOrientation sets the body orientation that orbits of child nodes
// can inherit.
func WithOrientation(m mgl64.Mat4) NodeOption {
	return func(n *Node) { n.orientation = m }
}

func WithFade(f *Fade) NodeOption {
	return func(n *Node) { n.fade = f }
}

// WithCatalog makes the node a catalog node; see NewCatalog.
func WithCatalog(info *CatalogInfo, in, out *Range) NodeOption {
	return func(n *Node) { n.fade = NewCatalog(info, in, out) }
}

func newNode(name string, opts ...NodeOption) *Node {
	n := &Node{
		name:        name,
		local:       mgl64.Ident4(),
		localF:      mgl32.Ident4(),
		world:       mgl64.Ident4(),
		worldF:      mgl32.Ident4(),
		opacity:     1,
		orientation: mgl64.Ident4(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Node) ID() NodeID          { return n.id }
func (n *Node) Name() string        { return n.name }
func (n *Node) Description() string { return n.description }
func (n *Node) Parent() NodeID      { return n.parent }

// Children returns a copy of the child ids in insertion order.
func (n *Node) Children() []NodeID {
	out := make([]NodeID, len(n.children))
	copy(out, n.children)
	return out
}

func (n *Node) Transformer() Transformer { return n.transformer }

// Kind reports the strategy kind; nodes without a transformer are static.
func (n *Node) Kind() Kind {
	if n.transformer == nil {
		return KindStatic
	}
	return n.transformer.Kind()
}

func (n *Node) Orientation() mgl64.Mat4          { return n.orientation }
func (n *Node) LocalTransform() mgl64.Mat4       { return n.local }
func (n *Node) RenderLocalTransform() mgl32.Mat4 { return n.localF }
func (n *Node) WorldTransform() mgl64.Mat4       { return n.world }

// RenderTransform is the world transform narrowed to renderer precision.
func (n *Node) RenderTransform() mgl32.Mat4 { return n.worldF }

// Opacity is the fade opacity computed by the last traversal.
func (n *Node) Opacity() float64 { return n.opacity }

// LastError is the error of the most recent local update, nil when it succeeded.
func (n *Node) LastError() *TransformError { return n.lastErr }

// Visibility is the capability lookup for the visibility component.
func (n *Node) Visibility() (Switch, bool) { return n.visibility, n.visibility != nil }

func (n *Node) Fade() (*Fade, bool) { return n.fade, n.fade != nil }

// ComponentTypes returns the type tags of the node's visibility component.
func (n *Node) ComponentTypes() ComponentTypes {
	switch v := n.visibility.(type) {
	case nil:
		return 0
	case interface{ Types() ComponentTypes }:
		return v.Types()
	default:
		var s ComponentTypes
		for ct := ComponentType(0); ct < componentTypeCount; ct++ {
			if v.HasComponentType(ct) {
				s = s.With(ct)
			}
		}
		return s
	}
}

func (n *Node) HasComponentType(ct ComponentType) bool {
	return n.visibility != nil && n.visibility.HasComponentType(ct)
}

func (n *Node) setLocal(m mgl64.Mat4) {
	n.local = m
	n.localF = mathx.Narrow(m)
}

func (n *Node) compose(parentWorld mgl64.Mat4) {
	n.world = parentWorld.Mul4(n.local)
	n.worldF = mathx.Narrow(n.world)
}

// updateLocal runs the strategy. On failure the previous local transform is kept.
func (n *Node) updateLocal(instant time.Time, parentOrientation mgl64.Mat4) error {
	if n.transformer == nil {
		return nil
	}
	m, err := safeTransform(n.transformer, instant, parentOrientation)
	if err == nil && !mathx.IsFiniteMat4(m) {
		err = ErrNonFinite
	}
	if err != nil {
		n.lastErr = &TransformError{Node: n.id, Name: n.name, Instant: instant, Err: err}
		return n.lastErr
	}
	n.lastErr = nil
	n.setLocal(m)
	return nil
}

func safeTransform(t Transformer, instant time.Time, parentOrientation mgl64.Mat4) (m mgl64.Mat4, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTransformPanic, r)
		}
	}()
	if po, ok := t.(ParentOriented); ok {
		return po.TransformIn(instant, parentOrientation)
	}
	return t.Transform(instant)
}
