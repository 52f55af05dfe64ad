package scene

import (
	"github.com/go-gl/mathgl/mgl32"
)

// NodeState is the renderer's view of one node after a traversal.
type NodeState struct {
	ID      NodeID
	Parent  NodeID
	Name    string
	Kind    Kind
	World   mgl32.Mat4
	Opacity float32
	Visible bool
	Types   ComponentTypes
	Catalog *CatalogInfo
}

// Snapshot lists the attached nodes in traversal order as of the last Update.
func (g *Graph) Snapshot() []NodeState {
	out := make([]NodeState, 0, g.count)
	g.walk(g.root, func(n *Node) bool {
		st := NodeState{
			ID:      n.id,
			Parent:  n.parent,
			Name:    n.name,
			Kind:    n.Kind(),
			World:   n.worldF,
			Opacity: float32(n.opacity),
			Visible: g.visible(n),
			Types:   n.ComponentTypes(),
		}
		if n.fade != nil {
			st.Catalog = n.fade.Metadata()
		}
		out = append(out, st)
		return true
	})
	return out
}
