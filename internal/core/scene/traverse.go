package scene

import (
	"errors"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/zeusync/skygraph/internal/core/mathx"
	"github.com/zeusync/skygraph/internal/core/observability/log"
)

// Frame is the input of one traversal.
type Frame struct {
	Instant time.Time
	// Camera is the camera position in the root frame; it drives fade opacity.
	Camera mgl64.Vec3
}

// FrameReport summarizes one traversal.
type FrameReport struct {
	Instant time.Time
	// Visited counts attached nodes, root included.
	Visited int
	// Skipped counts nodes whose local update failed and kept the previous transform.
	Skipped int
	Errors  []*TransformError
}

// Err joins the per-node errors, nil when every node updated.
func (r FrameReport) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// UpdateLocalTransform recomputes one node's local transform for the instant.
// On failure the node keeps its previous local transform and the returned
// error is a *TransformError.
func (g *Graph) UpdateLocalTransform(id NodeID, instant time.Time) error {
	n, err := g.get(id)
	if err != nil {
		return err
	}
	return n.updateLocal(instant, g.parentOrientation(n))
}

// UpdateWorldTransform recomposes world transforms of the node and its
// subtree from the current local transforms. The parent's cached world
// transform is used as is, identity for a node without parent.
func (g *Graph) UpdateWorldTransform(id NodeID) error {
	n, err := g.get(id)
	if err != nil {
		return err
	}
	parentWorld := mgl64.Ident4()
	if n.parent != NoNode {
		p, _ := g.get(n.parent)
		parentWorld = p.world
	}
	g.compose(n, parentWorld)
	return nil
}

func (g *Graph) parentOrientation(n *Node) mgl64.Mat4 {
	if p, err := g.get(n.parent); err == nil {
		return p.orientation
	}
	return mgl64.Ident4()
}

func (g *Graph) compose(n *Node, parentWorld mgl64.Mat4) {
	n.compose(parentWorld)
	for _, cid := range n.children {
		c, _ := g.get(cid)
		g.compose(c, n.world)
	}
}

// Update runs one depth-first traversal of the attached hierarchy: for every
// node the local transform for frame.Instant, then the world transform, then
// the fade opacity. Parents are finished before their children and siblings
// go in insertion order. Failing nodes do not stop the traversal.
func (g *Graph) Update(frame Frame) FrameReport {
	report := FrameReport{Instant: frame.Instant}
	root, _ := g.get(g.root)
	g.update(root, mgl64.Ident4(), mgl64.Ident4(), 1, frame, &report)
	return report
}

func (g *Graph) update(n *Node, parentWorld, parentOrientation mgl64.Mat4, parentOpacity float64, frame Frame, report *FrameReport) {
	report.Visited++
	if err := n.updateLocal(frame.Instant, parentOrientation); err != nil {
		var te *TransformError
		if errors.As(err, &te) {
			report.Errors = append(report.Errors, te)
		}
		report.Skipped++
		g.logger.Warn("local transform skipped",
			log.String("node", n.name),
			log.String("id", n.id.String()),
			log.String("kind", n.Kind().String()),
			log.Time("instant", frame.Instant),
			log.Error(err),
		)
	}
	n.compose(parentWorld)

	n.opacity = parentOpacity
	if n.fade != nil {
		distance := frame.Camera.Sub(mathx.Translation(n.world)).Len()
		n.opacity *= n.fade.Factor(distance)
	}

	for _, cid := range n.children {
		c, _ := g.get(cid)
		g.update(c, n.world, n.orientation, n.opacity, frame, report)
	}
}
