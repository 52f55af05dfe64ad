package scene

import (
	"github.com/zeusync/skygraph/internal/core/events/bus"
)

// Event types published on the graph's sink.
const (
	EventNodeAttached      = "scene.node.attached"
	EventNodeDetached      = "scene.node.detached"
	EventNodeRemoved       = "scene.node.removed"
	EventVisibilityChanged = "scene.visibility.changed"

	eventSource = "scene"
)

// EventTopic is the bus topic the process routes graph events to.
const EventTopic = "scene"

// Sink receives structural and visibility notifications. Delivery is
// fire-and-forget: a failing sink never fails the graph operation.
// bus.EventBus and bus.TopicSink satisfy Sink.
type Sink interface {
	Publish(event bus.Event) error
}

type nopSink struct{}

func (nopSink) Publish(bus.Event) error { return nil }

// AttachEvent is the payload of EventNodeAttached and EventNodeDetached.
// Parent is the new parent on attach and the former parent on detach.
type AttachEvent struct {
	Node   NodeID
	Name   string
	Parent NodeID
}

// RemoveEvent is the payload of EventNodeRemoved. Removed lists the whole
// destroyed subtree, the subtree root first.
type RemoveEvent struct {
	Node    NodeID
	Name    string
	Removed []NodeID
}

// VisibilityEvent is the payload of EventVisibilityChanged.
type VisibilityEvent struct {
	Node    NodeID
	Name    string
	Visible bool
}
