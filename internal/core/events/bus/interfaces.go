package bus

import "time"

// EventBus is a thread-safe, in-process pub/sub bus for graph notifications.
//
// Handlers subscribe by Event.Type() within an optional topic; the default
// topic is "". Delivery is synchronous, in subscription order, on the
// publisher's goroutine, and handler errors are joined into the return value.
// Counters are only maintained while at least one observer is registered.
type EventBus interface {
	// Publish delivers the event to the subscribers of event.Type() in the default topic.
	Publish(event Event) error
	// Subscribe registers a handler in the default topic.
	Subscribe(eventType string, handler EventHandler) (Subscription, error)
	// Unsubscribe cancels the subscription. A nil subscription is ignored.
	Unsubscribe(Subscription) error

	// CreateTopic declares a topic; repeat declarations are no-ops.
	CreateTopic(name string, config TopicConfig) error
	SubscribeTopic(topic, eventType string, handler EventHandler) (Subscription, error)
	PublishToTopic(topic string, event Event) error

	AddObserver(obs EventBusObserver)
	RemoveObserver(obs EventBusObserver)
	// GetMetrics returns a snapshot of the counters.
	GetMetrics() EventBusMetrics
	// GetTopics lists the known topics sorted by name.
	GetTopics() []TopicInfo
}

// Event is an immutable message. Timestamp is the instant the event refers
// to, which for graph events is the simulation instant when one is known.
type Event interface {
	Type() string
	Source() string
	Timestamp() time.Time
	Data() any
	Metadata() map[string]any
}

// EventHandler is invoked once per delivered event.
type EventHandler func(event Event) error

// Subscription is a registered handler. Cancel is idempotent.
type Subscription interface {
	ID() string
	EventType() string
	Topic() string
	IsActive() bool
	Cancel() error
}

// TopicConfig describes topic-level settings.
type TopicConfig struct {
	// Description is informational only.
	Description string
}

// EventBusObserver is told about every publish and delivery. Observers must
// return quickly; they run on the publisher's goroutine.
type EventBusObserver interface {
	OnPublish(topic, eventType string, event Event)
	OnDelivered(topic, eventType string, handlers int, err error, duration time.Duration)
}

// EventBusMetrics holds counters updated while observed.
type EventBusMetrics struct {
	Published         uint64
	DeliveredHandlers uint64
	Errors            uint64
	SubscribersActive uint64
	Topics            uint64
}

type TopicInfo struct {
	Name        string
	Description string
	EventTypes  int
	Subs        int
}
