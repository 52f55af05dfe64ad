package bus

import (
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type simpleEvent struct {
	typeStr string
	source  string
	ts      time.Time
	data    any
	meta    map[string]any
}

func (e simpleEvent) Type() string             { return e.typeStr }
func (e simpleEvent) Source() string           { return e.source }
func (e simpleEvent) Timestamp() time.Time     { return e.ts }
func (e simpleEvent) Data() any                { return e.data }
func (e simpleEvent) Metadata() map[string]any { return e.meta }

// NewEvent creates an event stamped with the current wall time.
func NewEvent(typ, src string, data any) Event {
	return NewEventAt(typ, src, time.Now(), data, nil)
}

// NewEventAt creates an event for a given instant.
func NewEventAt(typ, src string, ts time.Time, data any, metadata map[string]any) Event {
	return simpleEvent{typeStr: typ, source: src, ts: ts, data: data, meta: metadata}
}

type subscription struct {
	id        string
	topic     string
	eventType string
	handler   EventHandler

	mu     sync.Mutex
	active bool
	cancel func()
}

func (s *subscription) ID() string        { return s.id }
func (s *subscription) EventType() string { return s.eventType }
func (s *subscription) Topic() string     { return s.topic }

func (s *subscription) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *subscription) Cancel() error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil
	}
	s.active = false
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// topicState keeps subscribers per event type in registration order.
type topicState struct {
	config   TopicConfig
	handlers map[string][]*subscription
}

type inMemoryBus struct {
	mu        sync.RWMutex
	topics    map[string]*topicState
	metrics   EventBusMetrics
	observers []EventBusObserver
}

// New creates an empty bus.
func New() EventBus {
	return &inMemoryBus{topics: make(map[string]*topicState)}
}

func (b *inMemoryBus) Publish(event Event) error {
	return b.deliver("", event)
}

func (b *inMemoryBus) PublishToTopic(topic string, event Event) error {
	return b.deliver(topic, event)
}

// TopicSink publishes into one topic of a bus.
type TopicSink struct {
	bus   EventBus
	topic string
}

// ToTopic returns a publisher bound to topic.
func ToTopic(b EventBus, topic string) TopicSink {
	return TopicSink{bus: b, topic: topic}
}

func (s TopicSink) Publish(event Event) error {
	return s.bus.PublishToTopic(s.topic, event)
}

func (s TopicSink) Topic() string { return s.topic }

func (b *inMemoryBus) Subscribe(eventType string, handler EventHandler) (Subscription, error) {
	return b.SubscribeTopic("", eventType, handler)
}

func (b *inMemoryBus) SubscribeTopic(topic, eventType string, handler EventHandler) (Subscription, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ts := b.ensureTopicLocked(topic)
	s := &subscription{
		id:        uuid.NewString(),
		topic:     topic,
		eventType: eventType,
		handler:   handler,
		active:    true,
	}
	s.cancel = func() { b.remove(s) }
	ts.handlers[eventType] = append(ts.handlers[eventType], s)
	return s, nil
}

func (b *inMemoryBus) Unsubscribe(sub Subscription) error {
	if sub == nil {
		return nil
	}
	return sub.Cancel()
}

func (b *inMemoryBus) CreateTopic(name string, config TopicConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.topics[name]; exists {
		return nil
	}
	b.topics[name] = &topicState{config: config, handlers: make(map[string][]*subscription)}
	return nil
}

func (b *inMemoryBus) AddObserver(obs EventBusObserver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !slices.Contains(b.observers, obs) {
		b.observers = append(b.observers, obs)
	}
}

func (b *inMemoryBus) RemoveObserver(obs EventBusObserver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = slices.DeleteFunc(b.observers, func(o EventBusObserver) bool { return o == obs })
}

func (b *inMemoryBus) GetMetrics() EventBusMetrics {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.metrics
}

func (b *inMemoryBus) GetTopics() []TopicInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]TopicInfo, 0, len(b.topics))
	for name, ts := range b.topics {
		info := TopicInfo{Name: name, Description: ts.config.Description, EventTypes: len(ts.handlers)}
		for _, subs := range ts.handlers {
			info.Subs += len(subs)
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (b *inMemoryBus) ensureTopicLocked(topic string) *topicState {
	ts, ok := b.topics[topic]
	if !ok {
		ts = &topicState{handlers: make(map[string][]*subscription)}
		b.topics[topic] = ts
	}
	return ts
}

func (b *inMemoryBus) remove(s *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ts, ok := b.topics[s.topic]
	if !ok {
		return
	}
	subs := slices.DeleteFunc(ts.handlers[s.eventType], func(x *subscription) bool { return x == s })
	if len(subs) == 0 {
		delete(ts.handlers, s.eventType)
		return
	}
	ts.handlers[s.eventType] = subs
}

func (b *inMemoryBus) deliver(topic string, event Event) error {
	if event == nil {
		return ErrNilEvent
	}
	start := time.Now()
	etype := event.Type()

	b.mu.RLock()
	var subs []*subscription
	if ts := b.topics[topic]; ts != nil {
		subs = slices.Clone(ts.handlers[etype])
	}
	observers := slices.Clone(b.observers)
	b.mu.RUnlock()

	for _, obs := range observers {
		obs.OnPublish(topic, etype, event)
	}

	var all error
	delivered := 0
	for _, s := range subs {
		if !s.IsActive() {
			continue
		}
		delivered++
		if err := s.handler(event); err != nil {
			all = errors.Join(all, err)
		}
	}

	if len(observers) == 0 {
		return all
	}
	dur := time.Since(start)
	for _, obs := range observers {
		obs.OnDelivered(topic, etype, delivered, all, dur)
	}
	b.mu.Lock()
	b.metrics.Published++
	b.metrics.DeliveredHandlers += uint64(delivered)
	if all != nil {
		b.metrics.Errors++
	}
	b.metrics.Topics = uint64(len(b.topics))
	var active uint64
	for _, ts := range b.topics {
		for _, m := range ts.handlers {
			active += uint64(len(m))
		}
	}
	b.metrics.SubscribersActive = active
	b.mu.Unlock()
	return all
}
