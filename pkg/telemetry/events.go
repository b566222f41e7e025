package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a lifecycle event.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// RunID is the bulk run the event belongs to, if any.
	RunID string `json:"run_id,omitempty"`

	// Component is the lifecycle component the event concerns, if any.
	Component string `json:"component,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for lifecycle events.
const (
	EventTypeComponentRegistered   = "component.registered"
	EventTypeComponentUnregistered = "component.unregistered"
	EventTypeStateChanged          = "component.state_changed"
	EventTypeTransitionFailed      = "component.transition_failed"
	EventTypeComponentSkipped      = "component.skipped"
	EventTypeBulkStarted           = "bulk.started"
	EventTypeBulkCompleted         = "bulk.completed"
	EventTypeBulkFailed            = "bulk.failed"
	EventTypePolicyViolation       = "policy.violation"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions. In
// synchronous mode subscribers run on the publishing goroutine; in async
// mode a single worker drains a bounded buffer in publish order.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config:      cfg,
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	if cfg.EnableAsync {
		if cfg.BufferSize <= 0 {
			cancel()
			return nil, fmt.Errorf("event buffer size must be positive, got: %d", cfg.BufferSize)
		}
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil
		}
	}
	ep.mu.RUnlock()

	if ep.config.EnableAsync {
		select {
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
		}
		select {
		case ep.buffer <- event:
			return nil
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishRegistered publishes a component registration event.
func (ep *EventPublisher) PublishRegistered(component, priority string, dependencies int) error {
	return ep.Publish(Event{
		Type:      EventTypeComponentRegistered,
		Source:    "registry",
		Component: component,
		Message:   fmt.Sprintf("Component %s registered with priority %s", component, priority),
		Level:     EventLevelInfo,
		Data: map[string]interface{}{
			"priority":     priority,
			"dependencies": dependencies,
		},
	})
}

// PublishUnregistered publishes a component removal event.
func (ep *EventPublisher) PublishUnregistered(component, lastStatus string) error {
	return ep.Publish(Event{
		Type:      EventTypeComponentUnregistered,
		Source:    "registry",
		Component: component,
		Message:   fmt.Sprintf("Component %s unregistered", component),
		Level:     EventLevelInfo,
		Data: map[string]interface{}{
			"last_status": lastStatus,
		},
	})
}

// PublishStateChanged publishes a successful lifecycle transition.
func (ep *EventPublisher) PublishStateChanged(runID, component, operation, from, to string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:      EventTypeStateChanged,
		Source:    "orchestrator",
		RunID:     runID,
		Component: component,
		Message:   fmt.Sprintf("Component %s changed from %s to %s", component, from, to),
		Level:     EventLevelInfo,
		Data: map[string]interface{}{
			"operation": operation,
			"from":      from,
			"to":        to,
			"duration":  duration.Seconds(),
		},
	})
}

// PublishTransitionFailed publishes a failed lifecycle callback.
func (ep *EventPublisher) PublishTransitionFailed(runID, component, operation, reason string) error {
	return ep.Publish(Event{
		Type:      EventTypeTransitionFailed,
		Source:    "orchestrator",
		RunID:     runID,
		Component: component,
		Message:   fmt.Sprintf("Component %s failed to %s: %s", component, operation, reason),
		Level:     EventLevelError,
		Data: map[string]interface{}{
			"operation": operation,
			"reason":    reason,
		},
	})
}

// PublishComponentSkipped publishes a component passed over by a bulk operation.
func (ep *EventPublisher) PublishComponentSkipped(runID, component, reason string) error {
	return ep.Publish(Event{
		Type:      EventTypeComponentSkipped,
		Source:    "orchestrator",
		RunID:     runID,
		Component: component,
		Message:   fmt.Sprintf("Component %s skipped: %s", component, reason),
		Level:     EventLevelWarning,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishBulkStarted publishes the start of a bulk operation.
func (ep *EventPublisher) PublishBulkStarted(runID, operation string) error {
	return ep.Publish(Event{
		Type:    EventTypeBulkStarted,
		Source:  "orchestrator",
		RunID:   runID,
		Message: fmt.Sprintf("Bulk operation %s started", operation),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"operation": operation,
		},
	})
}

// PublishBulkCompleted publishes the successful end of a bulk operation.
func (ep *EventPublisher) PublishBulkCompleted(runID, operation string, counts map[string]int, duration time.Duration) error {
	data := map[string]interface{}{
		"operation": operation,
		"duration":  duration.Seconds(),
	}
	for k, v := range counts {
		data[k] = v
	}
	return ep.Publish(Event{
		Type:    EventTypeBulkCompleted,
		Source:  "orchestrator",
		RunID:   runID,
		Message: fmt.Sprintf("Bulk operation %s completed", operation),
		Level:   EventLevelInfo,
		Data:    data,
	})
}

// PublishBulkFailed publishes a bulk operation that returned an error.
func (ep *EventPublisher) PublishBulkFailed(runID, operation, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeBulkFailed,
		Source:  "orchestrator",
		RunID:   runID,
		Message: fmt.Sprintf("Bulk operation %s failed: %s", operation, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"operation": operation,
			"reason":    reason,
		},
	})
}

// PublishPolicyViolation publishes a registration admission violation.
func (ep *EventPublisher) PublishPolicyViolation(component, policyName, reason, severity string) error {
	level := EventLevelError
	if severity == "warning" || severity == "info" {
		level = EventLevelWarning
	}
	return ep.Publish(Event{
		Type:      EventTypePolicyViolation,
		Source:    "policy_engine",
		Component: component,
		Message:   fmt.Sprintf("Policy violation on component %s: %s - %s", component, policyName, reason),
		Level:     level,
		Data: map[string]interface{}{
			"policy":   policyName,
			"reason":   reason,
			"severity": severity,
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents delivers buffered events until shutdown, then drains the buffer.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	for {
		select {
		case event := <-ep.buffer:
			ep.deliverEvent(event)
		case <-ep.ctx.Done():
			for {
				select {
				case event := <-ep.buffer:
					ep.deliverEvent(event)
				default:
					return
				}
			}
		}
	}
}

// deliverEvent delivers an event to all matching subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	entries := make([]subscriberEntry, len(ep.subscribers))
	copy(entries, ep.subscribers)
	ep.mu.RUnlock()

	for _, entry := range entries {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher, delivering any
// buffered events first.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByRunID creates a filter that only allows events for a specific run.
func FilterByRunID(runID string) EventFilter {
	return func(event Event) bool {
		return event.RunID == runID
	}
}

// FilterByComponent creates a filter that only allows events for one component.
func FilterByComponent(name string) EventFilter {
	return func(event Event) bool {
		return event.Component == name
	}
}
