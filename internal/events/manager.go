// Package events provides typed event emission and pub/sub for audit trails
// and operator-facing feeds.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType represents different event types
type EventType string

const (
	TradeExecuted          EventType = "TRADE_EXECUTED"
	TradeRejected          EventType = "TRADE_REJECTED"
	DrawdownWarning        EventType = "DRAWDOWN_WARNING"
	DrawdownCritical       EventType = "DRAWDOWN_CRITICAL"
	KillSwitchActivated    EventType = "KILL_SWITCH_ACTIVATED"
	KillSwitchDeactivated  EventType = "KILL_SWITCH_DEACTIVATED"
	CircuitBreakerTripped  EventType = "CIRCUIT_BREAKER_TRIPPED"
	CircuitBreakerReset    EventType = "CIRCUIT_BREAKER_RESET"
	ErrorOccurred          EventType = "ERROR_OCCURRED"
	ExecutionRecordExpired EventType = "EXECUTION_RECORD_EXPIRED"
)

// Event represents a system event
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
	Module    string         `json:"module"`
}

// Bus is a simple fan-out pub/sub bus. Subscribers receive every event;
// a slow subscriber drops events rather than blocking emission.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber. The returned cancel function must be
// called to release the subscription.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 16
	}

	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan Event, buffer)
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to all subscribers without blocking
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			// Subscriber buffer full, drop rather than block
		}
	}
}

// Manager handles event emission, logging and bus delivery
type Manager struct {
	bus *Bus
	log zerolog.Logger
}

// NewManager creates a new event manager
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("service", "events").Logger(),
	}
}

// Emit emits an event
func (m *Manager) Emit(eventType EventType, module string, data map[string]any) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Module:    module,
	}

	eventJSON, _ := json.Marshal(event)
	m.log.Info().
		Str("event_type", string(eventType)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("Event emitted")

	if m.bus != nil {
		m.bus.Publish(event)
	}
}

// EmitError emits an error event
func (m *Manager) EmitError(module string, err error, context map[string]any) {
	data := map[string]any{
		"error":   err.Error(),
		"context": context,
	}
	m.Emit(ErrorOccurred, module, data)
}
