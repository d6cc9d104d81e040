package engine

import (
	"sync"
	"time"

	"solana-alpha-engine/internal/domain"
	"solana-alpha-engine/internal/observability"
)

// EventType names a lifecycle event.
type EventType string

const (
	EventPositionOpened     EventType = "position_opened"
	EventPositionReduced    EventType = "position_reduced"
	EventPositionClosed     EventType = "position_closed"
	EventExecutionConfirmed EventType = "execution_confirmed"
	EventExecutionFailed    EventType = "execution_failed"
	EventEmergencyExit      EventType = "emergency_exit"
	EventEngineStarted      EventType = "engine_started"
	EventEngineStopped      EventType = "engine_stopped"
)

// String returns the string representation of EventType.
func (t EventType) String() string {
	return string(t)
}

// Event is one engine lifecycle notification.
type Event struct {
	Type        EventType                `json:"type"`
	Symbol      string                   `json:"symbol,omitempty"`
	Execution   *domain.ExecutionRequest `json:"execution,omitempty"`
	Position    *domain.Position         `json:"position,omitempty"`
	RealizedPnL float64                  `json:"realized_pnl,omitempty"`
	Message     string                   `json:"message,omitempty"`
	At          time.Time                `json:"at"`
}

// DefaultSubscriberBuffer is the channel capacity of a subscription.
const DefaultSubscriberBuffer = 64

// bus fans events out to subscribers. Publishing never blocks: a subscriber
// whose buffer is full misses the event.
type bus struct {
	mu     sync.RWMutex
	subs   map[uint64]chan Event
	nextID uint64
}

func newBus() *bus {
	return &bus{subs: make(map[uint64]chan Event)}
}

func (b *bus) subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (b *bus) publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			observability.RecordEventDropped()
		}
	}
}

func (b *bus) len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
