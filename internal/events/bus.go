package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Event names broadcast to front-end windows.
const (
	STTStatus = "stt_status" // bool payload
	STTError  = "stt_error"  // string payload
)

// Event is one application-wide broadcast.
type Event struct {
	ID      string    `json:"id"`
	Name    string    `json:"event"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

// Bus fans events out to every subscriber. Emit never blocks: a subscriber
// whose buffer is full misses that event.
type Bus struct {
	mu      sync.RWMutex
	nextID  uint64
	subs    map[uint64]chan Event
	dropped atomic.Uint64
	onDrop  func()
}

func New() *Bus { return &Bus{subs: make(map[uint64]chan Event)} }

// OnDrop installs a callback invoked every time an event is dropped for a slow subscriber.
func (b *Bus) OnDrop(fn func()) {
	b.mu.Lock()
	b.onDrop = fn
	b.mu.Unlock()
}

// Subscribe returns a channel of future events and a cancel func that
// unsubscribes and closes the channel. cancel is safe to call more than once.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Emit broadcasts name/payload and returns the event that was sent.
func (b *Bus) Emit(name string, payload any) Event {
	e := Event{ID: uuid.NewString(), Name: name, Payload: payload, At: time.Now().UTC()}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
			if b.onDrop != nil {
				b.onDrop()
			}
		}
	}
	return e
}

// Subscribers returns the number of attached subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns the total number of events dropped for slow subscribers.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }
