package api

import (
	"sync"
)

// Event is one server-sent event for a problem.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// EventBroker fans problem events out to subscribers.
type EventBroker interface {
	Subscribe(problemID string) chan Event
	Unsubscribe(problemID string, ch chan Event)
	Publish(problemID string, evt Event)
}

// Broker is the in-process EventBroker. Slow subscribers drop events.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Broker) Subscribe(problemID string) chan Event {
	ch := make(chan Event, 8)
	b.mu.Lock()
	if b.subs[problemID] == nil {
		b.subs[problemID] = map[chan Event]struct{}{}
	}
	b.subs[problemID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(problemID string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[problemID]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, problemID)
	}
	close(ch)
}

func (b *Broker) Publish(problemID string, evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[problemID] {
		select {
		case ch <- evt:
		default:
		}
	}
}
