// Package events allows clients to register for and receive proposal and
// vote activity happening inside the service.
package events

import (
	"fmt"
	"sync"
	"time"
)

// Event represents a single piece of proposal or vote activity.
type Event struct {
	Kind       string    `json:"kind"`
	ProposalID uint64    `json:"proposal_id"`
	Message    string    `json:"message"`
	At         time.Time `json:"at"`
}

// Events maintains a mapping of unique id and channels so goroutines
// can register and receive events.
type Events struct {
	m  map[string]chan Event
	mu sync.RWMutex
}

// New constructs an events value for registering and receiving events.
func New() *Events {
	return &Events{
		m: make(map[string]chan Event),
	}
}

// Shutdown closes and removes all channels that were provided by
// the call to Acquire.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, ch := range evt.m {
		delete(evt.m, id)
		close(ch)
	}
}

// Acquire takes a unique id and returns a channel that can be used
// to receive events.
func (evt *Events) Acquire(id string) chan Event {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if exists {
		return ch
	}

	// Since an event is dropped if the websocket receiver is not ready to
	// receive, this buffer gives a slow receiver room not to lose events.
	const eventBuffer = 100

	evt.m[id] = make(chan Event, eventBuffer)
	return evt.m[id]
}

// Release closes and removes the channel that was provided by
// the call to Acquire.
func (evt *Events) Release(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if !exists {
		return fmt.Errorf("id %q does not exist", id)
	}

	delete(evt.m, id)
	close(ch)
	return nil
}

// Send delivers an event to every registered channel. Send will not block
// waiting for a receiver on any given channel.
func (evt *Events) Send(kind string, proposalID uint64, format string, args ...any) {
	ev := Event{
		Kind:       kind,
		ProposalID: proposalID,
		Message:    fmt.Sprintf(format, args...),
		At:         time.Now().UTC(),
	}

	evt.mu.RLock()
	defer evt.mu.RUnlock()

	for _, ch := range evt.m {
		select {
		case ch <- ev:
		default:
		}
	}
}
