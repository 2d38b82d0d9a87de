// Package events provides the per-case SSE broadcaster that tells open file
// managers to refresh after a mutation.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/wouterc/sagsfiler/internal/metrics"
	"github.com/wouterc/sagsfiler/pkg/protocol"
)

const (
	EventCreated  = "created"
	EventRenamed  = "renamed"
	EventMoved    = "moved"
	EventDeleted  = "deleted"
	EventUploaded = "uploaded"
	EventLinked   = "linked"
	EventUnlinked = "unlinked"
)

// bufferSize is the per-subscriber queue; events beyond it are dropped.
const bufferSize = 64

// Broadcaster fans case events out to subscribers of that case.
type Broadcaster struct {
	mu     sync.RWMutex
	topics map[string]map[chan protocol.CaseEvent]struct{}
	total  int
}

// NewBroadcaster creates a new event broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		topics: make(map[string]map[chan protocol.CaseEvent]struct{}),
	}
}

// Subscribe adds a subscriber for one case and returns its event channel.
// The caller must call Unsubscribe when done.
func (b *Broadcaster) Subscribe(caseID string) chan protocol.CaseEvent {
	ch := make(chan protocol.CaseEvent, bufferSize)
	b.mu.Lock()
	subs, ok := b.topics[caseID]
	if !ok {
		subs = make(map[chan protocol.CaseEvent]struct{})
		b.topics[caseID] = subs
	}
	subs[ch] = struct{}{}
	b.total++
	total := b.total
	b.mu.Unlock()
	metrics.SetSSEConnectionsActive(int64(total))
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(caseID string, ch chan protocol.CaseEvent) {
	b.mu.Lock()
	subs := b.topics[caseID]
	if _, ok := subs[ch]; ok {
		delete(subs, ch)
		close(ch)
		b.total--
		if len(subs) == 0 {
			delete(b.topics, caseID)
		}
	}
	total := b.total
	b.mu.Unlock()
	metrics.SetSSEConnectionsActive(int64(total))
}

// Publish sends an event to the subscribers of event.CaseID. Non-blocking:
// drops events for slow consumers.
func (b *Broadcaster) Publish(event protocol.CaseEvent) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.topics[event.CaseID] {
		select {
		case ch <- event:
		default:
		}
	}
	metrics.RecordSSEEvent(event.Type)
}

// Count returns the number of subscribers of a case.
func (b *Broadcaster) Count(caseID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[caseID])
}

// Total returns the number of subscribers across all cases.
func (b *Broadcaster) Total() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.total
}

// MarshalEvent serializes an event to JSON.
func MarshalEvent(e protocol.CaseEvent) ([]byte, error) {
	return json.Marshal(e)
}
