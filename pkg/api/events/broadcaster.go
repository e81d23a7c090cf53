// Package events fans out data-change notifications to in-process
// subscribers such as websocket connections.
package events

import (
	"sync"
	"time"
)

// Event types.
const (
	TypeConversationSaved = "conversation.saved"
	TypeSummaryUpdated    = "summary.updated"
	TypeProjectDeleted    = "project.deleted"
)

// Event is one data-change notification.
type Event struct {
	Type           string    `json:"type"`
	UserID         int64     `json:"user_id"`
	ProjectID      int64     `json:"project_id,omitempty"`
	ConversationID int64     `json:"conversation_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Recorder observes broadcaster traffic. *metrics.Manager implements it.
type Recorder interface {
	RecordEventPublished(eventType string)
	RecordEventDropped()
}

type nopRecorder struct{}

func (nopRecorder) RecordEventPublished(string) {}
func (nopRecorder) RecordEventDropped()         {}

const defaultBuffer = 16

// Broadcaster fans events out to in-process subscribers. Delivery never
// blocks: a subscriber whose buffer is full misses the event.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	rec    Recorder
	closed bool
}

// NewBroadcaster returns an open broadcaster. rec may be nil.
func NewBroadcaster(rec Recorder) *Broadcaster {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Broadcaster{subs: map[chan Event]struct{}{}, rec: rec}
}

// Subscribe registers a channel with room for buffer events. After Close
// the returned channel is already closed.
func (b *Broadcaster) Subscribe(buffer int) chan Event {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
	} else {
		b.subs[ch] = struct{}{}
	}
	return ch
}

// Unsubscribe closes ch. Unknown channels are ignored.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// Broadcast stamps ev if needed and offers it to every subscriber.
func (b *Broadcaster) Broadcast(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	b.rec.RecordEventPublished(ev.Type)
	for ch := range b.subs {
		if !offer(ch, ev) {
			b.rec.RecordEventDropped()
		}
	}
}

func offer(ch chan Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	default:
		return false
	}
}

func (b *Broadcaster) emit(typ string, userID, projectID, conversationID int64) {
	b.Broadcast(Event{Type: typ, UserID: userID, ProjectID: projectID, ConversationID: conversationID})
}

func (b *Broadcaster) ConversationSaved(userID, projectID, conversationID int64) {
	b.emit(TypeConversationSaved, userID, projectID, conversationID)
}

func (b *Broadcaster) SummaryUpdated(userID, projectID, conversationID int64) {
	b.emit(TypeSummaryUpdated, userID, projectID, conversationID)
}

func (b *Broadcaster) ProjectDeleted(userID, projectID int64) {
	b.emit(TypeProjectDeleted, userID, projectID, 0)
}

// SubscriberCount returns the number of live subscriptions.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber channel; later subscriptions start closed.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for ch := range b.subs {
		close(ch)
	}
	clear(b.subs)
}
