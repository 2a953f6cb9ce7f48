// Package sse implements Server-Sent Events for real-time library updates.
package sse

import (
	"time"

	"github.com/inkwellapp/inkwell-server/internal/domain"
)

// Inkwell uses SSE for server-to-client communication only; every client
// interaction follows a request/response pattern, so a one-way stream is
// all the browser UI needs to keep the shelf current.

// EventType represents the type of SSE event.
type EventType string

const (
	// EventBookCreated represents a book import.
	EventBookCreated EventType = "book.created"
	// EventBookUpdated represents a book metadata or state update.
	EventBookUpdated EventType = "book.updated"
	// EventBookTrashed represents a book moved to the trash.
	EventBookTrashed EventType = "book.trashed"
	// EventBookRestored represents a book restored from the trash.
	EventBookRestored EventType = "book.restored"
	// EventBookDeleted represents a permanent book deletion.
	EventBookDeleted EventType = "book.deleted"

	// EventRebuildStarted represents an index rebuild start.
	EventRebuildStarted EventType = "index.rebuild_started"
	// EventRebuildCompleted represents an index rebuild completion.
	EventRebuildCompleted EventType = "index.rebuild_completed"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
// The Data field contains the event payload as a JSON object for direct
// deserialization.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`
}

// BookEventData is the data payload for book events. The full book record
// is included so events are self-contained and immediately renderable
// without a follow-up fetch.
type BookEventData struct {
	Book *domain.Book `json:"book"`
}

// BookDeletedEventData is the data payload for book delete events.
type BookDeletedEventData struct {
	DeletedAt time.Time `json:"deleted_at"`
	BookID    string    `json:"book_id"`
}

// RebuildEventData is the data payload for index rebuild events.
type RebuildEventData struct {
	Books   int    `json:"books,omitempty"`
	Elapsed string `json:"elapsed,omitempty"`
}

// NewBookCreatedEvent creates a book creation event.
func NewBookCreatedEvent(book *domain.Book) Event {
	return Event{
		Type:      EventBookCreated,
		Timestamp: time.Now(),
		Data:      BookEventData{Book: book},
	}
}

// NewBookUpdatedEvent creates a book update event.
func NewBookUpdatedEvent(book *domain.Book) Event {
	return Event{
		Type:      EventBookUpdated,
		Timestamp: time.Now(),
		Data:      BookEventData{Book: book},
	}
}

// NewBookTrashedEvent creates a book trashed event.
func NewBookTrashedEvent(book *domain.Book) Event {
	return Event{
		Type:      EventBookTrashed,
		Timestamp: time.Now(),
		Data:      BookEventData{Book: book},
	}
}

// NewBookRestoredEvent creates a book restored event.
func NewBookRestoredEvent(book *domain.Book) Event {
	return Event{
		Type:      EventBookRestored,
		Timestamp: time.Now(),
		Data:      BookEventData{Book: book},
	}
}

// NewBookDeletedEvent creates a book deletion event.
func NewBookDeletedEvent(bookID string) Event {
	return Event{
		Type:      EventBookDeleted,
		Timestamp: time.Now(),
		Data:      BookDeletedEventData{BookID: bookID, DeletedAt: time.Now()},
	}
}

// NewRebuildStartedEvent creates an index rebuild start event.
func NewRebuildStartedEvent() Event {
	return Event{
		Type:      EventRebuildStarted,
		Timestamp: time.Now(),
		Data:      RebuildEventData{},
	}
}

// NewRebuildCompletedEvent creates an index rebuild completion event.
func NewRebuildCompletedEvent(books int, elapsed time.Duration) Event {
	return Event{
		Type:      EventRebuildCompleted,
		Timestamp: time.Now(),
		Data:      RebuildEventData{Books: books, Elapsed: elapsed.String()},
	}
}

// NewHeartbeatEvent creates a keepalive event.
func NewHeartbeatEvent() Event {
	return Event{
		Type:      EventHeartbeat,
		Timestamp: time.Now(),
		Data:      map[string]string{"status": "alive"},
	}
}
