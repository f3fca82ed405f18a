// Package sse implements Server-Sent Events that let UI shells observe
// committed changes.
package sse

import (
	"time"

	"github.com/shelflifeapp/shelflife/internal/store"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"

	// EventStoreReset tells observers the local store was recreated and
	// reads may be empty until the bulk refresh finishes.
	EventStoreReset EventType = "store.reset"
	// EventRefreshComplete reports a finished bulk refresh.
	EventRefreshComplete EventType = "store.refreshed"

	// EventReminderDue reports a product expiring soon.
	EventReminderDue EventType = "reminder.due"
)

// Event represents an SSE event to be sent to clients.
// The Data field contains the event payload as a JSON object for direct deserialization.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`
	// UserID limits delivery to one user's clients. Empty means everyone.
	UserID string `json:"-"`
}

// ReminderDueData is the payload of a reminder.due event.
type ReminderDueData struct {
	ProductID string    `json:"product_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ProductChangeData is the payload of product, usage and journey change events.
type ProductChangeData struct {
	EntityID  string `json:"entity_id"`
	ProductID string `json:"product_id,omitempty"`
	Entity    any    `json:"entity,omitempty"`
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	return Event{
		Type:      EventHeartbeat,
		Data:      map[string]any{},
		Timestamp: time.Now(),
	}
}

// NewStoreResetEvent creates a store reset event for every client.
func NewStoreResetEvent() Event {
	return Event{
		Type:      EventStoreReset,
		Data:      map[string]any{"message": "local store was recreated"},
		Timestamp: time.Now(),
	}
}

// NewRefreshCompleteEvent creates a refresh completion event.
func NewRefreshCompleteEvent(userID string, result any) Event {
	return Event{
		Type:      EventRefreshComplete,
		Data:      result,
		UserID:    userID,
		Timestamp: time.Now(),
	}
}

// NewReminderDueEvent creates a reminder event for one user.
func NewReminderDueEvent(userID, productID string, expiresAt time.Time) Event {
	return Event{
		Type:      EventReminderDue,
		Data:      ReminderDueData{ProductID: productID, ExpiresAt: expiresAt},
		UserID:    userID,
		Timestamp: time.Now(),
	}
}

// FromChange converts a committed store change to an event scoped to the
// change's user. The event type is the change kind.
func FromChange(c store.Change) Event {
	return Event{
		Type: EventType(c.Kind),
		Data: ProductChangeData{
			EntityID:  c.EntityID,
			ProductID: c.ProductID,
			Entity:    c.Data,
		},
		UserID:    c.UserID,
		Timestamp: time.Now(),
	}
}
