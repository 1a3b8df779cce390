package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType - тип события жизненного цикла, по одному событию на переход или ошибку.
type EventType string

const (
	EventReceived          EventType = "received"
	EventValidated         EventType = "validated"
	EventValidationFailed  EventType = "validation_failed"
	EventFulfillmentOrder  EventType = "fulfillment_order_created"
	EventFulfillmentFailed EventType = "fulfillment_order_failed"
	EventTrackingSynced    EventType = "tracking_synced"
	EventTrackingFailed    EventType = "tracking_sync_failed"
	EventInventoryLow      EventType = "inventory_low"
	EventTrackingStale     EventType = "tracking_stale"
	EventCancelled         EventType = "cancelled"
	EventResumed           EventType = "resumed"
	EventRedriven          EventType = "redriven"
)

// EventError - классифицированная ошибка, прикладываемая к событию.
type EventError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Event публикуется во все настроенные приёмники (лог, вебхук, NATS).
type Event struct {
	ID      uuid.UUID   `json:"id"`
	OrderID string      `json:"order_id"`
	Type    EventType   `json:"type"`
	At      time.Time   `json:"at"`
	Error   *EventError `json:"error,omitempty"`
}

func NewEvent(orderID string, eventType EventType, eventErr *EventError) Event {
	return Event{
		ID:      uuid.New(),
		OrderID: orderID,
		Type:    eventType,
		At:      time.Now().UTC(),
		Error:   eventErr,
	}
}
