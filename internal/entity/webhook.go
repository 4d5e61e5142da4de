package entity

import (
	"net/url"
	"time"
)

type EventType string

const (
	EventReservationCreated      EventType = "RESERVATION_CREATED"
	EventReservationConfirmed    EventType = "RESERVATION_CONFIRMED"
	EventReservationCancelled    EventType = "RESERVATION_CANCELLED"
	EventReservationValidated    EventType = "RESERVATION_VALIDATED"
	EventGroupReservationCreated EventType = "GROUP_RESERVATION_CREATED"
	EventAllocationCancelled     EventType = "ALLOCATION_CANCELLED"
	EventBundleExpired           EventType = "BUNDLE_EXPIRED"
	EventBundleCancelled         EventType = "BUNDLE_CANCELLED"
)

func (e EventType) Valid() bool {
	switch e {
	case EventReservationCreated, EventReservationConfirmed, EventReservationCancelled,
		EventReservationValidated, EventGroupReservationCreated, EventAllocationCancelled,
		EventBundleExpired, EventBundleCancelled:
		return true
	}
	return false
}

// Webhook is a subscriber registration for one event type.
type Webhook struct {
	ID        string    `json:"id" db:"id"`
	EventType EventType `json:"event_type" db:"event_type"`
	TargetURL string    `json:"target_url" db:"target_url"`
	Secret    string    `json:"-" db:"secret"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func (w *Webhook) Validate() error {
	if !w.EventType.Valid() {
		return InvalidInput("unknown event type %q", w.EventType)
	}
	u, err := url.Parse(w.TargetURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return InvalidInput("target_url must be an absolute http(s) url")
	}
	if w.Secret == "" {
		return InvalidInput("secret is required")
	}
	return nil
}

type DeliveryStatus string

const (
	DeliveryStatusSuccess DeliveryStatus = "SUCCESS"
	DeliveryStatusFailure DeliveryStatus = "FAILURE"
)

// WebhookDeliveryLog is the audit record of one delivery attempt.
type WebhookDeliveryLog struct {
	ID           string         `json:"id" db:"id"`
	WebhookID    string         `json:"webhook_id" db:"webhook_id"`
	EventType    EventType      `json:"event_type" db:"event_type"`
	Status       DeliveryStatus `json:"status" db:"status"`
	Payload      string         `json:"payload" db:"payload"`
	ErrorMessage string         `json:"error_message,omitempty" db:"error_message"`
	Attempt      int            `json:"attempt" db:"attempt"`
	ResponseCode int            `json:"response_code,omitempty" db:"response_code"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
}

// Notification is the body posted to subscribers.
type Notification struct {
	EventType          EventType `json:"event_type"`
	Timestamp          time.Time `json:"timestamp"`
	ReservationID      string    `json:"reservation_id,omitempty"`
	AllocationID       string    `json:"allocation_id,omitempty"`
	BundleID           string    `json:"bundle_id,omitempty"`
	ConsumerID         string    `json:"consumer_id,omitempty"`
	GroupReservationID string    `json:"group_reservation_id,omitempty"`
	Status             string    `json:"status,omitempty"`
}

// NotificationFor builds the payload announcing a reservation change.
func NotificationFor(eventType EventType, r *Reservation) Notification {
	return Notification{
		EventType:          eventType,
		Timestamp:          time.Now().UTC(),
		ReservationID:      r.ID,
		AllocationID:       r.AllocationID,
		BundleID:           r.BundleID,
		ConsumerID:         r.ConsumerID,
		GroupReservationID: r.GroupReservationID,
		Status:             string(r.Status),
	}
}
