package entity

import (
	"strings"
	"time"
)

type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "PENDING"
	ReservationStatusConfirmed ReservationStatus = "CONFIRMED"
	ReservationStatusValidated ReservationStatus = "VALIDATED"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
)

// legal moves: PENDING -> CONFIRMED -> VALIDATED, cancellation from PENDING or CONFIRMED
var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationStatusPending:   {ReservationStatusConfirmed, ReservationStatusCancelled},
	ReservationStatusConfirmed: {ReservationStatusValidated, ReservationStatusCancelled},
}

// CanTransition reports whether from -> to is a legal reservation transition.
func (s ReservationStatus) CanTransition(to ReservationStatus) bool {
	for _, next := range reservationTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsActive: a non-cancelled reservation holds a seat.
func (s ReservationStatus) IsActive() bool {
	return s == ReservationStatusPending || s == ReservationStatusConfirmed || s == ReservationStatusValidated
}

// Holder identifies who a reservation is for: a registered consumer or a named guest.
type Holder struct {
	ConsumerID     string `json:"consumer_id,omitempty"`
	OnBehalfOfName string `json:"on_behalf_of_name,omitempty"`
}

func (h Holder) Validate() error {
	hasConsumer := strings.TrimSpace(h.ConsumerID) != ""
	hasGuest := strings.TrimSpace(h.OnBehalfOfName) != ""
	if hasConsumer == hasGuest {
		return InvalidInput("exactly one of consumer_id or on_behalf_of_name is required")
	}
	return nil
}

// Key is the normalized identity used for duplicate detection.
func (h Holder) Key() string {
	if id := strings.TrimSpace(h.ConsumerID); id != "" {
		return "consumer:" + id
	}
	return "guest:" + strings.ToLower(strings.TrimSpace(h.OnBehalfOfName))
}

type Reservation struct {
	ID                 string            `json:"id" db:"id"`
	AllocationID       string            `json:"allocation_id" db:"allocation_id"`
	BundleID           string            `json:"bundle_id" db:"bundle_id"`
	ConsumerID         string            `json:"consumer_id,omitempty" db:"consumer_id"`
	OnBehalfOfName     string            `json:"on_behalf_of_name,omitempty" db:"on_behalf_of_name"`
	Status             ReservationStatus `json:"status" db:"status"`
	GroupReservationID string            `json:"group_reservation_id,omitempty" db:"group_reservation_id"`
	CancelReason       string            `json:"cancel_reason,omitempty" db:"cancel_reason"`
	CreatedAt          time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at" db:"updated_at"`
}

func (r *Reservation) Holder() Holder {
	return Holder{ConsumerID: r.ConsumerID, OnBehalfOfName: r.OnBehalfOfName}
}

// GroupReservation bundles several participant reservations on one allocation.
type GroupReservation struct {
	ID               string         `json:"id" db:"id"`
	Name             string         `json:"name" db:"name"`
	AllocationID     string         `json:"allocation_id" db:"allocation_id"`
	BundleID         string         `json:"bundle_id" db:"bundle_id"`
	ParticipantCount int            `json:"participant_count" db:"participant_count"`
	Reservations     []*Reservation `json:"reservations,omitempty"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
}
