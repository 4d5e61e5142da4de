package entity

import (
	"time"
)

type AllocationStatus string

const (
	AllocationStatusAvailable   AllocationStatus = "AVAILABLE"
	AllocationStatusUnavailable AllocationStatus = "UNAVAILABLE"
	AllocationStatusCancelled   AllocationStatus = "CANCELLED"
)

func (s AllocationStatus) Valid() bool {
	switch s {
	case AllocationStatusAvailable, AllocationStatusUnavailable, AllocationStatusCancelled:
		return true
	}
	return false
}

// Allocation is the capacity-bearing instance of a template at one start instant.
// Occupancy and Version only move through the conditional update in the store.
type Allocation struct {
	ID           string           `json:"id" db:"id"`
	TemplateID   string           `json:"template_id" db:"template_id"`
	StartTime    time.Time        `json:"start_time" db:"start_time"`
	EndTime      time.Time        `json:"end_time" db:"end_time"`
	Status       AllocationStatus `json:"status" db:"status"`
	Occupancy    int              `json:"occupancy" db:"occupancy"`
	Version      int64            `json:"version" db:"version"`
	MaxConsumers int              `json:"max_consumers" db:"max_consumers"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at" db:"updated_at"`
}

// AvailableSeats is never negative.
func (a *Allocation) AvailableSeats() int {
	if a.Occupancy >= a.MaxConsumers {
		return 0
	}
	return a.MaxConsumers - a.Occupancy
}

func (a *Allocation) IsFull() bool {
	return a.Occupancy >= a.MaxConsumers
}

// CanAdmit reports whether seats more consumers fit right now.
func (a *Allocation) CanAdmit(seats int) bool {
	return a.Status == AllocationStatusAvailable && a.Occupancy+seats <= a.MaxConsumers
}

// NormalizeInstant is the canonical form of a start instant used in the (template, start) key.
func NormalizeInstant(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
