package entity

import (
	"sort"
	"time"
)

type UsageEventType string

const (
	UsageEventUse    UsageEventType = "USE"
	UsageEventRefund UsageEventType = "REFUND"
	UsageEventExpire UsageEventType = "EXPIRE"
	UsageEventCancel UsageEventType = "CANCEL"
)

func (t UsageEventType) Valid() bool {
	switch t {
	case UsageEventUse, UsageEventRefund, UsageEventExpire, UsageEventCancel:
		return true
	}
	return false
}

// BundleUsageEvent is one insert-only ledger entry.
type BundleUsageEvent struct {
	ID            string         `json:"id" db:"id"`
	BundleID      string         `json:"bundle_id" db:"bundle_id"`
	ReservationID string         `json:"reservation_id,omitempty" db:"reservation_id"`
	Type          UsageEventType `json:"type" db:"type"`
	Quantity      int            `json:"quantity" db:"quantity"`
	Seq           int64          `json:"seq" db:"seq"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
}

// SortEvents orders events by creation time, ties broken by Seq.
func SortEvents(events []*BundleUsageEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].Seq < events[j].Seq
		}
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
}

// RemainingUses folds the event log over the granted credits.
// EXPIRE and CANCEL zero the balance and stop the fold: nothing after them counts.
// events must already be ordered (see SortEvents).
func RemainingUses(granted int, events []*BundleUsageEvent) int {
	remaining := granted
	for _, ev := range events {
		switch ev.Type {
		case UsageEventUse:
			remaining -= ev.Quantity
		case UsageEventRefund:
			remaining += ev.Quantity
		case UsageEventExpire, UsageEventCancel:
			return 0
		}
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}

// UsedByReservation is the quantity a reservation originally consumed, at least 1.
func UsedByReservation(events []*BundleUsageEvent, reservationID string) int {
	used := 0
	for _, ev := range events {
		if ev.ReservationID == reservationID && ev.Type == UsageEventUse {
			used += ev.Quantity
		}
	}
	if used < 1 {
		return 1
	}
	return used
}
