package entity

import (
	"time"
)

type BundleStatus string

const (
	BundleStatusActive    BundleStatus = "ACTIVE"
	BundleStatusExpired   BundleStatus = "EXPIRED"
	BundleStatusCancelled BundleStatus = "CANCELLED"
	BundleStatusExpended  BundleStatus = "EXPENDED"
)

// CreditItemType: only SESSION items grant bookable credits.
type CreditItemType string

const (
	CreditItemSession CreditItemType = "SESSION"
	CreditItemProduct CreditItemType = "PRODUCT"
)

type CreditItem struct {
	Type     CreditItemType `json:"type"`
	Quantity int            `json:"quantity"`
}

// Bundle is a purchased credit package. It stores no balance; see RemainingUses.
type Bundle struct {
	ID             string       `json:"id" db:"id"`
	ConsumerID     string       `json:"consumer_id" db:"consumer_id"`
	Status         BundleStatus `json:"status" db:"status"`
	ValidFrom      time.Time    `json:"valid_from" db:"valid_from"`
	ValidUntil     time.Time    `json:"valid_until" db:"valid_until"`
	Items          []CreditItem `json:"items"`
	ParentBundleID string       `json:"parent_bundle_id,omitempty" db:"parent_bundle_id"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at" db:"updated_at"`
}

func (b *Bundle) Validate() error {
	if b.ConsumerID == "" {
		return InvalidInput("consumer_id is required")
	}
	if len(b.Items) == 0 {
		return InvalidInput("bundle must contain at least one item")
	}
	for _, item := range b.Items {
		if item.Quantity < 0 {
			return InvalidInput("item quantity must not be negative")
		}
		if item.Type != CreditItemSession && item.Type != CreditItemProduct {
			return InvalidInput("unknown item type %q", item.Type)
		}
	}
	if !b.ValidUntil.IsZero() && !b.ValidFrom.IsZero() && b.ValidUntil.Before(b.ValidFrom) {
		return InvalidInput("valid_until must not precede valid_from")
	}
	return nil
}

// GrantedSessions sums the SESSION items.
func (b *Bundle) GrantedSessions() int {
	total := 0
	for _, item := range b.Items {
		if item.Type == CreditItemSession {
			total += item.Quantity
		}
	}
	return total
}

// UsableAt reports whether credits of the bundle may be spent at t.
// A refund on an EXPENDED bundle flips it back to ACTIVE, so only ACTIVE counts.
func (b *Bundle) UsableAt(t time.Time) bool {
	if b.Status != BundleStatusActive {
		return false
	}
	if !b.ValidFrom.IsZero() && t.Before(b.ValidFrom) {
		return false
	}
	if !b.ValidUntil.IsZero() && t.After(b.ValidUntil) {
		return false
	}
	return true
}

func (b *Bundle) IsTerminal() bool {
	return b.Status == BundleStatusExpired || b.Status == BundleStatusCancelled
}

// BundleWithBalance is the read model served to callers.
type BundleWithBalance struct {
	Bundle
	RemainingUses int `json:"remaining_uses"`
}

// ExpiryCursor is the (ValidUntil, ID) position of an expiry scan.
// The zero value starts from the beginning.
type ExpiryCursor struct {
	ValidUntil time.Time
	ID         string
}

func CursorAt(b *Bundle) ExpiryCursor {
	return ExpiryCursor{ValidUntil: b.ValidUntil, ID: b.ID}
}

func (c ExpiryCursor) IsZero() bool {
	return c.ID == ""
}

// Precedes reports whether b sorts strictly after the cursor.
func (c ExpiryCursor) Precedes(b *Bundle) bool {
	if c.IsZero() {
		return true
	}
	if !b.ValidUntil.Equal(c.ValidUntil) {
		return b.ValidUntil.After(c.ValidUntil)
	}
	return b.ID > c.ID
}
