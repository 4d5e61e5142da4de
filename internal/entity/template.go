package entity

import (
	"strings"
	"time"
)

// SessionType defines capacity and default length of a class.
type SessionType struct {
	ID                     string    `json:"id" db:"id"`
	Name                   string    `json:"name" db:"name"`
	MaxConsumers           int       `json:"max_consumers" db:"max_consumers"`
	DefaultDurationMinutes int       `json:"default_duration_minutes" db:"default_duration_minutes"`
	CreatedAt              time.Time `json:"created_at" db:"created_at"`
}

func (s *SessionType) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return InvalidInput("session type name is required")
	}
	if s.MaxConsumers < 1 {
		return InvalidInput("max_consumers must be at least 1")
	}
	if s.DefaultDurationMinutes < 1 {
		return InvalidInput("default_duration_minutes must be at least 1")
	}
	return nil
}

// TimeSlotTemplate is a recurring schedule entry that allocations are materialized from.
type TimeSlotTemplate struct {
	ID              string       `json:"id" db:"id"`
	RecurrenceExpr  string       `json:"recurrence_expr" db:"recurrence_expr"`
	TimeZone        string       `json:"time_zone" db:"time_zone"`
	ValidFromYear   int          `json:"valid_from_year,omitempty" db:"valid_from_year"`
	ValidToYear     int          `json:"valid_to_year,omitempty" db:"valid_to_year"`
	DurationMinutes int          `json:"duration_minutes,omitempty" db:"duration_minutes"`
	SessionTypeID   string       `json:"session_type_id" db:"session_type_id"`
	InstructorID    string       `json:"instructor_id,omitempty" db:"instructor_id"`
	SessionType     *SessionType `json:"session_type,omitempty"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
}

func (t *TimeSlotTemplate) Validate() error {
	if strings.TrimSpace(t.RecurrenceExpr) == "" {
		return InvalidInput("recurrence_expr is required")
	}
	if strings.TrimSpace(t.SessionTypeID) == "" {
		return InvalidInput("session_type_id is required")
	}
	if _, err := t.Location(); err != nil {
		return InvalidInput("unknown time zone %q", t.TimeZone)
	}
	if t.ValidFromYear != 0 && t.ValidToYear != 0 && t.ValidToYear < t.ValidFromYear {
		return InvalidInput("valid_to_year must not precede valid_from_year")
	}
	if t.DurationMinutes < 0 {
		return InvalidInput("duration_minutes must not be negative")
	}
	return nil
}

// Location resolves the template time zone; empty means UTC.
func (t *TimeSlotTemplate) Location() (*time.Location, error) {
	if t.TimeZone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(t.TimeZone)
}

// EffectiveDuration is the template override if set, else the session type default.
func (t *TimeSlotTemplate) EffectiveDuration() time.Duration {
	if t.DurationMinutes > 0 {
		return time.Duration(t.DurationMinutes) * time.Minute
	}
	if t.SessionType != nil {
		return time.Duration(t.SessionType.DefaultDurationMinutes) * time.Minute
	}
	return 0
}

// CoversYear reports whether year falls inside the validity range. Zero bounds are open.
func (t *TimeSlotTemplate) CoversYear(year int) bool {
	if t.ValidFromYear != 0 && year < t.ValidFromYear {
		return false
	}
	if t.ValidToYear != 0 && year > t.ValidToYear {
		return false
	}
	return true
}

// Slot is one candidate start produced by expanding a template.
type Slot struct {
	TemplateID string    `json:"template_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
}
