package schedule

import (
	"fmt"
	"time"

	"github.com/ds124wfegd/studio-booking/internal/entity"
)

// DefaultMaxSlots caps a single expansion when no limit is configured.
const DefaultMaxSlots = 500

// SlotFinder applies template rules (time zone, validity years, duration) on top
// of an Expander.
type SlotFinder struct {
	expander Expander
	maxSlots int
}

func NewSlotFinder(expander Expander, maxSlots int) *SlotFinder {
	if maxSlots <= 0 {
		maxSlots = DefaultMaxSlots
	}
	return &SlotFinder{expander: expander, maxSlots: maxSlots}
}

func (f *SlotFinder) Validate(expr string) error {
	return f.expander.Validate(expr)
}

// Slots lists candidate slots of t in [from, to]. Starts are returned in UTC.
func (f *SlotFinder) Slots(t *entity.TimeSlotTemplate, from, to time.Time) ([]entity.Slot, error) {
	if to.Before(from) {
		return nil, entity.InvalidInput("window end precedes window start")
	}
	loc, err := t.Location()
	if err != nil {
		return nil, entity.InvalidInput("unknown time zone %q", t.TimeZone)
	}

	from, to = f.clampToValidity(t, loc, from, to)
	if to.Before(from) {
		return nil, nil
	}

	starts, err := f.expander.Expand(t.RecurrenceExpr, loc, from, to, f.maxSlots)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrInvalidInput, err)
	}

	duration := t.EffectiveDuration()
	slots := make([]entity.Slot, 0, len(starts))
	for _, start := range starts {
		if !t.CoversYear(start.In(loc).Year()) {
			continue
		}
		utc := entity.NormalizeInstant(start)
		slots = append(slots, entity.Slot{
			TemplateID: t.ID,
			StartTime:  utc,
			EndTime:    utc.Add(duration),
		})
	}
	return slots, nil
}

// Covers reports whether start is an instant the template actually yields.
func (f *SlotFinder) Covers(t *entity.TimeSlotTemplate, start time.Time) (bool, error) {
	loc, err := t.Location()
	if err != nil {
		return false, entity.InvalidInput("unknown time zone %q", t.TimeZone)
	}
	if !t.CoversYear(start.In(loc).Year()) {
		return false, nil
	}

	start = entity.NormalizeInstant(start)
	starts, err := f.expander.Expand(t.RecurrenceExpr, loc, start, start, 1)
	if err != nil {
		return false, fmt.Errorf("%w: %v", entity.ErrInvalidInput, err)
	}
	return len(starts) == 1 && starts[0].Equal(start), nil
}

// clampToValidity narrows the window to the template's validity years, in the template zone.
func (f *SlotFinder) clampToValidity(t *entity.TimeSlotTemplate, loc *time.Location, from, to time.Time) (time.Time, time.Time) {
	if t.ValidFromYear != 0 {
		start := time.Date(t.ValidFromYear, time.January, 1, 0, 0, 0, 0, loc)
		if from.Before(start) {
			from = start
		}
	}
	if t.ValidToYear != 0 {
		end := time.Date(t.ValidToYear+1, time.January, 1, 0, 0, 0, 0, loc).Add(-time.Nanosecond)
		if to.After(end) {
			to = end
		}
	}
	return from, to
}
