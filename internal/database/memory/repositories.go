package memory

import (
	"context"
	"sort"
	"time"

	"github.com/ds124wfegd/studio-booking/internal/entity"
	"github.com/google/uuid"
)

type templateRepository struct {
	exec executor
}

func (r *templateRepository) CreateSessionType(ctx context.Context, st *entity.SessionType) error {
	return r.exec(func(s *state) error {
		if st.ID == "" {
			st.ID = uuid.NewString()
		}
		st.CreatedAt = time.Now().UTC()
		s.sessionTypes[st.ID] = *st
		return nil
	})
}

func (r *templateRepository) GetSessionType(ctx context.Context, id string) (*entity.SessionType, error) {
	var out entity.SessionType
	err := r.exec(func(s *state) error {
		st, ok := s.sessionTypes[id]
		if !ok {
			return entity.ErrSessionTypeNotFound
		}
		out = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *templateRepository) CreateTemplate(ctx context.Context, t *entity.TimeSlotTemplate) error {
	return r.exec(func(s *state) error {
		if _, ok := s.sessionTypes[t.SessionTypeID]; !ok {
			return entity.ErrSessionTypeNotFound
		}
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		t.CreatedAt = time.Now().UTC()
		row := *t
		row.SessionType = nil
		s.templates[t.ID] = row
		return nil
	})
}

func (r *templateRepository) GetTemplate(ctx context.Context, id string) (*entity.TimeSlotTemplate, error) {
	var out entity.TimeSlotTemplate
	err := r.exec(func(s *state) error {
		t, ok := s.templates[id]
		if !ok {
			return entity.ErrTemplateNotFound
		}
		st := s.sessionTypes[t.SessionTypeID]
		t.SessionType = &st
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type allocationRepository struct {
	exec executor
}

// loadAllocation returns a copy with MaxConsumers resolved through template -> session type.
func (s *state) loadAllocation(id string) (entity.Allocation, bool) {
	a, ok := s.allocations[id]
	if !ok {
		return a, false
	}
	if t, ok := s.templates[a.TemplateID]; ok {
		a.MaxConsumers = s.sessionTypes[t.SessionTypeID].MaxConsumers
	}
	return a, true
}

func (r *allocationRepository) InsertIfAbsent(ctx context.Context, a *entity.Allocation) (*entity.Allocation, error) {
	var out entity.Allocation
	err := r.exec(func(s *state) error {
		if _, ok := s.templates[a.TemplateID]; !ok {
			return entity.ErrTemplateNotFound
		}
		key := allocationKey(a.TemplateID, a.StartTime)
		if id, ok := s.allocationKeys[key]; ok {
			out, _ = s.loadAllocation(id)
			return nil
		}
		row := *a
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		now := time.Now().UTC()
		row.StartTime = entity.NormalizeInstant(row.StartTime)
		row.EndTime = entity.NormalizeInstant(row.EndTime)
		row.CreatedAt, row.UpdatedAt = now, now
		s.allocations[row.ID] = row
		s.allocationKeys[key] = row.ID
		out, _ = s.loadAllocation(row.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *allocationRepository) GetByID(ctx context.Context, id string) (*entity.Allocation, error) {
	var out entity.Allocation
	err := r.exec(func(s *state) error {
		a, ok := s.loadAllocation(id)
		if !ok {
			return entity.ErrAllocationNotFound
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *allocationRepository) GetByTemplateAndStart(ctx context.Context, templateID string, start time.Time) (*entity.Allocation, error) {
	var out entity.Allocation
	err := r.exec(func(s *state) error {
		id, ok := s.allocationKeys[allocationKey(templateID, start)]
		if !ok {
			return entity.ErrAllocationNotFound
		}
		out, _ = s.loadAllocation(id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *allocationRepository) ListByTemplate(ctx context.Context, templateID string, from, to time.Time) ([]*entity.Allocation, error) {
	var out []*entity.Allocation
	err := r.exec(func(s *state) error {
		for id, a := range s.allocations {
			if a.TemplateID != templateID {
				continue
			}
			if !from.IsZero() && a.StartTime.Before(from) {
				continue
			}
			if !to.IsZero() && !a.StartTime.Before(to) {
				continue
			}
			loaded, _ := s.loadAllocation(id)
			out = append(out, &loaded)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, err
}

func (r *allocationRepository) TryReserveSeats(ctx context.Context, id string, expectedVersion int64, seats int) (*entity.Allocation, error) {
	var out entity.Allocation
	err := r.exec(func(s *state) error {
		a, ok := s.loadAllocation(id)
		if !ok {
			return entity.ErrAllocationNotFound
		}
		if a.Version != expectedVersion || !a.CanAdmit(seats) {
			return entity.ErrConcurrencyConflict
		}
		a.Occupancy += seats
		a.Version++
		a.UpdatedAt = time.Now().UTC()
		s.allocations[id] = a
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *allocationRepository) ReleaseSeats(ctx context.Context, id string, seats int) (*entity.Allocation, error) {
	var out entity.Allocation
	err := r.exec(func(s *state) error {
		a, ok := s.loadAllocation(id)
		if !ok {
			return entity.ErrAllocationNotFound
		}
		a.Occupancy -= seats
		if a.Occupancy < 0 {
			a.Occupancy = 0
		}
		a.Version++
		a.UpdatedAt = time.Now().UTC()
		s.allocations[id] = a
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *allocationRepository) SetStatus(ctx context.Context, id string, status entity.AllocationStatus) (*entity.Allocation, error) {
	var out entity.Allocation
	err := r.exec(func(s *state) error {
		a, ok := s.loadAllocation(id)
		if !ok {
			return entity.ErrAllocationNotFound
		}
		a.Status = status
		a.Version++
		a.UpdatedAt = time.Now().UTC()
		s.allocations[id] = a
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type reservationRepository struct {
	exec executor
}

func (s *state) activeByHolder(allocationID string, holder entity.Holder) (entity.Reservation, bool) {
	key := holder.Key()
	for _, res := range s.reservations {
		if res.AllocationID == allocationID && res.Status.IsActive() && res.Holder().Key() == key {
			return res, true
		}
	}
	return entity.Reservation{}, false
}

func (r *reservationRepository) Create(ctx context.Context, res *entity.Reservation) error {
	return r.exec(func(s *state) error {
		if _, dup := s.activeByHolder(res.AllocationID, res.Holder()); dup {
			return entity.ErrDuplicateBooking
		}
		if res.ID == "" {
			res.ID = uuid.NewString()
		}
		now := time.Now().UTC()
		res.CreatedAt, res.UpdatedAt = now, now
		s.reservations[res.ID] = *res
		return nil
	})
}

func (r *reservationRepository) GetByID(ctx context.Context, id string) (*entity.Reservation, error) {
	var out entity.Reservation
	err := r.exec(func(s *state) error {
		res, ok := s.reservations[id]
		if !ok {
			return entity.ErrReservationNotFound
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *reservationRepository) GetActiveByHolder(ctx context.Context, allocationID string, holder entity.Holder) (*entity.Reservation, error) {
	var out entity.Reservation
	err := r.exec(func(s *state) error {
		res, ok := s.activeByHolder(allocationID, holder)
		if !ok {
			return entity.ErrReservationNotFound
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *reservationRepository) list(match func(entity.Reservation) bool) ([]*entity.Reservation, error) {
	var out []*entity.Reservation
	err := r.exec(func(s *state) error {
		for _, res := range s.reservations {
			if match(res) {
				res := res
				out = append(out, &res)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func (r *reservationRepository) ListByAllocation(ctx context.Context, allocationID string) ([]*entity.Reservation, error) {
	return r.list(func(res entity.Reservation) bool { return res.AllocationID == allocationID })
}

func (r *reservationRepository) ListByGroup(ctx context.Context, groupID string) ([]*entity.Reservation, error) {
	return r.list(func(res entity.Reservation) bool { return res.GroupReservationID == groupID })
}

func (r *reservationRepository) UpdateStatus(ctx context.Context, id string, from, to entity.ReservationStatus, reason string) error {
	return r.exec(func(s *state) error {
		res, ok := s.reservations[id]
		if !ok {
			return entity.ErrReservationNotFound
		}
		if res.Status != from {
			return entity.ErrConcurrencyConflict
		}
		res.Status = to
		if reason != "" {
			res.CancelReason = reason
		}
		res.UpdatedAt = time.Now().UTC()
		s.reservations[id] = res
		return nil
	})
}

func (r *reservationRepository) CreateGroup(ctx context.Context, g *entity.GroupReservation) error {
	return r.exec(func(s *state) error {
		if g.ID == "" {
			g.ID = uuid.NewString()
		}
		g.CreatedAt = time.Now().UTC()
		row := *g
		row.Reservations = nil
		s.groups[g.ID] = row
		return nil
	})
}

func (r *reservationRepository) GetGroup(ctx context.Context, id string) (*entity.GroupReservation, error) {
	var out entity.GroupReservation
	err := r.exec(func(s *state) error {
		g, ok := s.groups[id]
		if !ok {
			return entity.ErrGroupReservationNotFound
		}
		out = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *reservationRepository) AddGroupParticipants(ctx context.Context, id string, delta int) error {
	return r.exec(func(s *state) error {
		g, ok := s.groups[id]
		if !ok {
			return entity.ErrGroupReservationNotFound
		}
		g.ParticipantCount += delta
		s.groups[id] = g
		return nil
	})
}

type bundleRepository struct {
	exec executor
}

func (r *bundleRepository) Create(ctx context.Context, b *entity.Bundle) error {
	return r.exec(func(s *state) error {
		if b.ParentBundleID != "" {
			if _, ok := s.bundles[b.ParentBundleID]; !ok {
				return entity.ErrBundleNotFound
			}
		}
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		now := time.Now().UTC()
		b.CreatedAt, b.UpdatedAt = now, now
		row := *b
		row.Items = append([]entity.CreditItem(nil), b.Items...)
		s.bundles[b.ID] = row
		return nil
	})
}

func (r *bundleRepository) GetByID(ctx context.Context, id string) (*entity.Bundle, error) {
	var out entity.Bundle
	err := r.exec(func(s *state) error {
		b, ok := s.bundles[id]
		if !ok {
			return entity.ErrBundleNotFound
		}
		out = b
		out.Items = append([]entity.CreditItem(nil), b.Items...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *bundleRepository) SetStatus(ctx context.Context, id string, status entity.BundleStatus) error {
	return r.exec(func(s *state) error {
		b, ok := s.bundles[id]
		if !ok {
			return entity.ErrBundleNotFound
		}
		b.Status = status
		b.UpdatedAt = time.Now().UTC()
		s.bundles[id] = b
		return nil
	})
}

func (r *bundleRepository) ListExpirable(ctx context.Context, before time.Time, after entity.ExpiryCursor, limit int) ([]*entity.Bundle, error) {
	var out []*entity.Bundle
	err := r.exec(func(s *state) error {
		for _, b := range s.bundles {
			if b.Status != entity.BundleStatusActive && b.Status != entity.BundleStatusExpended {
				continue
			}
			if b.ValidUntil.IsZero() || !b.ValidUntil.Before(before) || !after.Precedes(&b) {
				continue
			}
			b := b
			out = append(out, &b)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ValidUntil.Equal(out[j].ValidUntil) {
			return out[i].ValidUntil.Before(out[j].ValidUntil)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

type ledgerRepository struct {
	exec executor
}

func (r *ledgerRepository) Append(ctx context.Context, ev *entity.BundleUsageEvent) error {
	return r.exec(func(s *state) error {
		if _, ok := s.bundles[ev.BundleID]; !ok {
			return entity.ErrBundleNotFound
		}
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		s.seq++
		ev.Seq = s.seq
		if ev.CreatedAt.IsZero() {
			ev.CreatedAt = time.Now().UTC()
		}
		s.events = append(s.events, *ev)
		return nil
	})
}

func (r *ledgerRepository) ListByBundle(ctx context.Context, bundleID string) ([]*entity.BundleUsageEvent, error) {
	var out []*entity.BundleUsageEvent
	err := r.exec(func(s *state) error {
		for _, ev := range s.events {
			if ev.BundleID == bundleID {
				ev := ev
				out = append(out, &ev)
			}
		}
		return nil
	})
	entity.SortEvents(out)
	return out, err
}

type webhookRepository struct {
	exec executor
}

func (r *webhookRepository) Create(ctx context.Context, w *entity.Webhook) error {
	return r.exec(func(s *state) error {
		if w.ID == "" {
			w.ID = uuid.NewString()
		}
		w.CreatedAt = time.Now().UTC()
		s.webhooks[w.ID] = *w
		return nil
	})
}

func (r *webhookRepository) GetByID(ctx context.Context, id string) (*entity.Webhook, error) {
	var out entity.Webhook
	err := r.exec(func(s *state) error {
		w, ok := s.webhooks[id]
		if !ok {
			return entity.ErrWebhookNotFound
		}
		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *webhookRepository) ListActiveByEventType(ctx context.Context, eventType entity.EventType) ([]*entity.Webhook, error) {
	var out []*entity.Webhook
	err := r.exec(func(s *state) error {
		for _, w := range s.webhooks {
			if w.Active && w.EventType == eventType {
				w := w
				out = append(out, &w)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func (r *webhookRepository) LogDelivery(ctx context.Context, l *entity.WebhookDeliveryLog) error {
	return r.exec(func(s *state) error {
		if l.ID == "" {
			l.ID = uuid.NewString()
		}
		l.CreatedAt = time.Now().UTC()
		s.deliveries = append(s.deliveries, *l)
		return nil
	})
}

func (r *webhookRepository) ListDeliveries(ctx context.Context, webhookID string) ([]*entity.WebhookDeliveryLog, error) {
	var out []*entity.WebhookDeliveryLog
	err := r.exec(func(s *state) error {
		for _, l := range s.deliveries {
			if l.WebhookID == webhookID {
				l := l
				out = append(out, &l)
			}
		}
		return nil
	})
	return out, err
}
