// Package memory is an in-process database.Store used by tests and the
// zero-dependency "memory" run mode.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ds124wfegd/studio-booking/internal/database"
	"github.com/ds124wfegd/studio-booking/internal/entity"
)

type state struct {
	sessionTypes   map[string]entity.SessionType
	templates      map[string]entity.TimeSlotTemplate
	allocations    map[string]entity.Allocation
	allocationKeys map[string]string
	reservations   map[string]entity.Reservation
	groups         map[string]entity.GroupReservation
	bundles        map[string]entity.Bundle
	events         []entity.BundleUsageEvent
	webhooks       map[string]entity.Webhook
	deliveries     []entity.WebhookDeliveryLog
	seq            int64
}

func newState() *state {
	return &state{
		sessionTypes:   make(map[string]entity.SessionType),
		templates:      make(map[string]entity.TimeSlotTemplate),
		allocations:    make(map[string]entity.Allocation),
		allocationKeys: make(map[string]string),
		reservations:   make(map[string]entity.Reservation),
		groups:         make(map[string]entity.GroupReservation),
		bundles:        make(map[string]entity.Bundle),
		webhooks:       make(map[string]entity.Webhook),
	}
}

// clone copies every table; rows are values so a shallow map copy is enough.
func (s *state) clone() *state {
	c := &state{
		sessionTypes:   make(map[string]entity.SessionType, len(s.sessionTypes)),
		templates:      make(map[string]entity.TimeSlotTemplate, len(s.templates)),
		allocations:    make(map[string]entity.Allocation, len(s.allocations)),
		allocationKeys: make(map[string]string, len(s.allocationKeys)),
		reservations:   make(map[string]entity.Reservation, len(s.reservations)),
		groups:         make(map[string]entity.GroupReservation, len(s.groups)),
		bundles:        make(map[string]entity.Bundle, len(s.bundles)),
		events:         append([]entity.BundleUsageEvent(nil), s.events...),
		webhooks:       make(map[string]entity.Webhook, len(s.webhooks)),
		deliveries:     append([]entity.WebhookDeliveryLog(nil), s.deliveries...),
		seq:            s.seq,
	}
	for k, v := range s.sessionTypes {
		c.sessionTypes[k] = v
	}
	for k, v := range s.templates {
		c.templates[k] = v
	}
	for k, v := range s.allocations {
		c.allocations[k] = v
	}
	for k, v := range s.allocationKeys {
		c.allocationKeys[k] = v
	}
	for k, v := range s.reservations {
		c.reservations[k] = v
	}
	for k, v := range s.groups {
		c.groups[k] = v
	}
	for k, v := range s.bundles {
		c.bundles[k] = v
	}
	for k, v := range s.webhooks {
		c.webhooks[k] = v
	}
	return c
}

func allocationKey(templateID string, start time.Time) string {
	return fmt.Sprintf("%s|%d", templateID, entity.NormalizeInstant(start).Unix())
}

// executor runs a repository operation against some state.
type executor func(fn func(st *state) error) error

// Store serializes transactions behind one mutex. A transaction works on a
// clone of the state that replaces the live state only on commit.
type Store struct {
	mu    sync.Mutex
	state *state
	repos
}

var _ database.Store = (*Store)(nil)

func NewStore() *Store {
	s := &Store{state: newState()}
	s.repos = newRepos(s.locked)
	return s
}

func (s *Store) locked(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

func (s *Store) RunInTx(ctx context.Context, fn func(tx database.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	tx := newRepos(func(op func(st *state) error) error {
		return op(work)
	})

	if err := fn(tx); err != nil {
		return err
	}
	// deadline passed while fn ran: roll back like a real database would
	if err := ctx.Err(); err != nil {
		return err
	}

	s.state = work
	return nil
}

func (s *Store) Close() error {
	return nil
}

type repos struct {
	templates    *templateRepository
	allocations  *allocationRepository
	reservations *reservationRepository
	bundles      *bundleRepository
	ledger       *ledgerRepository
	webhooks     *webhookRepository
}

func newRepos(exec executor) repos {
	return repos{
		templates:    &templateRepository{exec: exec},
		allocations:  &allocationRepository{exec: exec},
		reservations: &reservationRepository{exec: exec},
		bundles:      &bundleRepository{exec: exec},
		ledger:       &ledgerRepository{exec: exec},
		webhooks:     &webhookRepository{exec: exec},
	}
}

func (r repos) Templates() database.TemplateRepository       { return r.templates }
func (r repos) Allocations() database.AllocationRepository   { return r.allocations }
func (r repos) Reservations() database.ReservationRepository { return r.reservations }
func (r repos) Bundles() database.BundleRepository           { return r.bundles }
func (r repos) Ledger() database.LedgerRepository            { return r.ledger }
func (r repos) Webhooks() database.WebhookRepository         { return r.webhooks }
