package service

import (
	"context"
	"strings"
	"time"

	"github.com/ds124wfegd/studio-booking/internal/entity"
	"github.com/ds124wfegd/studio-booking/pkg/queue"
)

// TemplateService управляет типами занятий и шаблонами расписания
type TemplateService interface {
	CreateSessionType(ctx context.Context, req *CreateSessionTypeRequest) (*entity.SessionType, error)
	CreateTemplate(ctx context.Context, req *CreateTemplateRequest) (*entity.TimeSlotTemplate, error)
	GetTemplate(ctx context.Context, id string) (*entity.TimeSlotTemplate, error)
	ExpandSlots(ctx context.Context, templateID string, from, to time.Time) ([]entity.Slot, error)
}

// AllocationService управляет размещениями и их вместимостью
type AllocationService interface {
	GetOrCreate(ctx context.Context, templateID string, start time.Time) (*entity.Allocation, error)
	Get(ctx context.Context, id string) (*entity.Allocation, error)
	ListForTemplate(ctx context.Context, templateID string, from, to time.Time) ([]*entity.Allocation, error)
	TryReserveSeats(ctx context.Context, id string, expectedVersion int64, seats int) (*entity.Allocation, error)
	ReleaseSeats(ctx context.Context, id string, seats int) (*entity.Allocation, error)
	SetStatus(ctx context.Context, id string, status entity.AllocationStatus) (*entity.Allocation, error)
	CancelAllocation(ctx context.Context, id, reason string) (*entity.Allocation, error)
}

// ReservationService координирует бронирования
type ReservationService interface {
	// Основные операции
	CreateReservation(ctx context.Context, req *CreateReservationRequest) (*entity.Reservation, error)
	CreateGroupReservation(ctx context.Context, req *CreateGroupReservationRequest) (*entity.GroupReservation, error)
	CancelReservation(ctx context.Context, id, reason string) (*entity.Reservation, error)
	ConfirmReservation(ctx context.Context, id string) (*entity.Reservation, error)
	ValidateReservation(ctx context.Context, id string) (*entity.Reservation, error)

	GetReservation(ctx context.Context, id string) (*entity.Reservation, error)
	ListAllocationReservations(ctx context.Context, allocationID string) ([]*entity.Reservation, error)
	GetGroupReservation(ctx context.Context, id string) (*entity.GroupReservation, error)
}

// LedgerService вычисляет остатки по журналу списаний, который только дополняется
type LedgerService interface {
	RemainingUses(ctx context.Context, bundleID string) (int, error)
	AppendEvent(ctx context.Context, bundleID, reservationID string, eventType entity.UsageEventType, quantity int) (*entity.BundleUsageEvent, error)
	Events(ctx context.Context, bundleID string) ([]*entity.BundleUsageEvent, error)
}

type BundleService interface {
	CreateBundle(ctx context.Context, req *CreateBundleRequest) (*entity.BundleWithBalance, error)
	GetBundle(ctx context.Context, id string) (*entity.BundleWithBalance, error)
	ExpireBundle(ctx context.Context, id string) (*entity.BundleWithBalance, error)
	CancelBundle(ctx context.Context, id string) (*entity.BundleWithBalance, error)
	// ExpireOverdue закрывает до limit абонементов, срок которых истек до now
	ExpireOverdue(ctx context.Context, now time.Time, after entity.ExpiryCursor, limit int) (ExpiryBatch, error)
}

// ExpiryBatch описывает одну страницу обхода просроченных абонементов, Next продолжает обход
type ExpiryBatch struct {
	Listed  int
	Expired int
	Failed  int
	Next    entity.ExpiryCursor
}

// NotificationService рассылает уведомления
type NotificationService interface {
	Notifier
	RegisterWebhook(ctx context.Context, req *RegisterWebhookRequest) (*entity.Webhook, error)
	ListDeliveries(ctx context.Context, webhookID string) ([]*entity.WebhookDeliveryLog, error)
	Dispatch(ctx context.Context, n entity.Notification) error
	Deliver(ctx context.Context, webhookID string, n entity.Notification, attempt int) error
	// RegisterHandlers регистрирует обработчики рассылки и доставки в th
	RegisterHandlers(th *queue.TaskHandler)
}

// Notifier передает зафиксированное изменение асинхронной рассылке.
// Ошибки только логируются: изменение уже сохранено
type Notifier interface {
	Notify(ctx context.Context, n entity.Notification)
}

// CreateSessionTypeRequest представляет данные для создания типа занятия
type CreateSessionTypeRequest struct {
	Name                   string `json:"name" binding:"required"`
	MaxConsumers           int    `json:"max_consumers" binding:"required,min=1"`
	DefaultDurationMinutes int    `json:"default_duration_minutes" binding:"required,min=1"`
}

type CreateTemplateRequest struct {
	RecurrenceExpr  string `json:"recurrence_expr" binding:"required"`
	TimeZone        string `json:"time_zone"`
	ValidFromYear   int    `json:"valid_from_year"`
	ValidToYear     int    `json:"valid_to_year"`
	DurationMinutes int    `json:"duration_minutes"`
	SessionTypeID   string `json:"session_type_id" binding:"required"`
	InstructorID    string `json:"instructor_id"`
}

// CreateReservationRequest: размещение задается AllocationID либо парой (TemplateID, StartTime)
type CreateReservationRequest struct {
	BundleID           string                   `json:"bundle_id" binding:"required"`
	AllocationID       string                   `json:"allocation_id"`
	TemplateID         string                   `json:"template_id"`
	StartTime          time.Time                `json:"start_time"`
	Status             entity.ReservationStatus `json:"status"`
	ConsumerID         string                   `json:"consumer_id"`
	OnBehalfOfName     string                   `json:"on_behalf_of_name"`
	GroupReservationID string                   `json:"group_reservation_id"`
}

func (r *CreateReservationRequest) Holder() entity.Holder {
	return entity.Holder{ConsumerID: r.ConsumerID, OnBehalfOfName: r.OnBehalfOfName}
}

func (r *CreateReservationRequest) Validate() error {
	if strings.TrimSpace(r.BundleID) == "" {
		return entity.InvalidInput("bundle_id is required")
	}
	if err := validateTarget(r.AllocationID, r.TemplateID, r.StartTime); err != nil {
		return err
	}
	if err := validateInitialStatus(r.Status); err != nil {
		return err
	}
	return r.Holder().Validate()
}

type CreateGroupReservationRequest struct {
	Name         string                   `json:"name" binding:"required"`
	BundleID     string                   `json:"bundle_id" binding:"required"`
	AllocationID string                   `json:"allocation_id"`
	TemplateID   string                   `json:"template_id"`
	StartTime    time.Time                `json:"start_time"`
	Status       entity.ReservationStatus `json:"status"`
	Participants []entity.Holder          `json:"participants"`
}

func (r *CreateGroupReservationRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return entity.InvalidInput("name is required")
	}
	if strings.TrimSpace(r.BundleID) == "" {
		return entity.InvalidInput("bundle_id is required")
	}
	if err := validateTarget(r.AllocationID, r.TemplateID, r.StartTime); err != nil {
		return err
	}
	if err := validateInitialStatus(r.Status); err != nil {
		return err
	}
	if len(r.Participants) == 0 {
		return entity.InvalidInput("at least one participant is required")
	}
	for _, p := range r.Participants {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

type CreateBundleRequest struct {
	ConsumerID     string              `json:"consumer_id" binding:"required"`
	ValidFrom      time.Time           `json:"valid_from"`
	ValidUntil     time.Time           `json:"valid_until"`
	Items          []entity.CreditItem `json:"items" binding:"required"`
	ParentBundleID string              `json:"parent_bundle_id"`
}

type RegisterWebhookRequest struct {
	EventType entity.EventType `json:"event_type" binding:"required"`
	TargetURL string           `json:"target_url" binding:"required"`
	Secret    string           `json:"secret" binding:"required"`
}

func validateTarget(allocationID, templateID string, start time.Time) error {
	if allocationID != "" {
		return nil
	}
	if templateID == "" || start.IsZero() {
		return entity.InvalidInput("allocation_id or template_id with start_time is required")
	}
	return nil
}

func validateInitialStatus(status entity.ReservationStatus) error {
	switch status {
	case "", entity.ReservationStatusConfirmed, entity.ReservationStatusPending:
		return nil
	}
	return entity.InvalidInput("initial status must be PENDING or CONFIRMED")
}
