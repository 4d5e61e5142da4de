package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ds124wfegd/studio-booking/internal/database"
	"github.com/ds124wfegd/studio-booking/internal/entity"
	"github.com/ds124wfegd/studio-booking/internal/schedule"
	"github.com/sirupsen/logrus"
)

type templateService struct {
	store database.Store
	slots *schedule.SlotFinder
}

func NewTemplateService(store database.Store, slots *schedule.SlotFinder) TemplateService {
	return &templateService{store: store, slots: slots}
}

func (s *templateService) CreateSessionType(ctx context.Context, req *CreateSessionTypeRequest) (*entity.SessionType, error) {
	st := &entity.SessionType{
		Name:                   req.Name,
		MaxConsumers:           req.MaxConsumers,
		DefaultDurationMinutes: req.DefaultDurationMinutes,
	}
	if err := st.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.Templates().CreateSessionType(ctx, st); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"session_type_id": st.ID,
		"max_consumers":   st.MaxConsumers,
	}).Info("Session type created")
	return st, nil
}

func (s *templateService) CreateTemplate(ctx context.Context, req *CreateTemplateRequest) (*entity.TimeSlotTemplate, error) {
	t := &entity.TimeSlotTemplate{
		RecurrenceExpr:  req.RecurrenceExpr,
		TimeZone:        req.TimeZone,
		ValidFromYear:   req.ValidFromYear,
		ValidToYear:     req.ValidToYear,
		DurationMinutes: req.DurationMinutes,
		SessionTypeID:   req.SessionTypeID,
		InstructorID:    req.InstructorID,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := s.slots.Validate(t.RecurrenceExpr); err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrInvalidInput, err)
	}
	if _, err := s.store.Templates().GetSessionType(ctx, t.SessionTypeID); err != nil {
		return nil, err
	}
	if err := s.store.Templates().CreateTemplate(ctx, t); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"template_id": t.ID,
		"expr":        t.RecurrenceExpr,
		"tz":          t.TimeZone,
	}).Info("Time slot template created")
	return s.store.Templates().GetTemplate(ctx, t.ID)
}

func (s *templateService) GetTemplate(ctx context.Context, id string) (*entity.TimeSlotTemplate, error) {
	return s.store.Templates().GetTemplate(ctx, id)
}

func (s *templateService) ExpandSlots(ctx context.Context, templateID string, from, to time.Time) ([]entity.Slot, error) {
	t, err := s.store.Templates().GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	return s.slots.Slots(t, from, to)
}
