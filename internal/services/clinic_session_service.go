package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/medinote/backend/internal/cache"
	"github.com/medinote/backend/internal/models"
	pgrepo "github.com/medinote/backend/internal/repositories/postgres"
	"github.com/medinote/backend/internal/utils"
	"gorm.io/datatypes"
)

const sessionCacheTTL = 30 * time.Second

type ClinicSessionService interface {
	Create(ctx context.Context, ownerUserID, patientName string, scheduledAt time.Time, metadata datatypes.JSON) (*models.ClinicSession, error)
	Get(ctx context.Context, id string) (*models.ClinicSession, error)

	// Authorize reloads the session and verifies the caller owns it or
	// holds an elevated role. Every persistence path goes through this.
	Authorize(ctx context.Context, callerID, callerRole, id string) (*models.ClinicSession, error)
}

type clinicSessionService struct {
	sessions pgrepo.ClinicSessionRepository
	cache    cache.Cache // optional
}

func NewClinicSessionService(sessions pgrepo.ClinicSessionRepository, c cache.Cache) ClinicSessionService {
	return &clinicSessionService{sessions: sessions, cache: c}
}

func (s *clinicSessionService) Create(ctx context.Context, ownerUserID, patientName string, scheduledAt time.Time, metadata datatypes.JSON) (*models.ClinicSession, error) {
	const op = "ClinicSessionService.Create"

	if ownerUserID == "" || patientName == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "owner_user_id and patient_name are required", nil)
	}
	if scheduledAt.IsZero() {
		scheduledAt = time.Now().UTC()
	}

	now := time.Now().UTC()
	cs := &models.ClinicSession{
		ID:          uuid.NewString(),
		OwnerUserID: ownerUserID,
		PatientName: patientName,
		ScheduledAt: scheduledAt,
		Metadata:    metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.sessions.Create(ctx, cs); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create clinic session", err)
	}
	return cs, nil
}

func (s *clinicSessionService) Get(ctx context.Context, id string) (*models.ClinicSession, error) {
	const op = "ClinicSessionService.Get"

	if id == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session id is required", nil)
	}

	key := "clinic_session:" + id
	if s.cache != nil {
		var cached models.ClinicSession
		if hit, err := s.cache.GetJSON(ctx, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	cs, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "clinic session not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get clinic session", err)
	}

	if s.cache != nil {
		_ = s.cache.SetJSON(ctx, key, cs, sessionCacheTTL)
	}
	return cs, nil
}

func (s *clinicSessionService) Authorize(ctx context.Context, callerID, callerRole, id string) (*models.ClinicSession, error) {
	const op = "ClinicSessionService.Authorize"

	if callerID == "" {
		return nil, utils.E(utils.CodeUnauthorized, op, "unauthenticated", nil)
	}

	cs, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cs.OwnerUserID != callerID && !models.Elevated(callerRole) {
		return nil, utils.E(utils.CodeForbidden, op, "caller does not own this clinic session", nil)
	}
	return cs, nil
}
