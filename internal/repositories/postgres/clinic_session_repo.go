package postgres

import (
	"context"
	"errors"

	"github.com/medinote/backend/internal/models"
	"github.com/medinote/backend/internal/utils"
	"gorm.io/gorm"
)

type ClinicSessionRepository interface {
	GetByID(ctx context.Context, id string) (*models.ClinicSession, error)
	Create(ctx context.Context, s *models.ClinicSession) error
}

type clinicSessionRepo struct {
	db *gorm.DB
}

func NewClinicSessionRepo(db *gorm.DB) ClinicSessionRepository {
	return &clinicSessionRepo{db: db}
}

func (r *clinicSessionRepo) GetByID(ctx context.Context, id string) (*models.ClinicSession, error) {
	var row models.ClinicSession
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *clinicSessionRepo) Create(ctx context.Context, s *models.ClinicSession) error {
	return r.db.WithContext(ctx).Create(s).Error
}
