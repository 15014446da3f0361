package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/medinote/backend/internal/models"
	"github.com/medinote/backend/internal/utils"
	"gorm.io/gorm"
)

type TranscriptionRepository interface {
	GetByClinicSession(ctx context.Context, clinicSessionID string) (*models.Transcription, error)

	// Replace deletes any existing transcription for the clinic session and,
	// when t is non-nil, inserts t with its segments — all in one
	// transaction, so concurrent readers never observe the gap. The clinic
	// session's updated_at is stamped either way.
	Replace(ctx context.Context, clinicSessionID string, t *models.Transcription) error
}

type transcriptionRepo struct {
	db *gorm.DB
}

func NewTranscriptionRepo(db *gorm.DB) TranscriptionRepository {
	return &transcriptionRepo{db: db}
}

func (r *transcriptionRepo) GetByClinicSession(ctx context.Context, clinicSessionID string) (*models.Transcription, error) {
	var row models.Transcription
	err := r.db.WithContext(ctx).
		Preload("Segments", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("clinic_session_id = ?", clinicSessionID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *transcriptionRepo) Replace(ctx context.Context, clinicSessionID string, t *models.Transcription) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prior models.Transcription
		err := tx.Where("clinic_session_id = ?", clinicSessionID).Take(&prior).Error
		switch {
		case err == nil:
			if err := tx.Where("transcription_id = ?", prior.ID).
				Delete(&models.TranscriptSegment{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&prior).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			// nothing to supersede
		default:
			return err
		}

		if t != nil {
			if err := tx.Create(t).Error; err != nil {
				return err
			}
		}

		return tx.Model(&models.ClinicSession{}).
			Where("id = ?", clinicSessionID).
			Update("updated_at", time.Now().UTC()).Error
	})
}
