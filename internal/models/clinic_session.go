package models

import (
	"time"

	"gorm.io/datatypes"
)

// ClinicSession is the clinical appointment being transcribed. It is the
// business session a transcript belongs to, distinct from any transport
// connection or live transcription session.
type ClinicSession struct {
	ID          string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OwnerUserID string `gorm:"column:owner_user_id;type:uuid;index" json:"owner_user_id"`

	PatientName string         `gorm:"column:patient_name;type:text" json:"patient_name"`
	ScheduledAt time.Time      `gorm:"column:scheduled_at;type:timestamptz;index" json:"scheduled_at"`
	Metadata    datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (ClinicSession) TableName() string { return "clinic_sessions" }
