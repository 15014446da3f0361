package models

import "time"

const (
	// TranscriptionSourceRealtime marks transcripts produced by the live
	// streaming coordinator. Other ingestion paths (file upload, import)
	// get their own source kinds later.
	TranscriptionSourceRealtime = "realtime"
)

// Transcription is the durable transcript of a clinic session. At most one
// exists per clinic session (unique index); a later completed session
// supersedes it as a whole, never merges into it.
type Transcription struct {
	ID              string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ClinicSessionID string `gorm:"column:clinic_session_id;type:uuid;uniqueIndex" json:"clinic_session_id"`

	Source string `gorm:"column:source;type:text" json:"source"`
	Text   string `gorm:"column:text;type:text" json:"text"`

	// GCS object holding the raw session audio, when archival succeeded.
	AudioObject string `gorm:"column:audio_object;type:text" json:"audio_object,omitempty"`

	CreatedBy string    `gorm:"column:created_by;type:uuid" json:"created_by"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`

	Segments []TranscriptSegment `gorm:"foreignKey:TranscriptionID;constraint:OnDelete:CASCADE" json:"segments"`
}

func (Transcription) TableName() string { return "transcriptions" }

// TranscriptSegment is a speaker-attributed span of text with start/end
// offsets (milliseconds) within the session audio. Rows are stored ordered
// by ascending start offset; Position preserves that order on read.
type TranscriptSegment struct {
	ID              int64  `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	TranscriptionID string `gorm:"column:transcription_id;type:uuid;index" json:"-"`

	Position   int    `gorm:"column:position" json:"position"`
	SpeakerTag int32  `gorm:"column:speaker_tag" json:"speaker_tag"`
	StartMS    int64  `gorm:"column:start_ms" json:"start_ms"`
	EndMS      int64  `gorm:"column:end_ms" json:"end_ms"`
	Content    string `gorm:"column:content;type:text" json:"content"`
}

func (TranscriptSegment) TableName() string { return "transcript_segments" }
