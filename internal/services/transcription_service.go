package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/medinote/backend/internal/models"
	"github.com/medinote/backend/internal/providers/stt"
	pgrepo "github.com/medinote/backend/internal/repositories/postgres"
	"github.com/medinote/backend/internal/storage"
	"github.com/medinote/backend/internal/utils"
	"github.com/sirupsen/logrus"
)

// Notifier broadcasts to a notification group; the realtime hub implements
// it. Delivery is best-effort and never affects committed state.
type Notifier interface {
	BroadcastGroup(group string, payload []byte) error
}

// NotificationGroup names the group subscribed to a clinic session's
// transcription events.
func NotificationGroup(clinicSessionID string) string {
	return "session:" + clinicSessionID
}

// PersistedEvent is the payload broadcast after a successful commit.
type PersistedEvent struct {
	Type            string `json:"type"`
	TranscriptionID string `json:"transcription_id"`
	ClinicSessionID string `json:"clinic_session_id"`
	Text            string `json:"text"`
}

type PersistInput struct {
	ClinicSessionID string
	CallerID        string
	CallerRole      string
	ConnectionID    string

	Text     string
	Segments []stt.Segment // sorted by start offset by the session
	Audio    []byte        // raw session audio for archival, may be empty
}

// TranscriptionService commits finalized transcription results. Persist is
// the only writer of transcription rows: authorize, supersede any prior
// transcript as a whole, commit, then notify the session's group.
type TranscriptionService interface {
	// Persist returns the committed transcription, or nil when the result
	// was empty (prior transcript removed, nothing inserted).
	Persist(ctx context.Context, in PersistInput) (*models.Transcription, error)

	GetForCaller(ctx context.Context, callerID, callerRole, clinicSessionID string) (*models.Transcription, error)
}

type transcriptionService struct {
	sessions    ClinicSessionService
	transcripts pgrepo.TranscriptionRepository
	archive     storage.Uploader // optional
	notifier    Notifier         // optional
	log         *logrus.Logger

	// Serializes supersede+commit per clinic session so two concurrent
	// completions cannot interleave their delete/insert steps. Entries are
	// never evicted; the map is bounded by sessions seen per process.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewTranscriptionService(
	sessions ClinicSessionService,
	transcripts pgrepo.TranscriptionRepository,
	archive storage.Uploader,
	notifier Notifier,
	log *logrus.Logger,
) TranscriptionService {
	if log == nil {
		log = logrus.New()
	}
	return &transcriptionService{
		sessions:    sessions,
		transcripts: transcripts,
		archive:     archive,
		notifier:    notifier,
		log:         log,
		locks:       map[string]*sync.Mutex{},
	}
}

func (s *transcriptionService) sessionLock(clinicSessionID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	mu, ok := s.locks[clinicSessionID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[clinicSessionID] = mu
	}
	return mu
}

func (s *transcriptionService) Persist(ctx context.Context, in PersistInput) (*models.Transcription, error) {
	const op = "TranscriptionService.Persist"

	if in.ClinicSessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "clinic_session_id is required", nil)
	}

	if _, err := s.sessions.Authorize(ctx, in.CallerID, in.CallerRole, in.ClinicSessionID); err != nil {
		return nil, err
	}

	mu := s.sessionLock(in.ClinicSessionID)
	mu.Lock()
	defer mu.Unlock()

	empty := strings.TrimSpace(in.Text) == "" && len(in.Segments) == 0
	if empty {
		// A completed-but-empty session still supersedes: the prior
		// transcript goes away and nothing replaces it.
		if err := s.transcripts.Replace(ctx, in.ClinicSessionID, nil); err != nil {
			return nil, utils.E(utils.CodeInternal, op, "failed to supersede transcription", err)
		}
		s.log.WithFields(logrus.Fields{
			"clinic_session_id": in.ClinicSessionID,
			"connection_id":     in.ConnectionID,
		}).Info("empty transcription result, prior transcript removed")
		return nil, nil
	}

	now := time.Now().UTC()
	t := &models.Transcription{
		ID:              uuid.NewString(),
		ClinicSessionID: in.ClinicSessionID,
		Source:          models.TranscriptionSourceRealtime,
		Text:            in.Text,
		CreatedBy:       in.CallerID,
		CreatedAt:       now,
	}
	for i, seg := range in.Segments {
		t.Segments = append(t.Segments, models.TranscriptSegment{
			Position:   i,
			SpeakerTag: seg.SpeakerTag,
			StartMS:    seg.StartMS,
			EndMS:      seg.EndMS,
			Content:    seg.Content,
		})
	}

	t.AudioObject = s.archiveAudio(ctx, in, t.ID)

	if err := s.transcripts.Replace(ctx, in.ClinicSessionID, t); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to commit transcription", err)
	}

	s.notifyPersisted(t)
	return t, nil
}

// archiveAudio uploads the raw session audio to the archive bucket. The
// commit does not depend on it; on failure the transcription simply has no
// audio object.
func (s *transcriptionService) archiveAudio(ctx context.Context, in PersistInput, transcriptionID string) string {
	if s.archive == nil || len(in.Audio) == 0 {
		return ""
	}
	object := "sessions/" + in.ClinicSessionID + "/audio/" + transcriptionID + ".pcm"
	if err := s.archive.Upload(ctx, object, "audio/L16", bytes.NewReader(in.Audio)); err != nil {
		s.log.WithError(err).WithField("clinic_session_id", in.ClinicSessionID).
			Warn("audio archival failed")
		return ""
	}
	return object
}

func (s *transcriptionService) notifyPersisted(t *models.Transcription) {
	if s.notifier == nil {
		return
	}
	payload, _ := json.Marshal(PersistedEvent{
		Type:            "transcription_persisted",
		TranscriptionID: t.ID,
		ClinicSessionID: t.ClinicSessionID,
		Text:            t.Text,
	})
	if err := s.notifier.BroadcastGroup(NotificationGroup(t.ClinicSessionID), payload); err != nil {
		s.log.WithError(err).WithField("clinic_session_id", t.ClinicSessionID).
			Warn("persisted notification failed")
	}
}

func (s *transcriptionService) GetForCaller(ctx context.Context, callerID, callerRole, clinicSessionID string) (*models.Transcription, error) {
	const op = "TranscriptionService.GetForCaller"

	if _, err := s.sessions.Authorize(ctx, callerID, callerRole, clinicSessionID); err != nil {
		return nil, err
	}

	t, err := s.transcripts.GetByClinicSession(ctx, clinicSessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "no transcription for this clinic session", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get transcription", err)
	}
	return t, nil
}
