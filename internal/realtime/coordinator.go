package realtime

import (
	"context"
	"time"

	"github.com/medinote/backend/internal/models"
	"github.com/medinote/backend/internal/providers/stt"
	mongorepo "github.com/medinote/backend/internal/repositories/mongo"
	"github.com/medinote/backend/internal/services"
	"github.com/medinote/backend/internal/utils"
	"github.com/sirupsen/logrus"
)

const defaultFinalizeTimeout = 30 * time.Second

// Coordinator implements the transport-facing realtime operations. One
// instance serves all connections; per-connection state lives in the
// registry's sessions.
type Coordinator struct {
	Registry    *Registry
	Engine      stt.Provider
	Sessions    services.ClinicSessionService
	Transcripts services.TranscriptionService
	Chunks      mongorepo.ChunkRepository // optional audit trail
	Groups      GroupNotifier
	Logger      *logrus.Logger

	Language        string
	MaxSpeakers     int32
	FinalizeTimeout time.Duration
}

func (c *Coordinator) log() *logrus.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logrus.StandardLogger()
}

func (c *Coordinator) finalizeTimeout() time.Duration {
	if c.FinalizeTimeout > 0 {
		return c.FinalizeTimeout
	}
	return defaultFinalizeTimeout
}

func (c *Coordinator) maxSpeakers() int32 {
	if c.MaxSpeakers > 0 {
		return c.MaxSpeakers
	}
	return 2
}

// StartRealtime opens a live transcription session for the connection. Any
// stale session for the same connection is replaced and disposed. The
// caller must own the clinic session or be elevated; that is re-checked at
// persist time, the check here just fails fast.
func (c *Coordinator) StartRealtime(ctx context.Context, connID, userID, role, clinicSessionID string) error {
	const op = "Coordinator.StartRealtime"

	if connID == "" || clinicSessionID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "connection id and session id are required", nil)
	}

	if _, err := c.Sessions.Authorize(ctx, userID, role, clinicSessionID); err != nil {
		return err
	}

	sess := c.Registry.Create(connID, func() *Session {
		return NewSession(clinicSessionID, connID, userID, role)
	})

	if err := sess.Initialize(ctx, c.Engine, c.Language, c.maxSpeakers()); err != nil {
		if removed := c.Registry.Remove(connID); removed != nil {
			removed.Dispose()
		}
		return err
	}

	c.Groups.JoinGroup(connID, services.NotificationGroup(clinicSessionID))

	c.log().WithFields(logrus.Fields{
		"connection_id":     connID,
		"clinic_session_id": clinicSessionID,
		"user_id":           userID,
	}).Info("realtime session started")
	return nil
}

// UploadChunk forwards one audio chunk to the connection's live session.
// The referenced clinic session must match the live session exactly.
func (c *Coordinator) UploadChunk(ctx context.Context, connID, clinicSessionID string, chunk []byte) error {
	const op = "Coordinator.UploadChunk"

	if len(chunk) == 0 {
		return utils.E(utils.CodeInvalidArgument, op, "empty audio chunk", nil)
	}

	sess := c.Registry.Get(connID)
	if sess == nil || sess.ClinicSessionID != clinicSessionID {
		return utils.E(utils.CodeConflict, op, "no live transcription session for this clinic session on this connection", nil)
	}

	seq, err := sess.AppendAudio(ctx, chunk)
	if err != nil {
		return err
	}

	if c.Chunks != nil {
		rec := &models.ChunkRecord{
			SessionID:    clinicSessionID,
			ConnectionID: connID,
			Seq:          seq,
			Bytes:        len(chunk),
		}
		if err := c.Chunks.Insert(ctx, rec); err != nil {
			c.log().WithError(err).WithField("connection_id", connID).
				Warn("chunk audit insert failed")
		}
	}
	return nil
}

// StopRealtime is the explicit completion path: atomically detach the
// session, finalize it, persist the result, and leave the notification
// group. Finalize and persist run under a scope detached from the request
// so a connection dropping mid-stop cannot cancel the commit.
func (c *Coordinator) StopRealtime(ctx context.Context, connID, userID, role, clinicSessionID string) (*models.Transcription, error) {
	const op = "Coordinator.StopRealtime"

	live := c.Registry.Get(connID)
	if live == nil || live.ClinicSessionID != clinicSessionID {
		return nil, utils.E(utils.CodeConflict, op, "no live transcription session for this clinic session on this connection", nil)
	}

	sess := c.Registry.Remove(connID)
	if sess == nil {
		// Lost the race to a disconnect; the other path finalizes.
		return nil, utils.E(utils.CodeConflict, op, "session already finalized", nil)
	}
	defer sess.Dispose()

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.finalizeTimeout())
	defer cancel()

	res, err := sess.Complete(fctx)
	if err != nil {
		return nil, err
	}

	t, err := c.Transcripts.Persist(fctx, services.PersistInput{
		ClinicSessionID: clinicSessionID,
		CallerID:        userID,
		CallerRole:      role,
		ConnectionID:    connID,
		Text:            res.Text,
		Segments:        res.Segments,
		Audio:           res.Audio,
	})
	if err != nil {
		return nil, err
	}

	c.Groups.LeaveGroup(connID, services.NotificationGroup(clinicSessionID))
	return t, nil
}

// HandleDisconnect finalizes whatever session the dropped connection still
// owned. There is no caller to report to: failures here are logged for
// operational visibility and swallowed so one bad teardown cannot affect
// other connections. Runs under its own timeout, never the dropped
// connection's context.
func (c *Coordinator) HandleDisconnect(connID string) {
	sess := c.Registry.Remove(connID)
	if sess == nil {
		return
	}
	defer sess.Dispose()

	log := c.log().WithFields(logrus.Fields{
		"connection_id":     connID,
		"clinic_session_id": sess.ClinicSessionID,
	})

	ctx, cancel := context.WithTimeout(context.Background(), c.finalizeTimeout())
	defer cancel()

	res, err := sess.Complete(ctx)
	if err != nil {
		log.WithError(err).Warn("finalize on disconnect failed")
		return
	}

	_, err = c.Transcripts.Persist(ctx, services.PersistInput{
		ClinicSessionID: sess.ClinicSessionID,
		CallerID:        sess.OwnerUserID, // whoever opened the session persists as themselves
		CallerRole:      sess.OwnerRole,
		ConnectionID:    connID,
		Text:            res.Text,
		Segments:        res.Segments,
		Audio:           res.Audio,
	})
	if err != nil {
		log.WithError(err).Error("persist on disconnect failed")
		return
	}
	log.Info("session finalized on disconnect")
}

// WatchSession subscribes an authorized connection to a clinic session's
// notification group without transcribing. Viewers use it to hear about
// persisted transcripts in real time.
func (c *Coordinator) WatchSession(ctx context.Context, connID, userID, role, clinicSessionID string) error {
	if _, err := c.Sessions.Authorize(ctx, userID, role, clinicSessionID); err != nil {
		return err
	}
	c.Groups.JoinGroup(connID, services.NotificationGroup(clinicSessionID))
	return nil
}

func (c *Coordinator) UnwatchSession(connID, clinicSessionID string) {
	c.Groups.LeaveGroup(connID, services.NotificationGroup(clinicSessionID))
}
