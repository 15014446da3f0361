package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/medinote/backend/internal/models"
	"github.com/medinote/backend/internal/providers/stt"
	"github.com/medinote/backend/internal/services"
	"github.com/medinote/backend/internal/utils"
	"gorm.io/datatypes"
)

// ── speech engine fakes ──────────────────────────────────────────────

type fakeStream struct {
	mu          sync.Mutex
	appended    [][]byte
	closed      int
	finalized   bool
	result      *stt.Result
	finalizeErr error
}

func (f *fakeStream) Append(ctx context.Context, audio []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := make([]byte, len(audio))
	copy(b, audio)
	f.appended = append(f.appended, b)
	return nil
}

func (f *fakeStream) Finalize(ctx context.Context) (*stt.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalized = true
	if f.finalizeErr != nil {
		return nil, f.finalizeErr
	}
	if f.result != nil {
		return f.result, nil
	}
	return &stt.Result{}, nil
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeStream) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeEngine struct {
	mu      sync.Mutex
	streams []*fakeStream
	openErr error
	result  *stt.Result
}

func (f *fakeEngine) OpenStream(ctx context.Context, language string, maxSpeakers int32) (stt.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	s := &fakeStream{result: f.result}
	f.streams = append(f.streams, s)
	return s, nil
}

func (f *fakeEngine) Close() error { return nil }

// ── service fakes ────────────────────────────────────────────────────

type fakeSessions struct {
	owner string
}

func (f *fakeSessions) Create(ctx context.Context, ownerUserID, patientName string, scheduledAt time.Time, metadata datatypes.JSON) (*models.ClinicSession, error) {
	return nil, nil
}

func (f *fakeSessions) Get(ctx context.Context, id string) (*models.ClinicSession, error) {
	return &models.ClinicSession{ID: id, OwnerUserID: f.owner}, nil
}

func (f *fakeSessions) Authorize(ctx context.Context, callerID, callerRole, id string) (*models.ClinicSession, error) {
	if callerID != f.owner && !models.Elevated(callerRole) {
		return nil, utils.E(utils.CodeForbidden, "fake", "forbidden", nil)
	}
	return &models.ClinicSession{ID: id, OwnerUserID: f.owner}, nil
}

type fakePersister struct {
	mu     sync.Mutex
	inputs []services.PersistInput
	err    error
}

func (f *fakePersister) Persist(ctx context.Context, in services.PersistInput) (*models.Transcription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, in)
	if in.Text == "" && len(in.Segments) == 0 {
		return nil, nil
	}
	return &models.Transcription{ID: "t-1", ClinicSessionID: in.ClinicSessionID, Text: in.Text}, nil
}

func (f *fakePersister) GetForCaller(ctx context.Context, callerID, callerRole, clinicSessionID string) (*models.Transcription, error) {
	return nil, utils.ErrNotFound
}

func (f *fakePersister) persistCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

type fakeGroups struct {
	mu     sync.Mutex
	joins  []string
	leaves []string
	bcasts map[string][][]byte
}

func newFakeGroups() *fakeGroups {
	return &fakeGroups{bcasts: map[string][][]byte{}}
}

func (f *fakeGroups) JoinGroup(connID, group string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, connID+"|"+group)
}

func (f *fakeGroups) LeaveGroup(connID, group string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves = append(f.leaves, connID+"|"+group)
}

func (f *fakeGroups) BroadcastGroup(group string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bcasts[group] = append(f.bcasts[group], payload)
	return nil
}

type fakeChunks struct {
	mu   sync.Mutex
	rows []models.ChunkRecord
}

func (f *fakeChunks) Insert(ctx context.Context, c *models.ChunkRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, *c)
	return nil
}

func (f *fakeChunks) ListBySession(ctx context.Context, clinicSessionID string, limit int64) ([]models.ChunkRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ChunkRecord(nil), f.rows...), nil
}
