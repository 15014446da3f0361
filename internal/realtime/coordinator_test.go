package realtime

import (
	"context"
	"sync"
	"testing"

	"github.com/medinote/backend/internal/providers/stt"
	"github.com/medinote/backend/internal/services"
	"github.com/medinote/backend/internal/utils"
	"github.com/sirupsen/logrus"
)

func newTestCoordinator(engine *fakeEngine, persister *fakePersister) (*Coordinator, *fakeGroups, *fakeChunks) {
	groups := newFakeGroups()
	chunks := &fakeChunks{}
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	return &Coordinator{
		Registry:    NewRegistry(),
		Engine:      engine,
		Sessions:    &fakeSessions{owner: "u-owner"},
		Transcripts: persister,
		Chunks:      chunks,
		Groups:      groups,
		Logger:      log,
	}, groups, chunks
}

func TestCoordinatorStartJoinsGroup(t *testing.T) {
	c, groups, _ := newTestCoordinator(&fakeEngine{}, &fakePersister{})

	if err := c.StartRealtime(context.Background(), "conn-1", "u-owner", "clinician", "cs-42"); err != nil {
		t.Fatalf("StartRealtime: %v", err)
	}
	if c.Registry.Get("conn-1") == nil {
		t.Fatal("session should be live after start")
	}

	groups.mu.Lock()
	defer groups.mu.Unlock()
	if len(groups.joins) != 1 || groups.joins[0] != "conn-1|"+services.NotificationGroup("cs-42") {
		t.Errorf("joins = %v, want conn-1 in session group", groups.joins)
	}
}

func TestCoordinatorStartRejectsNonOwner(t *testing.T) {
	c, _, _ := newTestCoordinator(&fakeEngine{}, &fakePersister{})

	err := c.StartRealtime(context.Background(), "conn-1", "u-intruder", "clinician", "cs-42")
	if !utils.IsCode(err, utils.CodeForbidden) {
		t.Fatalf("err = %v, want FORBIDDEN", err)
	}
	if c.Registry.Len() != 0 {
		t.Error("no session should be installed for an unauthorized start")
	}
}

func TestCoordinatorStartAllowsElevatedNonOwner(t *testing.T) {
	c, _, _ := newTestCoordinator(&fakeEngine{}, &fakePersister{})

	if err := c.StartRealtime(context.Background(), "conn-1", "u-admin", "admin", "cs-42"); err != nil {
		t.Fatalf("admin start should succeed: %v", err)
	}
}

func TestCoordinatorUploadChunkValidation(t *testing.T) {
	c, _, chunks := newTestCoordinator(&fakeEngine{}, &fakePersister{})
	ctx := context.Background()

	// no live session at all
	err := c.UploadChunk(ctx, "conn-1", "cs-42", []byte("audio"))
	if !utils.IsCode(err, utils.CodeConflict) {
		t.Fatalf("err = %v, want CONFLICT", err)
	}

	if err := c.StartRealtime(ctx, "conn-1", "u-owner", "clinician", "cs-42"); err != nil {
		t.Fatalf("StartRealtime: %v", err)
	}

	// wrong clinic session for this connection
	err = c.UploadChunk(ctx, "conn-1", "cs-other", []byte("audio"))
	if !utils.IsCode(err, utils.CodeConflict) {
		t.Fatalf("mismatched session: err = %v, want CONFLICT", err)
	}

	if err := c.UploadChunk(ctx, "conn-1", "cs-42", []byte("audio")); err != nil {
		t.Fatalf("UploadChunk: %v", err)
	}

	chunks.mu.Lock()
	defer chunks.mu.Unlock()
	if len(chunks.rows) != 1 || chunks.rows[0].Seq != 1 || chunks.rows[0].Bytes != 5 {
		t.Errorf("audit rows = %+v, want one row with seq 1", chunks.rows)
	}
}

func TestCoordinatorStopOnForeignConnectionRejected(t *testing.T) {
	c, _, _ := newTestCoordinator(&fakeEngine{}, &fakePersister{})
	ctx := context.Background()

	if err := c.StartRealtime(ctx, "conn-a", "u-owner", "clinician", "cs-42"); err != nil {
		t.Fatalf("StartRealtime: %v", err)
	}

	// conn-b has no live session for cs-42: invalid protocol state, and
	// conn-a's session must be untouched.
	_, err := c.StopRealtime(ctx, "conn-b", "u-other", "clinician", "cs-42")
	if !utils.IsCode(err, utils.CodeConflict) {
		t.Fatalf("err = %v, want CONFLICT", err)
	}
	if c.Registry.Get("conn-a") == nil {
		t.Error("conn-a's session must survive conn-b's stop attempt")
	}
}

func TestCoordinatorStopPersistsAndLeavesGroup(t *testing.T) {
	engine := &fakeEngine{result: &stt.Result{
		Text:     "hello world",
		Segments: []stt.Segment{{SpeakerTag: 1, StartMS: 0, EndMS: 900, Content: "hello world"}},
	}}
	persister := &fakePersister{}
	c, groups, _ := newTestCoordinator(engine, persister)
	ctx := context.Background()

	if err := c.StartRealtime(ctx, "conn-1", "u-owner", "clinician", "cs-42"); err != nil {
		t.Fatalf("StartRealtime: %v", err)
	}
	if err := c.UploadChunk(ctx, "conn-1", "cs-42", []byte("audio")); err != nil {
		t.Fatalf("UploadChunk: %v", err)
	}

	tr, err := c.StopRealtime(ctx, "conn-1", "u-owner", "clinician", "cs-42")
	if err != nil {
		t.Fatalf("StopRealtime: %v", err)
	}
	if tr == nil || tr.Text != "hello world" {
		t.Fatalf("transcription = %+v, want committed text", tr)
	}
	if persister.persistCount() != 1 {
		t.Fatalf("persist count = %d, want 1", persister.persistCount())
	}
	if c.Registry.Len() != 0 {
		t.Error("registry should be empty after stop")
	}

	groups.mu.Lock()
	defer groups.mu.Unlock()
	if len(groups.leaves) != 1 {
		t.Errorf("leaves = %v, want one leave after stop", groups.leaves)
	}
}

func TestCoordinatorDisconnectPersistsOnce(t *testing.T) {
	engine := &fakeEngine{result: &stt.Result{Text: "mid-stream"}}
	persister := &fakePersister{}
	c, _, _ := newTestCoordinator(engine, persister)
	ctx := context.Background()

	if err := c.StartRealtime(ctx, "conn-1", "u-owner", "clinician", "cs-42"); err != nil {
		t.Fatalf("StartRealtime: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := c.UploadChunk(ctx, "conn-1", "cs-42", []byte("chunk")); err != nil {
			t.Fatalf("UploadChunk(%d): %v", i, err)
		}
	}

	c.HandleDisconnect("conn-1")
	c.HandleDisconnect("conn-1") // second call observes absence

	if persister.persistCount() != 1 {
		t.Fatalf("persist count = %d, want exactly 1", persister.persistCount())
	}
	got := persister.inputs[0]
	if got.ClinicSessionID != "cs-42" || got.CallerID != "u-owner" {
		t.Errorf("persist input = %+v", got)
	}
	if len(got.Audio) != 3*len("chunk") {
		t.Errorf("archived audio = %d bytes, want %d", len(got.Audio), 3*len("chunk"))
	}
}

// Racing an explicit stop against a disconnect finalizes exactly once.
func TestCoordinatorStopDisconnectRace(t *testing.T) {
	for i := 0; i < 100; i++ {
		engine := &fakeEngine{result: &stt.Result{Text: "racy"}}
		persister := &fakePersister{}
		c, _, _ := newTestCoordinator(engine, persister)
		ctx := context.Background()

		if err := c.StartRealtime(ctx, "conn-1", "u-owner", "clinician", "cs-42"); err != nil {
			t.Fatalf("StartRealtime: %v", err)
		}
		if err := c.UploadChunk(ctx, "conn-1", "cs-42", []byte("audio")); err != nil {
			t.Fatalf("UploadChunk: %v", err)
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = c.StopRealtime(ctx, "conn-1", "u-owner", "clinician", "cs-42")
		}()
		go func() {
			defer wg.Done()
			c.HandleDisconnect("conn-1")
		}()
		wg.Wait()

		if n := persister.persistCount(); n != 1 {
			t.Fatalf("iteration %d: persist count = %d, want exactly 1", i, n)
		}
	}
}

func TestCoordinatorDisconnectWithAdminOpener(t *testing.T) {
	engine := &fakeEngine{result: &stt.Result{Text: "admin session"}}
	persister := &fakePersister{}
	c, _, _ := newTestCoordinator(engine, persister)
	ctx := context.Background()

	if err := c.StartRealtime(ctx, "conn-1", "u-admin", "admin", "cs-42"); err != nil {
		t.Fatalf("StartRealtime: %v", err)
	}
	if err := c.UploadChunk(ctx, "conn-1", "cs-42", []byte("audio")); err != nil {
		t.Fatalf("UploadChunk: %v", err)
	}

	c.HandleDisconnect("conn-1")

	if persister.persistCount() != 1 {
		t.Fatalf("persist count = %d, want 1", persister.persistCount())
	}
	in := persister.inputs[0]
	if in.CallerID != "u-admin" || in.CallerRole != "admin" {
		t.Errorf("disconnect persist must carry the opener's identity and role, got %+v", in)
	}
}

func TestCoordinatorStartReplacesExistingSession(t *testing.T) {
	engine := &fakeEngine{}
	c, _, _ := newTestCoordinator(engine, &fakePersister{})
	ctx := context.Background()

	if err := c.StartRealtime(ctx, "conn-1", "u-owner", "clinician", "cs-42"); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := c.StartRealtime(ctx, "conn-1", "u-owner", "clinician", "cs-43"); err != nil {
		t.Fatalf("second start: %v", err)
	}

	if c.Registry.Len() != 1 {
		t.Fatalf("registry len = %d, want 1", c.Registry.Len())
	}
	if got := c.Registry.Get("conn-1").ClinicSessionID; got != "cs-43" {
		t.Errorf("live session = %s, want cs-43", got)
	}
	if engine.streams[0].closeCount() == 0 {
		t.Error("first session's stream must be released on replacement")
	}
}
