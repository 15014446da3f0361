// Package realtime coordinates live audio transcription sessions: one
// session per transport connection, streamed into the speech engine and
// committed exactly once on completion regardless of how the connection
// ends.
package realtime

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/medinote/backend/internal/providers/stt"
	"github.com/medinote/backend/internal/utils"
)

type SessionState int32

const (
	StateInitializing SessionState = iota
	StateStreaming
	StateCompleting
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateStreaming:
		return "streaming"
	case StateCompleting:
		return "completing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// SessionResult is what a completed session hands to the persistence layer.
type SessionResult struct {
	Text     string
	Segments []stt.Segment // sorted by ascending start offset
	Audio    []byte        // raw bytes in arrival order, for archival
}

// Session wraps one live recognition stream for one connection. Transitions
// are Initializing → Streaming → Completing → Closed; Closed is terminal
// and releases the engine handle. Callers reach Complete only through the
// registry's atomic remove, so it runs at most once.
type Session struct {
	ClinicSessionID string
	ConnID          string
	OwnerUserID     string
	OwnerRole       string

	mu     sync.Mutex
	state  SessionState
	stream stt.Stream
	audio  bytes.Buffer
	seq    int64
}

func NewSession(clinicSessionID, connID, ownerUserID, ownerRole string) *Session {
	return &Session{
		ClinicSessionID: clinicSessionID,
		ConnID:          connID,
		OwnerUserID:     ownerUserID,
		OwnerRole:       ownerRole,
		state:           StateInitializing,
	}
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Initialize opens the recognition stream. Engine failures propagate and
// leave the session in Initializing; the caller is expected to remove and
// dispose it.
func (s *Session) Initialize(ctx context.Context, engine stt.Provider, language string, maxSpeakers int32) error {
	const op = "Session.Initialize"

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInitializing {
		return utils.E(utils.CodeConflict, op, "invalid session state: "+s.state.String(), nil)
	}

	stream, err := engine.OpenStream(ctx, language, maxSpeakers)
	if err != nil {
		return utils.E(utils.CodeUnavailable, op, "failed to open speech engine stream", err)
	}

	s.stream = stream
	s.state = StateStreaming
	return nil
}

// AppendAudio forwards one chunk to the engine in arrival order and returns
// the chunk's sequence number. The session mutex serializes appends; the
// transport already delivers one connection's messages in order.
func (s *Session) AppendAudio(ctx context.Context, chunk []byte) (int64, error) {
	const op = "Session.AppendAudio"

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStreaming {
		return 0, utils.E(utils.CodeConflict, op, "invalid session state: "+s.state.String(), nil)
	}

	if err := s.stream.Append(ctx, chunk); err != nil {
		return 0, utils.E(utils.CodeUnavailable, op, "speech engine rejected audio", err)
	}

	s.audio.Write(chunk)
	s.seq++
	return s.seq, nil
}

// Complete finalizes the engine stream and returns the aggregated result
// with segments sorted by ascending start offset (ties keep emission
// order). Valid from Streaming, and from Initializing for the zero-audio
// case. Resources are released on every path, including engine failure.
func (s *Session) Complete(ctx context.Context) (*SessionResult, error) {
	const op = "Session.Complete"

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStreaming && s.state != StateInitializing {
		return nil, utils.E(utils.CodeConflict, op, "invalid session state: "+s.state.String(), nil)
	}
	s.state = StateCompleting

	// No audio ever arrived: skip the engine round-trip entirely.
	if s.stream == nil || s.audio.Len() == 0 {
		s.closeLocked()
		return &SessionResult{}, nil
	}

	res, err := s.stream.Finalize(ctx)
	if err != nil {
		s.closeLocked()
		return nil, utils.E(utils.CodeUnavailable, op, "speech engine finalize failed", err)
	}

	sort.SliceStable(res.Segments, func(i, j int) bool {
		return res.Segments[i].StartMS < res.Segments[j].StartMS
	})

	audio := make([]byte, s.audio.Len())
	copy(audio, s.audio.Bytes())
	s.closeLocked()

	return &SessionResult{
		Text:     res.Text,
		Segments: res.Segments,
		Audio:    audio,
	}, nil
}

// Dispose releases the engine handle and buffers. Safe to call multiple
// times and from any state.
func (s *Session) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Session) closeLocked() {
	if s.stream != nil {
		_ = s.stream.Close()
		s.stream = nil
	}
	s.audio.Reset()
	s.state = StateClosed
}
