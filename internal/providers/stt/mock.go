package stt

import (
	"context"
	"errors"
	"sync"
)

// scripted utterances cycled across mock streams, one entry per speaker turn.
var mockTurns = []Segment{
	{SpeakerTag: 1, StartMS: 0, EndMS: 2400, Content: "Good morning, what brings you in today"},
	{SpeakerTag: 2, StartMS: 2600, EndMS: 5100, Content: "I've had a persistent cough for two weeks"},
	{SpeakerTag: 1, StartMS: 5300, EndMS: 7800, Content: "Any fever or shortness of breath"},
	{SpeakerTag: 2, StartMS: 8000, EndMS: 9400, Content: "No fever, just the cough"},
}

// Mock implements Provider without cloud credentials. Each appended chunk
// unlocks one scripted speaker turn; finalizing with no audio yields an
// empty result, matching real engine behavior for silent streams.
type Mock struct{}

func NewMock() *Mock { return &Mock{} }

func (m *Mock) Close() error { return nil }

func (m *Mock) OpenStream(ctx context.Context, language string, maxSpeakers int32) (Stream, error) {
	return &mockStream{}, nil
}

type mockStream struct {
	mu        sync.Mutex
	chunks    int
	finalized bool
	closed    bool
}

func (s *mockStream) Append(ctx context.Context, audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.finalized {
		return errors.New("stt: append on finalized stream")
	}
	if len(audio) > 0 {
		s.chunks++
	}
	return nil
}

func (s *mockStream) Finalize(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.finalized {
		return nil, errors.New("stt: stream already finalized")
	}
	s.finalized = true

	n := s.chunks
	if n > len(mockTurns) {
		n = len(mockTurns)
	}

	res := &Result{}
	for _, seg := range mockTurns[:n] {
		res.Segments = append(res.Segments, seg)
		if res.Text != "" {
			res.Text += " "
		}
		res.Text += seg.Content
	}
	return res, nil
}

func (s *mockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
