package stt

import (
	"context"
	"strings"
	"testing"
)

func TestMockStreamUnlocksOneTurnPerChunk(t *testing.T) {
	provider := NewMock()
	stream, err := provider.OpenStream(context.Background(), "en-US", 2)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer stream.Close()

	for i := 0; i < 2; i++ {
		if err := stream.Append(context.Background(), []byte("chunk")); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}

	res, err := stream.Finalize(context.Background())
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if len(res.Segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(res.Segments))
	}
	if res.Segments[0].SpeakerTag == res.Segments[1].SpeakerTag {
		t.Error("scripted turns should alternate speakers")
	}
	if !strings.Contains(res.Text, res.Segments[0].Content) || !strings.Contains(res.Text, res.Segments[1].Content) {
		t.Errorf("text %q should join the unlocked turns", res.Text)
	}
}

func TestMockStreamNoAudioYieldsEmptyResult(t *testing.T) {
	stream, err := NewMock().OpenStream(context.Background(), "", 2)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer stream.Close()

	res, err := stream.Finalize(context.Background())
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if res.Text != "" || len(res.Segments) != 0 {
		t.Errorf("silent stream should yield an empty result, got %+v", res)
	}
}

func TestMockStreamRejectsUseAfterFinalize(t *testing.T) {
	stream, _ := NewMock().OpenStream(context.Background(), "", 2)
	if _, err := stream.Finalize(context.Background()); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := stream.Append(context.Background(), []byte("late")); err == nil {
		t.Error("append after finalize should fail")
	}
	if _, err := stream.Finalize(context.Background()); err == nil {
		t.Error("second finalize should fail")
	}
}

func TestMockStreamCapsAtScript(t *testing.T) {
	stream, _ := NewMock().OpenStream(context.Background(), "", 2)
	for i := 0; i < len(mockTurns)+5; i++ {
		if err := stream.Append(context.Background(), []byte("chunk")); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}
	res, err := stream.Finalize(context.Background())
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if len(res.Segments) != len(mockTurns) {
		t.Errorf("got %d segments, want the full script of %d", len(res.Segments), len(mockTurns))
	}
}
