// Package stt defines the streaming speech-to-text engine contract and its
// implementations. The coordinator treats the engine as opaque: open a
// stream, push bytes in order, finalize once for the aggregated result.
package stt

import "context"

// Segment is a speaker-attributed span of the recognized audio. Offsets are
// milliseconds from the start of the stream. Emission order from the engine
// is recognition order, not necessarily time order.
type Segment struct {
	SpeakerTag int32  `json:"speaker_tag"`
	StartMS    int64  `json:"start_ms"`
	EndMS      int64  `json:"end_ms"`
	Content    string `json:"content"`
}

// Result is the aggregated outcome of a finalized stream.
type Result struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
}

// Stream is one live recognition context. Append calls must be sequential;
// Finalize may be called at most once. Close is idempotent and must be
// called on every exit path.
type Stream interface {
	Append(ctx context.Context, audio []byte) error
	Finalize(ctx context.Context) (*Result, error)
	Close() error
}

// Provider opens recognition streams. Implementations: Google Cloud Speech
// and a scripted mock for credential-less development.
type Provider interface {
	OpenStream(ctx context.Context, language string, maxSpeakers int32) (Stream, error)
	Close() error
}
