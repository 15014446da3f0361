package stt

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
)

type GoogleSpeech struct {
	c *speech.Client

	Encoding     speechpb.RecognitionConfig_AudioEncoding
	SampleRateHz int32
}

func NewGoogleSpeech(ctx context.Context) (*GoogleSpeech, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GoogleSpeech{
		c:            c,
		Encoding:     speechpb.RecognitionConfig_LINEAR16,
		SampleRateHz: 16000,
	}, nil
}

func (g *GoogleSpeech) Close() error { return g.c.Close() }

// OpenStream starts a streaming recognition session with diarization and
// word time offsets enabled. The gRPC stream is detached from the caller's
// cancellation: a dropped connection must not kill the finalize path, so
// the stream carries its own cancel released by Close.
func (g *GoogleSpeech) OpenStream(ctx context.Context, language string, maxSpeakers int32) (Stream, error) {
	if language == "" {
		language = "en-US"
	}
	if maxSpeakers <= 0 {
		maxSpeakers = 2
	}

	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	grpcStream, err := g.c.StreamingRecognize(sctx)
	if err != nil {
		cancel()
		return nil, err
	}

	err = grpcStream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   g.Encoding,
					SampleRateHertz:            g.SampleRateHz,
					LanguageCode:               language,
					EnableAutomaticPunctuation: true,
					EnableWordTimeOffsets:      true,
					DiarizationConfig: &speechpb.SpeakerDiarizationConfig{
						EnableSpeakerDiarization: true,
						MaxSpeakerCount:          maxSpeakers,
					},
				},
			},
		},
	})
	if err != nil {
		cancel()
		return nil, err
	}

	return &googleStream{stream: grpcStream, cancel: cancel}, nil
}

type googleStream struct {
	stream speechpb.Speech_StreamingRecognizeClient
	cancel context.CancelFunc

	mu        sync.Mutex
	finalized bool
	closed    bool
}

func (s *googleStream) Append(ctx context.Context, audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.finalized {
		return errors.New("stt: append on finalized stream")
	}
	return s.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
}

// Finalize half-closes the send side and drains responses until EOF,
// assembling the full transcript and speaker segments.
func (s *googleStream) Finalize(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	if s.closed || s.finalized {
		s.mu.Unlock()
		return nil, errors.New("stt: stream already finalized")
	}
	s.finalized = true
	s.mu.Unlock()

	if err := s.stream.CloseSend(); err != nil {
		return nil, err
	}

	var (
		parts []string
		// Google repeats the cumulative diarized word list on later final
		// results; the last one wins.
		diarized []*speechpb.WordInfo
	)
	for {
		resp, err := s.stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		for _, r := range resp.Results {
			if !r.IsFinal || len(r.Alternatives) == 0 {
				continue
			}
			alt := r.Alternatives[0]
			if alt.Transcript != "" {
				parts = append(parts, strings.TrimSpace(alt.Transcript))
			}
			if len(alt.Words) > 0 {
				diarized = alt.Words
			}
		}
	}

	return &Result{
		Text:     strings.Join(parts, " "),
		Segments: segmentsFromWords(diarized),
	}, nil
}

func (s *googleStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	return nil
}

// segmentsFromWords groups consecutive same-speaker words into segments.
func segmentsFromWords(words []*speechpb.WordInfo) []Segment {
	var segs []Segment
	for _, w := range words {
		startMS := w.GetStartTime().AsDuration().Milliseconds()
		endMS := w.GetEndTime().AsDuration().Milliseconds()

		n := len(segs)
		if n > 0 && segs[n-1].SpeakerTag == w.SpeakerTag {
			segs[n-1].Content += " " + w.Word
			segs[n-1].EndMS = endMS
			continue
		}
		segs = append(segs, Segment{
			SpeakerTag: w.SpeakerTag,
			StartMS:    startMS,
			EndMS:      endMS,
			Content:    w.Word,
		})
	}
	return segs
}
