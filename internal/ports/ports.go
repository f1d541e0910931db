package ports

import (
	"context"
	"io"

	"gaslightradio/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	Language       string
	InterimResults bool
}

// StreamingSession is a live transcription handle. CloseSend requests a
// graceful stop; Close aborts.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Fragments() <-chan domain.Fragment
	Wait() error
	Close() error
}

// TranscriptionProvider starts continuous transcription sessions.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// Recording is a finished raw capture.
type Recording struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// RadioProcessor turns a raw recording into a vintage-radio artifact.
type RadioProcessor interface {
	Process(ctx context.Context, rec Recording) (domain.ArtifactRef, error)
}

// Narrator speaks text and returns once playback has finished.
type Narrator interface {
	Speak(ctx context.Context, text string, voice domain.Voice) error
}

// EventSink emits backend state and effects to the UI.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	LiveTranscript(text string, score float64)
	IncidentReady(result domain.IncidentResult)
	EffectsChanged(flags []domain.EffectFlag)
	PlayCue(cue domain.Cue)
	SessionError(code domain.ErrorCode, detail string)
}
