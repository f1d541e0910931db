package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"gaslightradio/internal/domain"
	"gaslightradio/internal/interrupt"
	"gaslightradio/internal/ports"
)

var (
	ErrNoActiveSession = errors.New("no active recording session")
	ErrInterrupted     = errors.New("transmission was cut by HR")
	ErrShuttingDown    = errors.New("session controller is shutting down")
	ErrProcessing      = errors.New("HR is still processing the previous transmission")
)

// Recognition is the transcription lifecycle the controller drives.
type Recognition interface {
	Available() bool
	Start(ctx context.Context, onFragment func(domain.Fragment), onError func(error)) bool
	HardStop()
	IsActive() bool
	SendAudio(chunk []byte) bool
}

// Machine is the interrupt state machine. All calls except Snapshot run on
// the loop.
type Machine interface {
	Begin() string
	OnFragment(f domain.Fragment)
	Stop() (sessionID, transcript string, ok bool)
	Complete(in interrupt.CompletionInput) (domain.IncidentResult, bool)
	Reset()
	Snapshot() interrupt.Snapshot
}

type Effects interface {
	Cleanup()
	IsActive() bool
}

type Selector interface {
	Reset()
}

// Caller runs work on the core loop and waits for it.
type Caller interface {
	Call(fn func()) bool
}

// Notifier receives controller level state and errors.
type Notifier interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	SessionError(code domain.ErrorCode, detail string)
}

// Config controls recording behavior.
type Config struct {
	Audio         ports.AudioConfig
	ChunkSize     int
	MinAudioBytes int
	StopTimeout   time.Duration
}

// Deps are the controller's collaborators. Radio may be nil.
type Deps struct {
	Audio       ports.AudioCapture
	Recognition Recognition
	Machine     Machine
	Selector    Selector
	Effects     Effects
	Radio       ports.RadioProcessor
	Events      Notifier
	Loop        Caller
	Gate        *CaptureGate
	Logger      zerolog.Logger
}

// SessionController runs recording sessions: it owns the microphone and
// hands fragments, stops and resets to the interrupt machine on the loop.
type SessionController struct {
	audio       ports.AudioCapture
	recognition Recognition
	machine     Machine
	selector    Selector
	effects     Effects
	events      Notifier
	loop        Caller
	gate        *CaptureGate
	finalizer   recordingFinalizer
	cfg         Config
	logger      zerolog.Logger
}

func NewSessionController(deps Deps, cfg Config) *SessionController {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.MinAudioBytes < 0 {
		cfg.MinAudioBytes = 0
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}
	if deps.Gate == nil {
		deps.Gate = NewCaptureGate()
	}
	logger := deps.Logger.With().Str("component", "session").Logger()
	return &SessionController{
		audio:       deps.Audio,
		recognition: deps.Recognition,
		machine:     deps.Machine,
		selector:    deps.Selector,
		effects:     deps.Effects,
		events:      deps.Events,
		loop:        deps.Loop,
		gate:        deps.Gate,
		finalizer: recordingFinalizer{
			radio:         deps.Radio,
			events:        deps.Events,
			minAudioBytes: cfg.MinAudioBytes,
			sampleRate:    cfg.Audio.SampleRate,
			channels:      cfg.Audio.Channels,
			logger:        logger,
		},
		cfg:    cfg,
		logger: logger,
	}
}

// Start force-terminates any live recording and begins a new one.
// Missing transcription degrades to audio-only recording. While a cut or
// completed interaction is still delivering its result and narration, Start
// returns ErrProcessing and changes nothing.
func (c *SessionController) Start(ctx context.Context) error {
	if processing(c.machine.Snapshot().State) {
		return ErrProcessing
	}

	previous := c.gate.take()
	if previous != nil {
		c.stopSession(previous)
	}
	c.recognition.HardStop()

	sessionCtx, cancel := context.WithCancel(ctx)
	audioSession, err := c.audio.Start(sessionCtx, c.cfg.Audio)
	if err != nil {
		cancel()
		c.events.SessionError(domain.ErrorCodeAudioCapture, err.Error())
		c.events.SessionStateChanged(domain.SessionStateError, domain.SessionReasonCaptureFailed)
		return fmt.Errorf("failed to start audio capture: %w", err)
	}

	var (
		id   string
		busy bool
	)
	if !c.loop.Call(func() {
		if busy = processing(c.machine.Snapshot().State); !busy {
			id = c.machine.Begin()
		}
	}) {
		cancel()
		_ = audioSession.Stop()
		return ErrShuttingDown
	}
	if busy {
		cancel()
		_ = audioSession.Stop()
		return ErrProcessing
	}

	active := &activeSession{
		id:       id,
		cancel:   cancel,
		audio:    audioSession,
		recorder: &recorder{},
		pumpDone: make(chan struct{}),
	}
	c.gate.set(active)

	onError := func(err error) {
		c.events.SessionError(domain.ErrorCodeTranscription, err.Error())
	}
	if !c.recognition.Start(sessionCtx, c.machine.OnFragment, onError) && c.gate.get() == active {
		c.logger.Warn().Str("session_id", id).Msg("recording without live transcription")
		c.events.SessionStateChanged(domain.SessionStateRecording, domain.SessionReasonTranscriptionOff)
	}
	go pumpAudio(active.audio, active.recorder, c.recognition, c.cfg.ChunkSize, c.events, active.pumpDone)

	if previous != nil {
		c.events.SessionStateChanged(domain.SessionStateRecording, domain.SessionReasonRecordingRestarted)
	}
	return nil
}

// Stop ends the recording and returns its incident. A session that HR
// already cut returns ErrInterrupted; its result went out as an event.
func (c *SessionController) Stop(ctx context.Context) (domain.IncidentResult, error) {
	active := c.gate.take()
	if active == nil {
		return domain.IncidentResult{}, ErrNoActiveSession
	}
	defer active.cancel()

	c.drain(active)

	var (
		snap    interrupt.Snapshot
		stopped bool
		length  int
	)
	if !c.loop.Call(func() {
		snap = c.machine.Snapshot()
		if snap.SessionID != active.id || snap.Latched {
			return
		}
		var transcript string
		_, transcript, stopped = c.machine.Stop()
		length = len(transcript)
	}) {
		return domain.IncidentResult{}, ErrShuttingDown
	}
	switch {
	case snap.SessionID != active.id:
		return domain.IncidentResult{}, ErrNoActiveSession
	case !stopped:
		return domain.IncidentResult{}, ErrInterrupted
	}

	pcm := active.recorder.Bytes()
	c.logger.Debug().Str("session_id", active.id).Int("bytes", len(pcm)).Int("transcript_len", length).Msg("recording stopped")
	hadAudio, artifact := c.finalizer.Finalize(ctx, pcm)

	var (
		result domain.IncidentResult
		ok     bool
	)
	if !c.loop.Call(func() {
		result, ok = c.machine.Complete(interrupt.CompletionInput{
			SessionID: active.id,
			HadAudio:  hadAudio,
			Artifact:  artifact,
		})
	}) {
		return domain.IncidentResult{}, ErrShuttingDown
	}
	if !ok {
		return domain.IncidentResult{}, ErrNoActiveSession
	}
	return result, nil
}

// Reset abandons the live session and returns every component to standby.
func (c *SessionController) Reset() {
	active := c.gate.take()
	c.recognition.HardStop()
	if active != nil {
		c.stopSession(active)
	}
	c.loop.Call(func() {
		c.machine.Reset()
		c.selector.Reset()
		c.effects.Cleanup()
	})
}

// Status returns the current backend status.
func (c *SessionController) Status() domain.Status {
	snap := c.machine.Snapshot()
	return domain.Status{
		State:        snap.State,
		Active:       snap.State != domain.SessionStateIdle,
		Listening:    c.recognition.IsActive(),
		EffectsLive:  c.effects.IsActive(),
		Transcribing: c.recognition.Available(),
	}
}

func (c *SessionController) stopSession(active *activeSession) {
	active.cancel()
	c.drain(active)
}

func (c *SessionController) drain(active *activeSession) {
	if err := active.stopCapture(); err != nil {
		c.logger.Warn().Err(err).Str("session_id", active.id).Msg("audio capture did not stop cleanly")
		c.events.SessionError(domain.ErrorCodeAudioStop, "failed to stop audio capture cleanly")
	}
	if !waitDone(active.pumpDone, c.cfg.StopTimeout) {
		c.logger.Warn().Str("session_id", active.id).Msg("audio pump still running after stop")
	}
}

// processing reports whether an interaction still owes its result or narration.
func processing(state domain.SessionState) bool {
	return state == domain.SessionStateInterrupted || state == domain.SessionStateCompleted
}
