// Package interrupt decides, fragment by fragment, whether a recording is
// allowed to finish or gets cut off by HR.
package interrupt

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gaslightradio/internal/domain"
	"gaslightradio/internal/escalation"
	"gaslightradio/internal/eventloop"
	"gaslightradio/internal/ports"
	"gaslightradio/internal/schedule"
)

// Recognizer is the part of the recognition manager the machine drives.
type Recognizer interface {
	HardStop()
}

// Capture stops the microphone. It must not block on the loop.
type Capture interface {
	StopCapture()
}

// Scorer scores transcript text.
type Scorer interface {
	Score(text string) float64
}

// Selector picks the HR response for a transcript.
type Selector interface {
	Evaluate(text string, hasAudio bool) (escalation.Response, float64)
	Compliance(text string, hasAudio bool) int
	Quip(topic escalation.Topic) string
}

// Effects starts the disturbance sequence.
type Effects interface {
	Trigger(level int) bool
}

// Presenter receives everything the machine shows to the user.
type Presenter interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	LiveTranscript(text string, score float64)
	IncidentReady(result domain.IncidentResult)
	PlayCue(cue domain.Cue)
	SessionError(code domain.ErrorCode, detail string)
}

// Deps are the machine's collaborators. Narrator, Capture and Effects may be nil.
type Deps struct {
	Recognizer Recognizer
	Capture    Capture
	Scorer     Scorer
	Selector   Selector
	Effects    Effects
	Narrator   ports.Narrator
	Presenter  Presenter
	Clock      schedule.Clock
	Dispatch   eventloop.Dispatcher
	Logger     zerolog.Logger
	NewID      func() string
}

// Config holds the interrupt thresholds and timing.
type Config struct {
	InterruptThreshold float64
	Level4Score        float64
	Level5Score        float64
	CueDelay           time.Duration
	ResultDelay        time.Duration
	NarrationDelay     time.Duration
	NarrationTimeout   time.Duration
	TerminationMarker  string
	Voice              domain.Voice
	// CompletionLevel is the effect level used after a normal completion
	// that drew any rebuke. Zero disables effects on completion.
	CompletionLevel int
}

// DefaultConfig returns the tuned values.
func DefaultConfig() Config {
	return Config{
		InterruptThreshold: 1.6,
		Level4Score:        2.0,
		Level5Score:        2.5,
		CueDelay:           80 * time.Millisecond,
		ResultDelay:        200 * time.Millisecond,
		NarrationDelay:     1850 * time.Millisecond,
		NarrationTimeout:   45 * time.Second,
		TerminationMarker:  "— —Transmission forcibly terminated by HR.",
		Voice:              domain.Voice{Rate: 0.85, Pitch: 0.7, Volume: 0.8},
		CompletionLevel:    2,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.InterruptThreshold <= 0 {
		c.InterruptThreshold = def.InterruptThreshold
	}
	if c.Level4Score <= 0 {
		c.Level4Score = def.Level4Score
	}
	if c.Level5Score <= 0 {
		c.Level5Score = def.Level5Score
	}
	if c.CueDelay <= 0 {
		c.CueDelay = def.CueDelay
	}
	if c.ResultDelay <= 0 {
		c.ResultDelay = def.ResultDelay
	}
	if c.NarrationDelay <= 0 {
		c.NarrationDelay = def.NarrationDelay
	}
	if c.NarrationTimeout <= 0 {
		c.NarrationTimeout = def.NarrationTimeout
	}
	if c.TerminationMarker == "" {
		c.TerminationMarker = def.TerminationMarker
	}
	if c.Voice == (domain.Voice{}) {
		c.Voice = def.Voice
	}
	if c.CompletionLevel < 0 {
		c.CompletionLevel = 0
	}
	return c
}

// CompletionInput describes the finished recording.
type CompletionInput struct {
	// SessionID, when set, must match the session being completed.
	SessionID string
	HadAudio  bool
	Artifact  *domain.ArtifactRef
}

// Snapshot is a copy of the machine's session state.
type Snapshot struct {
	SessionID  string
	State      domain.SessionState
	Transcript string
	Tail       string
	Latched    bool
	Delivered  bool
}

// Machine is the per-session interrupt state machine. Methods are meant to
// run on the dispatcher; Snapshot may be called from anywhere.
type Machine struct {
	deps   Deps
	cfg    Config
	plan   *schedule.Plan
	logger zerolog.Logger

	mu            sync.Mutex
	sessionID     string
	state         domain.SessionState
	finals        []string
	tail          string
	latched       bool
	delivered     bool
	stopNarration context.CancelFunc
}

// New builds an idle machine.
func New(deps Deps, cfg Config) *Machine {
	if deps.Dispatch == nil {
		deps.Dispatch = eventloop.Inline{}
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	return &Machine{
		deps:   deps,
		cfg:    cfg.withDefaults(),
		plan:   schedule.NewPlan(deps.Clock, deps.Dispatch),
		logger: deps.Logger.With().Str("component", "interrupt").Logger(),
		state:  domain.SessionStateIdle,
	}
}

// Begin opens a fresh session and returns its ID. Pending steps of any
// earlier session are cancelled.
func (m *Machine) Begin() string {
	m.plan.CancelAll()

	m.mu.Lock()
	m.cancelNarrationLocked()
	m.sessionID = m.deps.NewID()
	m.state = domain.SessionStateRecording
	m.finals = nil
	m.tail = ""
	m.latched = false
	m.delivered = false
	id := m.sessionID
	m.mu.Unlock()

	m.logger.Info().Str("session_id", id).Msg("session started")
	m.deps.Presenter.SessionStateChanged(domain.SessionStateRecording, domain.SessionReasonRecordingStarted)
	return id
}

// OnFragment folds one fragment into the transcript and cuts the session
// when the running score reaches the interrupt threshold.
func (m *Machine) OnFragment(f domain.Fragment) {
	m.mu.Lock()
	if m.latched || m.state != domain.SessionStateRecording {
		m.mu.Unlock()
		return
	}
	if f.IsFinal {
		if text := strings.TrimSpace(f.Text); text != "" {
			m.finals = append(m.finals, text)
		}
		m.tail = ""
	} else {
		m.tail = strings.TrimSpace(f.Text)
	}
	text := m.scoringTextLocked()
	score := m.deps.Scorer.Score(text)
	cut := score >= m.cfg.InterruptThreshold
	if cut {
		m.latched = true
		m.state = domain.SessionStateInterrupted
	}
	id := m.sessionID
	m.mu.Unlock()

	m.deps.Presenter.LiveTranscript(text, score)
	if cut {
		m.cut(id, text, score)
	}
}

// Stop freezes the transcript of a normally ending session. It reports false
// if the session was interrupted or is not recording.
func (m *Machine) Stop() (sessionID, transcript string, ok bool) {
	m.mu.Lock()
	if m.latched || m.state != domain.SessionStateRecording {
		m.mu.Unlock()
		return "", "", false
	}
	m.state = domain.SessionStateCompleted
	m.tail = ""
	sessionID, transcript = m.sessionID, m.transcriptLocked()
	m.mu.Unlock()

	m.deps.Recognizer.HardStop()
	m.deps.Presenter.SessionStateChanged(domain.SessionStateCompleted, domain.SessionReasonEvaluating)
	return sessionID, transcript, true
}

// Complete delivers the result of a normally finished session. It is a no-op
// returning false once the session has been interrupted or already delivered.
func (m *Machine) Complete(in CompletionInput) (domain.IncidentResult, bool) {
	m.mu.Lock()
	if m.latched || (in.SessionID != "" && in.SessionID != m.sessionID) {
		m.mu.Unlock()
		return domain.IncidentResult{}, false
	}
	m.mu.Unlock()

	if _, _, ok := m.Stop(); !ok {
		m.mu.Lock()
		pending := m.state == domain.SessionStateCompleted && !m.delivered
		m.mu.Unlock()
		if !pending {
			return domain.IncidentResult{}, false
		}
	}

	m.mu.Lock()
	id, transcript := m.sessionID, m.transcriptLocked()
	m.mu.Unlock()

	resp, score := m.deps.Selector.Evaluate(transcript, in.HadAudio)
	result := m.buildResult(id, transcript, resp, score, in.HadAudio)
	result.Artifact = in.Artifact

	if !m.deliver(result) {
		return domain.IncidentResult{}, false
	}
	if m.deps.Effects != nil && m.cfg.CompletionLevel > 0 && resp.Tier > escalation.TierStable {
		m.deps.Effects.Trigger(m.cfg.CompletionLevel)
	}
	m.narrate(id, resp.Text)
	return result, true
}

// Reset cancels every pending step and returns to idle with the latch clear.
func (m *Machine) Reset() {
	m.plan.CancelAll()

	m.mu.Lock()
	m.cancelNarrationLocked()
	m.sessionID = ""
	m.state = domain.SessionStateIdle
	m.finals = nil
	m.tail = ""
	m.latched = false
	m.delivered = false
	m.mu.Unlock()

	m.deps.Presenter.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonSessionReset)
}

// Snapshot copies the current session state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		SessionID:  m.sessionID,
		State:      m.state,
		Transcript: m.transcriptLocked(),
		Tail:       m.tail,
		Latched:    m.latched,
		Delivered:  m.delivered,
	}
}

// Level maps an interrupt score to an effect level.
func (m *Machine) Level(score float64) int {
	switch {
	case score >= m.cfg.Level5Score:
		return 5
	case score >= m.cfg.Level4Score:
		return 4
	default:
		return 3
	}
}

func (m *Machine) cut(id, text string, score float64) {
	level := m.Level(score)
	m.logger.Info().Str("session_id", id).Float64("score", score).Int("level", level).Msg("transmission cut")

	m.deps.Recognizer.HardStop()
	if m.deps.Capture != nil {
		m.deps.Capture.StopCapture()
	}
	m.deps.Presenter.SessionStateChanged(domain.SessionStateInterrupted, domain.SessionReasonTransmissionCut)
	if m.deps.Effects != nil {
		m.deps.Effects.Trigger(level)
	}

	resp, _ := m.deps.Selector.Evaluate(text, true)
	result := m.buildResult(id, text+m.cfg.TerminationMarker, resp, score, true)
	result.Interrupted = true

	m.plan.Start()
	m.plan.At(m.cfg.CueDelay, func() { m.deps.Presenter.PlayCue(domain.CueInterrupt) })
	m.plan.At(m.cfg.ResultDelay, func() { m.deliver(result) })
	m.plan.At(m.cfg.NarrationDelay, func() { m.narrate(id, resp.Text) })
}

func (m *Machine) buildResult(id, transcript string, resp escalation.Response, score float64, hadAudio bool) domain.IncidentResult {
	topic := escalation.DetectTopic(transcript)
	return domain.IncidentResult{
		SessionID:      id,
		TranscriptText: transcript,
		ResponseText:   resp.Text,
		CaseID:         resp.CaseID,
		Tier:           int(resp.Tier),
		Score:          score,
		Compliance:     m.deps.Selector.Compliance(transcript, hadAudio),
		Topic:          string(topic),
		Quip:           m.deps.Selector.Quip(topic),
		HadAudio:       hadAudio,
	}
}

// deliver hands result to the presenter at most once per session.
func (m *Machine) deliver(result domain.IncidentResult) bool {
	m.mu.Lock()
	if m.delivered || result.SessionID != m.sessionID {
		m.mu.Unlock()
		return false
	}
	m.delivered = true
	state := m.state
	m.mu.Unlock()

	m.logger.Info().
		Str("session_id", result.SessionID).
		Int("tier", result.Tier).
		Bool("interrupted", result.Interrupted).
		Msg("incident filed")
	m.deps.Presenter.IncidentReady(result)
	m.deps.Presenter.SessionStateChanged(state, domain.SessionReasonIncidentFiled)
	return true
}

// narrate speaks text off the loop and posts the completion back.
func (m *Machine) narrate(id, text string) {
	if m.deps.Narrator == nil {
		m.finish(id)
		return
	}

	m.mu.Lock()
	if id != m.sessionID {
		m.mu.Unlock()
		return
	}
	m.cancelNarrationLocked()
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.NarrationTimeout)
	m.stopNarration = cancel
	m.mu.Unlock()

	voice := m.cfg.Voice
	go func() {
		defer cancel()
		err := m.deps.Narrator.Speak(ctx, text, voice)
		failed := err != nil && ctx.Err() == nil
		m.deps.Dispatch.Post(func() {
			if failed {
				m.logger.Warn().Err(err).Msg("narration failed")
				m.deps.Presenter.SessionError(domain.ErrorCodeNarration, err.Error())
			}
			m.finish(id)
		})
	}()
}

func (m *Machine) finish(id string) {
	m.mu.Lock()
	if id != m.sessionID || m.state == domain.SessionStateIdle {
		m.mu.Unlock()
		return
	}
	m.state = domain.SessionStateIdle
	m.stopNarration = nil
	m.mu.Unlock()

	m.logger.Debug().Str("session_id", id).Msg("processing complete")
	m.deps.Presenter.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonProcessingComplete)
}

func (m *Machine) cancelNarrationLocked() {
	if m.stopNarration != nil {
		m.stopNarration()
		m.stopNarration = nil
	}
}

func (m *Machine) transcriptLocked() string {
	return strings.Join(m.finals, " ")
}

func (m *Machine) scoringTextLocked() string {
	if m.tail == "" {
		return m.transcriptLocked()
	}
	if len(m.finals) == 0 {
		return m.tail
	}
	return m.transcriptLocked() + " " + m.tail
}
