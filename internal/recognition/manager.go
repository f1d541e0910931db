// Package recognition owns the single live transcription handle.
package recognition

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"gaslightradio/internal/domain"
	"gaslightradio/internal/eventloop"
	"gaslightradio/internal/ports"
)

// State is the manager lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateStarting  State = "starting"
	StateListening State = "listening"
	StateEnding    State = "ending"
)

// Manager enforces at most one live transcription session. Fragments and
// errors are delivered through the dispatcher and dropped once the session
// that produced them has been stopped.
type Manager struct {
	provider ports.TranscriptionProvider
	dispatch eventloop.Dispatcher
	cfg      ports.StreamingConfig
	logger   zerolog.Logger

	mu         sync.Mutex
	state      State
	generation uint64
	handle     ports.StreamingSession
	onFragment func(domain.Fragment)
	onError    func(error)
}

// NewManager builds an idle manager. A nil provider means transcription is
// unavailable and Start always reports false.
func NewManager(provider ports.TranscriptionProvider, dispatch eventloop.Dispatcher, cfg ports.StreamingConfig, logger zerolog.Logger) *Manager {
	if dispatch == nil {
		dispatch = eventloop.Inline{}
	}
	return &Manager{
		provider: provider,
		dispatch: dispatch,
		cfg:      cfg,
		logger:   logger.With().Str("component", "recognition").Logger(),
		state:    StateIdle,
	}
}

// Available reports whether a transcription provider is configured.
func (m *Manager) Available() bool {
	return m.provider != nil
}

// Start opens a transcription session. It returns false without touching
// state when a session is already starting or live, or when no provider is
// configured. A provider failure returns the manager to idle.
func (m *Manager) Start(ctx context.Context, onFragment func(domain.Fragment), onError func(error)) bool {
	m.mu.Lock()
	if m.provider == nil {
		m.mu.Unlock()
		m.logger.Debug().Msg("transcription unavailable")
		return false
	}
	if m.state != StateIdle {
		state := m.state
		m.mu.Unlock()
		m.logger.Debug().Str("state", string(state)).Msg("start rejected, session busy")
		return false
	}
	m.generation++
	gen := m.generation
	m.state = StateStarting
	m.mu.Unlock()

	handle, err := m.provider.StartStreaming(ctx, m.cfg)

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		if err == nil {
			m.teardown(handle)
		}
		m.logger.Debug().Msg("session stopped while starting")
		return false
	}
	if err != nil {
		m.state = StateIdle
		m.mu.Unlock()
		m.logger.Warn().Err(err).Msg("failed to start transcription")
		return false
	}
	m.handle = handle
	m.onFragment = onFragment
	m.onError = onError
	m.state = StateListening
	m.mu.Unlock()

	m.logger.Info().Msg("transcription listening")
	go m.forward(gen, handle)
	return true
}

// HardStop detaches callbacks, then stops and aborts the live handle. Each
// teardown step tolerates errors and panics. It is safe in any state and
// safe to repeat.
func (m *Manager) HardStop() {
	m.mu.Lock()
	m.generation++
	m.onFragment = nil
	m.onError = nil
	handle := m.handle
	m.handle = nil
	if handle == nil {
		m.state = StateIdle
		m.mu.Unlock()
		return
	}
	m.state = StateEnding
	gen := m.generation
	m.mu.Unlock()

	m.teardown(handle)

	m.mu.Lock()
	if gen == m.generation && m.state == StateEnding {
		m.state = StateIdle
	}
	m.mu.Unlock()
	m.logger.Debug().Msg("transcription hard stopped")
}

// IsActive reports whether a session is listening.
func (m *Manager) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateListening
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SendAudio forwards a chunk to the live session. It reports false when
// nothing is listening or the provider rejected the chunk.
func (m *Manager) SendAudio(chunk []byte) bool {
	m.mu.Lock()
	if m.state != StateListening || m.handle == nil {
		m.mu.Unlock()
		return false
	}
	handle := m.handle
	m.mu.Unlock()

	if err := handle.SendAudio(chunk); err != nil {
		m.logger.Debug().Err(err).Msg("audio chunk dropped")
		return false
	}
	return true
}

func (m *Manager) forward(gen uint64, handle ports.StreamingSession) {
	for fragment := range handle.Fragments() {
		f := fragment
		m.dispatch.Post(func() { m.deliver(gen, f) })
	}
	err := handle.Wait()
	m.dispatch.Post(func() { m.ended(gen, handle, err) })
}

func (m *Manager) deliver(gen uint64, f domain.Fragment) {
	m.mu.Lock()
	if gen != m.generation || m.state != StateListening {
		m.mu.Unlock()
		return
	}
	cb := m.onFragment
	m.mu.Unlock()

	if cb != nil {
		cb(f)
	}
}

// ended handles a stream that finished on its own.
func (m *Manager) ended(gen uint64, handle ports.StreamingSession, err error) {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}
	m.generation++
	onError := m.onError
	m.onFragment = nil
	m.onError = nil
	m.handle = nil
	m.state = StateIdle
	m.mu.Unlock()

	m.teardown(handle)
	if err != nil {
		m.logger.Warn().Err(err).Msg("transcription stream ended with error")
		if onError != nil {
			onError(err)
		}
		return
	}
	m.logger.Debug().Msg("transcription stream ended")
}

func (m *Manager) teardown(handle ports.StreamingSession) {
	m.attempt("stop", handle.CloseSend)
	m.attempt("abort", handle.Close)
}

func (m *Manager) attempt(step string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn().Str("step", step).Interface("panic", r).Msg("teardown step panicked")
		}
	}()
	if err := fn(); err != nil {
		m.logger.Debug().Str("step", step).Err(err).Msg("teardown step failed")
	}
}
