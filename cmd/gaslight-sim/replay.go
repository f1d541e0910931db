package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/samber/lo"

	"gaslightradio/internal/bootstrap"
	"gaslightradio/internal/config"
	"gaslightradio/internal/domain"
	"gaslightradio/internal/narration"
	"gaslightradio/internal/ports"
	"gaslightradio/internal/schedule"
	"gaslightradio/internal/usecase"
)

const (
	tickStep   = 50 * time.Millisecond
	settleTime = 30 * time.Second
	idleWait   = 5 * time.Second
	idlePoll   = 5 * time.Millisecond
)

// Outcome is what one replayed transmission produced.
type Outcome struct {
	Name      string
	Result    domain.IncidentResult
	Cues      []domain.Cue
	PeakFlags []domain.EffectFlag
}

type replayOptions struct {
	ConfigFile string
	Verbose    bool
}

// replayer drives the wired backend with a manual clock, a silent
// microphone and a transcription provider that never speaks. Fragments are
// fed to the interrupt machine on the event loop.
type replayer struct {
	services *bootstrap.Services
	clock    *schedule.ManualClock
	capture  *scriptedCapture
	events   *recordingSink
}

func newReplayer(opts replayOptions) (*replayer, error) {
	r := &replayer{
		clock:   schedule.NewManualClock(),
		capture: &scriptedCapture{},
		events:  &recordingSink{},
	}

	services, err := bootstrap.Build(r.events, bootstrap.Options{
		Config: config.Options{ConfigFile: opts.ConfigFile},
		Configure: func(cfg *config.Config) {
			cfg.Radio.Enabled = false
			cfg.Narration.Engine = string(narration.EngineNone)
			cfg.Scoring.Watch = false
			cfg.Logging.File = false
			cfg.Logging.Console = opts.Verbose
			cfg.Logging.Level = lo.Ternary(opts.Verbose, "debug", cfg.Logging.Level)
		},
		Clock:    r.clock,
		Provider: silentProvider{},
		Capture:  r.capture,
	})
	if err != nil {
		return nil, err
	}
	r.services = services
	return r, nil
}

func (r *replayer) Close() {
	r.services.Close()
}

// Play presses the talk button, feeds the transmission's fragments at their
// offsets and releases the button.
func (r *replayer) Play(ctx context.Context, t Transmission) (Outcome, error) {
	r.capture.load(t.AudioBytes)
	mark := r.events.mark()

	controller := r.services.Controller
	if err := controller.Start(ctx); err != nil {
		return Outcome{}, fmt.Errorf("%s: start: %w", t.Name, err)
	}

	var elapsed time.Duration
	for _, line := range t.Fragments {
		r.advance(line.At - elapsed)
		elapsed = line.At
		fragment := domain.Fragment{Text: line.Text, IsFinal: line.Final}
		r.services.Loop.Call(func() { r.services.Machine.OnFragment(fragment) })
	}
	r.advance(t.StopAt - elapsed)

	result, err := controller.Stop(ctx)
	switch {
	case errors.Is(err, usecase.ErrInterrupted):
		if result, err = r.awaitIncident(mark); err != nil {
			return Outcome{}, fmt.Errorf("%s: %w", t.Name, err)
		}
	case err != nil:
		return Outcome{}, fmt.Errorf("%s: stop: %w", t.Name, err)
	}

	// Let effects and narration run out before the next press.
	r.advance(settleTime)
	if err := r.awaitIdle(); err != nil {
		return Outcome{}, fmt.Errorf("%s: %w", t.Name, err)
	}

	return Outcome{
		Name:      t.Name,
		Result:    result,
		Cues:      r.events.cuesSince(mark),
		PeakFlags: r.events.peakSince(mark),
	}, nil
}

// Score reports the interrupt score and effect level of a sentence.
func (r *replayer) Score(text string) (float64, int, bool) {
	score := r.services.Scorer.Score(text)
	return score, r.services.Machine.Level(score), score >= r.services.Config.Interrupt.Threshold
}

func (r *replayer) awaitIncident(mark sinkMark) (domain.IncidentResult, error) {
	for waited := time.Duration(0); waited < settleTime; waited += tickStep {
		if result, ok := r.events.resultSince(mark); ok {
			return result, nil
		}
		r.advance(tickStep)
	}
	if result, ok := r.events.resultSince(mark); ok {
		return result, nil
	}
	return domain.IncidentResult{}, fmt.Errorf("no incident filed after the cut")
}

// awaitIdle waits for narration, which finishes off the loop, to hand the
// machine back to idle.
func (r *replayer) awaitIdle() error {
	deadline := time.Now().Add(idleWait)
	for r.services.Machine.Snapshot().State != domain.SessionStateIdle {
		if time.Now().After(deadline) {
			return fmt.Errorf("HR never finished processing")
		}
		time.Sleep(idlePoll)
		r.services.Loop.Call(func() {})
	}
	return nil
}

// advance moves the clock in small steps and drains the loop after each so
// work scheduled by fired timers lands at its own instant.
func (r *replayer) advance(d time.Duration) {
	for d > 0 {
		step := min(d, tickStep)
		r.clock.Advance(step)
		r.services.Loop.Call(func() {})
		d -= step
	}
}

type sinkMark struct {
	results int
	cues    int
	effects int
}

// recordingSink stands in for the UI.
type recordingSink struct {
	mu      sync.Mutex
	results []domain.IncidentResult
	cues    []domain.Cue
	effects [][]domain.EffectFlag
}

func (s *recordingSink) SessionStateChanged(domain.SessionState, domain.SessionStateReason) {}
func (s *recordingSink) LiveTranscript(string, float64)                                     {}
func (s *recordingSink) SessionError(domain.ErrorCode, string)                              {}

func (s *recordingSink) IncidentReady(result domain.IncidentResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
}

func (s *recordingSink) EffectsChanged(flags []domain.EffectFlag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.effects = append(s.effects, append([]domain.EffectFlag(nil), flags...))
}

func (s *recordingSink) PlayCue(cue domain.Cue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cues = append(s.cues, cue)
}

func (s *recordingSink) mark() sinkMark {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sinkMark{results: len(s.results), cues: len(s.cues), effects: len(s.effects)}
}

func (s *recordingSink) resultSince(m sinkMark) (domain.IncidentResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.results) <= m.results {
		return domain.IncidentResult{}, false
	}
	return s.results[len(s.results)-1], true
}

func (s *recordingSink) cuesSince(m sinkMark) []domain.Cue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Cue(nil), s.cues[m.cues:]...)
}

func (s *recordingSink) peakSince(m sinkMark) []domain.EffectFlag {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.MaxBy(s.effects[m.effects:], func(a, b []domain.EffectFlag) bool {
		return len(a) > len(b)
	})
}

// scriptedCapture hands out a fixed amount of silence per session.
type scriptedCapture struct {
	mu   sync.Mutex
	next int
}

func (c *scriptedCapture) load(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = n
}

func (c *scriptedCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &silence{remaining: c.next, stopped: make(chan struct{})}, nil
}

type silence struct {
	mu        sync.Mutex
	remaining int
	stopped   chan struct{}
	once      sync.Once
}

func (s *silence) Read(p []byte) (int, error) {
	s.mu.Lock()
	if s.remaining > 0 {
		n := min(len(p), s.remaining)
		clear(p[:n])
		s.remaining -= n
		s.mu.Unlock()
		return n, nil
	}
	s.mu.Unlock()

	<-s.stopped
	return 0, io.EOF
}

func (s *silence) Stop() error {
	s.once.Do(func() { close(s.stopped) })
	return nil
}

func (s *silence) Close() error { return s.Stop() }

type silentProvider struct{}

func (silentProvider) StartStreaming(_ context.Context, _ ports.StreamingConfig) (ports.StreamingSession, error) {
	return &silentStream{fragments: make(chan domain.Fragment), done: make(chan struct{})}, nil
}

type silentStream struct {
	fragments chan domain.Fragment
	done      chan struct{}
	once      sync.Once
}

func (s *silentStream) SendAudio([]byte) error { return nil }
func (s *silentStream) CloseSend() error       { return nil }

func (s *silentStream) Fragments() <-chan domain.Fragment { return s.fragments }

func (s *silentStream) Wait() error {
	<-s.done
	return nil
}

func (s *silentStream) Close() error {
	s.once.Do(func() {
		close(s.fragments)
		close(s.done)
	})
	return nil
}
