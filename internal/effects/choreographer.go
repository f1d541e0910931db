// Package effects runs the timed audio/visual disturbance sequence that
// accompanies an HR incident.
package effects

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"gaslightradio/internal/domain"
	"gaslightradio/internal/eventloop"
	"gaslightradio/internal/ports"
	"gaslightradio/internal/schedule"
)

// Step offsets from the trigger instant.
const (
	MicroGlitchAt   = 40 * time.Millisecond
	CrackleAt       = 120 * time.Millisecond
	CRTWaveAt       = 180 * time.Millisecond
	TintAt          = 260 * time.Millisecond
	SmearAt         = 400 * time.Millisecond
	OverlayAt       = 620 * time.Millisecond
	OverlayLifetime = 300 * time.Millisecond
	JitterAt        = 900 * time.Millisecond
	ReleaseAt       = 1200 * time.Millisecond
	EchoDelay       = 900 * time.Millisecond
	CleanupAt       = 1500 * time.Millisecond
)

// allFlags fixes the order flags are reported in.
var allFlags = []domain.EffectFlag{
	domain.EffectFreeze,
	domain.EffectMicroGlitch,
	domain.EffectAudioCrackle,
	domain.EffectCRTWave,
	domain.EffectRedTint,
	domain.EffectTextSmear,
	domain.EffectOverlay,
	domain.EffectMessageJitter,
	domain.EffectMeterEmphasis,
	domain.EffectFrameSkip,
}

// Sink receives presentation state.
type Sink interface {
	EffectsChanged(flags []domain.EffectFlag)
	PlayCue(cue domain.Cue)
}

// Config tunes the parts of the sequence that are not fixed timing.
type Config struct {
	EchoText    string
	EchoVoice   domain.Voice
	EchoTimeout time.Duration
}

// DefaultConfig returns the stock echo line and voice.
func DefaultConfig() Config {
	return Config{
		EchoText:    "Please don't raise your voice again.",
		EchoVoice:   domain.Voice{Rate: 0.7, Pitch: 0.6, Volume: 0.4},
		EchoTimeout: 10 * time.Second,
	}
}

// Choreographer owns the single active effect sequence. A trigger while a
// sequence is active is dropped.
type Choreographer struct {
	plan     *schedule.Plan
	dispatch eventloop.Dispatcher
	sink     Sink
	narrator ports.Narrator
	cfg      Config
	logger   zerolog.Logger

	mu          sync.Mutex
	active      bool
	level       int
	flags       map[domain.EffectFlag]bool
	cleanupTask schedule.TaskID
	echoCancel  context.CancelFunc
	echoSeq     uint64
}

// New builds a choreographer. narrator may be nil.
func New(clock schedule.Clock, dispatch eventloop.Dispatcher, sink Sink, narrator ports.Narrator, cfg Config, logger zerolog.Logger) *Choreographer {
	def := DefaultConfig()
	if cfg.EchoText == "" {
		cfg.EchoText = def.EchoText
	}
	if cfg.EchoVoice == (domain.Voice{}) {
		cfg.EchoVoice = def.EchoVoice
	}
	if cfg.EchoTimeout <= 0 {
		cfg.EchoTimeout = def.EchoTimeout
	}
	if dispatch == nil {
		dispatch = eventloop.Inline{}
	}
	return &Choreographer{
		plan:     schedule.NewPlan(clock, dispatch),
		dispatch: dispatch,
		sink:     sink,
		narrator: narrator,
		cfg:      cfg,
		logger:   logger.With().Str("component", "effects").Logger(),
		flags:    map[domain.EffectFlag]bool{},
	}
}

// Trigger starts a sequence at the given escalation level. It returns false
// and does nothing when a sequence is already running.
func (c *Choreographer) Trigger(level int) bool {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		c.logger.Debug().Int("level", level).Msg("trigger dropped, sequence already active")
		return false
	}
	c.active = true
	c.level = level
	c.plan.Start()
	c.flags = map[domain.EffectFlag]bool{domain.EffectFreeze: true}

	c.plan.At(MicroGlitchAt, func() { c.apply(domain.EffectMicroGlitch) })
	c.plan.At(CrackleAt, func() {
		if c.apply(domain.EffectAudioCrackle) {
			c.sink.PlayCue(domain.CueCrackle)
		}
	})
	c.plan.At(CRTWaveAt, func() { c.apply(domain.EffectCRTWave) })
	c.plan.At(TintAt, func() { c.apply(domain.EffectRedTint) })
	c.plan.At(SmearAt, func() { c.apply(domain.EffectTextSmear) })
	c.plan.At(OverlayAt, func() { c.apply(domain.EffectOverlay) })
	c.plan.At(OverlayAt+OverlayLifetime, func() { c.revert(domain.EffectOverlay) })
	c.plan.At(JitterAt, func() {
		if level >= 4 {
			c.apply(domain.EffectMessageJitter, domain.EffectMeterEmphasis)
			return
		}
		c.apply(domain.EffectMessageJitter)
	})
	c.plan.At(ReleaseAt, c.release)
	c.cleanupTask = c.plan.At(CleanupAt, c.Cleanup)

	flags := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info().Int("level", level).Msg("effect sequence started")
	c.sink.EffectsChanged(flags)
	return true
}

// Cleanup cancels every pending step, silences a playing voice echo and
// reverts all applied state. It is safe to call at any time.
func (c *Choreographer) Cleanup() {
	c.mu.Lock()
	c.plan.CancelAll()
	stopEcho := c.echoCancel
	c.echoCancel = nil
	c.echoSeq++
	changed := c.active || len(c.flags) > 0
	c.active = false
	c.level = 0
	c.flags = map[domain.EffectFlag]bool{}
	c.mu.Unlock()

	if stopEcho != nil {
		stopEcho()
	}

	if changed {
		c.logger.Debug().Msg("effect sequence cleaned up")
		c.sink.EffectsChanged(nil)
	}
}

// IsActive reports whether a sequence is running.
func (c *Choreographer) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Flags returns the currently applied flags in canonical order.
func (c *Choreographer) Flags() []domain.EffectFlag {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Choreographer) release() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	delete(c.flags, domain.EffectFreeze)
	c.flags[domain.EffectFrameSkip] = true
	if c.level >= 5 {
		c.plan.Cancel(c.cleanupTask)
		c.cleanupTask = c.plan.At(ReleaseAt+EchoDelay, c.echo)
	}
	flags := c.snapshotLocked()
	c.mu.Unlock()

	c.sink.EffectsChanged(flags)
}

// echo speaks the level-5 voice echo. The sequence is cleaned up when the
// echo finishes, or at EchoTimeout on the sequence clock, whichever is first.
func (c *Choreographer) echo() {
	if c.narrator == nil {
		c.Cleanup()
		return
	}

	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.EchoTimeout)
	c.echoCancel = cancel
	c.echoSeq++
	seq := c.echoSeq
	c.cleanupTask = c.plan.At(ReleaseAt+EchoDelay+c.cfg.EchoTimeout, c.Cleanup)
	text, voice := c.cfg.EchoText, c.cfg.EchoVoice
	c.mu.Unlock()

	go func() {
		defer cancel()
		if err := c.narrator.Speak(ctx, text, voice); err != nil && ctx.Err() == nil {
			c.logger.Debug().Err(err).Msg("voice echo unavailable")
		}
		c.dispatch.Post(func() { c.echoDone(seq) })
	}()
}

func (c *Choreographer) echoDone(seq uint64) {
	c.mu.Lock()
	current := seq == c.echoSeq && c.echoCancel != nil
	if current {
		c.echoCancel = nil
	}
	c.mu.Unlock()

	if current {
		c.Cleanup()
	}
}

// apply sets flags and reports whether anything changed.
func (c *Choreographer) apply(flags ...domain.EffectFlag) bool {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return false
	}
	changed := false
	for _, f := range flags {
		if !c.flags[f] {
			c.flags[f] = true
			changed = true
		}
	}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	if changed {
		c.sink.EffectsChanged(snapshot)
	}
	return changed
}

func (c *Choreographer) revert(flag domain.EffectFlag) {
	c.mu.Lock()
	if !c.active || !c.flags[flag] {
		c.mu.Unlock()
		return
	}
	delete(c.flags, flag)
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.sink.EffectsChanged(snapshot)
}

func (c *Choreographer) snapshotLocked() []domain.EffectFlag {
	return lo.Filter(allFlags, func(f domain.EffectFlag, _ int) bool { return c.flags[f] })
}
