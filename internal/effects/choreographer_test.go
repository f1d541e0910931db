package effects

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gaslightradio/internal/domain"
	"gaslightradio/internal/eventloop"
	"gaslightradio/internal/ports"
	"gaslightradio/internal/schedule"
)

type recordingSink struct {
	mu      sync.Mutex
	states  [][]domain.EffectFlag
	cues    []domain.Cue
	applied map[domain.EffectFlag]int
	last    []domain.EffectFlag
}

func newRecordingSink() *recordingSink {
	return &recordingSink{applied: map[domain.EffectFlag]int{}}
}

func (s *recordingSink) EffectsChanged(flags []domain.EffectFlag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := map[domain.EffectFlag]bool{}
	for _, f := range s.last {
		prev[f] = true
	}
	for _, f := range flags {
		if !prev[f] {
			s.applied[f]++
		}
	}
	s.last = flags
	s.states = append(s.states, flags)
}

func (s *recordingSink) PlayCue(cue domain.Cue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cues = append(s.cues, cue)
}

func (s *recordingSink) clears() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, st := range s.states {
		if len(st) == 0 {
			n++
		}
	}
	return n
}

type fakeNarrator struct {
	mu     sync.Mutex
	spoken []string
	voices []domain.Voice
	done   chan struct{}
}

func newFakeNarrator() *fakeNarrator {
	return &fakeNarrator{done: make(chan struct{}, 8)}
}

func (n *fakeNarrator) Speak(_ context.Context, text string, voice domain.Voice) error {
	n.mu.Lock()
	n.spoken = append(n.spoken, text)
	n.voices = append(n.voices, voice)
	n.mu.Unlock()
	n.done <- struct{}{}
	return nil
}

func newTestChoreographer(sink *recordingSink, narrator ports.Narrator) (*Choreographer, *schedule.ManualClock) {
	clock := schedule.NewManualClock()
	return New(clock, eventloop.Inline{}, sink, narrator, Config{}, zerolog.Nop()), clock
}

func TestTriggerRunsFullScheduleAtLevelThree(t *testing.T) {
	t.Parallel()

	sink := newRecordingSink()
	c, clock := newTestChoreographer(sink, nil)

	require.True(t, c.Trigger(3))
	assert.Equal(t, []domain.EffectFlag{domain.EffectFreeze}, c.Flags())

	clock.Advance(MicroGlitchAt)
	assert.Contains(t, c.Flags(), domain.EffectMicroGlitch)

	clock.Advance(CrackleAt - MicroGlitchAt)
	assert.Contains(t, c.Flags(), domain.EffectAudioCrackle)
	assert.Equal(t, []domain.Cue{domain.CueCrackle}, sink.cues)

	clock.Advance(OverlayAt - CrackleAt)
	assert.Contains(t, c.Flags(), domain.EffectOverlay)

	clock.Advance(OverlayLifetime)
	assert.NotContains(t, c.Flags(), domain.EffectOverlay)

	clock.Advance(ReleaseAt - OverlayAt - OverlayLifetime)
	flags := c.Flags()
	assert.NotContains(t, flags, domain.EffectFreeze)
	assert.Contains(t, flags, domain.EffectFrameSkip)
	assert.Contains(t, flags, domain.EffectMessageJitter)
	assert.NotContains(t, flags, domain.EffectMeterEmphasis)
	assert.True(t, c.IsActive())

	clock.Advance(CleanupAt - ReleaseAt - time.Millisecond)
	assert.True(t, c.IsActive())
	clock.Advance(time.Millisecond)
	assert.False(t, c.IsActive())
	assert.Empty(t, c.Flags())
	assert.Equal(t, 1, sink.clears())
}

func TestTriggerLevelFourEmphasizesMeter(t *testing.T) {
	t.Parallel()

	sink := newRecordingSink()
	c, clock := newTestChoreographer(sink, nil)

	require.True(t, c.Trigger(4))
	clock.Advance(JitterAt)
	assert.Contains(t, c.Flags(), domain.EffectMeterEmphasis)
	clock.Advance(CleanupAt)
	assert.False(t, c.IsActive())
}

func TestSecondTriggerWhileActiveIsNoOp(t *testing.T) {
	t.Parallel()

	sink := newRecordingSink()
	c, clock := newTestChoreographer(sink, nil)

	require.True(t, c.Trigger(3))
	clock.Advance(100 * time.Millisecond)
	assert.False(t, c.Trigger(5))
	clock.Advance(500 * time.Millisecond)
	assert.False(t, c.Trigger(4))

	clock.Advance(CleanupAt - 600*time.Millisecond - time.Millisecond)
	assert.True(t, c.IsActive(), "second trigger must not move cleanup")
	clock.Advance(time.Millisecond)
	assert.False(t, c.IsActive())

	for flag, n := range sink.applied {
		assert.Equal(t, 1, n, "flag %s applied more than once", flag)
	}
	assert.Equal(t, 1, sink.clears())
	assert.Len(t, sink.cues, 1)
	assert.NotContains(t, sink.applied, domain.EffectMeterEmphasis)
}

func TestLevelFiveEchoesThenExtendsCleanup(t *testing.T) {
	t.Parallel()

	sink := newRecordingSink()
	narrator := newFakeNarrator()
	c, clock := newTestChoreographer(sink, narrator)

	require.True(t, c.Trigger(5))
	clock.Advance(CleanupAt)
	assert.True(t, c.IsActive(), "level five keeps the sequence alive past the baseline cleanup")

	clock.Advance(ReleaseAt + EchoDelay - CleanupAt)

	select {
	case <-narrator.done:
	case <-time.After(time.Second):
		t.Fatal("voice echo was not spoken")
	}
	assert.Eventually(t, func() bool { return !c.IsActive() }, time.Second, 5*time.Millisecond,
		"the sequence ends once the echo has been spoken")
	assert.Eventually(t, func() bool { return sink.clears() == 1 }, time.Second, 5*time.Millisecond)

	narrator.mu.Lock()
	defer narrator.mu.Unlock()
	assert.Equal(t, []string{DefaultConfig().EchoText}, narrator.spoken)
	assert.Equal(t, DefaultConfig().EchoVoice, narrator.voices[0])
}

func TestCleanupCancelsPendingSteps(t *testing.T) {
	t.Parallel()

	sink := newRecordingSink()
	c, clock := newTestChoreographer(sink, nil)

	require.True(t, c.Trigger(5))
	clock.Advance(300 * time.Millisecond)
	c.Cleanup()
	assert.Empty(t, c.Flags())
	statesAfterCleanup := len(sink.states)

	clock.Advance(5 * time.Second)
	assert.Len(t, sink.states, statesAfterCleanup, "no step may fire after cleanup")
	assert.Zero(t, clock.Pending())

	require.True(t, c.Trigger(3), "a new sequence may start after cleanup")
}

func TestCleanupIsIdempotent(t *testing.T) {
	t.Parallel()

	sink := newRecordingSink()
	c, _ := newTestChoreographer(sink, nil)

	c.Cleanup()
	c.Cleanup()
	assert.Empty(t, sink.states)

	require.True(t, c.Trigger(3))
	c.Cleanup()
	c.Cleanup()
	assert.Equal(t, 1, sink.clears())
}

// heldNarrator speaks until its context is cancelled.
type heldNarrator struct {
	started   chan struct{}
	cancelled chan struct{}
}

func newHeldNarrator() *heldNarrator {
	return &heldNarrator{started: make(chan struct{}, 1), cancelled: make(chan struct{}, 1)}
}

func (n *heldNarrator) Speak(ctx context.Context, _ string, _ domain.Voice) error {
	n.started <- struct{}{}
	<-ctx.Done()
	n.cancelled <- struct{}{}
	return ctx.Err()
}

func TestCleanupSilencesPlayingEcho(t *testing.T) {
	t.Parallel()

	sink := newRecordingSink()
	narrator := newHeldNarrator()
	c, clock := newTestChoreographer(sink, narrator)

	require.True(t, c.Trigger(5))
	clock.Advance(ReleaseAt + EchoDelay)
	select {
	case <-narrator.started:
	case <-time.After(time.Second):
		t.Fatal("voice echo was not started")
	}
	assert.True(t, c.IsActive(), "the sequence stays active while the echo plays")
	assert.False(t, c.Trigger(3))

	c.Cleanup()
	select {
	case <-narrator.cancelled:
	case <-time.After(time.Second):
		t.Fatal("voice echo kept speaking after cleanup")
	}
	assert.False(t, c.IsActive())
	assert.Equal(t, 1, sink.clears())

	require.True(t, c.Trigger(3), "a late echo completion must not end the next sequence")
	time.Sleep(20 * time.Millisecond)
	assert.True(t, c.IsActive())
}

func TestEchoIsBoundedByTimeout(t *testing.T) {
	t.Parallel()

	sink := newRecordingSink()
	narrator := newHeldNarrator()
	c, clock := newTestChoreographer(sink, narrator)

	require.True(t, c.Trigger(5))
	clock.Advance(ReleaseAt + EchoDelay)
	<-narrator.started
	require.True(t, c.IsActive())

	clock.Advance(DefaultConfig().EchoTimeout)
	assert.False(t, c.IsActive())
	select {
	case <-narrator.cancelled:
	case <-time.After(time.Second):
		t.Fatal("voice echo outlived its timeout")
	}
	assert.Zero(t, clock.Pending())
}
