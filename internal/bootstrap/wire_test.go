package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gaslightradio/internal/config"
	"gaslightradio/internal/domain"
	"gaslightradio/internal/ports"
	"gaslightradio/internal/schedule"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("DEEPGRAM_API_KEY", "")
	t.Setenv("GASLIGHT_LOGGING_CONSOLE", "false")
	t.Setenv("GASLIGHT_NARRATION_ENGINE", "none")
	return home
}

func TestBuildSuccess(t *testing.T) {
	isolate(t)
	t.Setenv("DEEPGRAM_API_KEY", "test-key")

	services, err := Build(noopPresenter{}, Options{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer services.Close()

	if services.Controller == nil || services.Machine == nil || services.Choreographer == nil {
		t.Fatalf("expected a complete graph")
	}
	status := services.Controller.Status()
	if status.State != domain.SessionStateIdle || !status.Transcribing {
		t.Fatalf("unexpected initial status: %+v", status)
	}
	if services.Config.Deepgram.APIKey != "test-key" {
		t.Fatalf("expected config to be loaded")
	}
}

func TestBuildWithoutAPIKeyDegrades(t *testing.T) {
	isolate(t)

	services, err := Build(noopPresenter{}, Options{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer services.Close()

	if services.Controller.Status().Transcribing {
		t.Fatalf("expected transcription to be unavailable without a key")
	}
}

func TestBuildFailsOnInvalidLexicon(t *testing.T) {
	home := isolate(t)
	lexicon := filepath.Join(home, "bad-lexicon.yaml")
	if err := os.WriteFile(lexicon, []byte("categories:\n  - name: rage\n    weight: -2\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	t.Setenv("GASLIGHT_SCORING_LEXICON_PATH", lexicon)

	if _, err := Build(noopPresenter{}, Options{}); err == nil {
		t.Fatalf("expected build error due to invalid lexicon")
	}
}

func TestBuildAppliesConfigureAndOverrides(t *testing.T) {
	isolate(t)

	clock := schedule.NewManualClock()
	provider := &stubProvider{}
	services, err := Build(noopPresenter{}, Options{
		Configure: func(cfg *config.Config) {
			cfg.Interrupt.Threshold = 9
			cfg.Radio.Enabled = false
		},
		Clock:    clock,
		Provider: provider,
		Capture:  stubCapture{},
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer services.Close()

	if services.Config.Interrupt.Threshold != 9 {
		t.Fatalf("expected Configure to edit config, got %v", services.Config.Interrupt.Threshold)
	}
	if !services.Controller.Status().Transcribing {
		t.Fatalf("expected injected provider to enable transcription")
	}
	if err := services.Controller.Start(context.Background()); err == nil {
		t.Fatalf("expected injected capture to be used")
	}
}

type noopPresenter struct{}

func (noopPresenter) SessionStateChanged(_ domain.SessionState, _ domain.SessionStateReason) {}
func (noopPresenter) LiveTranscript(_ string, _ float64)                                     {}
func (noopPresenter) IncidentReady(_ domain.IncidentResult)                                  {}
func (noopPresenter) EffectsChanged(_ []domain.EffectFlag)                                   {}
func (noopPresenter) PlayCue(_ domain.Cue)                                                   {}
func (noopPresenter) SessionError(_ domain.ErrorCode, _ string)                              {}

type stubProvider struct{}

func (*stubProvider) StartStreaming(_ context.Context, _ ports.StreamingConfig) (ports.StreamingSession, error) {
	return nil, errors.New("not dialing in tests")
}

type stubCapture struct{}

func (stubCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	return nil, errors.New("no microphone in tests")
}
