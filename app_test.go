package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"gaslightradio/internal/bootstrap"
	"gaslightradio/internal/domain"
)

func TestSessionReasonMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.SessionStateReason]string{
		domain.SessionReasonStandby:            "Standing by",
		domain.SessionReasonRecordingStarted:   "Transmission open",
		domain.SessionReasonRecordingRestarted: "Transmission restarted; previous capture discarded",
		domain.SessionReasonTranscriptionOff:   "Recording without live transcription",
		domain.SessionReasonTransmissionCut:    "Transmission forcibly terminated by HR",
		domain.SessionReasonEvaluating:         "Evaluating transmission...",
		domain.SessionReasonIncidentFiled:      "Incident report filed",
		domain.SessionReasonProcessingComplete: "Processing complete",
		domain.SessionReasonSessionReset:       "Session reset",
		domain.SessionReasonCaptureFailed:      "Microphone unavailable",
	}

	for reason, want := range cases {
		reason := reason
		want := want
		t.Run(string(reason), func(t *testing.T) {
			t.Parallel()
			if got := sessionReasonMessage(reason); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := sessionReasonMessage("unknown"); got != "" {
		t.Fatalf("expected empty unknown reason message, got %q", got)
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.ErrorCode]string{
		domain.ErrorCodeStartup:       "Startup failed",
		domain.ErrorCodeAudioCapture:  "Microphone issue",
		domain.ErrorCodeAudioStop:     "Audio stop issue",
		domain.ErrorCodeTranscription: "Transcription error",
		domain.ErrorCodeRadio:         "Radio processing failed",
		domain.ErrorCodeNarration:     "Narration failed",
	}
	for code, want := range cases {
		code := code
		want := want
		t.Run(string(code), func(t *testing.T) {
			t.Parallel()
			if got := errorMessage(code, "ignored"); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := errorMessage("unknown", "detail"); got != "detail" {
		t.Fatalf("expected detail fallback, got %q", got)
	}
	if got := errorMessage("unknown", ""); got != "Unknown error" {
		t.Fatalf("expected unknown fallback, got %q", got)
	}
}

func TestRequireReady(t *testing.T) {
	t.Parallel()

	app := &App{}
	if _, err := app.requireReady(); err == nil {
		t.Fatalf("expected uninitialized error")
	}

	bootErr := errors.New("boot")
	app.bootErr = bootErr
	if _, err := app.requireReady(); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error, got %v", err)
	}
	if _, err := app.StartRecording(); !errors.Is(err, bootErr) {
		t.Fatalf("expected bindings to surface boot error, got %v", err)
	}
}

func TestGetStatusWhenNotInitialized(t *testing.T) {
	t.Parallel()

	app := &App{}
	status := app.GetStatus()
	if status.State != domain.SessionStateIdle || status.Active {
		t.Fatalf("unexpected status: %+v", status)
	}

	app.bootErr = errors.New("boot")
	status = app.GetStatus()
	if status.State != domain.SessionStateError || status.Active != false || status.Message != "boot" {
		t.Fatalf("unexpected boot status: %+v", status)
	}
}

func TestPresenterEmitsEvents(t *testing.T) {
	t.Parallel()

	rec := &emitRecorder{}
	app := &App{ctx: context.Background(), emit: rec.emit}

	app.SessionStateChanged(domain.SessionStateInterrupted, domain.SessionReasonTransmissionCut)
	app.LiveTranscript("my deadline", 1.25)
	app.IncidentReady(domain.IncidentResult{SessionID: "s1", Tier: 5})
	app.EffectsChanged([]domain.EffectFlag{domain.EffectFreeze, domain.EffectRedTint})
	app.PlayCue(domain.CueInterrupt)
	app.SessionError(domain.ErrorCodeRadio, "ffmpeg missing")

	want := []string{eventSession, eventLive, eventIncident, eventEffects, eventCue, eventError}
	if len(rec.names) != len(want) {
		t.Fatalf("expected %d events, got %v", len(want), rec.names)
	}
	for i, name := range want {
		if rec.names[i] != name {
			t.Fatalf("event %d: expected %s, got %s", i, name, rec.names[i])
		}
	}

	session := rec.payloads[0].(map[string]string)
	if session["message"] != "Transmission forcibly terminated by HR" {
		t.Fatalf("unexpected session payload: %+v", session)
	}
	effects := rec.payloads[3].(map[string]interface{})
	flags := effects["flags"].([]string)
	if len(flags) != 2 || flags[0] != "freeze" || flags[1] != "red_tint" {
		t.Fatalf("unexpected effects payload: %+v", flags)
	}
	if result := rec.payloads[2].(domain.IncidentResult); result.SessionID != "s1" {
		t.Fatalf("unexpected incident payload: %+v", result)
	}
}

func TestPresenterWithoutContextIsSilent(t *testing.T) {
	t.Parallel()

	rec := &emitRecorder{}
	app := &App{emit: rec.emit}
	app.PlayCue(domain.CueCrackle)
	if len(rec.names) != 0 {
		t.Fatalf("expected no events before startup")
	}
}

func TestServeArtifacts(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("DEEPGRAM_API_KEY", "")
	t.Setenv("GASLIGHT_LOGGING_CONSOLE", "false")
	t.Setenv("GASLIGHT_NARRATION_ENGINE", "none")

	app := &App{}
	recorder := httptest.NewRecorder()
	app.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/artifacts/missing.wav", nil))
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before startup, got %d", recorder.Code)
	}

	services, err := bootstrap.Build(app, bootstrap.Options{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer services.Close()
	app.services = services

	dir := services.Config.ArtifactDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "transmission.wav"), []byte("RIFF"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	recorder = httptest.NewRecorder()
	app.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/artifacts/transmission.wav", nil))
	if recorder.Code != http.StatusOK || recorder.Body.String() != "RIFF" {
		t.Fatalf("unexpected artifact response: %d %q", recorder.Code, recorder.Body.String())
	}

	recorder = httptest.NewRecorder()
	app.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/favicon.ico", nil))
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 outside the artifact route, got %d", recorder.Code)
	}
}

type emitRecorder struct {
	mu       sync.Mutex
	names    []string
	payloads []interface{}
}

func (r *emitRecorder) emit(_ context.Context, name string, data ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	r.payloads = append(r.payloads, data[0])
}
