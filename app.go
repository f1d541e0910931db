package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/samber/lo"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"gaslightradio/internal/audio"
	"gaslightradio/internal/bootstrap"
	"gaslightradio/internal/domain"
	"gaslightradio/internal/usecase"
)

const (
	eventSession  = "gaslight:session"
	eventLive     = "gaslight:live"
	eventIncident = "gaslight:incident"
	eventEffects  = "gaslight:effects"
	eventCue      = "gaslight:cue"
	eventError    = "gaslight:error"
)

type emitFunc func(ctx context.Context, name string, data ...interface{})

// App is the Wails application root and the presenter for the core.
type App struct {
	ctx  context.Context
	emit emitFunc

	mu       sync.RWMutex
	services *bootstrap.Services
	bootErr  error
}

func NewApp() *App {
	return &App{emit: runtime.EventsEmit}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, bootstrap.Options{})
	a.mu.Lock()
	a.services, a.bootErr = services, err
	a.mu.Unlock()
	if err != nil {
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}
	a.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonStandby)
}

func (a *App) shutdown(_ context.Context) {
	a.mu.RLock()
	services := a.services
	a.mu.RUnlock()
	if services != nil {
		services.Close()
	}
}

// StartRecording opens a transmission.
func (a *App) StartRecording() (domain.Status, error) {
	services, err := a.requireReady()
	if err != nil {
		return domain.Status{}, err
	}
	if err := services.Controller.Start(a.ctx); err != nil {
		return domain.Status{}, err
	}
	return services.Controller.Status(), nil
}

// StopRecording ends the transmission and returns HR's verdict. A
// transmission HR already cut reports an interrupted result; the full
// report arrives as an incident event.
func (a *App) StopRecording() (domain.IncidentResult, error) {
	services, err := a.requireReady()
	if err != nil {
		return domain.IncidentResult{}, err
	}
	result, err := services.Controller.Stop(a.ctx)
	switch {
	case errors.Is(err, usecase.ErrInterrupted):
		return domain.IncidentResult{Interrupted: true}, nil
	case err != nil:
		return domain.IncidentResult{}, err
	}
	return result, nil
}

// ResetSession abandons any transmission and clears all effects.
func (a *App) ResetSession() error {
	services, err := a.requireReady()
	if err != nil {
		return err
	}
	services.Controller.Reset()
	return nil
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	a.mu.RLock()
	services, bootErr := a.services, a.bootErr
	a.mu.RUnlock()

	if services == nil {
		if bootErr != nil {
			return domain.Status{State: domain.SessionStateError, Active: false, Message: bootErr.Error()}
		}
		return domain.Status{State: domain.SessionStateIdle, Active: false}
	}
	return services.Controller.Status()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	a.mu.RLock()
	services, bootErr := a.services, a.bootErr
	a.mu.RUnlock()

	if bootErr != nil {
		return map[string]string{"error": bootErr.Error()}
	}
	if services == nil {
		return map[string]string{}
	}

	cfg := services.Config
	return map[string]string{
		"provider":         lo.Ternary(cfg.Deepgram.APIKey != "", "Deepgram", "none"),
		"model":            cfg.Deepgram.Model,
		"language":         cfg.Deepgram.Language,
		"narration":        string(services.Narrator.Engine()),
		"lexiconFile":      cfg.Scoring.LexiconPath,
		"audioInput":       cfg.Audio.InputDevice,
		"audioInputFormat": cfg.Audio.InputFormat,
		"threshold":        fmt.Sprintf("%.2f", cfg.Interrupt.Threshold),
	}
}

func (a *App) requireReady() (*bootstrap.Services, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.bootErr != nil {
		return nil, a.bootErr
	}
	if a.services == nil {
		return nil, fmt.Errorf("application is not initialized")
	}
	return a.services, nil
}

func (a *App) send(name string, payload interface{}) {
	if a.ctx == nil || a.emit == nil {
		return
	}
	a.emit(a.ctx, name, payload)
}

// SessionStateChanged emits session lifecycle updates to the frontend.
func (a *App) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	a.send(eventSession, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": sessionReasonMessage(reason),
	})
}

// LiveTranscript emits the running transcript and its score.
func (a *App) LiveTranscript(text string, score float64) {
	a.send(eventLive, map[string]interface{}{"text": text, "score": score})
}

// IncidentReady emits HR's verdict.
func (a *App) IncidentReady(result domain.IncidentResult) {
	a.send(eventIncident, result)
}

// EffectsChanged emits the currently applied effect flags.
func (a *App) EffectsChanged(flags []domain.EffectFlag) {
	a.send(eventEffects, map[string]interface{}{
		"flags": lo.Map(flags, func(f domain.EffectFlag, _ int) string { return string(f) }),
	})
}

// PlayCue asks the frontend to synthesize a short sound.
func (a *App) PlayCue(cue domain.Cue) {
	a.send(eventCue, map[string]string{"cue": string(cue)})
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.send(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

// ServeHTTP serves processed transmissions under /artifacts/ for requests
// the embedded frontend does not cover.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.RLock()
	services := a.services
	a.mu.RUnlock()

	if services == nil || !strings.HasPrefix(r.URL.Path, audio.ArtifactRoute) {
		http.NotFound(w, r)
		return
	}
	dir := http.Dir(services.Config.ArtifactDir())
	http.StripPrefix(audio.ArtifactRoute, http.FileServer(dir)).ServeHTTP(w, r)
}

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonStandby:
		return "Standing by"
	case domain.SessionReasonRecordingStarted:
		return "Transmission open"
	case domain.SessionReasonRecordingRestarted:
		return "Transmission restarted; previous capture discarded"
	case domain.SessionReasonTranscriptionOff:
		return "Recording without live transcription"
	case domain.SessionReasonTransmissionCut:
		return "Transmission forcibly terminated by HR"
	case domain.SessionReasonEvaluating:
		return "Evaluating transmission..."
	case domain.SessionReasonIncidentFiled:
		return "Incident report filed"
	case domain.SessionReasonProcessingComplete:
		return "Processing complete"
	case domain.SessionReasonSessionReset:
		return "Session reset"
	case domain.SessionReasonCaptureFailed:
		return "Microphone unavailable"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeAudioCapture:
		return "Microphone issue"
	case domain.ErrorCodeAudioStop:
		return "Audio stop issue"
	case domain.ErrorCodeTranscription:
		return "Transcription error"
	case domain.ErrorCodeRadio:
		return "Radio processing failed"
	case domain.ErrorCodeNarration:
		return "Narration failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
