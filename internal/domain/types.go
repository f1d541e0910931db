package domain

// SessionState models the recording/interrupt lifecycle.
type SessionState string

const (
	SessionStateIdle        SessionState = "idle"
	SessionStateRecording   SessionState = "recording"
	SessionStateInterrupted SessionState = "interrupted"
	SessionStateCompleted   SessionState = "completed"
	SessionStateError       SessionState = "error"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonStandby            SessionStateReason = "standby"
	SessionReasonRecordingStarted   SessionStateReason = "recording_started"
	SessionReasonRecordingRestarted SessionStateReason = "recording_restarted"
	SessionReasonTranscriptionOff   SessionStateReason = "transcription_unavailable"
	SessionReasonTransmissionCut    SessionStateReason = "transmission_cut"
	SessionReasonEvaluating         SessionStateReason = "evaluating"
	SessionReasonIncidentFiled      SessionStateReason = "incident_filed"
	SessionReasonProcessingComplete SessionStateReason = "processing_complete"
	SessionReasonSessionReset       SessionStateReason = "session_reset"
	SessionReasonCaptureFailed      SessionStateReason = "capture_failed"
)

// ErrorCode identifies non-fatal backend errors surfaced to the UI.
type ErrorCode string

const (
	ErrorCodeStartup       ErrorCode = "startup"
	ErrorCodeAudioCapture  ErrorCode = "audio_capture"
	ErrorCodeAudioStop     ErrorCode = "audio_stop"
	ErrorCodeTranscription ErrorCode = "transcription"
	ErrorCodeRadio         ErrorCode = "radio"
	ErrorCodeNarration     ErrorCode = "narration"
)

// Fragment is one incremental unit of recognized speech. Fragments are
// delivered in order and never mutated after creation.
type Fragment struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"isFinal"`
}

// ArtifactRef points at a processed recording the UI can play back.
type ArtifactRef struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

// IncidentResult is delivered once per completed or interrupted interaction.
type IncidentResult struct {
	SessionID      string       `json:"sessionId"`
	TranscriptText string       `json:"transcriptText"`
	ResponseText   string       `json:"responseText"`
	CaseID         string       `json:"caseId,omitempty"`
	Tier           int          `json:"tier"`
	Score          float64      `json:"score"`
	Compliance     int          `json:"compliance"`
	Topic          string       `json:"topic,omitempty"`
	Quip           string       `json:"quip,omitempty"`
	Interrupted    bool         `json:"interrupted"`
	HadAudio       bool         `json:"hadAudio"`
	Artifact       *ArtifactRef `json:"artifact,omitempty"`
}

// EffectFlag names one piece of presentation state applied by the choreographer.
type EffectFlag string

const (
	EffectFreeze        EffectFlag = "freeze"
	EffectMicroGlitch   EffectFlag = "micro_glitch"
	EffectAudioCrackle  EffectFlag = "audio_crackle"
	EffectCRTWave       EffectFlag = "crt_wave"
	EffectRedTint       EffectFlag = "red_tint"
	EffectTextSmear     EffectFlag = "text_smear"
	EffectOverlay       EffectFlag = "overlay"
	EffectMessageJitter EffectFlag = "message_jitter"
	EffectMeterEmphasis EffectFlag = "meter_emphasis"
	EffectFrameSkip     EffectFlag = "frame_skip"
)

// Cue is a short synthetic sound the presentation layer plays on request.
type Cue string

const (
	CueCrackle   Cue = "crackle"
	CueInterrupt Cue = "interrupt"
)

// Voice carries narration delivery settings.
type Voice struct {
	Rate   float64 `json:"rate"`
	Pitch  float64 `json:"pitch"`
	Volume float64 `json:"volume"`
}

// Status summarizes the current runtime status.
type Status struct {
	State        SessionState `json:"state"`
	Active       bool         `json:"active"`
	Listening    bool         `json:"listening"`
	EffectsLive  bool         `json:"effectsLive"`
	Transcribing bool         `json:"transcribing"`
	Message      string       `json:"message,omitempty"`
}
