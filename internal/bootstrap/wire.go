package bootstrap

import (
	"context"

	"github.com/rs/zerolog"

	"gaslightradio/internal/audio"
	"gaslightradio/internal/config"
	"gaslightradio/internal/domain"
	"gaslightradio/internal/effects"
	"gaslightradio/internal/escalation"
	"gaslightradio/internal/eventloop"
	"gaslightradio/internal/interrupt"
	"gaslightradio/internal/logging"
	"gaslightradio/internal/narration"
	"gaslightradio/internal/ports"
	"gaslightradio/internal/providers/deepgram"
	"gaslightradio/internal/recognition"
	"gaslightradio/internal/schedule"
	"gaslightradio/internal/scoring"
	"gaslightradio/internal/usecase"
)

// Options adjust how the graph is built.
type Options struct {
	Config config.Options
	// Configure edits the loaded configuration before anything is built.
	Configure func(*config.Config)
	// Clock drives every timed step. Nil means wall-clock time.
	Clock schedule.Clock
	// Provider replaces the configured transcription provider when set.
	Provider ports.TranscriptionProvider
	// Capture replaces ffmpeg microphone capture when set.
	Capture ports.AudioCapture
}

// Services is the assembled runtime graph.
type Services struct {
	Controller    *usecase.SessionController
	Machine       *interrupt.Machine
	Choreographer *effects.Choreographer
	Scorer        *scoring.Scorer
	Narrator      *narration.CommandNarrator
	Config        config.Config
	Logger        zerolog.Logger
	Loop          *eventloop.Loop

	logs        *logging.Logger
	stopWatcher context.CancelFunc
}

// Build wires all backend dependencies for the current runtime. presenter
// receives every state change, transcript, incident, effect and cue.
func Build(presenter ports.EventSink, opts Options) (*Services, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, err
	}
	if opts.Configure != nil {
		opts.Configure(&cfg)
	}

	logs, err := logging.New(logging.Config{
		Dir:     cfg.LogDir(),
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    cfg.Logging.File,
	})
	if err != nil {
		return nil, err
	}
	logger := logs.Zerolog()

	lexicon, err := scoring.LoadLexicon(cfg.Scoring.LexiconPath)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	scorer := scoring.NewScorer(lexicon)

	watchCtx, stopWatcher := context.WithCancel(context.Background())
	if cfg.Scoring.Watch {
		if err := scoring.Watch(watchCtx, cfg.Scoring.LexiconPath, scorer, logger); err != nil {
			logger.Warn().Err(err).Msg("lexicon hot reload disabled")
		}
	}

	clock := opts.Clock
	if clock == nil {
		clock = schedule.RealClock{}
	}
	loop := eventloop.New(logger)

	selector := escalation.NewSelector(scorer, escalation.Thresholds{
		Tier2: cfg.Scoring.Tier2,
		Tier3: cfg.Scoring.Tier3,
		Tier4: cfg.Scoring.Tier4,
		Tier5: cfg.Scoring.Tier5,
	}, nil)

	narrator := narration.New(narration.Config{
		Engine:  narration.Engine(cfg.Narration.Engine),
		Command: cfg.Narration.Command,
		Voice:   cfg.Narration.Voice,
		BaseWPM: cfg.Narration.BaseWPM,
	}, logger)

	choreographer := effects.New(clock, loop, presenter, narrator, effects.Config{
		EchoText: cfg.Effects.EchoText,
		EchoVoice: domain.Voice{
			Rate:   cfg.Effects.EchoRate,
			Pitch:  cfg.Effects.EchoPitch,
			Volume: cfg.Effects.EchoVolume,
		},
	}, logger)

	provider := opts.Provider
	if provider == nil && cfg.Deepgram.APIKey != "" {
		provider = deepgram.NewProvider(deepgram.Config{
			APIKey:      cfg.Deepgram.APIKey,
			APIBaseURL:  cfg.Deepgram.APIBaseURL,
			Model:       cfg.Deepgram.Model,
			Language:    cfg.Deepgram.Language,
			SmartFormat: cfg.Deepgram.SmartFormat,
			Endpointing: cfg.Deepgram.Endpointing,
		}, logger)
	}
	if provider == nil {
		logger.Warn().Msg("no Deepgram API key, live transcription unavailable")
	}

	manager := recognition.NewManager(provider, loop, ports.StreamingConfig{
		SampleRate:     cfg.Audio.SampleRate,
		Channels:       cfg.Audio.Channels,
		Encoding:       "linear16",
		Language:       cfg.Deepgram.Language,
		InterimResults: cfg.Deepgram.InterimResults,
	}, logger)

	gate := usecase.NewCaptureGate()
	machine := interrupt.New(interrupt.Deps{
		Recognizer: manager,
		Capture:    gate,
		Scorer:     scorer,
		Selector:   selector,
		Effects:    choreographer,
		Narrator:   narrator,
		Presenter:  presenter,
		Clock:      clock,
		Dispatch:   loop,
		Logger:     logger,
	}, interrupt.Config{
		InterruptThreshold: cfg.Interrupt.Threshold,
		Level4Score:        cfg.Interrupt.Level4Score,
		Level5Score:        cfg.Interrupt.Level5Score,
		CueDelay:           cfg.Interrupt.CueDelay,
		ResultDelay:        cfg.Interrupt.ResultDelay,
		NarrationDelay:     cfg.Interrupt.NarrationDelay,
		NarrationTimeout:   cfg.Narration.Timeout,
		TerminationMarker:  cfg.Interrupt.Marker,
		Voice: domain.Voice{
			Rate:   cfg.Narration.Rate,
			Pitch:  cfg.Narration.Pitch,
			Volume: cfg.Narration.Volume,
		},
		CompletionLevel: cfg.Interrupt.CompletionLevel,
	})

	capture := opts.Capture
	if capture == nil {
		capture = audio.NewFFMPEGCapture(cfg.Audio.FFmpegCommand, logger)
	}

	var radio ports.RadioProcessor
	if cfg.Radio.Enabled {
		radio = audio.NewFFMPEGRadio(cfg.Audio.FFmpegCommand, cfg.ArtifactDir(), audio.RadioSettings{
			BandCenterHz:   cfg.Radio.BandCenterHz,
			BandWidthHz:    cfg.Radio.BandWidthHz,
			HumHz:          cfg.Radio.HumHz,
			HumLevel:       cfg.Radio.HumLevel,
			StaticLevel:    cfg.Radio.StaticLevel,
			WobbleHz:       cfg.Radio.WobbleHz,
			WobbleDepth:    cfg.Radio.WobbleDepth,
			ProcessTimeout: cfg.Radio.Timeout,
		}, logger)
	}

	controller := usecase.NewSessionController(usecase.Deps{
		Audio:       capture,
		Recognition: manager,
		Machine:     machine,
		Selector:    selector,
		Effects:     choreographer,
		Radio:       radio,
		Events:      presenter,
		Loop:        loop,
		Gate:        gate,
		Logger:      logger,
	}, usecase.Config{
		Audio: ports.AudioConfig{
			SampleRate:  cfg.Audio.SampleRate,
			Channels:    cfg.Audio.Channels,
			InputFormat: cfg.Audio.InputFormat,
			InputDevice: cfg.Audio.InputDevice,
		},
		ChunkSize:     cfg.Session.ChunkSize,
		MinAudioBytes: cfg.Session.MinAudioBytes,
		StopTimeout:   cfg.Session.StopTimeout,
	})

	logger.Info().
		Bool("transcription", provider != nil).
		Bool("radio", radio != nil).
		Str("narration", string(narrator.Engine())).
		Msg("services ready")

	return &Services{
		Controller:    controller,
		Machine:       machine,
		Choreographer: choreographer,
		Scorer:        scorer,
		Narrator:      narrator,
		Config:        cfg,
		Logger:        logger,
		Loop:          loop,
		logs:          logs,
		stopWatcher:   stopWatcher,
	}, nil
}

// Close resets any live session and releases background resources.
func (s *Services) Close() {
	s.Controller.Reset()
	s.stopWatcher()
	s.Loop.Close()
	_ = s.logs.Close()
}
