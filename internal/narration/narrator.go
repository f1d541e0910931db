// Package narration speaks HR responses through the host's speech engine.
package narration

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gaslightradio/internal/domain"
)

// Engine names a supported speech command.
type Engine string

const (
	EngineAuto     Engine = "auto"
	EngineEspeakNG Engine = "espeak-ng"
	EngineEspeak   Engine = "espeak"
	EngineSay      Engine = "say"
	EngineNone     Engine = "none"
)

// Config selects and tunes the speech engine.
type Config struct {
	Engine Engine
	// Command overrides the executable looked up for Engine.
	Command string
	// Voice is passed to the engine's voice flag when set.
	Voice string
	// BaseWPM is the speaking rate a Voice.Rate of 1.0 maps to.
	BaseWPM int
}

// DefaultConfig picks the first engine found on PATH.
func DefaultConfig() Config {
	return Config{Engine: EngineAuto, BaseWPM: 175}
}

// CommandNarrator shells out to espeak-ng, espeak or say. When no engine is
// available Speak does nothing.
type CommandNarrator struct {
	engine  Engine
	command string
	cfg     Config
	logger  zerolog.Logger
}

func New(cfg Config, logger zerolog.Logger) *CommandNarrator {
	if cfg.BaseWPM <= 0 {
		cfg.BaseWPM = DefaultConfig().BaseWPM
	}
	if cfg.Engine == "" {
		cfg.Engine = EngineAuto
	}
	n := &CommandNarrator{
		cfg:    cfg,
		logger: logger.With().Str("component", "narration").Logger(),
	}
	n.engine, n.command = resolve(cfg)
	if n.engine == EngineNone {
		n.logger.Warn().Str("requested", string(cfg.Engine)).Msg("no speech engine available, narration disabled")
	} else {
		n.logger.Debug().Str("engine", string(n.engine)).Str("command", n.command).Msg("speech engine selected")
	}
	return n
}

func resolve(cfg Config) (Engine, string) {
	candidates := []Engine{cfg.Engine}
	switch cfg.Engine {
	case EngineNone:
		return EngineNone, ""
	case EngineAuto:
		candidates = []Engine{EngineEspeakNG, EngineEspeak}
		if runtime.GOOS == "darwin" {
			candidates = []Engine{EngineSay, EngineEspeakNG, EngineEspeak}
		}
	}

	for _, engine := range candidates {
		command := string(engine)
		if cfg.Command != "" && cfg.Engine != EngineAuto {
			command = cfg.Command
		}
		if path, err := exec.LookPath(command); err == nil {
			return engine, path
		}
	}
	return EngineNone, ""
}

// Available reports whether an engine was found.
func (n *CommandNarrator) Available() bool {
	return n.engine != EngineNone
}

// Engine returns the selected engine.
func (n *CommandNarrator) Engine() Engine {
	return n.engine
}

// Speak blocks until the engine finishes or ctx is done.
func (n *CommandNarrator) Speak(ctx context.Context, text string, voice domain.Voice) error {
	text = strings.TrimSpace(text)
	if !n.Available() || text == "" {
		return nil
	}

	started := time.Now()
	cmd := exec.CommandContext(ctx, n.command, speechArgs(n.engine, n.cfg, text, voice)...)
	if output, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s failed: %w: %s", n.engine, err, strings.TrimSpace(string(output)))
	}

	n.logger.Debug().Int("text_len", len(text)).Dur("took", time.Since(started)).Msg("narration finished")
	return nil
}

func speechArgs(engine Engine, cfg Config, text string, voice domain.Voice) []string {
	voice = normalizeVoice(voice)
	wpm := strconv.Itoa(int(math.Round(float64(cfg.BaseWPM) * voice.Rate)))

	switch engine {
	case EngineSay:
		args := []string{"-r", wpm}
		if cfg.Voice != "" {
			args = append(args, "-v", cfg.Voice)
		}
		// say has no pitch or volume flags; embedded commands cover both.
		prefix := fmt.Sprintf("[[volm %.2f]] [[pbas %d]] ", voice.Volume, int(math.Round(50*voice.Pitch)))
		return append(args, prefix+text)
	default:
		args := []string{
			"-s", wpm,
			"-p", strconv.Itoa(clamp(int(math.Round(50*voice.Pitch)), 0, 99)),
			"-a", strconv.Itoa(clamp(int(math.Round(100*voice.Volume)), 0, 200)),
		}
		if cfg.Voice != "" {
			args = append(args, "-v", cfg.Voice)
		}
		return append(args, "--", text)
	}
}

func normalizeVoice(v domain.Voice) domain.Voice {
	if v.Rate <= 0 {
		v.Rate = 1
	}
	if v.Pitch <= 0 {
		v.Pitch = 1
	}
	if v.Volume <= 0 {
		v.Volume = 1
	}
	return v
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
