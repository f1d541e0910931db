package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gaslightradio/internal/domain"
	"gaslightradio/internal/ports"
)

// ArtifactRoute is the URL prefix the app serves processed recordings under.
const ArtifactRoute = "/artifacts/"

// RadioSettings shape the vintage transmission sound.
type RadioSettings struct {
	BandCenterHz   float64
	BandWidthHz    float64
	HumHz          float64
	HumLevel       float64
	StaticLevel    float64
	WobbleHz       float64
	WobbleDepth    float64
	ProcessTimeout time.Duration
}

// DefaultRadioSettings returns the stock AM-radio voicing.
func DefaultRadioSettings() RadioSettings {
	return RadioSettings{
		BandCenterHz:   1800,
		BandWidthHz:    2400,
		HumHz:          60,
		HumLevel:       0.05,
		StaticLevel:    0.28,
		WobbleHz:       5,
		WobbleDepth:    0.08,
		ProcessTimeout: 20 * time.Second,
	}
}

// FFMPEGRadio renders raw PCM recordings into radio-processed WAV files.
type FFMPEGRadio struct {
	command     string
	artifactDir string
	settings    RadioSettings
	logger      zerolog.Logger
}

func NewFFMPEGRadio(command, artifactDir string, settings RadioSettings, logger zerolog.Logger) *FFMPEGRadio {
	if command == "" {
		command = "ffmpeg"
	}
	if settings.ProcessTimeout <= 0 {
		settings.ProcessTimeout = DefaultRadioSettings().ProcessTimeout
	}
	return &FFMPEGRadio{
		command:     command,
		artifactDir: artifactDir,
		settings:    settings,
		logger:      logger.With().Str("component", "radio").Logger(),
	}
}

// ArtifactDir is where processed files are written.
func (r *FFMPEGRadio) ArtifactDir() string {
	return r.artifactDir
}

func (r *FFMPEGRadio) Process(ctx context.Context, rec ports.Recording) (domain.ArtifactRef, error) {
	if len(rec.PCM) == 0 {
		return domain.ArtifactRef{}, errors.New("recording is empty")
	}
	if err := os.MkdirAll(r.artifactDir, 0o755); err != nil {
		return domain.ArtifactRef{}, fmt.Errorf("failed to create artifact dir: %w", err)
	}

	name := fmt.Sprintf("transmission_%s_%s.wav", time.Now().Format("20060102_150405"), uuid.NewString()[:8])
	out := filepath.Join(r.artifactDir, name)

	ctx, cancel := context.WithTimeout(ctx, r.settings.ProcessTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.command, radioArgs(rec, r.settings, out)...)
	cmd.Stdin = bytes.NewReader(rec.PCM)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	started := time.Now()
	if err := cmd.Run(); err != nil {
		_ = os.Remove(out)
		return domain.ArtifactRef{}, fmt.Errorf("radio processing failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if _, err := os.Stat(out); err != nil {
		return domain.ArtifactRef{}, fmt.Errorf("radio processing produced no output: %w", err)
	}

	r.logger.Debug().
		Str("artifact", name).
		Int("pcm_bytes", len(rec.PCM)).
		Dur("took", time.Since(started)).
		Msg("transmission rendered")
	return domain.ArtifactRef{Path: out, URL: ArtifactRoute + name}, nil
}

func radioArgs(rec ports.Recording, s RadioSettings, out string) []string {
	rate := rec.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	channels := rec.Channels
	if channels <= 0 {
		channels = 1
	}
	sr := strconv.Itoa(rate)

	voice := fmt.Sprintf("[0:a]aformat=channel_layouts=mono,bandpass=f=%s:width_type=h:w=%s,vibrato=f=%s:d=%s,acompressor[v]",
		ftoa(s.BandCenterHz), ftoa(s.BandWidthHz), ftoa(s.WobbleHz), ftoa(s.WobbleDepth))
	static := fmt.Sprintf("[1:a]volume=%s[n]", ftoa(s.StaticLevel*0.5))
	hum := fmt.Sprintf("[2:a]volume=%s[h]", ftoa(s.HumLevel))
	mix := "[v][n][h]amix=inputs=3:duration=first[out]"

	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", sr,
		"-ac", strconv.Itoa(channels),
		"-i", "pipe:0",
		"-f", "lavfi",
		"-i", fmt.Sprintf("anoisesrc=color=pink:amplitude=%s:sample_rate=%s", ftoa(s.StaticLevel), sr),
		"-f", "lavfi",
		"-i", fmt.Sprintf("sine=frequency=%s:sample_rate=%s", ftoa(s.HumHz), sr),
		"-filter_complex", strings.Join([]string{voice, static, hum, mix}, ";"),
		"-map", "[out]",
		"-ac", "1",
		"-ar", sr,
		"-y",
		out,
	}
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
