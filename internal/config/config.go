// Package config resolves runtime configuration from defaults, an optional
// config.yaml, .env files and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. GASLIGHT_INTERRUPT_THRESHOLD.
const EnvPrefix = "GASLIGHT"

// Config holds all application configuration.
type Config struct {
	DataDir   string          `mapstructure:"data_dir"`
	Deepgram  DeepgramConfig  `mapstructure:"deepgram"`
	Audio     AudioConfig     `mapstructure:"audio"`
	Radio     RadioConfig     `mapstructure:"radio"`
	Narration NarrationConfig `mapstructure:"narration"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Interrupt InterruptConfig `mapstructure:"interrupt"`
	Effects   EffectsConfig   `mapstructure:"effects"`
	Session   SessionConfig   `mapstructure:"session"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type DeepgramConfig struct {
	APIKey         string `mapstructure:"api_key"`
	APIBaseURL     string `mapstructure:"api_base"`
	Model          string `mapstructure:"model"`
	Language       string `mapstructure:"language"`
	SmartFormat    bool   `mapstructure:"smart_format"`
	InterimResults bool   `mapstructure:"interim_results"`
	Endpointing    int    `mapstructure:"endpointing"`
}

type AudioConfig struct {
	FFmpegCommand string `mapstructure:"ffmpeg_command"`
	InputFormat   string `mapstructure:"input_format"`
	InputDevice   string `mapstructure:"input_device"`
	SampleRate    int    `mapstructure:"sample_rate"`
	Channels      int    `mapstructure:"channels"`
}

// RadioConfig shapes the post-processed transmission.
type RadioConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	BandCenterHz float64       `mapstructure:"band_center_hz"`
	BandWidthHz  float64       `mapstructure:"band_width_hz"`
	HumHz        float64       `mapstructure:"hum_hz"`
	HumLevel     float64       `mapstructure:"hum_level"`
	StaticLevel  float64       `mapstructure:"static_level"`
	WobbleHz     float64       `mapstructure:"wobble_hz"`
	WobbleDepth  float64       `mapstructure:"wobble_depth"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type NarrationConfig struct {
	Engine  string        `mapstructure:"engine"`
	Command string        `mapstructure:"command"`
	Voice   string        `mapstructure:"voice"`
	BaseWPM int           `mapstructure:"base_wpm"`
	Rate    float64       `mapstructure:"rate"`
	Pitch   float64       `mapstructure:"pitch"`
	Volume  float64       `mapstructure:"volume"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ScoringConfig struct {
	LexiconPath string  `mapstructure:"lexicon_path"`
	Watch       bool    `mapstructure:"watch"`
	Tier2       float64 `mapstructure:"tier2"`
	Tier3       float64 `mapstructure:"tier3"`
	Tier4       float64 `mapstructure:"tier4"`
	Tier5       float64 `mapstructure:"tier5"`
}

type InterruptConfig struct {
	Threshold       float64       `mapstructure:"threshold"`
	Level4Score     float64       `mapstructure:"level4_score"`
	Level5Score     float64       `mapstructure:"level5_score"`
	CueDelay        time.Duration `mapstructure:"cue_delay"`
	ResultDelay     time.Duration `mapstructure:"result_delay"`
	NarrationDelay  time.Duration `mapstructure:"narration_delay"`
	Marker          string        `mapstructure:"termination_marker"`
	CompletionLevel int           `mapstructure:"completion_level"`
}

type EffectsConfig struct {
	EchoText   string  `mapstructure:"echo_text"`
	EchoRate   float64 `mapstructure:"echo_rate"`
	EchoPitch  float64 `mapstructure:"echo_pitch"`
	EchoVolume float64 `mapstructure:"echo_volume"`
}

type SessionConfig struct {
	ChunkSize     int           `mapstructure:"chunk_size"`
	MinAudioBytes int           `mapstructure:"min_audio_bytes"`
	StopTimeout   time.Duration `mapstructure:"stop_timeout"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Dir     string `mapstructure:"dir"`
	Console bool   `mapstructure:"console"`
	File    bool   `mapstructure:"file"`
}

// Options controls where Load looks.
type Options struct {
	// ConfigFile is an explicit config path. Empty searches the defaults.
	ConfigFile string
	// EnvFiles are loaded before the environment is read. Empty means ".env".
	EnvFiles []string
}

// ArtifactDir is where radio transmissions are written.
func (c Config) ArtifactDir() string {
	return filepath.Join(c.DataDir, "transmissions")
}

// LogDir is where log files are written.
func (c Config) LogDir() string {
	if c.Logging.Dir != "" {
		return c.Logging.Dir
	}
	return filepath.Join(c.DataDir, "logs")
}

func defaults(home string) map[string]any {
	return map[string]any{
		"data_dir": filepath.Join(home, ".local", "share", "gaslightradio"),

		"deepgram.api_key":         "",
		"deepgram.api_base":        "https://api.deepgram.com/v1",
		"deepgram.model":           "nova-2",
		"deepgram.language":        "",
		"deepgram.smart_format":    true,
		"deepgram.interim_results": true,
		"deepgram.endpointing":     300,

		"audio.ffmpeg_command": "ffmpeg",
		"audio.input_format":   "",
		"audio.input_device":   "",
		"audio.sample_rate":    16000,
		"audio.channels":       1,

		"radio.enabled":        true,
		"radio.band_center_hz": 1800.0,
		"radio.band_width_hz":  2400.0,
		"radio.hum_hz":         60.0,
		"radio.hum_level":      0.05,
		"radio.static_level":   0.28,
		"radio.wobble_hz":      5.0,
		"radio.wobble_depth":   0.08,
		"radio.timeout":        20 * time.Second,

		"narration.engine":   "auto",
		"narration.command":  "",
		"narration.voice":    "",
		"narration.base_wpm": 175,
		"narration.rate":     0.85,
		"narration.pitch":    0.7,
		"narration.volume":   0.8,
		"narration.timeout":  45 * time.Second,

		"scoring.lexicon_path": filepath.Join(home, ".config", "gaslightradio", "lexicon.yaml"),
		"scoring.watch":        true,
		"scoring.tier2":        1.0,
		"scoring.tier3":        1.5,
		"scoring.tier4":        2.0,
		"scoring.tier5":        2.5,

		"interrupt.threshold":          1.6,
		"interrupt.level4_score":       2.0,
		"interrupt.level5_score":       2.5,
		"interrupt.cue_delay":          80 * time.Millisecond,
		"interrupt.result_delay":       200 * time.Millisecond,
		"interrupt.narration_delay":    1850 * time.Millisecond,
		"interrupt.termination_marker": "— —Transmission forcibly terminated by HR.",
		"interrupt.completion_level":   2,

		"effects.echo_text":   "Please don't raise your voice again.",
		"effects.echo_rate":   0.7,
		"effects.echo_pitch":  0.6,
		"effects.echo_volume": 0.4,

		"session.chunk_size":      4096,
		"session.min_audio_bytes": 1000,
		"session.stop_timeout":    5 * time.Second,

		"logging.level":   "info",
		"logging.dir":     "",
		"logging.console": true,
		"logging.file":    true,
	}
}

// Load resolves configuration. A missing config file or .env file is not an
// error; unparseable numeric values fall back to their defaults.
func Load(opts Options) (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	envFiles := opts.EnvFiles
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	v := viper.New()
	defs := defaults(home)
	for key, value := range defs {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("deepgram.api_key", EnvPrefix+"_DEEPGRAM_API_KEY", "DEEPGRAM_API_KEY"); err != nil {
		return Config{}, err
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(home, ".config", "gaslightradio"))
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(opts.ConfigFile != "" && errors.Is(err, os.ErrNotExist)) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	sanitize(v, defs)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	normalize(&cfg, defs)
	return cfg, nil
}

// sanitize replaces values that cannot be parsed as their default's type.
func sanitize(v *viper.Viper, defs map[string]any) {
	for key, def := range defs {
		raw, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		raw = strings.TrimSpace(raw)
		var err error
		switch def.(type) {
		case int:
			_, err = strconv.Atoi(raw)
		case float64:
			_, err = strconv.ParseFloat(raw, 64)
		case bool:
			_, err = strconv.ParseBool(raw)
		case time.Duration:
			_, err = time.ParseDuration(raw)
		default:
			continue
		}
		if err != nil {
			v.Set(key, def)
		}
	}
}

func normalize(cfg *Config, defs map[string]any) {
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = defs["audio.sample_rate"].(int)
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = defs["audio.channels"].(int)
	}
	if cfg.Session.ChunkSize < 256 {
		cfg.Session.ChunkSize = defs["session.chunk_size"].(int)
	}
	if cfg.Session.MinAudioBytes < 0 {
		cfg.Session.MinAudioBytes = defs["session.min_audio_bytes"].(int)
	}
	if cfg.Interrupt.Threshold <= 0 {
		cfg.Interrupt.Threshold = defs["interrupt.threshold"].(float64)
	}
	cfg.Deepgram.APIKey = strings.TrimSpace(cfg.Deepgram.APIKey)
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
}
