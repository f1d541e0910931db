package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Script is a sequence of push-to-talk transmissions replayed against the
// full backend.
type Script struct {
	Sessions []Transmission `yaml:"sessions"`
}

// Transmission is one press-and-release of the talk button.
type Transmission struct {
	Name string `yaml:"name"`
	// AudioBytes is how much silent PCM the fake microphone yields.
	AudioBytes int `yaml:"audio_bytes"`
	// StopAt is when the button is released, relative to the press.
	StopAt    time.Duration `yaml:"stop_at"`
	Fragments []Line        `yaml:"fragments"`
}

// Line is a recognized fragment arriving At after the press.
type Line struct {
	At    time.Duration `yaml:"at"`
	Text  string        `yaml:"text"`
	Final bool          `yaml:"final"`
}

const defaultAudioBytes = 32000

func loadScript(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("read script: %w", err)
	}
	return parseScript(data)
}

func parseScript(data []byte) (Script, error) {
	var script Script
	if err := yaml.Unmarshal(data, &script); err != nil {
		return Script{}, fmt.Errorf("parse script: %w", err)
	}
	if len(script.Sessions) == 0 {
		return Script{}, fmt.Errorf("script has no sessions")
	}

	for i := range script.Sessions {
		s := &script.Sessions[i]
		if s.Name == "" {
			s.Name = fmt.Sprintf("transmission-%d", i+1)
		}
		if s.AudioBytes == 0 {
			s.AudioBytes = defaultAudioBytes
		}
		if s.AudioBytes < 0 {
			return Script{}, fmt.Errorf("%s: audio_bytes must not be negative", s.Name)
		}
		for _, line := range s.Fragments {
			if line.At < 0 {
				return Script{}, fmt.Errorf("%s: fragment offset must not be negative", s.Name)
			}
		}
		sort.SliceStable(s.Fragments, func(a, b int) bool {
			return s.Fragments[a].At < s.Fragments[b].At
		})
		if n := len(s.Fragments); n > 0 && s.StopAt < s.Fragments[n-1].At {
			s.StopAt = s.Fragments[n-1].At
		}
	}
	return script, nil
}
