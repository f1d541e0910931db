package audio

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"gaslightradio/internal/ports"
)

// fakeFFMPEG copies stdin to the last argument, the output path.
const fakeFFMPEG = "#!/usr/bin/env bash\nout=\"${@: -1}\"\ncat > \"$out\"\n"

func TestFFMPEGRadioWritesArtifact(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "artifacts")
	radio := NewFFMPEGRadio(writeScript(t, "ffmpeg.sh", fakeFFMPEG), dir, DefaultRadioSettings(), zerolog.Nop())

	ref, err := radio.Process(context.Background(), ports.Recording{PCM: []byte("pcm-bytes"), SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if filepath.Dir(ref.Path) != dir {
		t.Fatalf("artifact written outside %s: %s", dir, ref.Path)
	}
	if ref.URL != ArtifactRoute+filepath.Base(ref.Path) {
		t.Fatalf("unexpected url: %s", ref.URL)
	}
	data, err := os.ReadFile(ref.Path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if string(data) != "pcm-bytes" {
		t.Fatalf("recording was not piped to ffmpeg: %q", data)
	}
}

func TestFFMPEGRadioRejectsEmptyRecording(t *testing.T) {
	t.Parallel()

	radio := NewFFMPEGRadio(writeScript(t, "ffmpeg.sh", fakeFFMPEG), t.TempDir(), DefaultRadioSettings(), zerolog.Nop())
	if _, err := radio.Process(context.Background(), ports.Recording{}); err == nil {
		t.Fatalf("expected empty recording error")
	}
}

func TestFFMPEGRadioReportsFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	script := writeScript(t, "ffmpeg.sh", "#!/usr/bin/env bash\necho 'no filter' 1>&2\nexit 1\n")
	radio := NewFFMPEGRadio(script, dir, DefaultRadioSettings(), zerolog.Nop())

	_, err := radio.Process(context.Background(), ports.Recording{PCM: []byte{1, 2}})
	if err == nil || !strings.Contains(err.Error(), "no filter") {
		t.Fatalf("expected ffmpeg stderr in error, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("failed render left files behind: %d", len(entries))
	}
}

func TestRadioArgsCarryFilterChain(t *testing.T) {
	t.Parallel()

	args := radioArgs(ports.Recording{SampleRate: 22050, Channels: 1}, DefaultRadioSettings(), "/tmp/out.wav")
	joined := strings.Join(args, " ")
	for _, want := range []string{
		"-f s16le -ar 22050 -ac 1 -i pipe:0",
		"bandpass=f=1800",
		"anoisesrc=color=pink:amplitude=0.28",
		"sine=frequency=60",
		"vibrato=f=5",
		"amix=inputs=3",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in %q", want, joined)
		}
	}
	if args[len(args)-1] != "/tmp/out.wav" {
		t.Fatalf("output path must be last: %v", args)
	}
}
