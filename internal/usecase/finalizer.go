package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"gaslightradio/internal/domain"
	"gaslightradio/internal/ports"
)

type recordingFinalizer struct {
	radio         ports.RadioProcessor
	events        Notifier
	minAudioBytes int
	sampleRate    int
	channels      int
	logger        zerolog.Logger
}

// Finalize decides whether the recording carried audio and, if so, runs it
// through the radio processor. A processing failure only costs the artifact.
func (f recordingFinalizer) Finalize(ctx context.Context, pcm []byte) (bool, *domain.ArtifactRef) {
	hadAudio := len(pcm) > f.minAudioBytes
	if !hadAudio || f.radio == nil {
		return hadAudio, nil
	}

	ref, err := f.radio.Process(ctx, ports.Recording{
		PCM:        pcm,
		SampleRate: f.sampleRate,
		Channels:   f.channels,
	})
	if err != nil {
		f.logger.Warn().Err(err).Int("bytes", len(pcm)).Msg("radio processing failed")
		f.events.SessionError(domain.ErrorCodeRadio, err.Error())
		return true, nil
	}
	return true, &ref
}
