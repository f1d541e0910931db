package usecase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gaslightradio/internal/domain"
	"gaslightradio/internal/ports"
)

type audioSink interface {
	SendAudio(chunk []byte) bool
}

// pumpAudio copies microphone chunks into the recorder and, while
// recognition is listening, into the transcription stream.
func pumpAudio(
	audio ports.AudioSession,
	rec io.Writer,
	sink audioSink,
	chunkSize int,
	events Notifier,
	done chan struct{},
) {
	defer close(done)

	if chunkSize < 256 {
		chunkSize = 4096
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := audio.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			_, _ = rec.Write(chunk)
			sink.SendAudio(chunk)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				events.SessionError(domain.ErrorCodeAudioCapture, fmt.Sprintf("audio capture error: %v", err))
			}
			return
		}
	}
}

// waitDone reports whether done closed before timeout.
func waitDone(done <-chan struct{}, timeout time.Duration) bool {
	if timeout <= 0 {
		<-done
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
