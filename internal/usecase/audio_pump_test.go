package usecase

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"gaslightradio/internal/domain"
)

func TestPumpAudioTeesIntoRecorderAndSink(t *testing.T) {
	t.Parallel()

	audio := newFakeAudioSession(bytes.Repeat([]byte("x"), 700))
	rec := &recorder{}
	sink := &countingSink{accept: true}
	events := &fakeEventSink{}
	done := make(chan struct{})

	go pumpAudio(audio, rec, sink, 256, events, done)
	eventually(t, func() bool { return rec.Len() == 700 })
	_ = audio.Stop()
	<-done

	if sink.total() != 700 || sink.calls() != 3 {
		t.Fatalf("expected 3 chunks totalling 700 bytes, got %d chunks %d bytes", sink.calls(), sink.total())
	}
	if len(events.snapshotErrors()) != 0 {
		t.Fatalf("EOF after stop should not be reported")
	}
}

func TestPumpAudioRecordsWhenRecognitionRejects(t *testing.T) {
	t.Parallel()

	audio := newFakeAudioSession([]byte("abc"))
	rec := &recorder{}
	done := make(chan struct{})

	go pumpAudio(audio, rec, &countingSink{}, 256, &fakeEventSink{}, done)
	eventually(t, func() bool { return rec.Len() == 3 })
	_ = audio.Stop()
	<-done

	if got := string(rec.Bytes()); got != "abc" {
		t.Fatalf("unexpected recording: %q", got)
	}
}

func TestPumpAudioReportsReadError(t *testing.T) {
	t.Parallel()

	audio := &errorAudioSession{err: errors.New("read failed")}
	events := &fakeEventSink{}
	done := make(chan struct{})

	go pumpAudio(audio, &recorder{}, &countingSink{}, 256, events, done)
	<-done

	errs := events.snapshotErrors()
	if len(errs) == 0 || errs[0].code != domain.ErrorCodeAudioCapture {
		t.Fatalf("expected audio capture error")
	}
}

func TestWaitDoneTimesOut(t *testing.T) {
	t.Parallel()

	if waitDone(make(chan struct{}), 10*time.Millisecond) {
		t.Fatalf("expected timeout")
	}

	done := make(chan struct{})
	close(done)
	if !waitDone(done, time.Second) {
		t.Fatalf("expected closed channel to report done")
	}
}

func TestCaptureGateStopsLiveSessionOnce(t *testing.T) {
	t.Parallel()

	gate := NewCaptureGate()
	gate.StopCapture()

	audio := newFakeAudioSession(nil)
	active := &activeSession{audio: audio}
	gate.set(active)

	gate.StopCapture()
	gate.StopCapture()
	eventually(t, func() bool { return audio.stopCount() == 1 })

	if err := active.stopCapture(); err != nil {
		t.Fatalf("repeat stop failed: %v", err)
	}
	if audio.stopCount() != 1 {
		t.Fatalf("expected a single stop, got %d", audio.stopCount())
	}
	if gate.take() != active || gate.take() != nil {
		t.Fatalf("take should hand out the session exactly once")
	}
}

type countingSink struct {
	accept bool
	n      int
	size   int
}

func (s *countingSink) SendAudio(chunk []byte) bool {
	s.n++
	s.size += len(chunk)
	return s.accept
}

func (s *countingSink) calls() int { return s.n }
func (s *countingSink) total() int { return s.size }

type errorAudioSession struct {
	err error
}

func (s *errorAudioSession) Read(_ []byte) (int, error) { return 0, s.err }
func (s *errorAudioSession) Close() error               { return nil }
func (s *errorAudioSession) Stop() error                { return nil }
