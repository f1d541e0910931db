package usecase

import (
	"bytes"
	"context"
	"sync"

	"gaslightradio/internal/ports"
)

type activeSession struct {
	id       string
	cancel   context.CancelFunc
	audio    ports.AudioSession
	recorder *recorder
	pumpDone chan struct{}

	stopOnce sync.Once
	stopErr  error
}

// stopCapture stops the microphone once. Later callers wait for the first
// stop to finish and share its result.
func (s *activeSession) stopCapture() error {
	s.stopOnce.Do(func() {
		s.stopErr = s.audio.Stop()
	})
	return s.stopErr
}

// recorder keeps every captured byte for post-processing.
type recorder struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (r *recorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Write(p)
}

func (r *recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Len()
}

func (r *recorder) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return bytes.Clone(r.buf.Bytes())
}

// CaptureGate holds the live capture so the interrupt machine can cut the
// microphone without waiting on the capture process.
type CaptureGate struct {
	mu      sync.Mutex
	current *activeSession
}

func NewCaptureGate() *CaptureGate {
	return &CaptureGate{}
}

// StopCapture stops the live microphone in the background.
func (g *CaptureGate) StopCapture() {
	g.mu.Lock()
	active := g.current
	g.mu.Unlock()
	if active == nil {
		return
	}
	go func() { _ = active.stopCapture() }()
}

func (g *CaptureGate) set(active *activeSession) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current = active
}

func (g *CaptureGate) get() *activeSession {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

func (g *CaptureGate) take() *activeSession {
	g.mu.Lock()
	defer g.mu.Unlock()
	active := g.current
	g.current = nil
	return active
}
