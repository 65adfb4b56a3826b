// Package tts provides text-to-speech functionality.
package tts

import (
	"context"
	"sync"
)

// Provider is the interface for text-to-speech services.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Synthesize converts text to audio.
	Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error)

	// SynthesizeStream converts text to streaming audio.
	SynthesizeStream(ctx context.Context, text string, opts SynthesizeOptions) (*SynthesisStream, error)
}

// SynthesizeOptions configures synthesis.
type SynthesizeOptions struct {
	Voice string // Voice name (e.g. "en-US-JennyNeural")
	Rate  string // Speaking rate, "-50%" to "+100%"
	Pitch string // Pitch adjustment, "-50Hz" to "+50Hz"
}

// Synthesis is the result of synthesis.
type Synthesis struct {
	Audio  []byte // Audio data
	Format string // Audio format
}

// SynthesisStream provides streaming audio output.
type SynthesisStream struct {
	chunks chan []byte
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// NewSynthesisStream creates a new synthesis stream.
func NewSynthesisStream() *SynthesisStream {
	return &SynthesisStream{
		chunks: make(chan []byte, 100),
		done:   make(chan struct{}),
	}
}

// Chunks returns the channel of audio chunks.
func (s *SynthesisStream) Chunks() <-chan []byte {
	return s.chunks
}

// Err blocks until the stream finishes and returns any error.
func (s *SynthesisStream) Err() error {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close closes the stream.
func (s *SynthesisStream) Close() error {
	select {
	case <-s.done:
		// Already closed
	default:
		close(s.done)
	}
	return nil
}

// SetError sets the stream error. Safe to call concurrently with Err.
func (s *SynthesisStream) SetError(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Send sends a chunk to the stream. Returns false if stream is closed.
func (s *SynthesisStream) Send(chunk []byte) bool {
	select {
	case s.chunks <- chunk:
		return true
	case <-s.done:
		return false
	}
}

// FinishSending closes the chunks channel to signal completion.
func (s *SynthesisStream) FinishSending() {
	close(s.chunks)
}
