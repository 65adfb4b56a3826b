package live

import (
	"context"
	"io"
	"math"
	"sync"
	"time"
)

// AudioSource is a scoped microphone-style capture stream. It is acquired on
// entering the listening state and released unconditionally on leaving it.
type AudioSource interface {
	// Start acquires the capture device.
	Start(ctx context.Context) error

	// ReadFrame returns the next PCM frame. It returns io.EOF when the
	// stream ends and respects ctx cancellation.
	ReadFrame(ctx context.Context) ([]byte, error)

	// Stop releases the capture device. Safe to call more than once.
	Stop() error
}

// AudioSink plays synthesized audio. Play blocks until playback completes,
// the reader is exhausted, or ctx is cancelled.
type AudioSink interface {
	Play(ctx context.Context, audio io.Reader) error
}

// CalculateRMSEnergy computes the root-mean-square energy of PCM audio.
// Input is assumed to be 16-bit signed little-endian PCM.
// Returns a value between 0.0 and 1.0.
func CalculateRMSEnergy(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < len(pcm)-1; i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		normalized := float64(sample) / 32768.0
		sum += normalized * normalized
	}

	return math.Sqrt(sum / float64(samples))
}

// CalculatePeakAmplitude returns the maximum absolute amplitude in the PCM data.
// Returns a value between 0.0 and 1.0.
func CalculatePeakAmplitude(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}

	var maxAbs float64
	for i := 0; i < len(pcm)-1; i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		// Use float64 to avoid overflow when negating -32768
		abs := math.Abs(float64(sample))
		if abs > maxAbs {
			maxAbs = abs
		}
	}

	return maxAbs / 32768.0
}

// Utterance is one continuous span of captured audio bounded by VAD
// start/stop. It exists only between VAD commit and transcription hand-off.
type Utterance struct {
	Data     []byte
	Duration time.Duration
	RMS      float64
	Peak     float64
}

// UtteranceBuffer accumulates PCM frames for the utterance in progress.
type UtteranceBuffer struct {
	mu       sync.Mutex
	data     []byte
	maxBytes int
	config   AudioConfig
}

// NewUtteranceBuffer creates a buffer that holds up to maxDuration of audio.
func NewUtteranceBuffer(config AudioConfig, maxDuration time.Duration) *UtteranceBuffer {
	maxBytes := config.BytesFor(maxDuration)
	return &UtteranceBuffer{
		data:     make([]byte, 0, maxBytes),
		maxBytes: maxBytes,
		config:   config,
	}
}

// Write appends a frame. If the buffer would exceed its cap, the oldest
// data is discarded.
func (b *UtteranceBuffer) Write(frame []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = append(b.data, frame...)
	if len(b.data) > b.maxBytes {
		excess := len(b.data) - b.maxBytes
		b.data = b.data[excess:]
	}
}

// Len returns the current buffer size in bytes.
func (b *UtteranceBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Duration returns the current buffer duration.
func (b *UtteranceBuffer) Duration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.config.Duration(len(b.data))
}

// Take returns the buffered audio as a finalized utterance and resets the
// buffer for the next turn.
func (b *UtteranceBuffer) Take() Utterance {
	b.mu.Lock()
	defer b.mu.Unlock()

	data := make([]byte, len(b.data))
	copy(data, b.data)
	b.data = b.data[:0]

	return Utterance{
		Data:     data,
		Duration: b.config.Duration(len(data)),
		RMS:      CalculateRMSEnergy(data),
		Peak:     CalculatePeakAmplitude(data),
	}
}

// Clear discards buffered audio without producing an utterance.
func (b *UtteranceBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = b.data[:0]
}
