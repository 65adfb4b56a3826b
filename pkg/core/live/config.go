package live

import "time"

// TurnState represents the current state of the turn controller.
type TurnState int

const (
	// StateIdle holds no session resources; entry and terminal state.
	StateIdle TurnState = iota
	// StateListening has the microphone open and VAD running.
	StateListening
	// StateProcessing is transcribing the utterance and generating an answer.
	StateProcessing
	// StateSpeaking is playing synthesized audio to completion.
	StateSpeaking
)

// String returns a human-readable state name.
func (s TurnState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateProcessing:
		return "PROCESSING"
	case StateSpeaking:
		return "SPEAKING"
	default:
		return "UNKNOWN"
	}
}

// VADConfig configures energy-based voice activity detection.
type VADConfig struct {
	// EnergyThreshold is the RMS level below which a frame counts as silence.
	// Range: 0.0 to 1.0. Default: 0.02
	EnergyThreshold float64 `json:"energy_threshold"`

	// MinSpeechDuration is how long recording must run before silence can
	// finalize the utterance. Prevents truncating the start of speech.
	// Default: 600ms
	MinSpeechDuration time.Duration `json:"min_speech_duration"`

	// SilenceDuration is how long a silence run must persist before the
	// utterance is finalized. Debounces pauses within a sentence.
	// Default: 800ms
	SilenceDuration time.Duration `json:"silence_duration"`
}

// DefaultVADConfig returns a VADConfig with sensible defaults.
func DefaultVADConfig() VADConfig {
	return VADConfig{
		EnergyThreshold:   0.02,
		MinSpeechDuration: 600 * time.Millisecond,
		SilenceDuration:   800 * time.Millisecond,
	}
}

// TurnConfig holds all configuration for a turn controller.
type TurnConfig struct {
	// VAD configures voice activity detection while listening.
	VAD VADConfig `json:"vad"`

	// Audio describes the capture format.
	Audio AudioConfig `json:"audio"`

	// MinUtteranceBytes is the floor below which a finalized utterance is
	// treated as noise and discarded without transcription.
	// Default: 4800 (100ms at 24kHz mono s16le)
	MinUtteranceBytes int `json:"min_utterance_bytes"`

	// MaxUtteranceDuration caps a single recording so a stuck-open
	// microphone cannot grow the utterance buffer without bound.
	// Default: 60s
	MaxUtteranceDuration time.Duration `json:"max_utterance_duration"`
}

// DefaultTurnConfig returns a TurnConfig with sensible defaults.
func DefaultTurnConfig() TurnConfig {
	return TurnConfig{
		VAD:                  DefaultVADConfig(),
		Audio:                DefaultAudioConfig(),
		MinUtteranceBytes:    4800,
		MaxUtteranceDuration: 60 * time.Second,
	}
}

// AudioConfig specifies audio format parameters.
type AudioConfig struct {
	// SampleRate in Hz. Common values: 16000, 24000, 44100, 48000.
	SampleRate int `json:"sample_rate"`

	// Channels: 1 for mono, 2 for stereo.
	Channels int `json:"channels"`

	// BitsPerSample: typically 16 for PCM.
	BitsPerSample int `json:"bits_per_sample"`
}

// DefaultAudioConfig returns the standard audio configuration.
func DefaultAudioConfig() AudioConfig {
	return AudioConfig{
		SampleRate:    24000,
		Channels:      1,
		BitsPerSample: 16,
	}
}

// BytesPerSecond returns the audio byte rate.
func (c AudioConfig) BytesPerSecond() int {
	return c.SampleRate * c.Channels * (c.BitsPerSample / 8)
}

// Duration returns the play time of the given byte count.
func (c AudioConfig) Duration(bytes int) time.Duration {
	bps := c.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(bytes) * time.Second / time.Duration(bps)
}

// BytesFor returns the byte count covering the given duration.
func (c AudioConfig) BytesFor(d time.Duration) int {
	return int(d * time.Duration(c.BytesPerSecond()) / time.Second)
}
