package live

import (
	"sync"
	"time"
)

// VADResult indicates the outcome of processing one frame.
type VADResult int

const (
	// VADContinue means keep listening for more audio.
	VADContinue VADResult = iota
	// VADCommit means the utterance is complete.
	VADCommit
)

// String returns a human-readable VAD result.
func (r VADResult) String() string {
	switch r {
	case VADContinue:
		return "CONTINUE"
	case VADCommit:
		return "COMMIT"
	default:
		return "UNKNOWN"
	}
}

// EnergyVAD finalizes an utterance from frame-level RMS energy:
//  1. Recording must run at least MinSpeechDuration before silence counts.
//  2. A silence run must persist for SilenceDuration before commit.
//
// It is frame-driven: Process is called for every captured frame while
// listening, so there are no internal timers and no blocking waits. A
// recording that never crosses the energy threshold still commits once both
// durations have elapsed; the minimum-viable-utterance floor downstream
// filters the resulting noise.
type EnergyVAD struct {
	config VADConfig
	audio  AudioConfig

	mu         sync.Mutex
	recorded   int // total bytes seen this utterance
	silenceRun int // bytes of the current uninterrupted silence run
	speechSeen bool
	committed  bool
}

// NewEnergyVAD creates a VAD over the given audio format.
func NewEnergyVAD(config VADConfig, audio AudioConfig) *EnergyVAD {
	return &EnergyVAD{
		config: config,
		audio:  audio,
	}
}

// Process accounts for one PCM frame and reports whether the utterance is
// complete. After VADCommit is returned, further frames are ignored until
// Reset.
func (v *EnergyVAD) Process(frame []byte) VADResult {
	if len(frame) == 0 {
		return VADContinue
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.committed {
		return VADCommit
	}

	v.recorded += len(frame)

	if CalculateRMSEnergy(frame) >= v.config.EnergyThreshold {
		v.speechSeen = true
		v.silenceRun = 0
		return VADContinue
	}

	v.silenceRun += len(frame)

	if v.audio.Duration(v.recorded) < v.config.MinSpeechDuration {
		return VADContinue
	}
	if v.audio.Duration(v.silenceRun) < v.config.SilenceDuration {
		return VADContinue
	}

	v.committed = true
	return VADCommit
}

// SpeechSeen reports whether any frame crossed the energy threshold since
// the last Reset.
func (v *EnergyVAD) SpeechSeen() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.speechSeen
}

// Recorded returns the total duration accounted for since the last Reset.
func (v *EnergyVAD) Recorded() time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.audio.Duration(v.recorded)
}

// Reset clears the VAD state for a new utterance.
func (v *EnergyVAD) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.recorded = 0
	v.silenceRun = 0
	v.speechSeen = false
	v.committed = false
}
