package audio

import "fmt"

// SilenceThreshold is the calibrated RMS level below which a frame is silence.
const SilenceThreshold = 2000.0

// VADConfig holds configuration for Voice Activity Detection
type VADConfig struct {
	EnergyThreshold float64 // RMS energy threshold separating silence from voice
	SampleRate      int     // Sample rate of classified frames in Hz
	FrameSize       int     // Number of samples per frame (160 for 8kHz = 20ms)
}

// DefaultVADConfig returns the configuration used for 8 kHz telephony audio
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		EnergyThreshold: SilenceThreshold,
		SampleRate:      8000,
		FrameSize:       160, // 20ms at 8kHz (8000 * 0.02 = 160)
	}
}

// Detector classifies frames as silent or voiced and accumulates the
// duration of the current silent run.
//
// A Detector belongs to a single recognition attempt and is not safe for
// concurrent use.
type Detector struct {
	config         VADConfig
	totalSilenceMs int
}

// NewDetector creates a detector with a zeroed silence accumulator
func NewDetector(config *VADConfig) (*Detector, error) {
	if config == nil {
		config = DefaultVADConfig()
	}
	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid VAD sample rate %d", config.SampleRate)
	}
	if config.FrameSize <= 0 {
		return nil, fmt.Errorf("invalid VAD frame size %d", config.FrameSize)
	}
	if config.EnergyThreshold <= 0 {
		return nil, fmt.Errorf("invalid VAD energy threshold %.1f", config.EnergyThreshold)
	}
	return &Detector{config: *config}, nil
}

// Classify reports whether the frame is silent and the total silence, in
// milliseconds, accumulated over the current silent run including this frame.
// A voiced frame resets the accumulator to zero.
func (d *Detector) Classify(samples []int16, sampleRate int) (bool, int) {
	if sampleRate <= 0 {
		sampleRate = d.config.SampleRate
	}

	silent := DetectSilence(samples, d.config.EnergyThreshold)
	if silent {
		d.totalSilenceMs += len(samples) * 1000 / sampleRate
	} else {
		d.totalSilenceMs = 0
	}

	return silent, d.totalSilenceMs
}

// TotalSilence returns the silence accumulated so far in milliseconds
func (d *Detector) TotalSilence() int {
	return d.totalSilenceMs
}

// Reset clears the silence accumulator
func (d *Detector) Reset() {
	d.totalSilenceMs = 0
}

// DetectSilence detects if audio samples represent silence
// Uses a simple energy threshold
func DetectSilence(samples []int16, threshold float64) bool {
	return CalculateRMS(samples) < threshold
}
