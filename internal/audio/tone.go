package audio

import (
	"math"
	"strings"
)

const (
	beepFrequency = 1000.0
	beepAmplitude = 8000.0
)

// Beep renders a 1 kHz tone of the given length in the requested encoding.
// Unknown encodings fall back to native byte order LINEAR16.
func Beep(encoding string, sampleRate, durationMs int) []byte {
	if sampleRate <= 0 || durationMs <= 0 {
		return nil
	}

	samples := make([]int16, sampleRate*durationMs/1000)
	for i := range samples {
		phase := 2 * math.Pi * beepFrequency * float64(i) / float64(sampleRate)
		samples[i] = int16(beepAmplitude * math.Sin(phase))
	}

	switch strings.ToUpper(encoding) {
	case EncodingAlaw, "PCMA":
		return EncodePCMA(samples)
	case EncodingMulaw, "PCMU":
		return EncodePCMU(samples)
	default:
		return SamplesToBytes(samples)
	}
}
