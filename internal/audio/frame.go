package audio

import (
	"encoding/binary"
	"strings"
)

// Encoding names exchanged with the speech service and the telephony host.
const (
	EncodingLinear16 = "LINEAR16"
	EncodingMulaw    = "MULAW"
	EncodingAlaw     = "ALAW"
)

// Frame is one fixed-duration chunk of channel audio.
type Frame struct {
	Data       []byte
	Encoding   string
	SampleRate int
}

// Samples returns the number of samples carried by the frame
func (f Frame) Samples() int {
	return len(f.Data) / BytesPerSample(f.Encoding)
}

// DurationMs returns the frame duration in milliseconds
func (f Frame) DurationMs() int {
	if f.SampleRate <= 0 {
		return 0
	}
	return f.Samples() * 1000 / f.SampleRate
}

// BytesPerSample returns the sample width of an encoding. Companded
// encodings use one byte per sample, linear PCM two.
func BytesPerSample(encoding string) int {
	switch strings.ToUpper(encoding) {
	case EncodingMulaw, EncodingAlaw, "PCMU", "PCMA":
		return 1
	default:
		return 2
	}
}

// BytesToSamples decodes native byte order 16-bit PCM. A trailing odd byte
// is ignored.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.NativeEndian.Uint16(data[i*2:]))
	}
	return samples
}

// SamplesToBytes encodes samples as native byte order 16-bit PCM
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.NativeEndian.PutUint16(data[i*2:], uint16(sample))
	}
	return data
}
