package audio

import (
	"fmt"
	"math"
	"strings"
)

// ConvertPCM converts little-endian 16-bit PCM, as returned by cloud TTS
// APIs, to the channel encoding at the channel sample rate. LINEAR16 output
// is in native byte order.
func ConvertPCM(pcmData []byte, inputSampleRate, outputSampleRate int, encoding string) ([]byte, error) {
	if len(pcmData) == 0 {
		return nil, fmt.Errorf("empty PCM data")
	}
	if len(pcmData)%2 != 0 {
		return nil, fmt.Errorf("PCM data length must be even (16-bit samples)")
	}
	if inputSampleRate <= 0 || outputSampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", inputSampleRate, outputSampleRate)
	}

	samples := make([]int16, len(pcmData)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int16(pcmData[i*2]) | int16(pcmData[i*2+1])<<8
	}

	// Resample if needed (24kHz → 8kHz)
	if inputSampleRate != outputSampleRate {
		samples = resample(samples, inputSampleRate, outputSampleRate)
	}

	switch strings.ToUpper(encoding) {
	case EncodingMulaw, "PCMU":
		return EncodePCMU(samples), nil
	case EncodingAlaw, "PCMA":
		return EncodePCMA(samples), nil
	default:
		return SamplesToBytes(samples), nil
	}
}

// resample performs simple linear interpolation resampling
// This is a basic implementation - for production, consider using a library
// with better quality algorithms (e.g., sinc interpolation)
func resample(samples []int16, inputRate, outputRate int) []int16 {
	if inputRate == outputRate {
		return samples
	}

	ratio := float64(outputRate) / float64(inputRate)
	outputLength := len(samples) * outputRate / inputRate
	output := make([]int16, outputLength)

	for i := 0; i < outputLength; i++ {
		// Calculate source position
		srcPos := float64(i) / ratio

		// Linear interpolation
		idx0 := int(srcPos)
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}

		// Interpolate between two samples
		fraction := srcPos - float64(idx0)
		output[i] = int16(float64(samples[idx0])*(1.0-fraction) + float64(samples[idx1])*fraction)
	}

	return output
}

// linearToMulaw converts a 16-bit linear PCM sample to 8-bit μ-law
// G.711 μ-law encoding algorithm (ITU-T G.711 standard)
func linearToMulaw(sample int16) byte {
	const (
		clip = 8159  // Maximum magnitude to clip input (14-bit range)
		bias = 0x21 // Bias value (33 decimal)
	)

	var sign byte
	magnitude := int32(sample)

	// Get sign and make magnitude positive
	if sample < 0 {
		sign = 0x80
		magnitude = -magnitude
	} else {
		sign = 0x00
	}

	// Clip magnitude
	if magnitude > clip {
		magnitude = clip
	}

	// Add bias
	magnitude += bias

	// Find segment (exponent) by finding the highest set bit position
	// Segments: 0=33-63, 1=64-127, 2=128-255, 3=256-511, 4=512-1023, 5=1024-2047, 6=2048-4095, 7=4096-8191
	var segment byte
	temp := magnitude
	if temp >= 0x1000 { // 4096
		segment = 7
	} else if temp >= 0x800 { // 2048
		segment = 6
	} else if temp >= 0x400 { // 1024
		segment = 5
	} else if temp >= 0x200 { // 512
		segment = 4
	} else if temp >= 0x100 { // 256
		segment = 3
	} else if temp >= 0x80 { // 128
		segment = 2
	} else if temp >= 0x40 { // 64
		segment = 1
	} else {
		segment = 0
	}

	// Calculate mantissa (4 bits) - shift by (segment + 1)
	mantissa := byte((magnitude >> (segment + 1)) & 0x0F)

	// Combine sign, segment, and mantissa, then invert all bits
	ulawByte := sign | (segment << 4) | mantissa
	return ^ulawByte
}

// ConvertPCMUToPCM converts G.711 PCMU (μ-law) to linear PCM in native byte
// order, the layout the recognizer expects from the channel
func ConvertPCMUToPCM(pcmuData []byte) ([]byte, error) {
	if len(pcmuData) == 0 {
		return nil, fmt.Errorf("empty PCMU data")
	}
	return SamplesToBytes(DecodePCMU(pcmuData)), nil
}

// DecodePCMU expands μ-law bytes into 16-bit samples
func DecodePCMU(pcmuData []byte) []int16 {
	samples := make([]int16, len(pcmuData))
	for i, mulawByte := range pcmuData {
		samples[i] = mulawToLinear(mulawByte)
	}
	return samples
}

// EncodePCMU compands 16-bit samples to μ-law bytes without resampling
func EncodePCMU(samples []int16) []byte {
	pcmuData := make([]byte, len(samples))
	for i, sample := range samples {
		pcmuData[i] = linearToMulaw(sample)
	}
	return pcmuData
}

// EncodePCMA compands 16-bit samples to A-law bytes
func EncodePCMA(samples []int16) []byte {
	pcmaData := make([]byte, len(samples))
	for i, sample := range samples {
		pcmaData[i] = linearToAlaw(sample)
	}
	return pcmaData
}

var alawSegmentEnd = [8]int32{0x1F, 0x3F, 0x7F, 0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF}

// linearToAlaw converts a 16-bit linear PCM sample to 8-bit A-law
func linearToAlaw(sample int16) byte {
	value := int32(sample) >> 3
	mask := byte(0xD5)
	if value < 0 {
		mask = 0x55
		value = -value - 1
	}

	segment := 0
	for segment < len(alawSegmentEnd) && value > alawSegmentEnd[segment] {
		segment++
	}
	if segment >= len(alawSegmentEnd) {
		return 0x7F ^ mask
	}

	alaw := byte(segment << 4)
	if segment < 2 {
		alaw |= byte((value >> 1) & 0x0F)
	} else {
		alaw |= byte((value >> segment) & 0x0F)
	}
	return alaw ^ mask
}

// mulawToLinear converts an 8-bit μ-law sample to 16-bit linear PCM
func mulawToLinear(mulawByte byte) int16 {
	// Invert all bits first (μ-law uses inverted representation)
	mulawByte = ^mulawByte

	// Extract sign, segment, and mantissa
	sign := mulawByte & 0x80
	segment := int32((mulawByte >> 4) & 0x07)
	mantissa := int32(mulawByte & 0x0F)

	// Reconstruct linear value using the standard formula
	// step = (mantissa << 1 + 33) << segment
	// magnitude = step - bias
	// Or equivalently: step = (mantissa << (segment + 1)) + (33 << segment)
	// magnitude = step - 33
	step := mantissa << (segment + 1)
	step += int32(33) << segment
	magnitude := step - 33 // bias

	// Apply sign
	if sign != 0 {
		return int16(-magnitude)
	}
	return int16(magnitude)
}

// CalculateRMS calculates the root mean square (RMS) of audio samples
// It is the energy measure used by the Detector
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}

	return math.Sqrt(sum / float64(len(samples)))
}

