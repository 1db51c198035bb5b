// Package pcm16 converts captured audio into 16-bit signed little-endian
// mono PCM, the format streamed to the Voysis service.
//
// Example usage:
//
//	rs, err := pcm16.NewResampler(48000, pcm16.Rate)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	chunker := pcm16.NewChunker(4096)
//	pcm, err := rs.Float32(samples)
//	chunker.Write(pcm, send)
package pcm16

import "encoding/binary"

// Rate is the sample rate expected by the service.
const Rate = 16000

// MimeType describes the PCM produced by this package.
const MimeType = "audio/pcm;bits=16;rate=16000"

// FromFloat32 appends samples in [-1, 1] to dst as 16-bit PCM. Negative
// samples scale by 0x8000 and positive ones by 0x7FFF; out-of-range values
// are clamped.
func FromFloat32(dst []byte, samples []float32) []byte {
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(toInt16(float64(s))))
	}
	return dst
}

// FromFloat64 is FromFloat32 for float64 samples.
func FromFloat64(dst []byte, samples []float64) []byte {
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(toInt16(s)))
	}
	return dst
}

// ToFloat64 decodes 16-bit PCM into samples in [-1, 1). A trailing odd
// byte is ignored.
func ToFloat64(pcm []byte) []float64 {
	out := make([]float64, len(pcm)/2)
	for i := range out {
		out[i] = float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
	}
	return out
}

// Downmix averages interleaved channels into mono.
func Downmix(samples []float64, channels int) []float64 {
	if channels <= 1 {
		return samples
	}
	out := make([]float64, len(samples)/channels)
	for i := range out {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float64(channels)
	}
	return out
}

func toInt16(s float64) int16 {
	switch {
	case s >= 1:
		return 0x7FFF
	case s <= -1:
		return -0x8000
	case s < 0:
		return int16(s * 0x8000)
	default:
		return int16(s * 0x7FFF)
	}
}
