package pcm16

import (
	"fmt"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resampler converts mono audio at one sample rate into 16-bit PCM at
// another. Unlike an io.Reader based resampler it is pushed one capture
// buffer at a time, which is how audio callbacks deliver it.
type Resampler struct {
	srcRate int
	dstRate int

	mu sync.Mutex
	rs resampling.Resampler
}

// NewResampler creates a Resampler from srcRate to dstRate. Equal rates
// pass samples through unchanged.
func NewResampler(srcRate, dstRate int) (*Resampler, error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("pcm16: invalid sample rates %d -> %d", srcRate, dstRate)
	}
	r := &Resampler{srcRate: srcRate, dstRate: dstRate}
	if srcRate == dstRate {
		return r, nil
	}
	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(srcRate),
		OutputRate: float64(dstRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("pcm16: create resampler: %w", err)
	}
	r.rs = rs
	return r, nil
}

// Float32 resamples samples and returns them as 16-bit PCM.
func (r *Resampler) Float32(samples []float32) ([]byte, error) {
	in := make([]float64, len(samples))
	for i, s := range samples {
		in[i] = float64(s)
	}
	return r.Float64(in)
}

// Float64 resamples samples and returns them as 16-bit PCM.
func (r *Resampler) Float64(samples []float64) ([]byte, error) {
	if r.rs == nil {
		return FromFloat64(make([]byte, 0, len(samples)*2), samples), nil
	}

	r.mu.Lock()
	out, err := r.rs.Process(samples)
	r.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("pcm16: resample: %w", err)
	}
	return FromFloat64(make([]byte, 0, len(out)*2), out), nil
}

// PCM resamples 16-bit PCM.
func (r *Resampler) PCM(pcm []byte) ([]byte, error) {
	if r.rs == nil {
		return pcm, nil
	}
	return r.Float64(ToFloat64(pcm))
}

// SrcRate returns the input sample rate.
func (r *Resampler) SrcRate() int { return r.srcRate }

// DstRate returns the output sample rate.
func (r *Resampler) DstRate() int { return r.dstRate }
