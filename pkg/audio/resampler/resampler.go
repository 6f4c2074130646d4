// Package resampler converts mono 16-bit PCM between the sample rates of
// package pcm.
package resampler

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/haivivi/voicefilter/pkg/audio/pcm"
)

// Convert resamples data from format from to format to. The result shares
// no memory with data.
func Convert(data []byte, from, to pcm.Format) ([]byte, error) {
	if from == to {
		return append([]byte(nil), data...), nil
	}
	if from.Channels() != 1 || to.Channels() != 1 {
		return nil, fmt.Errorf("resampler: %s -> %s: only mono is supported", from, to)
	}

	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(from.SampleRate()),
		OutputRate: float64(to.SampleRate()),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("resampler: create: %w", err)
	}

	in := make([]float64, len(data)/2)
	for i := range in {
		s := int16(data[i*2]) | int16(data[i*2+1])<<8
		in[i] = float64(s) / 32768.0
	}
	out, err := r.Process(in)
	if err != nil {
		return nil, fmt.Errorf("resampler: %w", err)
	}

	b := make([]byte, len(out)*2)
	for i, s := range out {
		v := int16(s * 32767.0)
		if s > 1.0 {
			v = 32767
		} else if s < -1.0 {
			v = -32768
		}
		b[i*2] = byte(v)
		b[i*2+1] = byte(v >> 8)
	}
	return b, nil
}

// To16K converts data in format f to pcm.L16Mono16K.
func To16K(data []byte, f pcm.Format) ([]byte, error) {
	return Convert(data, f, pcm.L16Mono16K)
}
