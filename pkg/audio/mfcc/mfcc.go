// Package mfcc computes Mel-Frequency Cepstral Coefficients from PCM audio.
//
// The pipeline per analysis window is:
//
//  1. Hamming window over FrameSize samples
//  2. Magnitude spectrum via an iterative radix-2 FFT (bins 0..FrameSize/2)
//  3. Triangular mel filterbank spanning 0 Hz to Nyquist
//  4. log(max(energy, 1e-10)) per filter
//  5. DCT-II over the log energies, scaled by sqrt(2/NumFilters)
//
// Windows advance by HopSize. Inputs shorter than FrameSize produce no frames.
// Extraction is deterministic: identical samples yield bit-identical output.
//
// Default parameters:
//
//	SampleRate: 16000
//	FrameSize:    512
//	HopSize:      256
//	NumCoeffs:     13
//	NumFilters:    26
package mfcc

import (
	"fmt"
	"iter"
	"math"

	"github.com/haivivi/voicefilter/pkg/audio/pcm"
)

// EnergyFloor is the lower bound applied to filter energies before the log.
const EnergyFloor = 1e-10

// Config controls MFCC extraction parameters.
type Config struct {
	SampleRate int // audio sample rate in Hz (default 16000)
	FrameSize  int // analysis window and FFT length, power of two (default 512)
	HopSize    int // window advance in samples (default 256)
	NumCoeffs  int // cepstral coefficients per frame (default 13)
	NumFilters int // mel filters (default 26)
}

// DefaultConfig returns the configuration used by speaker verification.
func DefaultConfig() Config {
	return Config{
		SampleRate: 16000,
		FrameSize:  512,
		HopSize:    256,
		NumCoeffs:  13,
		NumFilters: 26,
	}
}

// Extractor computes MFCC frames. It holds only precomputed, read-only
// tables and is safe for concurrent use.
type Extractor struct {
	cfg     Config
	window  []float64
	melBank [][]float64
	dct     [][]float64
}

// New creates an Extractor for cfg.
func New(cfg Config) (*Extractor, error) {
	switch {
	case cfg.FrameSize < 2 || cfg.FrameSize&(cfg.FrameSize-1) != 0:
		return nil, fmt.Errorf("mfcc: frame size %d is not a power of two", cfg.FrameSize)
	case cfg.HopSize <= 0:
		return nil, fmt.Errorf("mfcc: hop size must be positive, got %d", cfg.HopSize)
	case cfg.NumFilters <= 0 || cfg.NumCoeffs <= 0:
		return nil, fmt.Errorf("mfcc: invalid filter/coefficient counts %d/%d", cfg.NumFilters, cfg.NumCoeffs)
	case cfg.SampleRate <= 0:
		return nil, fmt.Errorf("mfcc: invalid sample rate %d", cfg.SampleRate)
	}
	return &Extractor{
		cfg:     cfg,
		window:  hammingWindow(cfg.FrameSize),
		melBank: melFilterBank(cfg.NumFilters, cfg.FrameSize, cfg.SampleRate),
		dct:     dctMatrix(cfg.NumCoeffs, cfg.NumFilters),
	}, nil
}

// Config returns the extractor configuration.
func (e *Extractor) Config() Config {
	return e.cfg
}

// NumFrames returns how many frames Extract yields for n samples.
func (e *Extractor) NumFrames(n int) int {
	if n < e.cfg.FrameSize {
		return 0
	}
	return (n-e.cfg.FrameSize)/e.cfg.HopSize + 1
}

// Frames yields one coefficient vector per analysis window. Each yielded
// slice is freshly allocated and owned by the caller.
func (e *Extractor) Frames(samples []float32) iter.Seq[[]float64] {
	return func(yield func([]float64) bool) {
		n := e.cfg.FrameSize
		re := make([]float64, n)
		im := make([]float64, n)
		mag := make([]float64, n/2+1)
		logMel := make([]float64, e.cfg.NumFilters)

		for t := range e.NumFrames(len(samples)) {
			start := t * e.cfg.HopSize
			for i := 0; i < n; i++ {
				re[i] = float64(samples[start+i]) * e.window[i]
				im[i] = 0
			}
			fft(re, im)
			for k := range mag {
				mag[k] = math.Sqrt(re[k]*re[k] + im[k]*im[k])
			}

			for m, filter := range e.melBank {
				energy := 0.0
				for k, w := range filter {
					if w != 0 {
						energy += w * mag[k]
					}
				}
				logMel[m] = math.Log(max(energy, EnergyFloor))
			}

			coeffs := make([]float64, e.cfg.NumCoeffs)
			for c, basis := range e.dct {
				sum := 0.0
				for m, b := range basis {
					sum += b * logMel[m]
				}
				coeffs[c] = sum
			}
			if !yield(coeffs) {
				return
			}
		}
	}
}

// Extract returns all MFCC frames for samples as a [T][NumCoeffs] matrix.
// Returns nil when there are fewer than FrameSize samples.
func (e *Extractor) Extract(samples []float32) [][]float64 {
	nf := e.NumFrames(len(samples))
	if nf == 0 {
		return nil
	}
	out := make([][]float64, 0, nf)
	for f := range e.Frames(samples) {
		out = append(out, f)
	}
	return out
}

// ExtractPCM converts little-endian int16 PCM bytes to normalized samples
// and extracts MFCC frames.
func (e *Extractor) ExtractPCM(audio []byte) [][]float64 {
	return e.Extract(pcm.Float32s(audio))
}
