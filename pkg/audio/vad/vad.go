// Package vad classifies PCM frames as speech or non-speech.
//
// A Detector returns a speech probability in [0, 1] per frame; callers pick
// their own threshold. Detectors may keep state between frames and must be
// released with Close.
package vad

import (
	"errors"
	"math"
	"sync"
)

// ErrClosed is returned by Process after Close.
var ErrClosed = errors.New("vad: detector closed")

// Detector scores frames of normalized float samples.
type Detector interface {
	// Process returns the speech probability of one frame.
	Process(samples []float32) (float32, error)

	// Close releases the detector. It is safe to call more than once.
	Close() error
}

// Energy is a Detector based on RMS energy. The probability rises linearly
// from 0 at silence to 0.5 at Threshold and saturates at 1 for twice the
// threshold. An optional exponential smoothing factor damps frame-to-frame
// jitter so short consonant dips do not split a segment.
type Energy struct {
	threshold float64
	smoothing float64

	mu     sync.Mutex
	level  float64
	closed bool
}

// EnergyOption configures an Energy detector.
type EnergyOption func(*Energy)

// WithThreshold sets the RMS level that maps to probability 0.5
// (default 0.005).
func WithThreshold(th float64) EnergyOption {
	return func(e *Energy) {
		if th > 0 {
			e.threshold = th
		}
	}
}

// WithSmoothing sets the weight of the previous level in [0, 1)
// (default 0, no smoothing).
func WithSmoothing(a float64) EnergyOption {
	return func(e *Energy) {
		if a >= 0 && a < 1 {
			e.smoothing = a
		}
	}
}

// NewEnergy creates an RMS energy detector.
func NewEnergy(opts ...EnergyOption) *Energy {
	e := &Energy{threshold: 0.005}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process implements Detector.
func (e *Energy) Process(samples []float32) (float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, ErrClosed
	}
	level := RMS(samples)
	e.level = e.smoothing*e.level + (1-e.smoothing)*level
	return float32(min(1, e.level/(2*e.threshold))), nil
}

// Close implements Detector.
func (e *Energy) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

// RMS returns the root mean square of samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

var _ Detector = (*Energy)(nil)
