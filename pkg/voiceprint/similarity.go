package voiceprint

import (
	"math"

	"github.com/haivivi/voicefilter/pkg/audio/mfcc"
)

const (
	// MinSamples is the shortest buffer (100 ms at 16 kHz) that is scored.
	MinSamples = 1600

	// FallbackSimilarity is returned when either side is missing or too
	// short to compare.
	FallbackSimilarity = 0.3

	varianceEpsilon = 0.001
)

// Similarity scores two sample buffers in [0, 1] using ext.
func Similarity(ext *mfcc.Extractor, a, b []float32) float64 {
	if len(a) < MinSamples || len(b) < MinSamples {
		return FallbackSimilarity
	}
	return compareStats(mfcc.ComputeStats(ext.Extract(a)), mfcc.ComputeStats(ext.Extract(b)))
}

func compareStats(a, b mfcc.Stats) float64 {
	n := min(len(a.Mean), len(b.Mean))
	if n == 0 {
		return FallbackSimilarity
	}
	var sum float64
	for i := range n {
		d := a.Mean[i] - b.Mean[i]
		sum += d * d / ((a.Variance[i]+b.Variance[i])/2 + varianceEpsilon)
	}
	dist := math.Sqrt(sum / float64(n))
	return math.Exp(-dist / 2)
}

// Reference holds the precomputed MFCC statistics of an enrollment sample,
// so repeated comparisons only analyze the candidate side. A nil Reference
// stands for missing audio.
type Reference struct {
	stats   mfcc.Stats
	samples int
}

// NewReference analyzes enrollment samples with ext.
func NewReference(ext *mfcc.Extractor, samples []float32) *Reference {
	return &Reference{
		stats:   mfcc.ComputeStats(ext.Extract(samples)),
		samples: len(samples),
	}
}

// Samples returns the length of the enrollment audio.
func (r *Reference) Samples() int {
	if r == nil {
		return 0
	}
	return r.samples
}

// Score compares candidate against the reference.
func (r *Reference) Score(ext *mfcc.Extractor, candidate []float32) float64 {
	if r == nil || r.samples < MinSamples || len(candidate) < MinSamples {
		return FallbackSimilarity
	}
	return compareStats(r.stats, mfcc.ComputeStats(ext.Extract(candidate)))
}
