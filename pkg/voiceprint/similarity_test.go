package voiceprint

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/haivivi/voicefilter/pkg/audio/mfcc"
)

func extractor(t testing.TB) *mfcc.Extractor {
	t.Helper()
	ext, err := mfcc.New(mfcc.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	return ext
}

func TestSimilarityIdentical(t *testing.T) {
	ext := extractor(t)
	a := floats(tone(16, 8000))
	if got := Similarity(ext, a, a); got != 1 {
		t.Errorf("Similarity(a, a) = %v, want 1", got)
	}
}

func TestSimilarityShortInput(t *testing.T) {
	ext := extractor(t)
	long := floats(tone(16, 8000))
	short := floats(tone(16, MinSamples-1))

	tests := []struct {
		name string
		a, b []float32
	}{
		{"short candidate", long, short},
		{"short reference", short, long},
		{"empty", nil, long},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Similarity(ext, tt.a, tt.b); got != FallbackSimilarity {
				t.Errorf("Similarity = %v, want %v", got, FallbackSimilarity)
			}
		})
	}
}

func TestSimilarityDifferentVoices(t *testing.T) {
	ext := extractor(t)
	low := floats(tone(16, 8000))  // 1 kHz
	high := floats(tone(8, 8000)) // 2 kHz
	if got := Similarity(ext, low, high); got >= DefaultThreshold {
		t.Errorf("Similarity(1kHz, 2kHz) = %v, want below %v", got, DefaultThreshold)
	}
}

func TestSimilarityRange(t *testing.T) {
	ext := extractor(t)
	r := rand.New(rand.NewPCG(1, 2))
	noise := make([]float32, 8000)
	for i := range noise {
		noise[i] = float32(r.Float64()*2-1) * 0.3
	}
	got := Similarity(ext, noise, floats(tone(16, 8000)))
	if math.IsNaN(got) || got < 0 || got > 1 {
		t.Errorf("Similarity = %v, want within [0, 1]", got)
	}
}

func TestReference(t *testing.T) {
	ext := extractor(t)
	samples := floats(tone(16, 16000))
	ref := NewReference(ext, samples)
	if ref.Samples() != 16000 {
		t.Errorf("Samples = %d, want 16000", ref.Samples())
	}
	if got, want := ref.Score(ext, samples), Similarity(ext, samples, samples); got != want {
		t.Errorf("Reference.Score = %v, Similarity = %v", got, want)
	}

	var missing *Reference
	if got := missing.Score(ext, samples); got != FallbackSimilarity {
		t.Errorf("nil Reference.Score = %v, want %v", got, FallbackSimilarity)
	}
	if missing.Samples() != 0 {
		t.Error("nil Reference has samples")
	}
}

func BenchmarkSimilarity(b *testing.B) {
	ext := extractor(b)
	a := floats(tone(16, 16000))
	c := floats(tone(8, 16000))
	b.ResetTimer()
	for b.Loop() {
		Similarity(ext, a, c)
	}
}
