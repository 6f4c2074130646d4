package pcm

import (
	"math"
	"testing"
	"time"
)

func TestFormatArithmetic(t *testing.T) {
	f := L16Mono16K
	if got := f.BytesInDuration(500 * time.Millisecond); got != 16000 {
		t.Errorf("BytesInDuration(500ms) = %d, want 16000", got)
	}
	if got := f.Duration(64000); got != 2*time.Second {
		t.Errorf("Duration(64000) = %v, want 2s", got)
	}
	if got := f.BytesRate(); got != 32000 {
		t.Errorf("BytesRate() = %d, want 32000", got)
	}
	if got := f.BlockAlign(); got != 2 {
		t.Errorf("BlockAlign() = %d, want 2", got)
	}
}

func TestFormatFor(t *testing.T) {
	for _, rate := range []int{16000, 24000, 48000} {
		f, err := FormatFor(rate)
		if err != nil {
			t.Fatalf("FormatFor(%d): %v", rate, err)
		}
		if f.SampleRate() != rate {
			t.Errorf("FormatFor(%d).SampleRate() = %d", rate, f.SampleRate())
		}
	}
	if _, err := FormatFor(44100); err == nil {
		t.Error("FormatFor(44100): expected error")
	}
}

func TestSampleConversion(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768, 1234}
	b := Bytes(in)
	if len(b) != len(in)*2 {
		t.Fatalf("len(Bytes) = %d, want %d", len(b), len(in)*2)
	}
	out := Int16s(b)
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("Int16s[%d] = %d, want %d", i, out[i], in[i])
		}
	}
	fs := Float32s(b)
	if fs[4] != -1 {
		t.Errorf("Float32s min = %f, want -1", fs[4])
	}
	if math.Abs(float64(fs[3])-32767.0/32768.0) > 1e-6 {
		t.Errorf("Float32s max = %f", fs[3])
	}
}

func TestLevel(t *testing.T) {
	if got := Level(nil); got != 0 {
		t.Errorf("Level(nil) = %f, want 0", got)
	}
	if got := Level([]float32{0.01, -0.01}); math.Abs(got-0.1) > 1e-6 {
		t.Errorf("Level(0.01) = %f, want 0.1", got)
	}
	if got := Level([]float32{0.5, -0.5}); got != 1 {
		t.Errorf("Level(0.5) = %f, want clamped 1", got)
	}
}
