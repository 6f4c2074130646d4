package capture

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/haivivi/voicefilter/pkg/audio/pcm"
	"github.com/haivivi/voicefilter/pkg/audio/wav"
)

func TestSplit(t *testing.T) {
	frames := Split([]byte{1, 2, 3, 4, 5}, 2)
	if len(frames) != 3 {
		t.Fatalf("len = %d, want 3", len(frames))
	}
	if !bytes.Equal(frames[2], []byte{5, 0}) {
		t.Errorf("last frame = %v, want zero-padded [5 0]", frames[2])
	}
	if Split(nil, 2) != nil || Split([]byte{1}, 0) != nil {
		t.Error("expected nil for empty input or zero frame size")
	}
}

func TestFrameDuration(t *testing.T) {
	if got := FrameDuration(pcm.L16Mono16K, 512); got != 32*time.Millisecond {
		t.Errorf("FrameDuration = %v, want 32ms", got)
	}
}

func TestPCMSourceDeliversInOrder(t *testing.T) {
	data := make([]byte, 10*1024)
	for i := range data {
		data[i] = byte(i / 1024)
	}
	src := NewPCMSource(pcm.L16Mono16K, data, 512, false)

	var mu sync.Mutex
	var got [][]byte
	if err := src.Start(func(f []byte) {
		mu.Lock()
		got = append(got, f)
		mu.Unlock()
	}, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-src.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("source did not finish")
	}
	if err := src.Start(func([]byte) {}, nil); err != ErrAlreadyStarted {
		t.Errorf("second Start err = %v, want ErrAlreadyStarted", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 10 {
		t.Fatalf("delivered %d frames, want 10", len(got))
	}
	for i, f := range got {
		if f[0] != byte(i) {
			t.Errorf("frame %d starts with %d", i, f[0])
		}
	}
}

func TestPCMSourceStopHaltsDelivery(t *testing.T) {
	src := NewPCMSource(pcm.L16Mono16K, make([]byte, 100*1024), 512, true)
	var mu sync.Mutex
	n := 0
	if err := src.Start(func([]byte) {
		mu.Lock()
		n++
		mu.Unlock()
	}, nil); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := src.Stop(); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	after := n
	mu.Unlock()
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if n != after {
		t.Errorf("frames delivered after Stop: %d -> %d", after, n)
	}
	if n >= 100 {
		t.Errorf("paced source delivered all %d frames in 50ms", n)
	}
}

func TestStopWithoutStart(t *testing.T) {
	if err := NewPCMSource(pcm.L16Mono16K, nil, 512, false).Stop(); err != nil {
		t.Errorf("Stop on idle source: %v", err)
	}
	if err := NewPortAudio(pcm.L16Mono16K).Stop(); err != nil {
		t.Errorf("Stop on idle PortAudio: %v", err)
	}
}

func TestOpenWAVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.wav")
	data := pcm.Bytes(make([]int16, 1600))
	if err := os.WriteFile(path, wav.Bytes(pcm.L16Mono16K, data), 0o644); err != nil {
		t.Fatal(err)
	}
	src, err := OpenWAVFile(path, 160, false)
	if err != nil {
		t.Fatalf("OpenWAVFile: %v", err)
	}
	if src.Format() != pcm.L16Mono16K {
		t.Errorf("format = %v", src.Format())
	}
	if len(src.frames) != 10 {
		t.Errorf("frames = %d, want 10", len(src.frames))
	}
}
