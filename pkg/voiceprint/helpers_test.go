package voiceprint

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/haivivi/voicefilter/pkg/audio/pcm"
	"github.com/haivivi/voicefilter/pkg/audio/wav"
	"github.com/haivivi/voicefilter/pkg/kv"
)

const frameSamples = 512 // 32 ms

// tone returns n samples of a periodic waveform. Periods dividing 256 make
// every MFCC window identical.
func tone(period, n int) []int16 {
	table := make([]int16, period)
	for i := range table {
		table[i] = int16(12000 * math.Sin(2*math.Pi*float64(i)/float64(period)))
	}
	out := make([]int16, n)
	for i := range out {
		out[i] = table[i%period]
	}
	return out
}

func floats(s []int16) []float32 {
	return pcm.Float32s(pcm.Bytes(s))
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) observe(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) count(k EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// enroll writes samples as the speaker's enrollment WAV and stores the
// profile.
func enroll(t *testing.T, store ProfileStore, id string, samples []int16) {
	t.Helper()
	path := filepath.Join(t.TempDir(), id+".wav")
	if err := os.WriteFile(path, wav.Bytes(pcm.L16Mono16K, pcm.Bytes(samples)), 0o644); err != nil {
		t.Fatal(err)
	}
	err := store.Put(context.Background(), &Profile{
		SpeakerID:  id,
		Name:       "Speaker " + id,
		EnrolledAt: time.Now(),
		AudioPath:  path,
	})
	if err != nil {
		t.Fatal(err)
	}
}

type harness struct {
	v   *Verifier
	clk *fakeClock
	rec *recorder
}

func newHarness(t *testing.T, reference []int16, opts ...VerifierOption) *harness {
	t.Helper()
	store := NewProfiles(kv.NewMemory())
	enroll(t, store, "alice", reference)

	h := &harness{clk: newFakeClock(), rec: &recorder{}}
	opts = append([]VerifierOption{WithClock(h.clk.Now), WithObserver(h.rec.observe)}, opts...)
	h.v = NewVerifier("alice", store, opts...)
	t.Cleanup(func() { h.v.Close() })
	if err := h.v.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return h
}

// feed advances the clock by one frame, processes it and waits for any
// attempt it started.
func (h *harness) feed(frame []byte, speech bool) Decision {
	h.clk.Advance(32 * time.Millisecond)
	h.v.ProcessAudio(frame, speech)
	h.v.Wait()
	return h.v.Decision()
}

// scripted replaces the similarity function with a fixed sequence.
func (h *harness) scripted(scores ...float64) *int {
	calls := new(int)
	h.v.score = func(*Reference, []float32) float64 {
		i := *calls
		*calls++
		if i < len(scores) {
			return scores[i]
		}
		return scores[len(scores)-1]
	}
	return calls
}
