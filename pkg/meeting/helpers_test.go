package meeting

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haivivi/voicefilter/pkg/audio/capture"
	"github.com/haivivi/voicefilter/pkg/audio/pcm"
	"github.com/haivivi/voicefilter/pkg/storage"
)

// Test frames are 100 ms: 1600 samples, 3200 bytes.
const (
	frameSamples = 1600
	frameBytes   = 2 * frameSamples
	frameStep    = 100 * time.Millisecond
)

// toneFrame returns one frame of a sine with the given period in samples.
func toneFrame(period int) []byte {
	s := make([]int16, frameSamples)
	for i := range s {
		s[i] = int16(12000 * math.Sin(2*math.Pi*float64(i%period)/float64(period)))
	}
	return pcm.Bytes(s)
}

func speechFrame() []byte  { return toneFrame(16) }
func silenceFrame() []byte { return make([]byte, frameBytes) }

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)}
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

// fakeSource delivers frames synchronously from push.
type fakeSource struct {
	mu       sync.Mutex
	h        capture.Handler
	startErr error
	starts   int
	stops    int
}

func (f *fakeSource) Start(h capture.Handler, _ capture.ErrorHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	if f.h != nil {
		return capture.ErrAlreadyStarted
	}
	f.h = h
	f.starts++
	return nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.h = nil
	f.stops++
	return nil
}

func (f *fakeSource) push(frame []byte) {
	f.mu.Lock()
	h := f.h
	f.mu.Unlock()
	if h != nil {
		h(frame)
	}
}

func (f *fakeSource) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

// fakeAttributor returns scripted attributions in order, repeating the
// last one.
type fakeAttributor struct {
	script []Attribution
	block  chan struct{} // Identify waits on it when non-nil
	enter  chan struct{} // signalled when Identify is entered

	mu       sync.Mutex
	segments []int
	loaded   []Attendee
	closes   int
}

func (f *fakeAttributor) LoadProfiles(_ context.Context, attendees []Attendee, _ storage.FileStore) error {
	f.mu.Lock()
	f.loaded = attendees
	f.mu.Unlock()
	return nil
}

func (f *fakeAttributor) Identify(ctx context.Context, segment []byte) (Attribution, error) {
	if f.enter != nil {
		f.enter <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return Attribution{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.segments = append(f.segments, len(segment))
	a := Attribution{SpeakerID: "spk-1", SpeakerName: "Alice", Confidence: 0.9}
	if n := len(f.script); n > 0 {
		a = f.script[min(len(f.segments)-1, n-1)]
	}
	return a, nil
}

func (f *fakeAttributor) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	return nil
}

func (f *fakeAttributor) calls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.segments...)
}

func (f *fakeAttributor) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// fakeTranscriber returns "segment N" for the Nth call, or the scripted
// error for that call.
type fakeTranscriber struct {
	errs []error

	mu     sync.Mutex
	n      int
	closes int
}

func (f *fakeTranscriber) Transcribe(_ context.Context, segment []byte, a Attribution) (*TranscriptEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	if f.n <= len(f.errs) && f.errs[f.n-1] != nil {
		return nil, f.errs[f.n-1]
	}
	return &TranscriptEntry{
		SpeakerID:   a.SpeakerID,
		SpeakerName: a.SpeakerName,
		Confidence:  a.Confidence,
		Text:        "segment " + string(rune('0'+f.n)),
	}, nil
}

func (f *fakeTranscriber) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	return nil
}

func (f *fakeTranscriber) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

type recorder struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 1)}
}

func (r *recorder) observe(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *recorder) of(k EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) count(k EventKind) int {
	return len(r.of(k))
}

// wait blocks until an event of kind k has been recorded and returns the
// latest one.
func (r *recorder) wait(t *testing.T, k EventKind) Event {
	t.Helper()
	return r.waitN(t, k, 1)
}

// waitN blocks until n events of kind k have been recorded.
func (r *recorder) waitN(t *testing.T, k EventKind, n int) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if evs := r.of(k); len(evs) >= n {
			return evs[len(evs)-1]
		}
		select {
		case <-r.notify:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatalf("timed out waiting for %d %v events", n, k)
		}
	}
}

// flakyStore fails every write while failing is set.
type flakyStore struct {
	*storage.Local
	failing atomic.Bool
}

func (f *flakyStore) Write(ctx context.Context, p string) (io.WriteCloser, error) {
	if f.failing.Load() {
		return nil, errBoom
	}
	return f.Local.Write(ctx, p)
}

type harness struct {
	t     *testing.T
	store *flakyStore
	clk   *fakeClock
	rec   *recorder
	attr  *fakeAttributor
	tr    *fakeTranscriber

	mu      sync.Mutex
	sources []*fakeSource
	s       *Session
}

func newHarness(t *testing.T, configure func(*Config), opts ...Option) *harness {
	t.Helper()
	local, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store := &flakyStore{Local: local}
	h := &harness{
		t:     t,
		store: store,
		clk:   newFakeClock(),
		rec:   newRecorder(),
		attr:  &fakeAttributor{},
		tr:    &fakeTranscriber{},
	}
	cfg := DefaultConfig()
	cfg.AutosaveInterval = 0
	if configure != nil {
		configure(&cfg)
	}
	base := []Option{
		WithConfig(cfg),
		WithClock(h.clk.Now),
		WithObserver(h.rec.observe),
		WithSource(h.newSource),
		WithAttributor(func() (Attributor, error) { return h.attr, nil }),
		WithTranscriber(func() (Transcriber, error) { return h.tr, nil }),
	}
	h.s, err = New(context.Background(), store, "Weekly sync", append(base, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { h.s.EndMeeting(context.Background()) })
	return h
}

func (h *harness) newSource() (capture.Source, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	src := &fakeSource{}
	h.sources = append(h.sources, src)
	return src, nil
}

// source returns the most recently created source.
func (h *harness) source() *fakeSource {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.sources) == 0 {
		h.t.Fatal("no source created")
	}
	return h.sources[len(h.sources)-1]
}

func (h *harness) sourceCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sources)
}

// addHosts adds n attendees marked enrolled.
func (h *harness) addHosts(n int) []Attendee {
	h.t.Helper()
	names := []string{"Alice", "Bob", "Carol", "Dave"}
	var out []Attendee
	for i := range n {
		a, err := h.s.AddAttendee(context.Background(), names[i], "Engineer", AsHost())
		if err != nil {
			h.t.Fatal(err)
		}
		out = append(out, a)
	}
	return out
}

func (h *harness) start() {
	h.t.Helper()
	if err := h.s.StartMeeting(context.Background()); err != nil {
		h.t.Fatalf("StartMeeting: %v", err)
	}
}

// feed pushes n copies of frame, advancing the clock one frame each.
func (h *harness) feed(frame []byte, n int) {
	src := h.source()
	for range n {
		src.push(frame)
		h.clk.Advance(frameStep)
	}
}

func (h *harness) end() *Export {
	h.t.Helper()
	e, err := h.s.EndMeeting(context.Background())
	if err != nil {
		h.t.Fatalf("EndMeeting: %v", err)
	}
	return e
}

var errBoom = errors.New("boom")
