package voiceprint

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/haivivi/voicefilter/pkg/audio/mfcc"
	"github.com/haivivi/voicefilter/pkg/audio/pcm"
)

// Verifier defaults.
const (
	DefaultThreshold      = 0.7
	DefaultSilenceTimeout = 2000 * time.Millisecond
	DefaultMaxBufferBytes = 64000

	// minBuffered is the audio required before an attempt is made.
	minBuffered = 400 * time.Millisecond
	// attemptInterval spaces re-verification while authorized.
	attemptInterval = 300 * time.Millisecond
	// revertAfter is the silence that drops an authorized decision.
	revertAfter = 500 * time.Millisecond
)

// EventKind identifies a verifier notification.
type EventKind int

const (
	// EventVerificationRequired fires on entry to DecisionPending.
	EventVerificationRequired EventKind = iota + 1
	// EventVerified fires after every completed attempt.
	EventVerified
	// EventUnauthorized fires on entry to DecisionUnauthorized.
	EventUnauthorized
	// EventError reports a soft failure, such as a missing profile.
	EventError
	// EventClosed fires once when the verifier is closed.
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventVerificationRequired:
		return "verification-required"
	case EventVerified:
		return "verification"
	case EventUnauthorized:
		return "unauthorized"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is a verifier notification. Events are observational; the decision
// does not depend on anyone receiving them.
type Event struct {
	Kind       EventKind
	Decision   Decision
	Similarity float64 // EventVerified only
	Err        error   // EventError only
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithThreshold sets the pass threshold in (0, 1] (default 0.7).
func WithThreshold(th float64) VerifierOption {
	return func(v *Verifier) {
		if th > 0 && th <= 1 {
			v.threshold = th
		}
	}
}

// WithSilenceTimeout sets how long after the last successful attempt a new
// speech start forces re-verification (default 2s).
func WithSilenceTimeout(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		if d > 0 {
			v.silenceTimeout = d
		}
	}
}

// WithMaxBufferBytes caps the rolling speech buffer (default 64000 bytes).
func WithMaxBufferBytes(n int) VerifierOption {
	return func(v *Verifier) {
		if n > 0 {
			v.maxBufferBytes = n
		}
	}
}

// WithObserver registers fn to receive events. fn is called without
// internal locks held, after the triggering state update completes.
func WithObserver(fn func(Event)) VerifierOption {
	return func(v *Verifier) { v.observe = fn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// WithVerifierLogger sets the logger.
func WithVerifierLogger(l *slog.Logger) VerifierOption {
	return func(v *Verifier) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithExtractor overrides the MFCC extractor. Its sample rate determines
// the expected PCM format.
func WithExtractor(ext *mfcc.Extractor) VerifierOption {
	return func(v *Verifier) {
		if ext != nil {
			v.ext = ext
		}
	}
}

// Verifier continuously checks whether the speaking voice is the enrolled
// speaker.
//
// Frames are fed with ProcessAudio in arrival order, one at a time. While
// speech is flagged they accumulate in a rolling buffer; once 400 ms are
// buffered an attempt compares the buffer against the enrollment sample on
// a separate goroutine. At most one attempt runs at a time and ingestion
// never waits for it.
//
// Decision rules:
//
//   - A speech start more than the silence timeout after the last passing
//     attempt forces DecisionPending and clears the buffer.
//   - Attempts run while pending, and while authorized every 300 ms.
//   - Two consecutive passes authorize; once authorized one more pass keeps
//     it. Any failure yields DecisionUnauthorized.
//   - Silence longer than 500 ms while authorized reverts to pending.
//   - A NaN score is skipped and leaves the decision unchanged.
type Verifier struct {
	speakerID string
	profiles  ProfileStore

	ext            *mfcc.Extractor
	format         pcm.Format
	threshold      float64
	silenceTimeout time.Duration
	maxBufferBytes int
	now            func() time.Time
	observe        func(Event)
	logger         *slog.Logger

	// score compares the buffered samples with the reference.
	score func(ref *Reference, samples []float32) float64

	mu          sync.Mutex
	decision    Decision
	initialized bool
	closed      bool
	ref         *Reference

	frames   [][]byte
	buffered int
	inSpeech bool

	lastSpeech  time.Time
	lastAttempt time.Time
	lastPass    time.Time
	passes      int
	fails       int

	inFlight bool
	// gen invalidates in-flight attempts whose buffer was cleared.
	gen uint64
	wg  sync.WaitGroup
}

// NewVerifier creates a verifier for speakerID whose profile is read from
// profiles by Initialize.
func NewVerifier(speakerID string, profiles ProfileStore, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		speakerID:      speakerID,
		profiles:       profiles,
		threshold:      DefaultThreshold,
		silenceTimeout: DefaultSilenceTimeout,
		maxBufferBytes: DefaultMaxBufferBytes,
		now:            time.Now,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.ext == nil {
		// DefaultConfig is always valid.
		v.ext, _ = mfcc.New(mfcc.DefaultConfig())
	}
	v.format, _ = pcm.FormatFor(v.ext.Config().SampleRate)
	if v.score == nil {
		v.score = func(ref *Reference, samples []float32) float64 {
			return ref.Score(v.ext, samples)
		}
	}
	v.logger = v.logger.With("speaker_id", speakerID)
	return v
}

// Initialize loads the speaker's profile and enrollment audio.
//
// A missing profile emits EventError and returns ErrProfileNotFound; the
// decision stays DecisionUnknown. Unreadable enrollment audio is logged and
// tolerated: every attempt then scores FallbackSimilarity.
func (v *Verifier) Initialize(ctx context.Context) error {
	prof, err := v.profiles.Get(ctx, v.speakerID)
	if err != nil {
		v.emit(Event{Kind: EventError, Decision: v.Decision(), Err: err})
		return err
	}

	var ref *Reference
	samples, err := LoadSamples(prof.AudioPath, v.format.SampleRate())
	if err != nil {
		v.logger.Warn("enrollment audio unavailable", "path", prof.AudioPath, "error", err)
	} else {
		ref = NewReference(v.ext, samples)
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return errors.New("voiceprint: verifier closed")
	}
	v.ref = ref
	v.initialized = true
	v.clearLocked()
	events := v.setDecisionLocked(DecisionPending, nil)
	v.mu.Unlock()

	v.logger.Debug("verifier initialized", "name", prof.Name, "reference_samples", ref.Samples())
	v.emitAll(events)
	return nil
}

// ProcessAudio feeds one frame of 16-bit PCM and returns the decision after
// the frame's buffering and decision update.
func (v *Verifier) ProcessAudio(frame []byte, isSpeech bool) Decision {
	v.mu.Lock()
	if !v.initialized || v.closed {
		d := v.decision
		v.mu.Unlock()
		return d
	}

	now := v.now()
	var events []Event
	if isSpeech {
		if !v.inSpeech && (v.lastPass.IsZero() || now.Sub(v.lastPass) > v.silenceTimeout) {
			v.clearLocked()
			events = v.setDecisionLocked(DecisionPending, events)
		}
		v.inSpeech = true
		v.lastSpeech = now
		v.appendLocked(frame)
		if v.shouldAttemptLocked(now) {
			v.startAttemptLocked(now)
		}
	} else {
		v.inSpeech = false
		if v.decision == DecisionAuthorized && now.Sub(v.lastSpeech) > revertAfter {
			v.clearLocked()
			events = v.setDecisionLocked(DecisionPending, events)
		}
	}
	d := v.decision
	v.mu.Unlock()

	v.emitAll(events)
	return d
}

func (v *Verifier) appendLocked(frame []byte) {
	f := make([]byte, len(frame))
	copy(f, frame)
	v.frames = append(v.frames, f)
	v.buffered += len(f)
	for v.buffered > v.maxBufferBytes && len(v.frames) > 1 {
		v.buffered -= len(v.frames[0])
		v.frames[0] = nil
		v.frames = v.frames[1:]
	}
}

func (v *Verifier) shouldAttemptLocked(now time.Time) bool {
	if v.inFlight || v.format.Duration(int64(v.buffered)) < minBuffered {
		return false
	}
	switch v.decision {
	case DecisionPending:
		return true
	case DecisionAuthorized:
		return now.Sub(v.lastAttempt) >= attemptInterval
	default:
		return false
	}
}

func (v *Verifier) startAttemptLocked(now time.Time) {
	audio := make([]byte, 0, v.buffered)
	for _, f := range v.frames {
		audio = append(audio, f...)
	}
	v.inFlight = true
	v.lastAttempt = now
	gen := v.gen
	ref := v.ref

	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		sim := v.score(ref, pcm.Float32s(audio))
		v.finishAttempt(gen, sim)
	}()
}

func (v *Verifier) finishAttempt(gen uint64, sim float64) {
	v.mu.Lock()
	v.inFlight = false
	if v.closed || gen != v.gen {
		v.mu.Unlock()
		return
	}
	if math.IsNaN(sim) {
		v.mu.Unlock()
		v.logger.Warn("similarity is NaN, attempt skipped")
		return
	}

	var events []Event
	if sim >= v.threshold {
		v.passes++
		v.fails = 0
		v.lastPass = v.now()
		if v.passes >= 2 || v.decision == DecisionAuthorized {
			events = v.setDecisionLocked(DecisionAuthorized, events)
		}
	} else {
		v.fails++
		v.passes = 0
		events = v.setDecisionLocked(DecisionUnauthorized, events)
	}
	d := v.decision
	v.mu.Unlock()

	v.logger.Debug("verification attempt", "similarity", sim, "decision", d.String())
	v.emitAll(append([]Event{{Kind: EventVerified, Decision: d, Similarity: sim}}, events...))
}

// setDecisionLocked records d and appends the entry event for it, if any.
func (v *Verifier) setDecisionLocked(d Decision, events []Event) []Event {
	if v.decision == d {
		return events
	}
	v.decision = d
	switch d {
	case DecisionPending:
		events = append(events, Event{Kind: EventVerificationRequired, Decision: d})
	case DecisionUnauthorized:
		events = append(events, Event{Kind: EventUnauthorized, Decision: d})
	}
	return events
}

func (v *Verifier) clearLocked() {
	v.frames = nil
	v.buffered = 0
	v.passes = 0
	v.fails = 0
	v.gen++
}

// Decision returns the current decision.
func (v *Verifier) Decision() Decision {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.decision
}

// IsAuthorized reports whether the decision is DecisionAuthorized.
func (v *Verifier) IsAuthorized() bool {
	return v.Decision() == DecisionAuthorized
}

// Buffered returns the number of bytes in the rolling speech buffer.
func (v *Verifier) Buffered() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.buffered
}

// Reset clears counters and buffered audio and forces DecisionPending. An
// uninitialized verifier stays DecisionUnknown.
func (v *Verifier) Reset() {
	v.mu.Lock()
	if !v.initialized || v.closed {
		v.mu.Unlock()
		return
	}
	v.clearLocked()
	v.inSpeech = false
	v.lastPass = time.Time{}
	v.lastAttempt = time.Time{}
	events := v.setDecisionLocked(DecisionPending, nil)
	v.mu.Unlock()
	v.emitAll(events)
}

// Wait blocks until no attempt is in flight.
func (v *Verifier) Wait() {
	v.wg.Wait()
}

// Close stops the verifier and waits for an in-flight attempt. It is safe
// to call more than once.
func (v *Verifier) Close() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	v.clearLocked()
	v.ref = nil
	d := v.decision
	v.mu.Unlock()

	v.wg.Wait()
	v.emit(Event{Kind: EventClosed, Decision: d})
	return nil
}

func (v *Verifier) emit(e Event) {
	if v.observe != nil {
		v.observe(e)
	}
}

func (v *Verifier) emitAll(events []Event) {
	for _, e := range events {
		v.emit(e)
	}
}
