package meeting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/haivivi/voicefilter/pkg/audio/capture"
	"github.com/haivivi/voicefilter/pkg/audio/pcm"
	"github.com/haivivi/voicefilter/pkg/audio/vad"
	"github.com/haivivi/voicefilter/pkg/audio/wav"
	"github.com/haivivi/voicefilter/pkg/jsontime"
)

// segment is a finalized run of speech frames.
type segment struct {
	data []byte
	at   time.Time
}

// run holds the resources of a started meeting.
type run struct {
	ctx    context.Context
	cancel context.CancelFunc

	source      capture.Source
	detector    vad.Detector
	attributor  Attributor
	transcriber Transcriber

	queue        chan segment
	stopAutosave chan struct{}
	wg           sync.WaitGroup

	mu        sync.Mutex
	recording []byte
	seg       []byte
	segAt     time.Time
	closed    bool
}

// open acquires every collaborator of a meeting. On failure the ones
// already acquired are released.
func (s *Session) open(ctx context.Context, attendees []Attendee) (_ *run, err error) {
	r := &run{
		queue:        make(chan segment, max(1, s.cfg.DispatchQueueSize)),
		stopAutosave: make(chan struct{}),
	}
	defer func() {
		if err != nil {
			r.release()
		}
	}()

	if r.attributor, err = s.newAttributor(); err != nil {
		return nil, fmt.Errorf("meeting: create attributor: %w", err)
	}
	if err = r.attributor.LoadProfiles(ctx, attendees, s.store); err != nil {
		return nil, err
	}
	if s.cfg.TranscriptionEnabled && s.newTranscriber != nil {
		if r.transcriber, err = s.newTranscriber(); err != nil {
			return nil, fmt.Errorf("meeting: create transcriber: %w", err)
		}
	}
	if r.detector, err = s.newDetector(); err != nil {
		return nil, fmt.Errorf("meeting: create detector: %w", err)
	}
	if r.source, err = s.newSource(); err != nil {
		return nil, fmt.Errorf("meeting: create source: %w", err)
	}
	r.ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	return r, nil
}

// release closes the collaborators once. The source must already be stopped.
func (r *run) release() error {
	var errs []error
	if r.cancel != nil {
		r.cancel()
	}
	if r.detector != nil {
		errs = append(errs, r.detector.Close())
		r.detector = nil
	}
	if r.attributor != nil {
		errs = append(errs, r.attributor.Close())
		r.attributor = nil
	}
	if r.transcriber != nil {
		errs = append(errs, r.transcriber.Close())
		r.transcriber = nil
	}
	return errors.Join(errs...)
}

// StartMeeting opens the frame source and begins recording. At least two
// attendees must be enrolled. A failed precondition leaves the session
// untouched.
func (s *Session) StartMeeting(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	var err error
	switch {
	case s.data.Status == StatusEnded:
		err = ErrEnded
	case s.run != nil:
		err = ErrAlreadyStarted
	case s.enrollment != nil:
		err = ErrEnrolling
	case s.data.EnrolledCount() < 2:
		err = ErrNotEnoughEnrolled
	}
	attendees := append([]Attendee(nil), s.data.Attendees...)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	r, err := s.open(ctx, attendees)
	if err != nil {
		return err
	}
	r.wg.Add(1)
	go s.dispatchLoop(r)

	s.mu.Lock()
	prevStatus, prevStarted := s.data.Status, s.data.StartedAt
	s.run = r
	s.data.Status = StatusActive
	if s.data.StartedAt == nil {
		s.data.StartedAt = jsontime.Ptr(s.now())
	}
	s.mu.Unlock()

	if err := r.source.Start(s.handleFrame, s.sourceError); err != nil {
		s.mu.Lock()
		s.run = nil
		s.data.Status, s.data.StartedAt = prevStatus, prevStarted
		s.mu.Unlock()
		r.stop(ctx)
		return fmt.Errorf("meeting: start source: %w", err)
	}

	if s.cfg.AutosaveInterval > 0 {
		r.wg.Add(1)
		go s.autosave(r)
	}
	// The meeting is already running; write logs and emits EventError on failure.
	_ = s.save(ctx)
	s.logger.Info("meeting started", "attendees", len(attendees))
	s.emit(Event{Kind: EventMeetingStarted})
	return nil
}

// PauseMeeting suspends recording. Frames keep arriving but are dropped.
// It reports whether the session was active.
func (s *Session) PauseMeeting(ctx context.Context) bool {
	return s.transition(ctx, StatusActive, StatusPaused, EventMeetingPaused)
}

// ResumeMeeting continues a paused meeting. It reports whether the session
// was paused.
func (s *Session) ResumeMeeting(ctx context.Context) bool {
	return s.transition(ctx, StatusPaused, StatusActive, EventMeetingResumed)
}

func (s *Session) transition(ctx context.Context, from, to Status, kind EventKind) bool {
	s.mu.Lock()
	if s.data.Status != from {
		s.mu.Unlock()
		return false
	}
	s.data.Status = to
	s.mu.Unlock()

	_ = s.save(ctx)
	s.logger.Info("meeting status changed", "from", from, "to", to)
	s.emit(Event{Kind: kind})
	return true
}

// EndMeeting stops recording, releases every resource and persists the
// final state, transcript and recording. It may be called in any state and
// more than once; later calls return the first export.
//
// If ctx is done before pending segments are processed, in-flight
// attribution and transcription are cancelled.
func (s *Session) EndMeeting(ctx context.Context) (*Export, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.data.Status == StatusEnded && s.export != nil {
		e := *s.export
		s.mu.Unlock()
		return &e, nil
	}
	enr, r := s.enrollment, s.run
	s.enrollment, s.run = nil, nil
	s.mu.Unlock()

	var errs []error
	if enr != nil {
		enr.cancel()
		<-enr.done
	}
	var recording []byte
	if r != nil {
		errs = append(errs, r.stop(ctx))
		recording = r.takeRecording()
	}

	s.mu.Lock()
	s.data.Status = StatusEnded
	s.data.EndedAt = jsontime.Ptr(s.now())
	export := s.exportLocked()
	s.export = &export
	format := s.cfg.Format
	s.mu.Unlock()

	errs = append(errs, s.saveAll(ctx))
	if len(recording) > 0 {
		errs = append(errs, s.writeWAV(ctx, recordingPath(s.data.ID), format, recording))
	}

	s.logger.Info("meeting ended",
		"duration", export.Session.Duration(),
		"entries", len(export.Transcript),
		"recorded", format.Duration(int64(len(recording))))
	s.emit(Event{Kind: EventMeetingEnded, Export: &export})

	e := export
	return &e, errors.Join(errs...)
}

func (s *Session) exportLocked() Export {
	return Export{
		Session:    s.data.clone(),
		Transcript: append([]TranscriptEntry{}, s.transcript...),
		Duration:   jsontime.Duration(s.data.Duration()),
	}
}

func (s *Session) writeWAV(ctx context.Context, p string, f pcm.Format, data []byte) error {
	w, err := s.store.Write(ctx, p)
	if err != nil {
		return fmt.Errorf("meeting: write %s: %w", p, err)
	}
	if err := wav.Encode(w, f, data); err != nil {
		w.Close()
		return fmt.Errorf("meeting: write %s: %w", p, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("meeting: write %s: %w", p, err)
	}
	s.logger.Debug("audio written", "path", p, "bytes", len(data))
	return nil
}

// stop halts the source, drains the dispatch queue and releases the
// collaborators.
func (r *run) stop(ctx context.Context) error {
	select {
	case <-r.stopAutosave:
	default:
		close(r.stopAutosave)
	}
	var errs []error
	errs = append(errs, r.source.Stop())

	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		r.cancel()
		<-done
	}
	errs = append(errs, r.release())
	return errors.Join(errs...)
}

func (r *run) takeRecording() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

func (s *Session) sourceError(err error) {
	s.logger.Warn("capture error", "error", err)
	s.emit(Event{Kind: EventError, Err: err})
}

// handleFrame runs on the source's delivery goroutine.
func (s *Session) handleFrame(frame []byte) {
	s.mu.Lock()
	r := s.run
	active := s.data.Status == StatusActive
	s.mu.Unlock()
	if r == nil || !active {
		return
	}

	r.mu.Lock()
	r.recording = append(r.recording, frame...)
	r.mu.Unlock()

	samples := pcm.Float32s(frame)
	s.emit(Event{Kind: EventVolumeLevel, Level: pcm.Level(samples)})

	prob, err := r.detector.Process(samples)
	if err != nil {
		s.logger.Warn("activity detection failed", "error", err)
		s.emit(Event{Kind: EventError, Err: fmt.Errorf("meeting: activity detection: %w", err)})
		return
	}
	if float64(prob) >= s.cfg.SpeechThreshold {
		r.appendSpeech(frame, s.now(), s.cfg.MaxSegmentBytes, s.cfg.Format)
		return
	}
	seg, ok := r.takeSegment()
	if !ok {
		return
	}
	if len(seg.data) < s.cfg.minSegmentBytes() {
		s.logger.Debug("segment discarded", "bytes", len(seg.data))
		return
	}
	if !r.enqueue(seg) {
		s.logger.Warn("segment dropped", "bytes", len(seg.data))
		s.emit(Event{Kind: EventError, Err: ErrDispatchQueueFull})
	}
}

// appendSpeech adds frame to the open segment, evicting the oldest audio
// beyond limit.
func (r *run) appendSpeech(frame []byte, now time.Time, limit int, f pcm.Format) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.seg) == 0 {
		r.segAt = now
	}
	r.seg = append(r.seg, frame...)
	if over := len(r.seg) - limit; limit > 0 && over > 0 {
		if rem := over % f.BlockAlign(); rem != 0 {
			over += f.BlockAlign() - rem
		}
		n := copy(r.seg, r.seg[over:])
		r.seg = r.seg[:n]
		r.segAt = r.segAt.Add(f.Duration(int64(over)))
	}
}

func (r *run) takeSegment() (segment, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.seg) == 0 {
		return segment{}, false
	}
	seg := segment{data: r.seg, at: r.segAt}
	r.seg = nil
	return seg, true
}

func (r *run) enqueue(seg segment) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	select {
	case r.queue <- seg:
		return true
	default:
		return false
	}
}

// dispatchLoop attributes and transcribes segments in order.
func (s *Session) dispatchLoop(r *run) {
	defer r.wg.Done()
	var last string
	for seg := range r.queue {
		if r.ctx.Err() != nil {
			continue
		}
		a, err := r.attributor.Identify(r.ctx, seg.data)
		if err != nil {
			s.logger.Warn("speaker attribution failed", "error", err)
			s.emit(Event{Kind: EventError, Err: fmt.Errorf("meeting: attribution: %w", err)})
			continue
		}
		s.logger.Debug("speaker identified",
			"speaker_id", a.SpeakerID, "confidence", a.Confidence, "bytes", len(seg.data))
		s.emit(Event{Kind: EventSpeakerIdentified, Attribution: &a})
		if a.SpeakerID != last {
			last = a.SpeakerID
			s.emit(Event{Kind: EventSpeakerChanged, Attribution: &a})
		}

		if r.transcriber == nil || len(seg.data) < s.cfg.minTranscribeBytes() {
			continue
		}
		entry, err := r.transcriber.Transcribe(r.ctx, seg.data, a)
		if err != nil {
			s.logger.Warn("transcription failed", "speaker_id", a.SpeakerID, "error", err)
			s.emit(Event{Kind: EventTranscriptionError, Err: err})
			continue
		}
		if entry == nil {
			continue
		}
		e := *entry
		if e.Timestamp.IsZero() {
			e.Timestamp = jsontime.FromTime(seg.at)
		}
		s.mu.Lock()
		s.transcript = append(s.transcript, e)
		s.mu.Unlock()
		_ = s.saveTranscript(r.ctx) // reported by write
		s.emit(Event{Kind: EventTranscriptEntry, Entry: &e})
	}
}

// autosave persists the session and transcript on every tick.
func (s *Session) autosave(r *run) {
	defer r.wg.Done()
	t := time.NewTicker(s.cfg.AutosaveInterval)
	defer t.Stop()
	for {
		select {
		case <-r.stopAutosave:
			return
		case <-t.C:
			if err := s.saveAll(r.ctx); err == nil {
				s.logger.Debug("autosaved")
			}
		}
	}
}
