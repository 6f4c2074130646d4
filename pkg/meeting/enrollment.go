package meeting

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/haivivi/voicefilter/pkg/audio/capture"
	"github.com/haivivi/voicefilter/pkg/audio/pcm"
	"github.com/haivivi/voicefilter/pkg/audio/vad"
	"github.com/haivivi/voicefilter/pkg/jsontime"
)

type enrollState int

const (
	enrollCollecting enrollState = iota
	enrollFinishing
	enrollCancelled
)

// enrollment collects speech from one attendee until enough has been heard,
// then stores it as the attendee's reference recording.
type enrollment struct {
	s        *Session
	ctx      context.Context
	attendee Attendee
	source   capture.Source
	detector vad.Detector
	required int

	// done is closed once the enrollment has finished or been cancelled.
	done chan struct{}

	mu    sync.Mutex
	state enrollState
	buf   []byte
}

// handle runs on the source's delivery goroutine. Frames at or above the
// enrollment threshold are kept.
func (e *enrollment) handle(frame []byte) {
	e.mu.Lock()
	if e.state != enrollCollecting {
		e.mu.Unlock()
		return
	}
	prob, err := e.detector.Process(pcm.Float32s(frame))
	if err != nil {
		e.state = enrollFinishing
		e.mu.Unlock()
		go e.finish(fmt.Errorf("meeting: activity detection: %w", err))
		return
	}
	if float64(prob) < e.s.cfg.EnrollmentSpeechThreshold {
		e.mu.Unlock()
		return
	}
	e.buf = append(e.buf, frame...)
	f := e.s.cfg.Format
	p := EnrollmentProgress{
		AttendeeID: e.attendee.ID,
		Collected:  f.Duration(int64(len(e.buf))),
		Required:   f.Duration(int64(e.required)),
	}
	complete := len(e.buf) >= e.required
	if complete {
		e.state = enrollFinishing
	}
	e.mu.Unlock()

	e.s.emit(Event{Kind: EventEnrollmentProgress, Attendee: &e.attendee, Progress: &p})
	if complete {
		// Stop waits for this goroutine, so finish runs on its own.
		go e.finish(nil)
	}
}

func (e *enrollment) finish(err error) {
	defer close(e.done)
	err = errors.Join(err, e.release())

	a := e.attendee
	if err == nil {
		p := enrollmentPath(e.s.data.ID, a.ID)
		err = e.s.writeWAV(e.ctx, p, e.s.cfg.Format, e.buf)
		if err == nil {
			a.EnrolledAt = jsontime.Ptr(e.s.now())
			a.ProfilePath = p
		}
	}
	e.s.enrollmentDone(e, a, err)
}

// cancel stops collecting. It returns false if the enrollment was already
// finishing.
func (e *enrollment) cancel() bool {
	e.mu.Lock()
	if e.state != enrollCollecting {
		e.mu.Unlock()
		return false
	}
	e.state = enrollCancelled
	e.mu.Unlock()

	if err := e.release(); err != nil {
		e.s.logger.Warn("enrollment release failed", "error", err)
	}
	close(e.done)
	return true
}

func (e *enrollment) release() error {
	return errors.Join(e.source.Stop(), e.detector.Close())
}

// StartEnrollment records a voice sample for the attendee at index. The
// session is enrolling until the sample is complete, after which it returns
// to setup.
func (s *Session) StartEnrollment(ctx context.Context, index int) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	var err error
	switch {
	case index < 0 || index >= len(s.data.Attendees):
		err = ErrInvalidAttendeeIndex
	case s.data.Status == StatusEnded:
		err = ErrEnded
	case s.run != nil:
		err = ErrAlreadyStarted
	case s.enrollment != nil:
		err = ErrEnrolling
	}
	var a Attendee
	if err == nil {
		a = s.data.Attendees[index]
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	det, err := s.newDetector()
	if err != nil {
		return fmt.Errorf("meeting: create detector: %w", err)
	}
	src, err := s.newSource()
	if err != nil {
		det.Close()
		return fmt.Errorf("meeting: create source: %w", err)
	}
	e := &enrollment{
		s:        s,
		ctx:      context.WithoutCancel(ctx),
		attendee: a,
		source:   src,
		detector: det,
		required: int(s.cfg.Format.BytesInDuration(s.cfg.MinEnrollmentDuration)),
		done:     make(chan struct{}),
	}

	s.mu.Lock()
	prevStatus, prevIndex := s.data.Status, s.data.CurrentAttendeeIndex
	s.enrollment = e
	s.data.Status = StatusEnrolling
	s.data.CurrentAttendeeIndex = index
	s.mu.Unlock()

	if err := src.Start(e.handle, s.sourceError); err != nil {
		s.mu.Lock()
		s.enrollment = nil
		s.data.Status, s.data.CurrentAttendeeIndex = prevStatus, prevIndex
		s.mu.Unlock()
		det.Close()
		return fmt.Errorf("meeting: start source: %w", err)
	}
	// The source is already capturing; write logs and emits EventError on failure.
	_ = s.save(ctx)
	s.logger.Info("enrollment started", "attendee_id", a.ID, "name", a.Name)
	return nil
}

// CancelEnrollment abandons the running enrollment without changing the
// attendee. It reports whether an enrollment was cancelled.
func (s *Session) CancelEnrollment(ctx context.Context) bool {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	e := s.enrollment
	s.mu.Unlock()
	if e == nil || !e.cancel() {
		return false
	}

	s.mu.Lock()
	if s.enrollment == e {
		s.enrollment = nil
		s.data.Status = StatusSetup
	}
	s.mu.Unlock()

	_ = s.save(ctx)
	s.logger.Info("enrollment cancelled", "attendee_id", e.attendee.ID)
	s.emit(Event{Kind: EventEnrollmentCancelled, Attendee: &e.attendee})
	return true
}

// enrollmentDone applies the result of a finished enrollment.
func (s *Session) enrollmentDone(e *enrollment, a Attendee, err error) {
	s.mu.Lock()
	if s.enrollment != e {
		s.mu.Unlock()
		return
	}
	s.enrollment = nil
	s.data.Status = StatusSetup
	if err == nil {
		for i := range s.data.Attendees {
			if s.data.Attendees[i].ID == a.ID {
				s.data.Attendees[i] = a
			}
		}
	}
	all := len(s.data.Attendees) > 0 && s.data.EnrolledCount() == len(s.data.Attendees)
	s.mu.Unlock()

	_ = s.save(e.ctx)
	if err != nil {
		s.logger.Error("enrollment failed", "attendee_id", a.ID, "error", err)
		s.emit(Event{Kind: EventEnrollmentError, Attendee: &a, Err: err})
		return
	}
	s.logger.Info("enrollment complete", "attendee_id", a.ID, "name", a.Name)
	s.emit(Event{Kind: EventEnrollmentComplete, Attendee: &a})
	if all {
		s.emit(Event{Kind: EventAllEnrolled})
	}
}
