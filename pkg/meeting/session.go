package meeting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haivivi/voicefilter/pkg/audio/capture"
	"github.com/haivivi/voicefilter/pkg/audio/vad"
	"github.com/haivivi/voicefilter/pkg/jsontime"
	"github.com/haivivi/voicefilter/pkg/storage"
)

const sessionsDir = "sessions"

// Option configures a Session.
type Option func(*Session)

// WithConfig replaces the session configuration.
func WithConfig(cfg Config) Option {
	return func(s *Session) { s.cfg = cfg }
}

// WithSource sets the factory for frame sources. It is called once per
// enrollment and once per StartMeeting.
func WithSource(fn func() (capture.Source, error)) Option {
	return func(s *Session) { s.newSource = fn }
}

// WithDetector sets the factory for activity detectors.
// The default is an RMS energy detector.
func WithDetector(fn func() (vad.Detector, error)) Option {
	return func(s *Session) { s.newDetector = fn }
}

// WithAttributor sets the factory for speaker attributors.
// The default is a VoiceprintAttributor.
func WithAttributor(fn func() (Attributor, error)) Option {
	return func(s *Session) { s.newAttributor = fn }
}

// WithTranscriber sets the factory for transcribers. Without one, segments
// are attributed but not transcribed.
func WithTranscriber(fn func() (Transcriber, error)) Option {
	return func(s *Session) { s.newTranscriber = fn }
}

// WithObserver registers an event observer.
func WithObserver(fn Observer) Option {
	return func(s *Session) { s.observe = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCalendar links the session to a calendar event.
func WithCalendar(link CalendarLink) Option {
	return func(s *Session) {
		l := link
		s.data.Calendar = &l
	}
}

// Session is a meeting recording session. Its methods are safe for
// concurrent use; frames must be delivered one at a time by the source.
type Session struct {
	store  storage.FileStore
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	newSource      func() (capture.Source, error)
	newDetector    func() (vad.Detector, error)
	newAttributor  func() (Attributor, error)
	newTranscriber func() (Transcriber, error)
	observe        Observer

	// opMu serializes lifecycle operations (enrollment, start, end).
	opMu sync.Mutex

	mu         sync.Mutex
	data       SessionData
	transcript []TranscriptEntry
	enrollment *enrollment
	run        *run
	export     *Export

	// saveMu orders writes so a stale snapshot never overwrites a newer one.
	saveMu sync.Mutex
}

func newSession(store storage.FileStore, data SessionData, opts []Option) *Session {
	s := &Session{
		store:  store,
		cfg:    DefaultConfig(),
		logger: slog.Default(),
		now:    time.Now,
		data:   data,
		newDetector: func() (vad.Detector, error) {
			return vad.NewEnergy(), nil
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.newAttributor == nil {
		s.newAttributor = func() (Attributor, error) {
			return NewVoiceprintAttributor(s.cfg.SpeakerIdentificationThreshold, s.logger), nil
		}
	}
	if s.newSource == nil {
		s.newSource = func() (capture.Source, error) {
			return capture.NewPortAudio(s.cfg.Format, capture.WithLogger(s.logger)), nil
		}
	}
	s.logger = s.logger.With("session_id", s.data.ID)
	return s
}

// New creates a session and persists its initial state.
func New(ctx context.Context, store storage.FileStore, title string, opts ...Option) (*Session, error) {
	s := newSession(store, SessionData{
		ID:        uuid.NewString(),
		Title:     title,
		Attendees: []Attendee{},
		Status:    StatusSetup,
	}, opts)
	if err := s.save(ctx); err != nil {
		return nil, err
	}
	s.logger.Info("session created", "title", title)
	return s, nil
}

// CalendarEvent describes a scheduled meeting to create a session from.
type CalendarEvent struct {
	Link          CalendarLink
	Title         string
	AttendeeNames []string
}

// FromCalendarEvent creates a session linked to ev with one attendee per
// name, titled "Attendee".
func FromCalendarEvent(ctx context.Context, store storage.FileStore, ev CalendarEvent, opts ...Option) (*Session, error) {
	s, err := New(ctx, store, ev.Title, append(opts, WithCalendar(ev.Link))...)
	if err != nil {
		return nil, err
	}
	for _, name := range ev.AttendeeNames {
		if _, err := s.AddAttendee(ctx, name, "Attendee"); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Load restores a persisted session. No resources are opened until
// StartMeeting or StartEnrollment.
func Load(ctx context.Context, store storage.FileStore, id string, opts ...Option) (*Session, error) {
	var data SessionData
	if err := readJSON(ctx, store, sessionPath(id), &data); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	var transcript []TranscriptEntry
	if err := readJSON(ctx, store, transcriptPath(id), &transcript); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	s := newSession(store, data, opts)
	s.transcript = transcript
	if data.Status == StatusEnded {
		export := s.exportLocked()
		s.export = &export
	}
	return s, nil
}

// List returns every persisted session.
func List(ctx context.Context, store storage.FileStore) ([]SessionData, error) {
	paths, err := store.List(ctx, sessionsDir)
	if err != nil {
		return nil, err
	}
	var out []SessionData
	for _, p := range paths {
		if path.Base(p) != "session.json" || strings.Count(p, "/") != 2 {
			continue
		}
		var d SessionData
		if err := readJSON(ctx, store, p, &d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// AttendeeOption configures an attendee added with AddAttendee.
type AttendeeOption func(*Attendee, time.Time)

// AsHost marks the attendee enrolled at creation time. The host does not
// record an enrollment sample.
func AsHost() AttendeeOption {
	return func(a *Attendee, now time.Time) {
		a.EnrolledAt = jsontime.Ptr(now)
	}
}

// AddAttendee appends an attendee to the roster.
func (s *Session) AddAttendee(ctx context.Context, name, title string, opts ...AttendeeOption) (Attendee, error) {
	a := Attendee{ID: uuid.NewString(), Name: name, Title: title}
	for _, opt := range opts {
		opt(&a, s.now())
	}
	s.mu.Lock()
	if s.data.Status == StatusEnded {
		s.mu.Unlock()
		return Attendee{}, ErrEnded
	}
	s.data.Attendees = append(s.data.Attendees, a)
	s.mu.Unlock()

	err := s.save(ctx)
	s.emit(Event{Kind: EventAttendeeAdded, Attendee: &a})
	return a, err
}

// RemoveAttendee removes the attendee with id. It reports whether the
// attendee was found.
func (s *Session) RemoveAttendee(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	idx := -1
	for i, a := range s.data.Attendees {
		if a.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false, nil
	}
	removed := s.data.Attendees[idx]
	s.data.Attendees = append(s.data.Attendees[:idx:idx], s.data.Attendees[idx+1:]...)
	s.mu.Unlock()

	err := s.save(ctx)
	s.emit(Event{Kind: EventAttendeeRemoved, Attendee: &removed})
	return true, err
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.data.ID
}

// Dir returns the storage directory of the session.
func (s *Session) Dir() string {
	return sessionDir(s.data.ID)
}

// Status returns the lifecycle status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Status
}

// Data returns a snapshot of the session state.
func (s *Session) Data() SessionData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.clone()
}

// Transcript returns a copy of the transcript.
func (s *Session) Transcript() []TranscriptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TranscriptEntry(nil), s.transcript...)
}

// CalendarInfo returns the calendar link, if any.
func (s *Session) CalendarInfo() (CalendarLink, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.Calendar == nil {
		return CalendarLink{}, false
	}
	return *s.data.Calendar, true
}

func sessionDir(id string) string      { return path.Join(sessionsDir, id) }
func sessionPath(id string) string     { return path.Join(sessionsDir, id, "session.json") }
func transcriptPath(id string) string  { return path.Join(sessionsDir, id, "transcript.json") }
func recordingPath(id string) string   { return path.Join(sessionsDir, id, "recording.wav") }
func enrollmentPath(id, attendee string) string {
	return path.Join(sessionsDir, id, "attendees", attendee, "enrollment.wav")
}

// save writes the session document.
func (s *Session) save(ctx context.Context) error {
	return s.persist(ctx, false)
}

// saveAll writes the session and transcript documents.
func (s *Session) saveAll(ctx context.Context) error {
	return s.persist(ctx, true)
}

func (s *Session) saveTranscript(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	s.mu.Lock()
	b, err := json.MarshalIndent(nonNil(s.transcript), "", "  ")
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.write(ctx, transcriptPath(s.data.ID), b)
}

func (s *Session) persist(ctx context.Context, withTranscript bool) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	sess, err := json.MarshalIndent(s.data, "", "  ")
	var tr []byte
	if err == nil && withTranscript {
		tr, err = json.MarshalIndent(nonNil(s.transcript), "", "  ")
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if err := s.write(ctx, sessionPath(s.data.ID), sess); err != nil {
		return err
	}
	if withTranscript {
		return s.write(ctx, transcriptPath(s.data.ID), tr)
	}
	return nil
}

func (s *Session) write(ctx context.Context, p string, b []byte) error {
	if err := storage.WriteFile(ctx, s.store, p, b); err != nil {
		err = fmt.Errorf("meeting: save %s: %w", p, err)
		s.logger.Error("save failed", "path", p, "error", err)
		s.emit(Event{Kind: EventError, Err: err})
		return err
	}
	return nil
}

func nonNil(t []TranscriptEntry) []TranscriptEntry {
	if t == nil {
		return []TranscriptEntry{}
	}
	return t
}

func readJSON(ctx context.Context, store storage.FileStore, p string, v any) error {
	b, err := storage.ReadFile(ctx, store, p)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("meeting: decode %s: %w", p, err)
	}
	return nil
}

func (s *Session) emit(e Event) {
	if s.observe != nil {
		s.observe(e)
	}
}
