// Package meeting records multi-attendee meetings with per-turn speaker
// attribution.
//
// A Session moves through
//
//	setup → enrolling → setup (once per attendee) → active ⇄ paused → ended
//
// During setup each attendee reads aloud while an enrollment captures a
// reference sample of their voice. Once at least two attendees are enrolled
// StartMeeting opens the microphone. Every frame is kept for the final
// recording; frames the activity detector scores as speech accumulate into
// a segment which is attributed to an attendee, and transcribed when long
// enough, after the speaker falls silent.
//
// Session state and the transcript are persisted under
// sessions/<id>/ in a storage.FileStore on every mutation and on a timer:
//
//	sessions/<id>/session.json
//	sessions/<id>/transcript.json
//	sessions/<id>/attendees/<attendee-id>/enrollment.wav
//	sessions/<id>/recording.wav   (written by EndMeeting)
package meeting

import (
	"errors"
	"time"

	"github.com/haivivi/voicefilter/pkg/jsontime"
)

// Sentinel errors.
var (
	ErrInvalidAttendeeIndex = errors.New("meeting: invalid attendee index")
	ErrNotEnoughEnrolled    = errors.New("meeting: at least 2 attendees must be enrolled to start a meeting")
	ErrAlreadyStarted       = errors.New("meeting: already started")
	ErrEnrolling            = errors.New("meeting: enrollment in progress")
	ErrEnded                = errors.New("meeting: session has ended")
	ErrNotFound             = errors.New("meeting: session not found")
	ErrDispatchQueueFull    = errors.New("meeting: dispatch queue full, segment dropped")
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusSetup     Status = "setup"
	StatusEnrolling Status = "enrolling"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusEnded     Status = "ended"
)

// Attendee is a meeting participant.
type Attendee struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Title string `json:"title" yaml:"title"`

	// EnrolledAt is nil until the attendee's voice has been enrolled.
	EnrolledAt *jsontime.Milli `json:"enrolled_at" yaml:"enrolled_at"`

	// ProfilePath is the storage path of the enrollment WAV. Empty for
	// attendees marked enrolled without a sample, such as the host.
	ProfilePath string `json:"profile_path,omitempty" yaml:"profile_path,omitempty"`
}

// Enrolled reports whether the attendee has an enrollment timestamp.
func (a Attendee) Enrolled() bool {
	return a.EnrolledAt != nil
}

// CalendarLink ties a session to a calendar event.
type CalendarLink struct {
	EventID        string          `json:"event_id" yaml:"event_id"`
	Provider       string          `json:"provider" yaml:"provider"`
	ScheduledStart *jsontime.Milli `json:"scheduled_start,omitempty" yaml:"scheduled_start,omitempty"`
	ScheduledEnd   *jsontime.Milli `json:"scheduled_end,omitempty" yaml:"scheduled_end,omitempty"`
	MeetingURL     string          `json:"meeting_url,omitempty" yaml:"meeting_url,omitempty"`
}

// SessionData is the persisted session state.
type SessionData struct {
	ID                   string          `json:"id" yaml:"id"`
	Title                string          `json:"title" yaml:"title"`
	Attendees            []Attendee      `json:"attendees" yaml:"attendees"`
	Status               Status          `json:"status" yaml:"status"`
	StartedAt            *jsontime.Milli `json:"started_at" yaml:"started_at"`
	EndedAt              *jsontime.Milli `json:"ended_at" yaml:"ended_at"`
	CurrentAttendeeIndex int             `json:"current_attendee_index" yaml:"current_attendee_index"`
	Calendar             *CalendarLink   `json:"calendar,omitempty" yaml:"calendar,omitempty"`
}

// clone returns a deep copy safe to hand to callers.
func (d SessionData) clone() SessionData {
	d.Attendees = append([]Attendee(nil), d.Attendees...)
	if d.Calendar != nil {
		c := *d.Calendar
		d.Calendar = &c
	}
	return d
}

// EnrolledCount returns how many attendees are enrolled.
func (d SessionData) EnrolledCount() int {
	n := 0
	for _, a := range d.Attendees {
		if a.Enrolled() {
			n++
		}
	}
	return n
}

// Duration returns EndedAt-StartedAt, or zero if either is unset.
func (d SessionData) Duration() time.Duration {
	if d.StartedAt == nil || d.EndedAt == nil {
		return 0
	}
	return d.EndedAt.Sub(*d.StartedAt)
}

// Attribution names the attendee a segment was attributed to.
type Attribution struct {
	SpeakerID   string  `json:"speaker_id" yaml:"speaker_id"`
	SpeakerName string  `json:"speaker_name" yaml:"speaker_name"`
	Confidence  float64 `json:"confidence" yaml:"confidence"`
}

// TranscriptEntry is one transcribed speech segment.
type TranscriptEntry struct {
	Timestamp   jsontime.Milli `json:"timestamp" yaml:"timestamp"`
	SpeakerID   string         `json:"speaker_id" yaml:"speaker_id"`
	SpeakerName string         `json:"speaker_name" yaml:"speaker_name"`
	Confidence  float64        `json:"confidence" yaml:"confidence"`
	Text        string         `json:"text" yaml:"text"`
}

// Export is the result of EndMeeting.
type Export struct {
	Session    SessionData       `json:"session" yaml:"session"`
	Transcript []TranscriptEntry `json:"transcript" yaml:"transcript"`
	Duration   jsontime.Duration `json:"duration" yaml:"duration"`
}

// EnrollmentProgress reports how much speech an enrollment has collected.
type EnrollmentProgress struct {
	AttendeeID string
	Collected  time.Duration
	Required   time.Duration
}

// Fraction returns the completed share in [0, 1].
func (p EnrollmentProgress) Fraction() float64 {
	if p.Required <= 0 {
		return 1
	}
	return min(1, float64(p.Collected)/float64(p.Required))
}
