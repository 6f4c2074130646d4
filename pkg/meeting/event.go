package meeting

// EventKind identifies a session notification.
type EventKind int

const (
	EventAttendeeAdded EventKind = iota + 1
	EventAttendeeRemoved
	EventEnrollmentProgress
	EventEnrollmentComplete
	EventEnrollmentCancelled
	EventEnrollmentError
	EventAllEnrolled
	EventMeetingStarted
	EventMeetingPaused
	EventMeetingResumed
	EventMeetingEnded
	EventVolumeLevel
	EventSpeakerIdentified
	EventSpeakerChanged
	EventTranscriptEntry
	EventTranscriptionError
	EventError
)

var eventNames = map[EventKind]string{
	EventAttendeeAdded:       "attendee-added",
	EventAttendeeRemoved:     "attendee-removed",
	EventEnrollmentProgress:  "enrollment-progress",
	EventEnrollmentComplete:  "enrollment-complete",
	EventEnrollmentCancelled: "enrollment-cancelled",
	EventEnrollmentError:     "enrollment-error",
	EventAllEnrolled:         "all-enrolled",
	EventMeetingStarted:      "meeting-started",
	EventMeetingPaused:       "meeting-paused",
	EventMeetingResumed:      "meeting-resumed",
	EventMeetingEnded:        "meeting-ended",
	EventVolumeLevel:         "volume-level",
	EventSpeakerIdentified:   "speaker-identified",
	EventSpeakerChanged:      "speaker-changed",
	EventTranscriptEntry:     "transcript-entry",
	EventTranscriptionError:  "transcription-error",
	EventError:               "error",
}

func (k EventKind) String() string {
	if s, ok := eventNames[k]; ok {
		return s
	}
	return "unknown"
}

// Event is a session notification. Only the fields relevant to Kind are
// set.
type Event struct {
	Kind EventKind

	Attendee    *Attendee           // attendee and enrollment events
	Progress    *EnrollmentProgress // EventEnrollmentProgress
	Level       float64             // EventVolumeLevel
	Attribution *Attribution        // EventSpeakerIdentified, EventSpeakerChanged
	Entry       *TranscriptEntry    // EventTranscriptEntry
	Export      *Export             // EventMeetingEnded
	Err         error               // error events
}

// Observer receives session events. It is called synchronously from the
// goroutine that produced the event (the capture goroutine for frame
// events) and must not block or call back into the session.
type Observer func(Event)
