package meeting

import (
	"time"

	"github.com/haivivi/voicefilter/pkg/audio/pcm"
)

// Config holds the session tuning parameters.
type Config struct {
	// Format of captured frames.
	Format pcm.Format

	// SpeechThreshold is the activity probability at or above which a
	// meeting frame counts as speech. It is deliberately permissive so
	// segment boundaries do not clip words.
	SpeechThreshold float64

	// MaxSegmentBytes caps a speech segment; the oldest frames are evicted.
	MaxSegmentBytes int

	// MinSegmentDuration is the shortest segment that is attributed.
	// Shorter ones are treated as noise.
	MinSegmentDuration time.Duration

	// MinTranscribeDuration is the shortest segment that is transcribed.
	MinTranscribeDuration time.Duration

	// TranscriptionEnabled turns transcription on when a transcriber is
	// configured.
	TranscriptionEnabled bool

	// SpeakerIdentificationThreshold is handed to the default attributor.
	SpeakerIdentificationThreshold float64

	// MinEnrollmentDuration is the speech an enrollment collects.
	MinEnrollmentDuration time.Duration

	// EnrollmentSpeechThreshold is the activity probability at or above
	// which an enrollment frame is kept.
	EnrollmentSpeechThreshold float64

	// AutosaveInterval is the period of the unconditional state save.
	AutosaveInterval time.Duration

	// DispatchQueueSize bounds the segments waiting for attribution.
	DispatchQueueSize int
}

// DefaultConfig returns the standard session configuration.
func DefaultConfig() Config {
	return Config{
		Format:                         pcm.L16Mono16K,
		SpeechThreshold:                0.1,
		MaxSegmentBytes:                128000,
		MinSegmentDuration:             500 * time.Millisecond,
		MinTranscribeDuration:          2 * time.Second,
		TranscriptionEnabled:           true,
		SpeakerIdentificationThreshold: 0.65,
		MinEnrollmentDuration:          10 * time.Second,
		EnrollmentSpeechThreshold:      0.5,
		AutosaveInterval:               30 * time.Second,
		DispatchQueueSize:              16,
	}
}

func (c Config) minSegmentBytes() int {
	return int(c.Format.BytesInDuration(c.MinSegmentDuration))
}

func (c Config) minTranscribeBytes() int {
	return int(c.Format.BytesInDuration(c.MinTranscribeDuration))
}
