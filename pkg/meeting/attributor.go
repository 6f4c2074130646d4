package meeting

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/haivivi/voicefilter/pkg/audio/pcm"
	"github.com/haivivi/voicefilter/pkg/audio/wav"
	"github.com/haivivi/voicefilter/pkg/storage"
	"github.com/haivivi/voicefilter/pkg/transcribe"
	"github.com/haivivi/voicefilter/pkg/voiceprint"
)

// Attributor decides which attendee spoke a segment.
type Attributor interface {
	// LoadProfiles prepares the enrolled attendees, whose enrollment audio
	// is read from store.
	LoadProfiles(ctx context.Context, attendees []Attendee, store storage.FileStore) error

	// Identify attributes a segment of PCM audio.
	Identify(ctx context.Context, segment []byte) (Attribution, error)

	Close() error
}

// Transcriber turns an attributed segment into a transcript entry. A nil
// entry with a nil error means there was nothing to transcribe.
type Transcriber interface {
	Transcribe(ctx context.Context, segment []byte, a Attribution) (*TranscriptEntry, error)
	Close() error
}

// VoiceprintAttributor attributes segments with a voiceprint.Identifier
// built from the attendees' enrollment recordings.
type VoiceprintAttributor struct {
	id     *voiceprint.Identifier
	logger *slog.Logger
}

// NewVoiceprintAttributor creates an attributor that reports unknown below
// threshold.
func NewVoiceprintAttributor(threshold float64, logger *slog.Logger) *VoiceprintAttributor {
	if logger == nil {
		logger = slog.Default()
	}
	return &VoiceprintAttributor{id: voiceprint.NewIdentifier(threshold), logger: logger}
}

// LoadProfiles enrolls every attendee that has an enrollment recording.
// Attendees without one cannot be recognized and are skipped.
func (v *VoiceprintAttributor) LoadProfiles(ctx context.Context, attendees []Attendee, store storage.FileStore) error {
	v.id.Reset()
	for _, a := range attendees {
		if !a.Enrolled() || a.ProfilePath == "" {
			v.logger.Debug("attendee has no enrollment recording", "attendee_id", a.ID, "name", a.Name)
			continue
		}
		b, err := storage.ReadFile(ctx, store, a.ProfilePath)
		if err != nil {
			return fmt.Errorf("meeting: load profile of %s: %w", a.Name, err)
		}
		data, f, err := wav.Decode(b)
		if err != nil {
			return fmt.Errorf("meeting: decode profile of %s: %w", a.Name, err)
		}
		if f.SampleRate() != v.id.SampleRate() {
			return fmt.Errorf("meeting: profile of %s is %d Hz, want %d Hz", a.Name, f.SampleRate(), v.id.SampleRate())
		}
		v.id.Enroll(a.ID, a.Name, pcm.Float32s(data))
	}
	v.logger.Debug("attendee profiles loaded", "count", v.id.Len())
	return nil
}

func (v *VoiceprintAttributor) Identify(_ context.Context, segment []byte) (Attribution, error) {
	m := v.id.Identify(pcm.Float32s(segment))
	return Attribution{SpeakerID: m.SpeakerID, SpeakerName: m.SpeakerName, Confidence: m.Confidence}, nil
}

func (v *VoiceprintAttributor) Close() error {
	v.id.Reset()
	return nil
}

// TextTranscriber adapts a transcribe.Transcriber to the session. Entries
// are left without a timestamp; the session stamps them with the segment's
// capture time.
type TextTranscriber struct {
	backend transcribe.Transcriber
	format  pcm.Format
}

// NewTextTranscriber wraps backend for audio in format.
func NewTextTranscriber(backend transcribe.Transcriber, format pcm.Format) *TextTranscriber {
	return &TextTranscriber{backend: backend, format: format}
}

func (t *TextTranscriber) Transcribe(ctx context.Context, segment []byte, a Attribution) (*TranscriptEntry, error) {
	text, err := t.backend.Transcribe(ctx, segment, t.format)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}
	return &TranscriptEntry{
		SpeakerID:   a.SpeakerID,
		SpeakerName: a.SpeakerName,
		Confidence:  a.Confidence,
		Text:        text,
	}, nil
}

func (t *TextTranscriber) Close() error {
	return nil
}
