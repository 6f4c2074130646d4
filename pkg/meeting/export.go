package meeting

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/haivivi/voicefilter/pkg/audio/wav"
)

// Transcript export formats.
const (
	FormatText = "txt"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

type transcriptDoc struct {
	Session    SessionData       `json:"session" yaml:"session"`
	Transcript []TranscriptEntry `json:"transcript" yaml:"transcript"`
}

// ExportTranscript renders the session and its transcript as txt, json or
// yaml.
func (s *Session) ExportTranscript(format string) (string, error) {
	s.mu.Lock()
	doc := transcriptDoc{Session: s.data.clone(), Transcript: nonNil(append([]TranscriptEntry(nil), s.transcript...))}
	s.mu.Unlock()

	switch format {
	case FormatText, "":
		return renderText(doc), nil
	case FormatJSON:
		b, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return "", err
		}
		return string(b), nil
	case FormatYAML:
		b, err := yaml.Marshal(doc)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("meeting: unknown export format %q", format)
	}
}

func renderText(doc transcriptDoc) string {
	var sb strings.Builder
	date := "N/A"
	if doc.Session.StartedAt != nil {
		date = doc.Session.StartedAt.String()
	}
	names := make([]string, len(doc.Session.Attendees))
	for i, a := range doc.Session.Attendees {
		names[i] = fmt.Sprintf("%s (%s)", a.Name, a.Title)
	}
	fmt.Fprintf(&sb, "Meeting: %s\n", doc.Session.Title)
	fmt.Fprintf(&sb, "Date: %s\n", date)
	fmt.Fprintf(&sb, "Attendees: %s\n", strings.Join(names, ", "))
	sb.WriteString("\nTranscript:\n---\n")
	for _, e := range doc.Transcript {
		fmt.Fprintf(&sb, "\n[%s] %s: %s", e.Timestamp.Time().Local().Format("15:04:05"), e.SpeakerName, e.Text)
	}
	return sb.String()
}

// RecordingInfo describes the persisted recording of a session.
type RecordingInfo struct {
	Path     string
	Size     int64 // PCM payload in bytes, header excluded
	Duration time.Duration
}

// Recording reports the recording written by EndMeeting. ok is false when
// the session has no recording.
func (s *Session) Recording(ctx context.Context) (info RecordingInfo, ok bool, err error) {
	p := recordingPath(s.data.ID)
	if ok, err = s.store.Exists(ctx, p); err != nil || !ok {
		return RecordingInfo{}, false, err
	}
	r, err := s.store.Read(ctx, p)
	if err != nil {
		return RecordingInfo{}, false, err
	}
	defer r.Close()

	b := make([]byte, wav.HeaderSize)
	if _, err := io.ReadFull(r, b); err != nil {
		return RecordingInfo{}, false, fmt.Errorf("meeting: read %s: %w", p, err)
	}
	h, err := wav.ParseHeader(b)
	if err != nil {
		return RecordingInfo{}, false, fmt.Errorf("meeting: read %s: %w", p, err)
	}
	info = RecordingInfo{Path: p, Size: int64(h.Subchunk2Size)}
	if h.ByteRate > 0 {
		info.Duration = time.Duration(info.Size) * time.Second / time.Duration(h.ByteRate)
	}
	return info, true, nil
}
