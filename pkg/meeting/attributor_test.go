package meeting

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/haivivi/voicefilter/pkg/audio/pcm"
	"github.com/haivivi/voicefilter/pkg/audio/wav"
	"github.com/haivivi/voicefilter/pkg/jsontime"
	"github.com/haivivi/voicefilter/pkg/storage"
	"github.com/haivivi/voicefilter/pkg/transcribe"
)

func repeat(frame []byte, n int) []byte {
	var out []byte
	for range n {
		out = append(out, frame...)
	}
	return out
}

func TestVoiceprintAttributor(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	write := func(p string, f pcm.Format, data []byte) {
		if err := storage.WriteFile(ctx, store, p, wav.Bytes(f, data)); err != nil {
			t.Fatal(err)
		}
	}
	write("a.wav", pcm.L16Mono16K, repeat(toneFrame(16), 10))
	write("b.wav", pcm.L16Mono16K, repeat(toneFrame(8), 10))

	enrolled := jsontime.Ptr(newFakeClock().Now())
	attendees := []Attendee{
		{ID: "a", Name: "Alice", EnrolledAt: enrolled, ProfilePath: "a.wav"},
		{ID: "b", Name: "Bob", EnrolledAt: enrolled, ProfilePath: "b.wav"},
		{ID: "h", Name: "Host", EnrolledAt: enrolled},
		{ID: "g", Name: "Guest"},
	}

	v := NewVoiceprintAttributor(0.65, nil)
	defer v.Close()
	if err := v.LoadProfiles(ctx, attendees, store); err != nil {
		t.Fatal(err)
	}
	if v.id.Len() != 2 {
		t.Fatalf("enrolled %d profiles", v.id.Len())
	}
	got, err := v.Identify(ctx, repeat(toneFrame(8), 5))
	if err != nil {
		t.Fatal(err)
	}
	if got.SpeakerID != "b" || got.SpeakerName != "Bob" {
		t.Errorf("Identify = %+v", got)
	}

	write("c.wav", pcm.L16Mono24K, repeat(toneFrame(16), 10))
	err = v.LoadProfiles(ctx, []Attendee{{ID: "c", Name: "Carol", EnrolledAt: enrolled, ProfilePath: "c.wav"}}, store)
	if err == nil {
		t.Error("24 kHz profile accepted")
	}
	err = v.LoadProfiles(ctx, []Attendee{{ID: "d", Name: "Dan", EnrolledAt: enrolled, ProfilePath: "missing.wav"}}, store)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing profile err = %v", err)
	}
}

func TestVoiceprintAttributorUnknown(t *testing.T) {
	v := NewVoiceprintAttributor(0.65, nil)
	got, err := v.Identify(context.Background(), repeat(toneFrame(16), 5))
	if err != nil {
		t.Fatal(err)
	}
	if got.SpeakerID != "unknown" {
		t.Errorf("Identify without profiles = %+v", got)
	}
}

func TestTextTranscriber(t *testing.T) {
	var gotFormat pcm.Format
	backend := transcribe.Func(func(_ context.Context, audio []byte, f pcm.Format) (string, error) {
		gotFormat = f
		switch len(audio) {
		case 2:
			return "", nil
		case 4:
			return "", errBoom
		}
		return "hello there", nil
	})
	tr := NewTextTranscriber(backend, pcm.L16Mono16K)
	a := Attribution{SpeakerID: "a", SpeakerName: "Alice", Confidence: 0.8}
	ctx := context.Background()

	e, err := tr.Transcribe(ctx, make([]byte, 8), a)
	if err != nil {
		t.Fatal(err)
	}
	if e == nil || e.Text != "hello there" || e.SpeakerName != "Alice" || e.Confidence != 0.8 || !e.Timestamp.IsZero() {
		t.Errorf("entry = %+v", e)
	}
	if gotFormat != pcm.L16Mono16K {
		t.Errorf("format = %v", gotFormat)
	}
	if e, err := tr.Transcribe(ctx, make([]byte, 2), a); e != nil || err != nil {
		t.Errorf("empty text = %+v, %v", e, err)
	}
	if _, err := tr.Transcribe(ctx, make([]byte, 4), a); !errors.Is(err, errBoom) {
		t.Errorf("err = %v", err)
	}
}
