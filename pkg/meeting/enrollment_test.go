package meeting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haivivi/voicefilter/pkg/audio/wav"
)

func enrollConfig(c *Config) { c.MinEnrollmentDuration = time.Second }

func (h *harness) addGuests(names ...string) []Attendee {
	h.t.Helper()
	var out []Attendee
	for _, n := range names {
		a, err := h.s.AddAttendee(context.Background(), n, "Guest")
		if err != nil {
			h.t.Fatal(err)
		}
		out = append(out, a)
	}
	return out
}

func TestEnrollment(t *testing.T) {
	h := newHarness(t, enrollConfig)
	guests := h.addGuests("Alice", "Bob")
	ctx := context.Background()

	if err := h.s.StartEnrollment(ctx, 0); err != nil {
		t.Fatal(err)
	}
	if d := h.s.Data(); d.Status != StatusEnrolling || d.CurrentAttendeeIndex != 0 {
		t.Fatalf("data = %+v", d)
	}

	h.feed(silenceFrame(), 3)
	if n := h.rec.count(EventEnrollmentProgress); n != 0 {
		t.Fatalf("progress on silence: %d", n)
	}
	h.feed(speechFrame(), 10)
	done := h.rec.wait(t, EventEnrollmentComplete)

	if done.Attendee.ID != guests[0].ID || !done.Attendee.Enrolled() {
		t.Errorf("completed attendee = %+v", done.Attendee)
	}
	a := h.s.Data().Attendees[0]
	if want := enrollmentPath(h.s.ID(), a.ID); a.ProfilePath != want {
		t.Errorf("ProfilePath = %q, want %q", a.ProfilePath, want)
	}
	if h.s.Status() != StatusSetup {
		t.Errorf("status = %v", h.s.Status())
	}
	data, _, err := wav.Decode(mustRead(t, h.store, a.ProfilePath))
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 10*frameBytes {
		t.Errorf("enrollment audio = %d bytes", len(data))
	}

	progress := h.rec.of(EventEnrollmentProgress)
	if len(progress) != 10 || progress[9].Progress.Fraction() != 1 {
		t.Errorf("progress events = %d", len(progress))
	}
	if h.source().stopCount() != 1 {
		t.Error("enrollment source not stopped")
	}
	if h.rec.count(EventAllEnrolled) != 0 {
		t.Error("all-enrolled fired early")
	}

	if err := h.s.StartEnrollment(ctx, 1); err != nil {
		t.Fatal(err)
	}
	h.feed(speechFrame(), 10)
	h.rec.wait(t, EventAllEnrolled)
	if got := h.s.Data().EnrolledCount(); got != 2 {
		t.Errorf("enrolled = %d", got)
	}
}

func TestEnrollmentInvalidIndex(t *testing.T) {
	h := newHarness(t, enrollConfig)
	h.addGuests("Alice")
	for _, idx := range []int{-1, 1, 5} {
		if err := h.s.StartEnrollment(context.Background(), idx); !errors.Is(err, ErrInvalidAttendeeIndex) {
			t.Errorf("index %d: err = %v", idx, err)
		}
	}
	if h.s.Status() != StatusSetup || h.sourceCount() != 0 {
		t.Errorf("status=%v sources=%d", h.s.Status(), h.sourceCount())
	}
}

func TestEnrollmentExclusive(t *testing.T) {
	h := newHarness(t, enrollConfig)
	h.addHosts(2)
	h.addGuests("Carol")
	ctx := context.Background()

	if err := h.s.StartEnrollment(ctx, 2); err != nil {
		t.Fatal(err)
	}
	if err := h.s.StartEnrollment(ctx, 0); !errors.Is(err, ErrEnrolling) {
		t.Errorf("second enrollment err = %v", err)
	}
	if err := h.s.StartMeeting(ctx); !errors.Is(err, ErrEnrolling) {
		t.Errorf("start during enrollment err = %v", err)
	}
}

func TestStartEnrollmentSaveFailureIsReported(t *testing.T) {
	h := newHarness(t, enrollConfig)
	h.addGuests("Alice")
	ctx := context.Background()

	h.store.failing.Store(true)
	if err := h.s.StartEnrollment(ctx, 0); err != nil {
		t.Fatal(err)
	}
	if h.s.Status() != StatusEnrolling {
		t.Fatalf("status = %v", h.s.Status())
	}
	if e := h.rec.wait(t, EventError); !errors.Is(e.Err, errBoom) {
		t.Errorf("error = %v", e.Err)
	}
	h.store.failing.Store(false)
	h.s.CancelEnrollment(ctx)
}

func TestCancelEnrollment(t *testing.T) {
	h := newHarness(t, enrollConfig)
	h.addGuests("Alice")
	ctx := context.Background()

	if h.s.CancelEnrollment(ctx) {
		t.Error("cancelled without an enrollment")
	}
	if err := h.s.StartEnrollment(ctx, 0); err != nil {
		t.Fatal(err)
	}
	h.feed(speechFrame(), 3)
	src := h.source()
	if !h.s.CancelEnrollment(ctx) {
		t.Fatal("CancelEnrollment = false")
	}
	if h.s.Status() != StatusSetup {
		t.Errorf("status = %v", h.s.Status())
	}
	if src.stopCount() != 1 {
		t.Error("source not stopped")
	}
	src.push(speechFrame())
	if n := h.rec.count(EventEnrollmentProgress); n != 3 {
		t.Errorf("progress after cancel: %d", n)
	}
	if a := h.s.Data().Attendees[0]; a.Enrolled() || a.ProfilePath != "" {
		t.Errorf("attendee mutated: %+v", a)
	}
	if h.rec.count(EventEnrollmentCancelled) != 1 {
		t.Error("no enrollment-cancelled event")
	}
	if h.s.CancelEnrollment(ctx) {
		t.Error("second cancel succeeded")
	}
}

func TestEndMeetingDuringEnrollment(t *testing.T) {
	h := newHarness(t, enrollConfig)
	h.addGuests("Alice")
	if err := h.s.StartEnrollment(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
	h.feed(speechFrame(), 3)
	export := h.end()
	if export.Session.Status != StatusEnded || export.Session.Attendees[0].Enrolled() {
		t.Errorf("export = %+v", export.Session)
	}
	if h.source().stopCount() != 1 {
		t.Error("enrollment source not stopped")
	}
	if h.rec.count(EventEnrollmentComplete) != 0 {
		t.Error("enrollment completed after end")
	}
}

func TestEnrolledVoicesAreAttributed(t *testing.T) {
	h := newHarness(t, enrollConfig, WithAttributor(func() (Attributor, error) {
		return NewVoiceprintAttributor(0.65, nil), nil
	}))
	guests := h.addGuests("Alice", "Bob")
	voices := [][]byte{toneFrame(16), toneFrame(8)}
	ctx := context.Background()

	for i := range guests {
		if err := h.s.StartEnrollment(ctx, i); err != nil {
			t.Fatal(err)
		}
		h.feed(voices[i], 10)
		h.rec.waitN(t, EventEnrollmentComplete, i+1)
	}
	h.rec.wait(t, EventAllEnrolled)

	h.start()
	h.feed(voices[1], 10)
	h.feed(silenceFrame(), 1)
	h.feed(voices[0], 10)
	h.feed(silenceFrame(), 1)
	h.end()

	ids := h.rec.of(EventSpeakerIdentified)
	if len(ids) != 2 {
		t.Fatalf("identified %d segments", len(ids))
	}
	if got := ids[0].Attribution; got.SpeakerID != guests[1].ID || got.SpeakerName != "Bob" {
		t.Errorf("first segment = %+v", got)
	}
	if got := ids[1].Attribution; got.SpeakerID != guests[0].ID || got.Confidence < 0.65 {
		t.Errorf("second segment = %+v", got)
	}
	if h.rec.count(EventSpeakerChanged) != 2 {
		t.Errorf("speaker changes = %d", h.rec.count(EventSpeakerChanged))
	}
}
