package voiceprint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/voicefilter/pkg/audio/pcm"
	"github.com/haivivi/voicefilter/pkg/audio/wav"
	"github.com/haivivi/voicefilter/pkg/kv"
)

// Profile is an enrolled speaker.
type Profile struct {
	SpeakerID  string    `msgpack:"speaker_id" json:"speaker_id" yaml:"speaker_id"`
	Name       string    `msgpack:"name" json:"name" yaml:"name"`
	EnrolledAt time.Time `msgpack:"enrolled_at" json:"enrolled_at" yaml:"enrolled_at"`

	// AudioPath is the WAV file holding the enrollment sample.
	AudioPath string `msgpack:"audio_path" json:"audio_path" yaml:"audio_path"`
}

// ProfileStore persists enrolled speaker profiles.
type ProfileStore interface {
	// Get returns ErrProfileNotFound if the speaker is not enrolled.
	Get(ctx context.Context, speakerID string) (*Profile, error)
	Put(ctx context.Context, p *Profile) error
	Delete(ctx context.Context, speakerID string) error
	List(ctx context.Context) ([]*Profile, error)
}

// Profiles is a ProfileStore over a kv.Store, one msgpack record per
// speaker under "profile:<speaker id>".
type Profiles struct {
	store kv.Store
}

// NewProfiles wraps store.
func NewProfiles(store kv.Store) *Profiles {
	return &Profiles{store: store}
}

func profileKey(id string) kv.Key {
	return kv.Key{"profile", id}
}

func (p *Profiles) Get(ctx context.Context, speakerID string) (*Profile, error) {
	b, err := p.store.Get(ctx, profileKey(speakerID))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, speakerID)
	}
	if err != nil {
		return nil, fmt.Errorf("voiceprint: get profile %s: %w", speakerID, err)
	}
	var prof Profile
	if err := msgpack.Unmarshal(b, &prof); err != nil {
		return nil, fmt.Errorf("voiceprint: decode profile %s: %w", speakerID, err)
	}
	return &prof, nil
}

func (p *Profiles) Put(ctx context.Context, prof *Profile) error {
	if prof.SpeakerID == "" {
		return errors.New("voiceprint: profile has no speaker id")
	}
	b, err := msgpack.Marshal(prof)
	if err != nil {
		return fmt.Errorf("voiceprint: encode profile: %w", err)
	}
	return p.store.Set(ctx, profileKey(prof.SpeakerID), b)
}

func (p *Profiles) Delete(ctx context.Context, speakerID string) error {
	return p.store.Delete(ctx, profileKey(speakerID))
}

func (p *Profiles) List(ctx context.Context) ([]*Profile, error) {
	var out []*Profile
	for e, err := range p.store.List(ctx, kv.Key{"profile"}) {
		if err != nil {
			return nil, err
		}
		var prof Profile
		if err := msgpack.Unmarshal(e.Value, &prof); err != nil {
			return nil, fmt.Errorf("voiceprint: decode profile %s: %w", e.Key, err)
		}
		out = append(out, &prof)
	}
	return out, nil
}

var _ ProfileStore = (*Profiles)(nil)

// LoadSamples reads a 16-bit PCM WAV file as normalized samples and checks
// that it matches sampleRate.
func LoadSamples(path string, sampleRate int) ([]float32, error) {
	data, f, err := wav.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if f.SampleRate() != sampleRate {
		return nil, fmt.Errorf("voiceprint: %s is %d Hz, want %d Hz", path, f.SampleRate(), sampleRate)
	}
	return pcm.Float32s(data), nil
}
