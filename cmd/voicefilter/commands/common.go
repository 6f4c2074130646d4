package commands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/haivivi/voicefilter/pkg/audio/capture"
	"github.com/haivivi/voicefilter/pkg/audio/pcm"
	"github.com/haivivi/voicefilter/pkg/audio/resampler"
	"github.com/haivivi/voicefilter/pkg/audio/wav"
	"github.com/haivivi/voicefilter/pkg/cli"
	"github.com/haivivi/voicefilter/pkg/kv"
	"github.com/haivivi/voicefilter/pkg/meeting"
	"github.com/haivivi/voicefilter/pkg/storage"
	"github.com/haivivi/voicefilter/pkg/transcribe"
	"github.com/haivivi/voicefilter/pkg/voiceprint"
)

// profileDB is an open profile database.
type profileDB struct {
	*voiceprint.Profiles
	db *kv.Badger
}

func (p *profileDB) Close() error {
	return p.db.Close()
}

// openProfiles opens the speaker profile database of the context.
func openProfiles(paths *cli.Paths) (*profileDB, error) {
	if err := paths.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := kv.OpenBadger(kv.BadgerOptions{
		Dir:    paths.ProfilesDir(),
		Logger: slog.Default(),
	})
	if err != nil {
		return nil, err
	}
	return &profileDB{Profiles: voiceprint.NewProfiles(db), db: db}, nil
}

// openStore returns the session store of the context.
func openStore(c *cli.Context, paths *cli.Paths) (storage.FileStore, error) {
	switch c.StorageBackend() {
	case cli.StorageLocal:
		l, err := storage.NewLocal(paths.DataDir())
		if err != nil {
			return nil, err
		}
		slog.Debug("using local storage", "root", l.Root())
		return l, nil
	case cli.StorageS3:
		s := c.Storage
		if s.Bucket == "" {
			return nil, fmt.Errorf("storage: s3 backend needs a bucket")
		}
		client := storage.NewS3Client(storage.S3Config{
			Region:          s.Region,
			Endpoint:        s.Endpoint,
			AccessKeyID:     s.AccessKeyID,
			SecretAccessKey: s.SecretAccessKey,
			UsePathStyle:    s.UsePathStyle,
		})
		slog.Debug("using s3 storage", "bucket", s.Bucket, "prefix", s.Prefix)
		return storage.NewS3(client, s.Bucket, s.Prefix), nil
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", c.Storage.Backend)
	}
}

// microphone returns a PortAudio source on the context's input device.
func microphone(c *cli.Context, f pcm.Format) *capture.PortAudio {
	opts := []capture.PortAudioOption{capture.WithLogger(slog.Default())}
	if c.InputDevice != nil {
		opts = append(opts, capture.WithDevice(*c.InputDevice))
	}
	return capture.NewPortAudio(f, opts...)
}

// transcriber returns the OpenAI transcriber of the context, or nil when no
// API key is configured.
func transcriber(c *cli.Context, f pcm.Format) meeting.Transcriber {
	o := c.OpenAI
	if o == nil || o.APIKey == "" {
		return nil
	}
	backend := transcribe.NewOpenAI(o.APIKey,
		transcribe.WithBaseURL(o.BaseURL),
		transcribe.WithModel(o.Model),
		transcribe.WithLanguage(o.Language),
	)
	slog.Debug("transcription enabled", "model", backend.Model())
	return meeting.NewTextTranscriber(backend, f)
}

// meetingConfig applies the context overrides to the default session
// configuration.
func meetingConfig(c *cli.Context) meeting.Config {
	cfg := meeting.DefaultConfig()
	if c.IdentifyThreshold > 0 {
		cfg.SpeakerIdentificationThreshold = c.IdentifyThreshold
	}
	if c.AutosaveInterval > 0 {
		cfg.AutosaveInterval = time.Duration(c.AutosaveInterval) * time.Second
	}
	if c.EnrollmentSeconds > 0 {
		cfg.MinEnrollmentDuration = time.Duration(c.EnrollmentSeconds) * time.Second
	}
	return cfg
}

// readWAV16K reads a WAV file as 16 kHz mono PCM, resampling other rates.
func readWAV16K(path string) ([]byte, error) {
	data, f, err := wav.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if f != pcm.L16Mono16K {
		slog.Debug("resampling", "path", path, "from", f.String())
		return resampler.To16K(data, f)
	}
	return data, nil
}
