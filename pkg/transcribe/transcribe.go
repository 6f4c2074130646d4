// Package transcribe turns speech segments into text.
//
// A Transcriber receives mono 16-bit PCM with its format and returns the
// recognized text. OpenAI implements it with the Whisper transcription
// endpoint of the OpenAI API or any compatible server.
package transcribe

import (
	"context"
	"errors"

	"github.com/haivivi/voicefilter/pkg/audio/pcm"
)

// ErrEmptyAudio is returned when Transcribe is called without audio.
var ErrEmptyAudio = errors.New("transcribe: empty audio")

// Transcriber converts speech audio to text. An empty string with a nil
// error means nothing intelligible was said.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, format pcm.Format) (string, error)
}

// Func adapts a function to Transcriber.
type Func func(ctx context.Context, audio []byte, format pcm.Format) (string, error)

func (f Func) Transcribe(ctx context.Context, audio []byte, format pcm.Format) (string, error) {
	return f(ctx, audio, format)
}
