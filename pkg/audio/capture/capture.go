// Package capture delivers fixed-size mono PCM frames from an audio source.
//
// A Source pushes frames to a Handler in capture order, one at a time, from
// a single goroutine. After Stop returns no further frames are delivered.
//
// Two sources are provided: PortAudio reads the system microphone, WAVFile
// replays a WAV recording (optionally paced at real-time speed).
package capture

import (
	"errors"
	"time"

	"github.com/haivivi/voicefilter/pkg/audio/pcm"
)

// DefaultFrameSamples is the frame length used by the verification and
// meeting pipelines (32 ms at 16 kHz).
const DefaultFrameSamples = 512

var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("capture: already started")

	// ErrOverrun is reported when frames arrive faster than the handler
	// consumes them and a frame had to be dropped.
	ErrOverrun = errors.New("capture: frame overrun")
)

// Handler receives one frame of little-endian int16 PCM. The slice is owned
// by the handler.
type Handler func(frame []byte)

// ErrorHandler receives asynchronous source errors. Errors do not stop the
// source.
type ErrorHandler func(err error)

// Source is a push-based frame producer.
type Source interface {
	// Start begins delivering frames to h. Errors after Start are reported
	// through onErr, which may be nil.
	Start(h Handler, onErr ErrorHandler) error

	// Stop halts delivery. It is safe to call on a source that was never
	// started, and more than once.
	Stop() error
}

// Split cuts data into consecutive frames of frameBytes. A trailing partial
// frame is zero-padded.
func Split(data []byte, frameBytes int) [][]byte {
	if frameBytes <= 0 || len(data) == 0 {
		return nil
	}
	frames := make([][]byte, 0, (len(data)+frameBytes-1)/frameBytes)
	for off := 0; off < len(data); off += frameBytes {
		f := make([]byte, frameBytes)
		copy(f, data[off:])
		frames = append(frames, f)
	}
	return frames
}

// FrameDuration returns how long a frame of n samples lasts in format f.
func FrameDuration(f pcm.Format, n int) time.Duration {
	return time.Duration(n) * time.Second / time.Duration(f.SampleRate())
}
