package capture

import (
	"context"
	"sync"
	"time"

	"github.com/haivivi/voicefilter/pkg/audio/pcm"
	"github.com/haivivi/voicefilter/pkg/audio/wav"
)

// WAVFile replays PCM audio as a frame source. With realtime pacing each
// frame is delivered one frame-duration after the previous one; otherwise
// frames are delivered as fast as the handler accepts them.
type WAVFile struct {
	format   pcm.Format
	frames   [][]byte
	realtime bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	done    chan struct{}
	started bool
}

// OpenWAVFile decodes the WAV at path into a source with frames of
// frameSamples samples.
func OpenWAVFile(path string, frameSamples int, realtime bool) (*WAVFile, error) {
	data, f, err := wav.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewPCMSource(f, data, frameSamples, realtime), nil
}

// NewPCMSource creates a replay source over raw PCM data.
func NewPCMSource(f pcm.Format, data []byte, frameSamples int, realtime bool) *WAVFile {
	if frameSamples <= 0 {
		frameSamples = DefaultFrameSamples
	}
	return &WAVFile{
		format:   f,
		frames:   Split(data, frameSamples*f.BlockAlign()),
		realtime: realtime,
		done:     make(chan struct{}),
	}
}

// Format returns the audio format of the replayed data.
func (w *WAVFile) Format() pcm.Format {
	return w.format
}

// Done is closed once every frame has been delivered or the source stopped.
func (w *WAVFile) Done() <-chan struct{} {
	return w.done
}

// Start implements Source.
func (w *WAVFile) Start(h Handler, _ ErrorHandler) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return ErrAlreadyStarted
	}
	w.started = true

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.wg.Add(1)
	go w.run(ctx, h)
	return nil
}

func (w *WAVFile) run(ctx context.Context, h Handler) {
	defer w.wg.Done()
	defer close(w.done)

	var tick <-chan time.Time
	if w.realtime && len(w.frames) > 0 {
		samples := len(w.frames[0]) / w.format.BlockAlign()
		ticker := time.NewTicker(FrameDuration(w.format, samples))
		defer ticker.Stop()
		tick = ticker.C
	}
	for _, f := range w.frames {
		if tick != nil {
			select {
			case <-ctx.Done():
				return
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return
		}
		h(f)
	}
}

// Stop implements Source.
func (w *WAVFile) Stop() error {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	w.wg.Wait()
	return nil
}

var _ Source = (*WAVFile)(nil)
