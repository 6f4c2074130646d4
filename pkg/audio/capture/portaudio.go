package capture

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/haivivi/voicefilter/pkg/audio/pcm"
)

// Device describes an input device.
type Device struct {
	Index             int
	Name              string
	MaxInputChannels  int
	DefaultSampleRate float64
	IsDefault         bool
}

// Devices lists the input devices known to PortAudio.
func Devices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("capture: initialize portaudio: %w", err)
	}
	defer portaudio.Terminate()

	all, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("capture: list devices: %w", err)
	}
	def, _ := portaudio.DefaultInputDevice()

	var out []Device
	for i, d := range all {
		if d.MaxInputChannels <= 0 {
			continue
		}
		out = append(out, Device{
			Index:             i,
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			IsDefault:         def != nil && def.Name == d.Name,
		})
	}
	return out, nil
}

// PortAudio captures frames from a microphone.
//
// PortAudio invokes its callback on a real-time audio thread, so frames are
// copied into a bounded queue and handed to the Handler on a delivery
// goroutine. A full queue drops the frame and reports ErrOverrun.
type PortAudio struct {
	format       pcm.Format
	frameSamples int
	device       int // -1 selects the default input
	logger       *slog.Logger

	mu      sync.Mutex
	stream  *portaudio.Stream
	frames  chan []byte
	done    chan struct{}
	wg      sync.WaitGroup
	onErr   ErrorHandler
	started bool
}

// PortAudioOption configures a PortAudio source.
type PortAudioOption func(*PortAudio)

// WithDevice selects an input device by index as reported by Devices.
func WithDevice(index int) PortAudioOption {
	return func(p *PortAudio) { p.device = index }
}

// WithFrameSamples sets the frame length in samples (default 512).
func WithFrameSamples(n int) PortAudioOption {
	return func(p *PortAudio) {
		if n > 0 {
			p.frameSamples = n
		}
	}
}

// WithLogger sets the logger for the source.
func WithLogger(l *slog.Logger) PortAudioOption {
	return func(p *PortAudio) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPortAudio creates a microphone source for format f.
func NewPortAudio(f pcm.Format, opts ...PortAudioOption) *PortAudio {
	p := &PortAudio{
		format:       f,
		frameSamples: DefaultFrameSamples,
		device:       -1,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start implements Source.
func (p *PortAudio) Start(h Handler, onErr ErrorHandler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrAlreadyStarted
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("capture: initialize portaudio: %w", err)
	}
	dev, err := p.inputDevice()
	if err != nil {
		portaudio.Terminate()
		return err
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: p.format.Channels(),
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(p.format.SampleRate()),
		FramesPerBuffer: p.frameSamples,
	}

	p.frames = make(chan []byte, 64)
	p.done = make(chan struct{})
	p.onErr = onErr

	stream, err := portaudio.OpenStream(params, p.callback)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("capture: open stream: %w", err)
	}
	p.stream = stream

	p.wg.Add(1)
	go p.deliver(h)

	if err := stream.Start(); err != nil {
		close(p.done)
		p.wg.Wait()
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("capture: start stream: %w", err)
	}
	p.started = true
	p.logger.Debug("capture started", "device", dev.Name, "format", p.format.String(), "frame_samples", p.frameSamples)
	return nil
}

func (p *PortAudio) inputDevice() (*portaudio.DeviceInfo, error) {
	if p.device < 0 {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("capture: default input device: %w", err)
		}
		return dev, nil
	}
	all, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("capture: list devices: %w", err)
	}
	if p.device >= len(all) || all[p.device].MaxInputChannels <= 0 {
		return nil, fmt.Errorf("capture: device %d is not an input device", p.device)
	}
	return all[p.device], nil
}

func (p *PortAudio) callback(in []int16) {
	frame := pcm.Bytes(in)
	select {
	case p.frames <- frame:
	default:
		p.report(ErrOverrun)
	}
}

func (p *PortAudio) deliver(h Handler) {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case f := <-p.frames:
			h(f)
		}
	}
}

func (p *PortAudio) report(err error) {
	if p.onErr != nil {
		p.onErr(err)
		return
	}
	p.logger.Warn("capture error", "error", err)
}

// Stop implements Source.
func (p *PortAudio) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return nil
	}
	p.started = false

	stopErr := p.stream.Stop()
	close(p.done)
	p.wg.Wait()
	closeErr := p.stream.Close()
	p.stream = nil
	portaudio.Terminate()

	if stopErr != nil {
		return fmt.Errorf("capture: stop stream: %w", stopErr)
	}
	if closeErr != nil {
		return fmt.Errorf("capture: close stream: %w", closeErr)
	}
	return nil
}

var _ Source = (*PortAudio)(nil)
