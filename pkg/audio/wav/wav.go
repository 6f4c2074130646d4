// Package wav reads and writes linear-PCM WAV containers.
//
// Encoding always produces the canonical 44-byte header (RIFF, fmt, data)
// followed by the raw sample payload. Decoding accepts any 16-bit PCM WAV
// at a sample rate known to package pcm, downmixing stereo to mono.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/haivivi/voicefilter/pkg/audio/pcm"
	gowav "github.com/youpy/go-wav"
)

// HeaderSize is the length of the canonical WAV header.
const HeaderSize = 44

// ErrUnsupported is returned when a WAV file is not 16-bit linear PCM.
var ErrUnsupported = errors.New("wav: unsupported format")

// Header is the canonical 44-byte WAV header.
type Header struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// NewHeader builds the header for dataSize bytes of audio in format f.
func NewHeader(f pcm.Format, dataSize uint32) Header {
	return Header{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     HeaderSize + dataSize - 8,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   uint16(f.Channels()),
		SampleRate:    uint32(f.SampleRate()),
		ByteRate:      uint32(f.BytesRate()),
		BlockAlign:    uint16(f.BlockAlign()),
		BitsPerSample: uint16(f.Depth()),
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

// Encode writes a complete WAV container for data to w.
func Encode(w io.Writer, f pcm.Format, data []byte) error {
	if uint64(len(data)) > uint64(^uint32(0))-HeaderSize {
		return fmt.Errorf("wav: payload of %d bytes exceeds container limit", len(data))
	}
	if err := binary.Write(w, binary.LittleEndian, NewHeader(f, uint32(len(data)))); err != nil {
		return fmt.Errorf("wav: write header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("wav: write data: %w", err)
	}
	return nil
}

// Bytes returns data wrapped in a WAV container.
func Bytes(f pcm.Format, data []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(HeaderSize + len(data))
	_ = Encode(&buf, f, data)
	return buf.Bytes()
}

// ParseHeader decodes the first 44 bytes of b.
func ParseHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < HeaderSize {
		return h, fmt.Errorf("wav: short header (%d bytes)", len(b))
	}
	if err := binary.Read(bytes.NewReader(b[:HeaderSize]), binary.LittleEndian, &h); err != nil {
		return h, err
	}
	return h, nil
}

// Decode reads a WAV container and returns its samples as mono 16-bit PCM.
func Decode(data []byte) ([]byte, pcm.Format, error) {
	r := gowav.NewReader(bytes.NewReader(data))
	wf, err := r.Format()
	if err != nil {
		return nil, 0, fmt.Errorf("wav: read format: %w", err)
	}
	if wf.AudioFormat != gowav.AudioFormatPCM || wf.BitsPerSample != 16 {
		return nil, 0, fmt.Errorf("%w: format=%d bits=%d", ErrUnsupported, wf.AudioFormat, wf.BitsPerSample)
	}
	f, err := pcm.FormatFor(int(wf.SampleRate))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	channels := int(wf.NumChannels)
	if channels < 1 || channels > 2 {
		return nil, 0, fmt.Errorf("%w: %d channels", ErrUnsupported, channels)
	}

	var out []int16
	for {
		samples, err := r.ReadSamples(4096)
		for _, s := range samples {
			v := s.Values[0]
			if channels == 2 {
				v = (s.Values[0] + s.Values[1]) / 2
			}
			out = append(out, int16(v))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("wav: read samples: %w", err)
		}
		if len(samples) == 0 {
			break
		}
	}
	return pcm.Bytes(out), f, nil
}

// ReadFile decodes the WAV file at path.
func ReadFile(path string) ([]byte, pcm.Format, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	return Decode(data)
}
