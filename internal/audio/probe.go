// Package audio inspects reference audio before it is handed to the model.
package audio

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// Format identifies a container format.
type Format string

const (
	FormatWAV Format = "wav"
	FormatMP3 Format = "mp3"
)

// go-mp3 always decodes to 16-bit stereo.
const mp3BytesPerFrame = 4

// Info describes a probed audio file.
type Info struct {
	Format     Format
	Duration   time.Duration
	SampleRate int
	Size       int64
}

// Probe opens path and decodes enough of it to report format and duration.
func Probe(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat audio: %w", err)
	}

	info, err := ProbeReader(f)
	if err != nil {
		return nil, err
	}
	info.Size = stat.Size()

	return info, nil
}

// ProbeReader detects the container from its magic bytes and decodes its header.
func ProbeReader(r io.ReadSeeker) (*Info, error) {
	head := make([]byte, 12)
	n, err := io.ReadFull(r, head)
	if n == 0 {
		return nil, ErrEmpty
	}
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("read audio header: %w", err)
	}
	head = head[:n]

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind audio: %w", err)
	}

	switch detect(head) {
	case FormatWAV:
		return probeWAV(r)
	case FormatMP3:
		return probeMP3(r)
	default:
		return nil, ErrUnsupportedFormat
	}
}

// RequireDuration probes path and fails with ErrTooShort below minimum.
// Audio without samples fails with ErrEmpty whatever minimum is.
func RequireDuration(path string, minimum time.Duration) (*Info, error) {
	info, err := Probe(path)
	if err != nil {
		return nil, err
	}
	if info.Duration <= 0 {
		return info, fmt.Errorf("%w: no samples", ErrEmpty)
	}
	if info.Duration < minimum {
		return info, fmt.Errorf("%w: %s < %s", ErrTooShort, info.Duration, minimum)
	}

	return info, nil
}

func detect(head []byte) Format {
	switch {
	case len(head) >= 12 && bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")):
		return FormatWAV
	case len(head) >= 3 && bytes.Equal(head[0:3], []byte("ID3")):
		return FormatMP3
	case len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		return FormatMP3
	default:
		return ""
	}
}

func probeWAV(r io.ReadSeeker) (*Info, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid wav header", ErrUnsupportedFormat)
	}

	if err := d.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	bytesPerSecond := int64(d.SampleRate) * int64(d.NumChans) * int64(d.BitDepth/8)
	if bytesPerSecond <= 0 {
		return nil, fmt.Errorf("%w: wav header has no sample layout", ErrUnsupportedFormat)
	}

	// The data chunk alone, the RIFF size also counts the header.
	duration := time.Duration(d.PCMLen()) * time.Second / time.Duration(bytesPerSecond)

	return &Info{
		Format:     FormatWAV,
		Duration:   duration,
		SampleRate: int(d.SampleRate),
	}, nil
}

func probeMP3(r io.ReadSeeker) (*Info, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	rate := d.SampleRate()
	length := d.Length()
	if rate <= 0 || length <= 0 {
		return nil, fmt.Errorf("%w: mp3 stream has no frames", ErrUnsupportedFormat)
	}

	frames := length / mp3BytesPerFrame
	return &Info{
		Format:     FormatMP3,
		Duration:   time.Duration(frames) * time.Second / time.Duration(rate),
		SampleRate: rate,
	}, nil
}
