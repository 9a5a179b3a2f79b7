package audio

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/indextts-api/internal/audio/audiotest"
)

func TestProbe_WAV(t *testing.T) {
	path := audiotest.WriteWAV(t, t.TempDir(), "ref.wav", 2*time.Second)

	info, err := Probe(path)
	require.NoError(t, err)

	assert.Equal(t, FormatWAV, info.Format)
	assert.Equal(t, audiotest.SampleRate, info.SampleRate)
	assert.InDelta(t, 2.0, info.Duration.Seconds(), 0.05)
	assert.Positive(t, info.Size)
}

func TestProbeReader_Empty(t *testing.T) {
	_, err := ProbeReader(bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestProbeReader_Garbage(t *testing.T) {
	_, err := ProbeReader(bytes.NewReader([]byte("definitely not audio data")))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestProbeReader_TruncatedMP3(t *testing.T) {
	_, err := ProbeReader(bytes.NewReader([]byte{0xFF, 0xFB, 0x00}))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestRequireDuration(t *testing.T) {
	dir := t.TempDir()
	short := audiotest.WriteWAV(t, dir, "short.wav", 100*time.Millisecond)
	long := audiotest.WriteWAV(t, dir, "long.wav", time.Second)

	_, err := RequireDuration(short, 500*time.Millisecond)
	assert.ErrorIs(t, err, ErrTooShort)

	info, err := RequireDuration(long, 500*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, FormatWAV, info.Format)
}

func TestProbe_WAVDurationCountsSamplesOnly(t *testing.T) {
	dir := t.TempDir()

	info, err := Probe(audiotest.WriteWAV(t, dir, "tenth.wav", 100*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, info.Duration)

	info, err = Probe(audiotest.WriteWAV(t, dir, "header-only.wav", 0))
	require.NoError(t, err)
	assert.Zero(t, info.Duration)
}

func TestRequireDuration_NoSamples(t *testing.T) {
	path := audiotest.WriteWAV(t, t.TempDir(), "header-only.wav", 0)

	_, err := RequireDuration(path, 0)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestProbe_MissingFile(t *testing.T) {
	_, err := Probe(filepath.Join(t.TempDir(), "missing.wav"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
