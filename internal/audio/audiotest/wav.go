// Package audiotest writes small audio fixtures for tests.
package audiotest

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// SampleRate of the generated fixtures.
const SampleRate = 16000

// WAV returns a mono 16-bit PCM WAV holding a 440 Hz tone of the given length.
func WAV(duration time.Duration) []byte {
	samples := int(duration.Seconds() * SampleRate)
	dataSize := samples * 2

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(SampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(SampleRate*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	for i := range samples {
		v := math.Sin(2 * math.Pi * 440 * float64(i) / SampleRate)
		_ = binary.Write(&buf, binary.LittleEndian, int16(v*math.MaxInt16/4))
	}

	return buf.Bytes()
}

// WriteWAV writes WAV(duration) into dir/name and returns the path.
func WriteWAV(t testing.TB, dir, name string, duration time.Duration) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, WAV(duration), 0o600); err != nil {
		t.Fatalf("write wav fixture: %v", err)
	}

	return path
}
