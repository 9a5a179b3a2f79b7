package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/indextts-api/internal/config"
)

type recorder struct {
	calls [][]string
	errs  []error
}

func (r *recorder) run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	if len(r.errs) == 0 {
		return nil, nil
	}
	err := r.errs[0]
	r.errs = r.errs[1:]
	return []byte("hf: error output"), err
}

func TestDownload_BuildsArgsAndWritesMarker(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "checkpoints")
	rec := &recorder{}
	d := &HuggingFaceDownloader{Run: rec.run}

	skipped, err := d.Download(context.Background(), config.HuggingFaceSource{
		Repo:       "IndexTeam/IndexTTS",
		Revision:   "main",
		Include:    []string{"*.pth"},
		Token:      "hf_x",
		MaxWorkers: 4,
	}, dir)
	require.NoError(t, err)
	assert.False(t, skipped)

	require.Len(t, rec.calls, 1)
	assert.Equal(t, []string{
		"hf", "download", "IndexTeam/IndexTTS",
		"--local-dir", dir,
		"--revision", "main",
		"--include", "*.pth",
		"--token", "hf_x",
		"--max-workers", "4",
	}, rec.calls[0])

	marker, err := os.ReadFile(filepath.Join(dir, markerFilename))
	require.NoError(t, err)
	assert.Equal(t, "repo: IndexTeam/IndexTTS\nrevision: main\n", string(marker))
}

func TestDownload_SkipsWhenMarkerMatches(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	d := &HuggingFaceDownloader{Run: rec.run}
	src := config.HuggingFaceSource{Repo: "IndexTeam/IndexTTS"}

	_, err := d.Download(context.Background(), src, dir)
	require.NoError(t, err)

	skipped, err := d.Download(context.Background(), src, dir)
	require.NoError(t, err)
	assert.True(t, skipped)
	assert.Len(t, rec.calls, 1)

	src.Revision = "v1.5"
	skipped, err = d.Download(context.Background(), src, dir)
	require.NoError(t, err)
	assert.False(t, skipped)
	assert.Len(t, rec.calls, 2)
}

func TestDownload_Retries(t *testing.T) {
	boom := errors.New("exit status 1")
	rec := &recorder{errs: []error{boom, boom}}
	d := &HuggingFaceDownloader{Run: rec.run, RetryDelay: 1}

	_, err := d.Download(context.Background(), config.HuggingFaceSource{Repo: "a/b"}, t.TempDir())
	require.NoError(t, err)
	assert.Len(t, rec.calls, 3)

	rec = &recorder{errs: []error{boom, boom, boom}}
	d.Run = rec.run
	_, err = d.Download(context.Background(), config.HuggingFaceSource{Repo: "a/b"}, t.TempDir())
	assert.ErrorIs(t, err, boom)
	assert.Len(t, rec.calls, 3)
}

func TestDownload_InvalidRepo(t *testing.T) {
	d := &HuggingFaceDownloader{Run: (&recorder{}).run}

	_, err := d.Download(context.Background(), config.HuggingFaceSource{Repo: "  "}, t.TempDir())
	assert.Error(t, err)
}
