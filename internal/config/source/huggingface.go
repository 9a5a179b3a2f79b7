// Package source fetches model checkpoints that are not on disk yet.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ekisa-team/indextts-api/internal/config"
)

const (
	defaultRetryDelay = 2 * time.Second
	defaultMaxRetries = 3
	defaultTimeout    = 30 * time.Minute
	markerFilename    = ".indextts-downloaded"
	cliName           = "hf"
)

// RunFunc runs the download CLI and returns its combined output.
type RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// HuggingFaceDownloader downloads a model from Hugging Face with the hf CLI.
type HuggingFaceDownloader struct {
	// Run defaults to exec.CommandContext(...).CombinedOutput.
	Run RunFunc

	// RetryDelay defaults to two seconds.
	RetryDelay time.Duration
}

// Download fetches src into targetDir unless a marker from an identical
// earlier download is present. It reports whether the download was skipped.
func (d *HuggingFaceDownloader) Download(ctx context.Context, src config.HuggingFaceSource, targetDir string) (bool, error) {
	repo := strings.TrimSpace(src.Repo)
	if repo == "" {
		return false, fmt.Errorf("invalid repo name: %q", src.Repo)
	}

	markerPath := filepath.Join(targetDir, markerFilename)
	markerContent := d.markerContent(repo, src.Revision)

	if _, err := os.Stat(markerPath); err == nil && !src.ForceDownload {
		if !d.shouldRedownload(markerPath, markerContent) {
			slog.Info("Model already downloaded and up-to-date (marker match), skipping", "repo", repo, "path", targetDir)
			return true, nil
		}
	}

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return false, fmt.Errorf("failed to create directory: %w", err)
	}

	args := d.args(repo, src, targetDir)
	run := d.Run
	if run == nil {
		run = combinedOutput
	}
	delay := d.RetryDelay
	if delay == 0 {
		delay = defaultRetryDelay
	}

	var lastErr error
	for attempt := range defaultMaxRetries {
		if attempt > 0 {
			slog.Info("Retrying download", "repo", repo, "attempt", attempt+1, "last_error", lastErr)
			select {
			case <-ctx.Done():
				return false, fmt.Errorf("download canceled: %w", ctx.Err())
			case <-time.After(delay):
			}
		} else {
			slog.Info("Downloading model", "repo", repo, "path", targetDir)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
		output, err := run(attemptCtx, cliName, args...)
		attemptErr := attemptCtx.Err()
		cancel()

		if err == nil {
			if err := os.WriteFile(markerPath, []byte(markerContent), 0o644); err != nil {
				slog.Warn("Failed to write download marker", "path", markerPath, "error", err)
			} else {
				slog.Info("Download marker updated", "path", markerPath)
			}

			slog.Info("Model downloaded successfully", "repo", repo, "path", targetDir, "attempt", attempt+1)
			return false, nil
		}

		lastErr = err
		slog.Error("Failed to download model", "repo", repo, "path", targetDir, "attempt", attempt+1, "error", err, "output", string(output))

		if ctx.Err() != nil {
			return false, fmt.Errorf("download canceled: %w", err)
		}
		if attemptErr == context.DeadlineExceeded {
			slog.Warn("Download timed out", "repo", repo, "path", targetDir, "attempt", attempt+1)
		}
	}

	return false, fmt.Errorf("download %s failed after %d attempts: %w", repo, defaultMaxRetries, lastErr)
}

func (d *HuggingFaceDownloader) args(repo string, src config.HuggingFaceSource, targetDir string) []string {
	args := []string{
		"download",
		repo,
		"--local-dir", targetDir,
	}

	if src.Revision != "" {
		args = append(args, "--revision", src.Revision)
	}
	if src.RepoType != "" {
		args = append(args, "--repo-type", src.RepoType)
	}
	for _, inc := range src.Include {
		args = append(args, "--include", inc)
	}
	for _, exc := range src.Exclude {
		args = append(args, "--exclude", exc)
	}
	if src.ForceDownload {
		args = append(args, "--force-download")
	}
	if src.Token != "" {
		args = append(args, "--token", src.Token)
	}
	if src.MaxWorkers > 0 {
		args = append(args, "--max-workers", strconv.Itoa(src.MaxWorkers))
	}

	return args
}

// markerContent is what a completed download leaves behind. A different
// repo or revision invalidates it.
func (d *HuggingFaceDownloader) markerContent(repo, revision string) string {
	return fmt.Sprintf("repo: %s\nrevision: %s\n", repo, revision)
}

// shouldRedownload checks if the model should be redownloaded by comparing marker content.
func (d *HuggingFaceDownloader) shouldRedownload(markerPath, expectedContent string) bool {
	content, err := os.ReadFile(markerPath)
	if err != nil {
		slog.Debug("Marker file missing or unreadable", "path", markerPath, "error", err)
		return true
	}

	if string(content) != expectedContent {
		slog.Info("Model config changed (marker mismatch), will redownload",
			"marker_path", markerPath,
			"expected_snippet", expectedContent,
			"actual_snippet", string(content))
		return true
	}

	return false
}

func combinedOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}
