// Package media wraps the local tooling around an upload: duration probing,
// audio extraction and on-disk storage.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// commandResult is the captured output of one process run.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

type execRunner struct{}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// ToolError reports a failed ffmpeg/ffprobe invocation.
type ToolError struct {
	Tool     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if len(msg) > 300 {
		msg = msg[len(msg)-300:]
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Tool, e.ExitCode, msg)
}

func (e *ToolError) Unwrap() error { return e.Err }

// videoExtensions are containers that are converted to MP3 before upload.
var videoExtensions = map[string]bool{
	".mp4": true,
	".mov": true,
	".avi": true,
	".mkv": true,
	".m4a": true,
}

// NeedsConversion reports whether a file should be turned into MP3 first.
func NeedsConversion(fileName string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(fileName))]
}

// Prober reads media duration with ffprobe.
type Prober struct {
	path   string
	runner commandRunner
}

func NewProber(ffprobePath string) *Prober {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Prober{path: ffprobePath, runner: &execRunner{}}
}

// Duration returns the container duration in seconds.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	res, err := p.runner.Run(ctx, p.path, args...)
	if err != nil {
		return 0, &ToolError{Tool: "ffprobe", ExitCode: res.ExitCode, Stderr: res.Stderr, Err: err}
	}

	raw := strings.TrimSpace(res.Stdout)
	d, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration %q: %w", raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %f", d)
	}
	return d, nil
}

// Converter extracts a 128 kbps MP3 track with ffmpeg.
type Converter struct {
	path   string
	runner commandRunner
	stat   func(string) (os.FileInfo, error)
}

func NewConverter(ffmpegPath string) *Converter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Converter{path: ffmpegPath, runner: &execRunner{}, stat: os.Stat}
}

// ToMP3 writes <input without extension>.mp3 next to the input and returns
// its path.
func (c *Converter) ToMP3(ctx context.Context, inputPath string) (string, error) {
	outputPath := strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".mp3"
	if outputPath == inputPath {
		outputPath = inputPath + ".converted.mp3"
	}

	res, err := c.runner.Run(ctx, c.path, buildConvertArgs(inputPath, outputPath)...)
	if err != nil {
		return "", &ToolError{Tool: "ffmpeg", ExitCode: res.ExitCode, Stderr: res.Stderr, Err: err}
	}
	if _, err := c.stat(outputPath); err != nil {
		return "", fmt.Errorf("ffmpeg completed but output is missing: %w", err)
	}
	return outputPath, nil
}

func buildConvertArgs(in, out string) []string {
	return []string{
		"-y",
		"-i", in,
		"-vn",
		"-acodec", "libmp3lame",
		"-b:a", "128k",
		"-f", "mp3",
		out,
	}
}
