package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/leeineian/minstrel/sys"
)

// Output format the voice connection expects.
const (
	SampleRate = 48000
	Channels   = 2
	// FrameDurationMs is the Opus frame size Discord sends every tick.
	FrameDurationMs = 20
)

// Transcoder turns the window of a local file into a finished Ogg Opus buffer.
type Transcoder interface {
	Transcode(ctx context.Context, path string, w Window) ([]byte, error)
}

// FFmpegTranscoder runs ffmpeg as a child process per call.
type FFmpegTranscoder struct {
	Executable string
	Bitrate    int
}

func (t *FFmpegTranscoder) args(path string, w Window) []string {
	bitrate := t.Bitrate
	if bitrate <= 0 {
		bitrate = 64000
	}
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-ss", strconv.Itoa(w.Start),
		"-i", path,
		"-t", strconv.Itoa(w.Length),
		"-vn",
		"-ac", strconv.Itoa(Channels),
		"-ar", strconv.Itoa(SampleRate),
		"-ab", strconv.Itoa(bitrate),
		"-acodec", "libopus",
		"-frame_duration", strconv.Itoa(FrameDurationMs),
		"-page_duration", "20000",
		"-f", "opus",
		"pipe:1",
	}
}

// Transcode returns only after ffmpeg has exited. On context expiry the
// process is killed and reaped before returning.
func (t *FFmpegTranscoder) Transcode(ctx context.Context, path string, w Window) ([]byte, error) {
	exe := t.Executable
	if exe == "" {
		exe = "ffmpeg"
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, exe, t.args(path, w)...)
	cmd.Stdin = nil
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		sys.LogDebug(sys.MsgPipelineStderr, "ffmpeg", msg)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}
	return stdout.Bytes(), nil
}
