package service

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// muxArgs builds the ffmpeg invocation that marries a video clip and an
// audio clip: the video stream is copied without re-encoding, the audio
// stream is transcoded to AAC.
func muxArgs(videoPath, audioPath, outputPath string) []string {
	return []string{
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", "aac",
		"-strict", "experimental",
		"-y",
		outputPath,
	}
}

// muxClips combines the two source clips into one playable container. Both
// inputs must already exist on disk; any failure removes the partial output
// so a half-complete artifact is never observed.
func muxClips(ctx context.Context, videoPath, audioPath, outputPath string) error {
	if _, err := os.Stat(videoPath); err != nil {
		return fmt.Errorf("video clip not readable: %w", err)
	}
	if _, err := os.Stat(audioPath); err != nil {
		return fmt.Errorf("audio clip not readable: %w", err)
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", muxArgs(videoPath, audioPath, outputPath)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(outputPath)
		return fmt.Errorf("ffmpeg mux failed: %w\nOutput: %s", err, string(output))
	}

	if _, err := os.Stat(outputPath); err != nil {
		return fmt.Errorf("mux produced no output: %w", err)
	}
	return nil
}

// probeDuration reads the container duration in whole seconds via ffprobe.
func probeDuration(ctx context.Context, path string) (int, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration: %w", err)
	}
	return int(seconds), nil
}
