package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"covod-recorder/config"
	"covod-recorder/constant"
)

var (
	ErrNoSourceSelected = errors.New("no capture source selected")
	ErrNotRecording     = errors.New("no recording in progress")
)

// Clip is a finished, durable recording of one track.
type Clip struct {
	Kind constant.ClipKind
	Path string
	Size int64
}

type clipResult struct {
	clip Clip
	err  error
}

// captureProcess is one capture child process. Stop signals it to finalize
// whatever it has buffered and waits for it to exit.
type captureProcess interface {
	Start(ctx context.Context) error
	Stop() error
}

type processFactory func(cfg config.Capture, kind constant.ClipKind, source, outputPath string) captureProcess

// recorder is the per-track state machine: one capture process plus the
// completion channel its finished clip is delivered on.
type recorder struct {
	kind constant.ClipKind
	proc captureProcess
	path string
	done chan clipResult
}

// finalize stops the process and delivers the clip on the done channel.
// Runs in its own goroutine; video and audio complete independently.
func (r *recorder) finalize(ctx context.Context) {
	if err := r.proc.Stop(); err != nil {
		r.done <- clipResult{err: fmt.Errorf("stop %s recorder: %w", r.kind, err)}
		return
	}
	info, err := os.Stat(r.path)
	if err != nil {
		r.done <- clipResult{err: fmt.Errorf("%s clip missing after stop: %w", r.kind, err)}
		return
	}
	zerolog.Ctx(ctx).Info().Str("kind", r.kind.String()).Str("path", r.path).Int64("size", info.Size()).Msg("clip finalized")
	r.done <- clipResult{clip: Clip{Kind: r.kind, Path: r.path, Size: info.Size()}}
}

type CaptureService interface {
	SelectSource(ctx context.Context, source string) error
	StartRecording(ctx context.Context) (string, error)
	StopRecording(ctx context.Context) error
	AwaitClips(ctx context.Context) (Clip, Clip, error)
	State() constant.RecordingState
	SessionKey() string
}

// RecordingListener is notified when the capture state machine flips.
// StartRecording's notification is the authoritative elapsed-time-zero
// anchor for the page-change log.
type RecordingListener interface {
	OnRecordingStart()
	OnRecordingStop(sessionKey string)
}

type captureService struct {
	cfg        config.Capture
	listener   RecordingListener
	newProcess processFactory

	mu         sync.Mutex
	state      constant.RecordingState
	source     string
	sessionKey string
	video      *recorder
	audio      *recorder
}

func NewCaptureService(cfg config.Capture, listener RecordingListener) CaptureService {
	return &captureService{
		cfg:        cfg,
		listener:   listener,
		newProcess: newFFmpegProcess,
		state:      constant.RecordingStateIdle,
	}
}

// SelectSource attaches the service to a video source. On any failure the
// capture stays unselected.
func (c *captureService) SelectSource(ctx context.Context, source string) error {
	if source == "" {
		source = c.cfg.VideoSource
	}
	if source == "" {
		return ErrNoSourceSelected
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.source = source
	zerolog.Ctx(ctx).Info().Str("source", source).Msg("capture source selected")
	return nil
}

// StartRecording flips both recorder machines to active and returns the new
// session key. No-op when no source is selected or a recording is already
// in progress; the in-flight session key is returned in the latter case.
func (c *captureService) StartRecording(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == constant.RecordingStateRecording {
		return c.sessionKey, nil
	}
	if c.source == "" {
		return "", ErrNoSourceSelected
	}

	if err := os.MkdirAll(c.cfg.OutputDir, os.ModePerm); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	key := strconv.FormatInt(time.Now().UnixMilli(), 10)
	videoPath := filepath.Join(c.cfg.OutputDir, VideoClipName(key))
	audioPath := filepath.Join(c.cfg.OutputDir, AudioClipName(key))

	// Fresh recorders: any audio buffered from a previous attempt is gone.
	video := &recorder{
		kind: constant.ClipKindVideo,
		proc: c.newProcess(c.cfg, constant.ClipKindVideo, c.source, videoPath),
		path: videoPath,
		done: make(chan clipResult, 1),
	}
	audio := &recorder{
		kind: constant.ClipKindAudio,
		proc: c.newProcess(c.cfg, constant.ClipKindAudio, c.cfg.AudioSource, audioPath),
		path: audioPath,
		done: make(chan clipResult, 1),
	}

	if err := video.proc.Start(ctx); err != nil {
		return "", fmt.Errorf("start video recorder: %w", err)
	}
	if err := audio.proc.Start(ctx); err != nil {
		_ = video.proc.Stop()
		return "", fmt.Errorf("start audio recorder: %w", err)
	}

	c.video = video
	c.audio = audio
	c.sessionKey = key
	c.state = constant.RecordingStateRecording

	if c.listener != nil {
		c.listener.OnRecordingStart()
	}
	zerolog.Ctx(ctx).Info().Str("session_key", key).Msg("recording started")
	return key, nil
}

// StopRecording flips both machines to inactive. Each recorder finalizes
// its buffered data asynchronously and the two clips need not arrive in the
// same tick; AwaitClips blocks until both have.
func (c *captureService) StopRecording(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != constant.RecordingStateRecording {
		return ErrNotRecording
	}
	c.state = constant.RecordingStateStopped

	if c.listener != nil {
		c.listener.OnRecordingStop(c.sessionKey)
	}

	go c.video.finalize(ctx)
	go c.audio.finalize(ctx)

	zerolog.Ctx(ctx).Info().Str("session_key", c.sessionKey).Msg("recording stopped, finalizing clips")
	return nil
}

// AwaitClips blocks until both the video and the audio clip have completed,
// in whichever order they arrive.
func (c *captureService) AwaitClips(ctx context.Context) (Clip, Clip, error) {
	c.mu.Lock()
	video, audio := c.video, c.audio
	c.mu.Unlock()

	if video == nil || audio == nil {
		return Clip{}, Clip{}, ErrNotRecording
	}

	var videoClip, audioClip Clip
	for i := 0; i < 2; i++ {
		select {
		case res := <-video.done:
			if res.err != nil {
				return Clip{}, Clip{}, res.err
			}
			videoClip = res.clip
		case res := <-audio.done:
			if res.err != nil {
				return Clip{}, Clip{}, res.err
			}
			audioClip = res.clip
		case <-ctx.Done():
			return Clip{}, Clip{}, ctx.Err()
		}
	}

	c.mu.Lock()
	c.state = constant.RecordingStateIdle
	c.mu.Unlock()
	return videoClip, audioClip, nil
}

func (c *captureService) State() constant.RecordingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *captureService) SessionKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionKey
}

// VideoClipName returns the video clip filename for a session key.
func VideoClipName(sessionKey string) string {
	return fmt.Sprintf("vid-%s.mp4", sessionKey)
}

// AudioClipName returns the audio clip filename for a session key.
func AudioClipName(sessionKey string) string {
	return fmt.Sprintf("audio-%s.wav", sessionKey)
}

// ffmpegProcess drives one ffmpeg grab. Interrupt makes ffmpeg flush and
// close the container before exiting.
type ffmpegProcess struct {
	cmd     *exec.Cmd
	logFile *os.File
	waitErr chan error
}

func newFFmpegProcess(cfg config.Capture, kind constant.ClipKind, source, outputPath string) captureProcess {
	var args []string
	switch kind {
	case constant.ClipKindVideo:
		args = []string{
			"-f", cfg.VideoFormat,
			"-i", source,
			"-c:v", "libx264",
			"-preset", "ultrafast",
			"-y",
			outputPath,
		}
	case constant.ClipKindAudio:
		args = []string{
			"-f", cfg.AudioFormat,
			"-i", source,
			"-ac", "1",
			"-ar", "44100",
			"-y",
			outputPath,
		}
	}
	return &ffmpegProcess{
		cmd:     exec.Command("ffmpeg", args...),
		waitErr: make(chan error, 1),
	}
}

func (p *ffmpegProcess) Start(ctx context.Context) error {
	logPath := p.cmd.Args[len(p.cmd.Args)-1] + ".ffmpeg.log"
	if logFile, err := os.Create(logPath); err == nil {
		p.cmd.Stderr = logFile
		p.logFile = logFile
	}
	if err := p.cmd.Start(); err != nil {
		return err
	}
	go func() {
		p.waitErr <- p.cmd.Wait()
	}()
	return nil
}

func (p *ffmpegProcess) Stop() error {
	if p.cmd.Process == nil {
		return errors.New("process not started")
	}
	if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
		return err
	}
	err := <-p.waitErr
	if p.logFile != nil {
		p.logFile.Close()
	}
	// ffmpeg reports a non-zero exit after an interrupt even when the file
	// was finalized; whatever was buffered is on disk either way.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
