package service

import (
	"context"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"

	"covod-recorder/config"
	"covod-recorder/constant"
	"covod-recorder/dto"
	"covod-recorder/pkg/rabbitmq"
	"covod-recorder/repository"
)

// finalizeTimeout bounds how long we wait for the two recorders to flush
// after the stop signal.
const finalizeTimeout = 2 * time.Minute

// SessionRunner drives one live capture session end to end: record until
// the context is cancelled, stage both clips and the timestamp log, then
// hand the merge off to the worker queue.
type SessionRunner struct {
	cfg        *config.Config
	capture    CaptureService
	timestamps *TimestampRecorder
	repo       repository.JobRepository
	publisher  *rabbitmq.Publisher
}

func NewSessionRunner(cfg *config.Config, capture CaptureService, timestamps *TimestampRecorder, repo repository.JobRepository, publisher *rabbitmq.Publisher) *SessionRunner {
	return &SessionRunner{
		cfg:        cfg,
		capture:    capture,
		timestamps: timestamps,
		repo:       repo,
		publisher:  publisher,
	}
}

// PageChanged forwards a document page change from the companion viewer.
func (r *SessionRunner) PageChanged(page int) {
	r.timestamps.OnPageChanged(page)
}

// Run records until ctx is cancelled, then finalizes and publishes the
// merge job.
func (r *SessionRunner) Run(ctx context.Context) error {
	if err := r.capture.SelectSource(ctx, r.cfg.Capture.VideoSource); err != nil {
		return err
	}

	startedAt := time.Now()
	key, err := r.capture.StartRecording(ctx)
	if err != nil {
		return err
	}

	if _, err := r.repo.CreateRecordingSession(ctx, key, startedAt); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to persist recording session")
	}

	zerolog.Ctx(ctx).Info().Str("session_key", key).Msg("recording, interrupt to stop")
	<-ctx.Done()

	// The outer context is gone; finalization gets its own deadline.
	finalizeCtx, cancel := context.WithTimeout(zerolog.Ctx(ctx).WithContext(context.Background()), finalizeTimeout)
	defer cancel()

	if err := r.capture.StopRecording(finalizeCtx); err != nil {
		return err
	}

	videoClip, audioClip, err := r.capture.AwaitClips(finalizeCtx)
	if err != nil {
		return err
	}

	logPath, err := r.timestamps.WriteLog(key, r.cfg.Capture.OutputDir)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to write timestamp log")
	} else {
		zerolog.Ctx(ctx).Info().Str("log", logPath).Msg("timestamp log written")
	}
	if countErr := r.repo.UpdateSessionTimestampCount(finalizeCtx, key, len(r.timestamps.Archived(key))); countErr != nil {
		zerolog.Ctx(ctx).Warn().Err(countErr).Msg("failed to update timestamp count")
	}

	videoObject, err := r.stageClip(finalizeCtx, key, videoClip)
	if err != nil {
		return err
	}
	audioObject, err := r.stageClip(finalizeCtx, key, audioClip)
	if err != nil {
		return err
	}

	if err := r.repo.UpdateSessionClips(finalizeCtx, key, videoObject, audioObject, time.Now()); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to update session clips")
	}

	job, err := r.repo.CreateJob(finalizeCtx, constant.JobTypeMerge, key)
	if err != nil {
		return err
	}

	message := dto.MergeJobMessage{
		JobId:       job.ID,
		SessionKey:  key,
		VideoObject: videoObject,
		AudioObject: audioObject,
	}
	if err := r.publisher.Publish(finalizeCtx, rabbitmq.MergeTopology, message); err != nil {
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("session_key", key).
		Str("job_id", job.ID.String()).
		Msg("merge job published")
	return nil
}

func (r *SessionRunner) stageClip(ctx context.Context, sessionKey string, clip Clip) (string, error) {
	name := StagedObjectName(sessionKey, filepath.Base(clip.Path))
	contentType := "video/mp4"
	if clip.Kind == constant.ClipKindAudio {
		contentType = "audio/wav"
	}
	if _, err := r.cfg.Storage.FPutObject(ctx, r.cfg.MinIOBucket, name, clip.Path, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", err
	}
	zerolog.Ctx(ctx).Info().Str("object", name).Int64("size", clip.Size).Msg("clip staged")
	return name, nil
}
