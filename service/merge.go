package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"

	"covod-recorder/config"
	"covod-recorder/constant"
	"covod-recorder/dto"
	"covod-recorder/repository"
)

var ErrNonRetryable = errors.New("non-retryable error")

type MergeService interface {
	ProcessMerge(ctx context.Context, message dto.MergeJobMessage) error
}

type mergeService struct {
	repo repository.JobRepository
	cfg  *config.Config
}

func NewMergeService(repo repository.JobRepository, cfg *config.Config) MergeService {
	return &mergeService{
		repo: repo,
		cfg:  cfg,
	}
}

// ProcessMerge downloads the session's video and audio clips from staging,
// muxes them into one container and uploads the result. The merge is one
// logical unit: any stage failure aborts it and no partial artifact is
// surfaced.
func (s *mergeService) ProcessMerge(ctx context.Context, message dto.MergeJobMessage) (err error) {
	zerolog.Ctx(ctx).Info().
		Str("job_id", message.JobId.String()).
		Str("session_key", message.SessionKey).
		Msg("processing merge job")

	job, err := s.repo.FindJobById(ctx, message.JobId)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to find job by id")
		return err
	}

	if job.Status != constant.JobStatusPending {
		zerolog.Ctx(ctx).Info().Str("job_id", message.JobId.String()).Msg("job is not pending")
		return nil
	}

	if err := s.repo.UpdateStatusJob(ctx, constant.JobStatusProcessing, message.JobId); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to update job status")
		return err
	}

	defer func() {
		if err != nil {
			if errors.Is(err, ErrNonRetryable) {
				if updateErr := s.repo.UpdateStatusJob(ctx, constant.JobStatusFailed, message.JobId); updateErr != nil {
					zerolog.Ctx(ctx).Error().Err(updateErr).Msg("failed to update job status")
				}
				err = nil
			} else {
				if updateErr := s.repo.UpdateStatusJob(ctx, constant.JobStatusPending, message.JobId); updateErr != nil {
					zerolog.Ctx(ctx).Error().Err(updateErr).Msg("failed to update job status")
				}
			}
		}
	}()

	if message.VideoObject == "" || message.AudioObject == "" {
		err = fmt.Errorf("merge message for session %s is missing clip objects", message.SessionKey)
		zerolog.Ctx(ctx).Error().Err(err).Msg("nothing to merge")
		return errors.Join(ErrNonRetryable, err)
	}

	// Sandbox for this merge only.
	tempDir := filepath.Join("temp", message.JobId.String())
	defer os.RemoveAll(tempDir)

	inputDir := filepath.Join(tempDir, "input")
	outputDir := filepath.Join(tempDir, "output")

	if err = os.MkdirAll(inputDir, os.ModePerm); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to create input directory")
		return errors.Join(ErrNonRetryable, err)
	}
	if err = os.MkdirAll(outputDir, os.ModePerm); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to create output directory")
		return errors.Join(ErrNonRetryable, err)
	}

	videoPath := filepath.Join(inputDir, filepath.Base(message.VideoObject))
	audioPath := filepath.Join(inputDir, filepath.Base(message.AudioObject))

	zerolog.Ctx(ctx).Info().Str("video_object", message.VideoObject).Msg("downloading video clip")
	if err = s.cfg.Storage.FGetObject(ctx, s.cfg.MinIOBucket, message.VideoObject, videoPath, minio.GetObjectOptions{}); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to download video clip")
		return err
	}

	zerolog.Ctx(ctx).Info().Str("audio_object", message.AudioObject).Msg("downloading audio clip")
	if err = s.cfg.Storage.FGetObject(ctx, s.cfg.MinIOBucket, message.AudioObject, audioPath, minio.GetObjectOptions{}); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to download audio clip")
		return err
	}

	outputPath := filepath.Join(outputDir, VideoClipName(message.SessionKey))
	zerolog.Ctx(ctx).Info().
		Str("video", videoPath).
		Str("audio", audioPath).
		Str("output", outputPath).
		Msg("muxing clips")

	if err = muxClips(ctx, videoPath, audioPath, outputPath); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to mux clips")
		return errors.Join(ErrNonRetryable, err)
	}

	// The source clips leave the sandbox once muxed; the staged objects in
	// durable storage are untouched.
	for _, p := range []string{videoPath, audioPath} {
		if removeErr := os.Remove(p); removeErr != nil {
			zerolog.Ctx(ctx).Warn().Err(removeErr).Str("path", p).Msg("failed to remove source clip from sandbox")
		}
	}

	duration, probeErr := probeDuration(ctx, outputPath)
	if probeErr != nil {
		zerolog.Ctx(ctx).Warn().Err(probeErr).Msg("failed to probe merged duration")
	}

	outputKey := MergedObjectName(message.SessionKey)
	zerolog.Ctx(ctx).Info().Str("output_key", outputKey).Msg("uploading merged artifact")
	if _, err = s.cfg.Storage.FPutObject(ctx, s.cfg.MinIOBucket, outputKey, outputPath, minio.PutObjectOptions{
		ContentType: "video/mp4",
	}); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to upload merged artifact")
		return err
	}

	if err = s.repo.UpdateSessionMerged(ctx, message.SessionKey, outputKey, duration); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to update recording session")
		return err
	}

	if err = s.repo.UpdateStatusJob(ctx, constant.JobStatusCompleted, message.JobId); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to update job status")
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("job_id", message.JobId.String()).
		Str("session_key", message.SessionKey).
		Str("output_key", outputKey).
		Int("duration_seconds", duration).
		Msg("merge job completed")

	return nil
}

// StagedObjectName returns the durable staging key for a raw clip.
func StagedObjectName(sessionKey, fileName string) string {
	key := filepath.Join("staging", sessionKey, fileName)
	return strings.ReplaceAll(key, "\\", "/")
}

// MergedObjectName returns the durable key of the final merged artifact.
func MergedObjectName(sessionKey string) string {
	key := filepath.Join("lectures", sessionKey, "final", VideoClipName(sessionKey))
	return strings.ReplaceAll(key, "\\", "/")
}
