package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"covod-recorder/constant"
	"covod-recorder/dto"
	"covod-recorder/entities"
	"covod-recorder/repository"
)

// defaultCourseId is used when a submit request carries no course.
const defaultCourseId = 1

// ArchiveClient is the slice of the backend client the coordinator needs.
type ArchiveClient interface {
	CreateLecture(ctx context.Context, courseID, number int, name string) (int, error)
	UploadMedia(ctx context.Context, lectureID int, mediaPath string) error
	UploadPDF(ctx context.Context, lectureID int, pdfPath string) error
	UploadTimestamps(ctx context.Context, lectureID int, timestamps []dto.TimeStamp) error
}

// LectureStore records created lectures locally. A lecture whose uploads
// never complete stays marked un-uploaded: the remote id is orphaned and
// left for a later cleanup pass, never rolled back.
type LectureStore interface {
	CreateLecture(ctx context.Context, remoteId, courseId, number int, name string) (*entities.Lecture, error)
	MarkLectureUploads(ctx context.Context, id uuid.UUID, media, timestamps bool) error
}

type UploadService interface {
	Submit(ctx context.Context, req dto.UploadJobMessage) (int, error)
	ProcessUpload(ctx context.Context, message dto.UploadJobMessage) error
}

type uploadService struct {
	api   ArchiveClient
	repo  repository.JobRepository
	store LectureStore
}

// NewUploadService builds the coordinator. repo may be nil when running
// without a database (local publish from the CLI); the lecture audit trail
// is skipped in that case.
func NewUploadService(api ArchiveClient, repo repository.JobRepository) UploadService {
	var store LectureStore
	if repo != nil {
		store = repo
	}
	return &uploadService{
		api:   api,
		repo:  repo,
		store: store,
	}
}

// Submit publishes a finished recording: create the lecture, then upload
// media and, when a sibling timestamp log exists, the timestamp sequence.
// The two uploads run concurrently once the lecture id is known. Returns
// the remote lecture id.
func (s *uploadService) Submit(ctx context.Context, req dto.UploadJobMessage) (int, error) {
	if _, err := os.Stat(req.FilePath); err != nil {
		return 0, fmt.Errorf("media file not found: %w", err)
	}

	timestamps, logPath, err := loadSiblingTimestamps(req.FilePath)
	if err != nil {
		// A malformed or missing log is not an error for the submit itself.
		zerolog.Ctx(ctx).Warn().Err(err).Str("log_path", logPath).Msg("proceeding without timestamps")
		timestamps = nil
	}

	courseId := req.CourseId
	if courseId == 0 {
		courseId = defaultCourseId
	}

	lectureId, err := s.api.CreateLecture(ctx, courseId, req.LectureNumber, req.LectureName)
	if err != nil {
		return 0, fmt.Errorf("create lecture: %w", err)
	}

	var record *entities.Lecture
	if s.store != nil {
		record, err = s.store.CreateLecture(ctx, lectureId, courseId, req.LectureNumber, req.LectureName)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Int("lecture_id", lectureId).Msg("failed to record lecture locally")
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.api.UploadMedia(gctx, lectureId, req.FilePath)
	})
	if timestamps != nil {
		g.Go(func() error {
			return s.api.UploadTimestamps(gctx, lectureId, timestamps)
		})
	}
	if req.PDFPath != "" {
		g.Go(func() error {
			return s.api.UploadPDF(gctx, lectureId, req.PDFPath)
		})
	}

	if err := g.Wait(); err != nil {
		return lectureId, fmt.Errorf("upload for lecture %d failed: %w", lectureId, err)
	}

	if s.store != nil && record != nil {
		if err := s.store.MarkLectureUploads(ctx, record.ID, true, timestamps != nil); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to mark lecture uploads")
		}
	}

	zerolog.Ctx(ctx).Info().
		Int("lecture_id", lectureId).
		Str("media", req.FilePath).
		Bool("with_timestamps", timestamps != nil).
		Msg("upload completed")
	return lectureId, nil
}

// ProcessUpload runs Submit as a queue job with the usual status tracking.
// Upload failures are terminal for the job; completed steps are not rolled
// back and the queue does not redeliver.
func (s *uploadService) ProcessUpload(ctx context.Context, message dto.UploadJobMessage) (err error) {
	zerolog.Ctx(ctx).Info().
		Str("job_id", message.JobId.String()).
		Str("file", message.FilePath).
		Msg("processing upload job")

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

	// Upload failures are never redelivered; the job goes straight to FAILED.
	defer func() {
		if err != nil {
			if updateErr := s.repo.UpdateStatusJob(ctx, constant.JobStatusFailed, message.JobId); updateErr != nil {
				zerolog.Ctx(ctx).Error().Err(updateErr).Msg("failed to update job status")
			}
			err = nil
		}
	}()

	if _, err = s.Submit(ctx, message); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("upload job failed")
		return err
	}

	if err = s.repo.UpdateStatusJob(ctx, constant.JobStatusCompleted, message.JobId); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to update job status")
		return err
	}

	zerolog.Ctx(ctx).Info().Str("job_id", message.JobId.String()).Msg("upload job completed")
	return nil
}

// TimestampLogPath derives the sibling timestamp-log path for a media file:
// same directory, vid- prefix replaced with time-, .json extension.
func TimestampLogPath(mediaPath string) string {
	dir := filepath.Dir(mediaPath)
	base := filepath.Base(mediaPath)
	name := strings.Replace(base, "vid-", "time-", 1)
	name = strings.TrimSuffix(name, filepath.Ext(name)) + ".json"
	return filepath.Join(dir, name)
}

func loadSiblingTimestamps(mediaPath string) ([]dto.TimeStamp, string, error) {
	logPath := TimestampLogPath(mediaPath)
	data, err := os.ReadFile(logPath)
	if err != nil {
		return nil, logPath, err
	}
	var timestamps []dto.TimeStamp
	if err := json.Unmarshal(data, &timestamps); err != nil {
		return nil, logPath, fmt.Errorf("parse timestamp log: %w", err)
	}
	if timestamps == nil {
		timestamps = []dto.TimeStamp{}
	}
	return timestamps, logPath, nil
}
