package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"covod-recorder/constant"
	"covod-recorder/entities"
)

type JobRepository interface {
	Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error
	GetDB() *gorm.DB
	CreateJob(ctx context.Context, jobType constant.JobType, sessionKey string) (*entities.Job, error)
	FindJobById(ctx context.Context, id uuid.UUID) (*entities.Job, error)
	UpdateStatusJob(ctx context.Context, status constant.JobStatus, id uuid.UUID) error
	CreateRecordingSession(ctx context.Context, sessionKey string, startedAt time.Time) (*entities.RecordingSession, error)
	UpdateSessionClips(ctx context.Context, sessionKey, videoObject, audioObject string, stoppedAt time.Time) error
	UpdateSessionMerged(ctx context.Context, sessionKey, mergedObject string, durationSeconds int) error
	UpdateSessionTimestampCount(ctx context.Context, sessionKey string, count int) error
	CreateLecture(ctx context.Context, remoteId, courseId, number int, name string) (*entities.Lecture, error)
	MarkLectureUploads(ctx context.Context, id uuid.UUID, media, timestamps bool) error
}

type repo struct {
	db *gorm.DB
}

func NewRepo(db *sql.DB) JobRepository {
	gormDB, _ := gorm.Open(postgres.New(postgres.Config{
		Conn: db}),
		&gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		},
	)
	return &repo{
		db: gormDB,
	}
}

func (r *repo) GetDB() *gorm.DB {
	return r.db
}

func (r *repo) Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error {
	return r.GetDB().Transaction(func(tx *gorm.DB) error {
		return callback(ctx)
	}, opts...)
}

func (r *repo) CreateJob(ctx context.Context, jobType constant.JobType, sessionKey string) (*entities.Job, error) {
	job := &entities.Job{
		ID:         uuid.New(),
		SessionKey: sessionKey,
		Status:     constant.JobStatusPending,
		JobType:    jobType,
	}
	if err := r.GetDB().Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

func (r *repo) FindJobById(ctx context.Context, id uuid.UUID) (*entities.Job, error) {
	job := &entities.Job{}
	err := r.GetDB().First(job, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (r *repo) UpdateStatusJob(ctx context.Context, status constant.JobStatus, id uuid.UUID) error {
	job := &entities.Job{}
	err := r.GetDB().First(job, "id = ?", id).Error
	if err != nil {
		return err
	}
	job.Status = status
	return r.GetDB().Save(job).Error
}

func (r *repo) CreateRecordingSession(ctx context.Context, sessionKey string, startedAt time.Time) (*entities.RecordingSession, error) {
	session := &entities.RecordingSession{
		ID:         uuid.New(),
		SessionKey: sessionKey,
		State:      constant.RecordingStateRecording,
		StartedAt:  &startedAt,
	}
	if err := r.GetDB().Create(session).Error; err != nil {
		return nil, err
	}
	return session, nil
}

func (r *repo) UpdateSessionClips(ctx context.Context, sessionKey, videoObject, audioObject string, stoppedAt time.Time) error {
	session := &entities.RecordingSession{}
	updates := map[string]interface{}{
		"state":        constant.RecordingStateStopped,
		"video_object": videoObject,
		"audio_object": audioObject,
		"stopped_at":   stoppedAt,
	}
	return r.GetDB().Model(session).Where("session_key = ?", sessionKey).Updates(updates).Error
}

func (r *repo) UpdateSessionMerged(ctx context.Context, sessionKey, mergedObject string, durationSeconds int) error {
	session := &entities.RecordingSession{}
	updates := map[string]interface{}{
		"merged_object":    mergedObject,
		"duration_seconds": durationSeconds,
	}
	return r.GetDB().Model(session).Where("session_key = ?", sessionKey).Updates(updates).Error
}

func (r *repo) UpdateSessionTimestampCount(ctx context.Context, sessionKey string, count int) error {
	session := &entities.RecordingSession{}
	return r.GetDB().Model(session).Where("session_key = ?", sessionKey).Update("timestamp_count", count).Error
}

func (r *repo) CreateLecture(ctx context.Context, remoteId, courseId, number int, name string) (*entities.Lecture, error) {
	lecture := &entities.Lecture{
		ID:       uuid.New(),
		RemoteId: remoteId,
		CourseId: courseId,
		Number:   number,
		Name:     name,
	}
	if err := r.GetDB().Create(lecture).Error; err != nil {
		return nil, err
	}
	return lecture, nil
}

func (r *repo) MarkLectureUploads(ctx context.Context, id uuid.UUID, media, timestamps bool) error {
	lecture := &entities.Lecture{}
	updates := map[string]interface{}{
		"media_uploaded":      media,
		"timestamps_uploaded": timestamps,
	}
	return r.GetDB().Model(lecture).Where("id = ?", id).Updates(updates).Error
}
