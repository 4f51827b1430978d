package entities

import (
	"time"

	"github.com/google/uuid"

	"covod-recorder/constant"
)

type RecordingSession struct {
	ID              uuid.UUID               `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SessionKey      string                  `json:"session_key" gorm:"type:varchar(32);not null;uniqueIndex:unique_session_key"`
	State           constant.RecordingState `json:"state" gorm:"type:varchar(20);not null;default:'IDLE'"`
	VideoObject     *string                 `json:"video_object" gorm:"type:varchar(500)"`
	AudioObject     *string                 `json:"audio_object" gorm:"type:varchar(500)"`
	MergedObject    *string                 `json:"merged_object" gorm:"type:varchar(500)"`
	DurationSeconds *int                    `json:"duration_seconds" gorm:"type:integer"`
	TimestampCount  int                     `json:"timestamp_count" gorm:"type:integer;default:0"`
	StartedAt       *time.Time              `json:"started_at" gorm:"type:timestamptz"`
	StoppedAt       *time.Time              `json:"stopped_at" gorm:"type:timestamptz"`
	CreatedAt       time.Time               `json:"created_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time               `json:"updated_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
}

func (RecordingSession) TableName() string {
	return "recording_sessions"
}
