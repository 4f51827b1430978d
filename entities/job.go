package entities

import (
	"time"

	"github.com/google/uuid"

	"covod-recorder/constant"
)

type Job struct {
	ID         uuid.UUID          `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SessionKey string             `json:"session_key" gorm:"type:varchar(32);index:idx_jobs_session_key"`
	Status     constant.JobStatus `json:"status"`
	JobType    constant.JobType   `json:"job_type"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

func (Job) TableName() string {
	return "jobs"
}
