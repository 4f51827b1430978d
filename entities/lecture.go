package entities

import (
	"time"

	"github.com/google/uuid"
)

// Lecture is the local record of a lecture created on the archive backend.
// RemoteId is assigned by the backend and immutable afterwards. Rows with
// MediaUploaded=false after a failed submit are orphans on the backend and
// are kept here for a later cleanup pass.
type Lecture struct {
	ID                 uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	RemoteId           int       `json:"remote_id" gorm:"not null"`
	CourseId           int       `json:"course_id" gorm:"not null"`
	Number             int       `json:"number" gorm:"not null"`
	Name               string    `json:"name" gorm:"type:varchar(255);not null"`
	MediaUploaded      bool      `json:"media_uploaded" gorm:"default:false"`
	TimestampsUploaded bool      `json:"timestamps_uploaded" gorm:"default:false"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (Lecture) TableName() string {
	return "lectures"
}
