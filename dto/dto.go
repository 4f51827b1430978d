package dto

import "github.com/google/uuid"

type MergeJobMessage struct {
	JobId       uuid.UUID `json:"jobId"`
	SessionKey  string    `json:"sessionKey"`
	VideoObject string    `json:"videoObject"`
	AudioObject string    `json:"audioObject"`
}

type UploadJobMessage struct {
	JobId         uuid.UUID `json:"jobId"`
	FilePath      string    `json:"filePath"`
	PDFPath       string    `json:"pdfPath,omitempty"`
	CourseId      int       `json:"courseId"`
	LectureNumber int       `json:"lectureNumber"`
	LectureName   string    `json:"lectureName"`
}

// TimeStamp is one entry of a session's page-change log. Time is whole
// seconds since recording start.
type TimeStamp struct {
	Time        int    `json:"time"`
	Page        int    `json:"page,omitempty"`
	Chapter     int    `json:"chapter,omitempty"`
	Description string `json:"description,omitempty"`
}
