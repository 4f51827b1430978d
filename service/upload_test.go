package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/google/uuid"

	"covod-recorder/dto"
	"covod-recorder/entities"
)

type fakeArchive struct {
	mu sync.Mutex

	lectureId int
	createErr error
	mediaErr  error

	createCalls     int
	mediaLectureIds []int
	mediaPaths      []string
	pdfLectureIds   []int
	tsLectureIds    []int
	tsUploads       [][]dto.TimeStamp
}

func (f *fakeArchive) CreateLecture(ctx context.Context, courseID, number int, name string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return 0, f.createErr
	}
	return f.lectureId, nil
}

func (f *fakeArchive) UploadMedia(ctx context.Context, lectureID int, mediaPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mediaLectureIds = append(f.mediaLectureIds, lectureID)
	f.mediaPaths = append(f.mediaPaths, mediaPath)
	return f.mediaErr
}

func (f *fakeArchive) UploadPDF(ctx context.Context, lectureID int, pdfPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pdfLectureIds = append(f.pdfLectureIds, lectureID)
	return nil
}

func (f *fakeArchive) UploadTimestamps(ctx context.Context, lectureID int, timestamps []dto.TimeStamp) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tsLectureIds = append(f.tsLectureIds, lectureID)
	f.tsUploads = append(f.tsUploads, timestamps)
	return nil
}

type fakeStore struct {
	created []entities.Lecture
	marked  bool
}

func (f *fakeStore) CreateLecture(ctx context.Context, remoteId, courseId, number int, name string) (*entities.Lecture, error) {
	lecture := entities.Lecture{ID: uuid.New(), RemoteId: remoteId, CourseId: courseId, Number: number, Name: name}
	f.created = append(f.created, lecture)
	return &lecture, nil
}

func (f *fakeStore) MarkLectureUploads(ctx context.Context, id uuid.UUID, media, timestamps bool) error {
	f.marked = true
	return nil
}

func writeMediaFixture(t *testing.T, withTimestamps bool, timestamps []dto.TimeStamp) string {
	t.Helper()
	dir := t.TempDir()
	mediaPath := filepath.Join(dir, "vid-1590000000000.mp4")
	if err := os.WriteFile(mediaPath, []byte("not really a video"), 0644); err != nil {
		t.Fatal(err)
	}
	if withTimestamps {
		data, err := json.MarshalIndent(timestamps, "", "   ")
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "time-1590000000000.json"), data, 0644); err != nil {
			t.Fatal(err)
		}
	}
	return mediaPath
}

func TestSubmit_UploadsMediaAndTimestampsWithLectureId(t *testing.T) {
	timestamps := []dto.TimeStamp{{Time: 0, Page: 1}, {Time: 12, Page: 2}}
	mediaPath := writeMediaFixture(t, true, timestamps)

	api := &fakeArchive{lectureId: 42}
	store := &fakeStore{}
	s := &uploadService{api: api, store: store}

	lectureId, err := s.Submit(context.Background(), dto.UploadJobMessage{
		FilePath:      mediaPath,
		LectureNumber: 3,
		LectureName:   "Intro",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if lectureId != 42 {
		t.Errorf("lecture id = %d, want 42", lectureId)
	}
	if got := api.mediaLectureIds; len(got) != 1 || got[0] != 42 {
		t.Errorf("media uploads = %v, want [42]", got)
	}
	if got := api.tsLectureIds; len(got) != 1 || got[0] != 42 {
		t.Errorf("timestamp uploads = %v, want [42]", got)
	}
	if !reflect.DeepEqual(api.tsUploads[0], timestamps) {
		t.Errorf("uploaded timestamps = %+v, want %+v", api.tsUploads[0], timestamps)
	}
	if !store.marked {
		t.Error("lecture uploads not marked in store")
	}
}

func TestSubmit_MissingMediaMakesNoNetworkCalls(t *testing.T) {
	api := &fakeArchive{lectureId: 42}
	s := &uploadService{api: api}

	_, err := s.Submit(context.Background(), dto.UploadJobMessage{
		FilePath:      filepath.Join(t.TempDir(), "vid-none.mp4"),
		LectureNumber: 1,
		LectureName:   "Ghost",
	})
	if err == nil {
		t.Fatal("Submit with missing media should fail")
	}
	if api.createCalls != 0 || len(api.mediaLectureIds) != 0 || len(api.tsLectureIds) != 0 {
		t.Error("no network calls expected for a missing media file")
	}
}

func TestSubmit_MissingTimestampLogIsNotAnError(t *testing.T) {
	mediaPath := writeMediaFixture(t, false, nil)

	api := &fakeArchive{lectureId: 7}
	s := &uploadService{api: api}

	lectureId, err := s.Submit(context.Background(), dto.UploadJobMessage{
		FilePath:      mediaPath,
		LectureNumber: 2,
		LectureName:   "No Slides",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if lectureId != 7 {
		t.Errorf("lecture id = %d, want 7", lectureId)
	}
	if len(api.tsLectureIds) != 0 {
		t.Error("timestamp upload should be skipped without a sibling log")
	}
}

func TestSubmit_PDFUploadedWhenProvided(t *testing.T) {
	mediaPath := writeMediaFixture(t, false, nil)
	pdfPath := filepath.Join(filepath.Dir(mediaPath), "slides.pdf")
	if err := os.WriteFile(pdfPath, []byte("%PDF-1.4"), 0644); err != nil {
		t.Fatal(err)
	}

	api := &fakeArchive{lectureId: 9}
	s := &uploadService{api: api}

	if _, err := s.Submit(context.Background(), dto.UploadJobMessage{
		FilePath:      mediaPath,
		PDFPath:       pdfPath,
		LectureNumber: 4,
		LectureName:   "With Slides",
	}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if got := api.pdfLectureIds; len(got) != 1 || got[0] != 9 {
		t.Errorf("pdf uploads = %v, want [9]", got)
	}
}

func TestSubmit_CreateLectureFailureStopsUploads(t *testing.T) {
	mediaPath := writeMediaFixture(t, false, nil)

	api := &fakeArchive{createErr: errors.New("backend down")}
	s := &uploadService{api: api}

	if _, err := s.Submit(context.Background(), dto.UploadJobMessage{
		FilePath:      mediaPath,
		LectureNumber: 1,
		LectureName:   "Doomed",
	}); err == nil {
		t.Fatal("Submit should fail when lecture creation fails")
	}
	if len(api.mediaLectureIds) != 0 {
		t.Error("media must not be uploaded when lecture creation failed")
	}
}

func TestSubmit_MediaUploadFailureSurfacesError(t *testing.T) {
	mediaPath := writeMediaFixture(t, false, nil)

	api := &fakeArchive{lectureId: 13, mediaErr: errors.New("connection reset")}
	s := &uploadService{api: api}

	lectureId, err := s.Submit(context.Background(), dto.UploadJobMessage{
		FilePath:      mediaPath,
		LectureNumber: 1,
		LectureName:   "Partial",
	})
	if err == nil {
		t.Fatal("Submit should surface the upload failure")
	}
	// The lecture was created; it stays orphaned rather than rolled back.
	if lectureId != 13 {
		t.Errorf("lecture id = %d, want 13", lectureId)
	}
}

func TestTimestampLogPath(t *testing.T) {
	tests := []struct {
		media string
		want  string
	}{
		{"/rec/vid-1590000000000.mp4", "/rec/time-1590000000000.json"},
		{"vid-1.mp4", "time-1.json"},
		{"/rec/lecture.mp4", "/rec/lecture.json"},
	}
	for _, tt := range tests {
		if got := TimestampLogPath(tt.media); got != tt.want {
			t.Errorf("TimestampLogPath(%q) = %q, want %q", tt.media, got, tt.want)
		}
	}
}
