package covod

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"covod-recorder/config"
	"covod-recorder/dto"
)

// backendStub is a scripted archive backend. Each endpoint's behavior can
// be flipped between calls to drive the token-lifecycle scenarios.
type backendStub struct {
	mu sync.Mutex

	tokenStatus  int
	checkStatus  int
	lectureId    int
	lectureCode  int
	uploadCode   int
	tokenCalls   int
	checkCalls   int
	lectureCalls int
	uploadCalls  int
	tsCalls      int

	lastTokenForm     url.Values
	lastLectureBody   map[string]interface{}
	lastUploadName    string
	lastUploadContent []byte
	lastTimestamps    []dto.TimeStamp
	lastAuth          string
}

func newBackendStub() *backendStub {
	return &backendStub{
		tokenStatus: http.StatusOK,
		checkStatus: http.StatusOK,
		lectureId:   1,
		lectureCode: http.StatusOK,
		uploadCode:  http.StatusOK,
	}
}

func (b *backendStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.tokenCalls++
		r.ParseForm()
		b.lastTokenForm = r.PostForm
		if b.tokenStatus != http.StatusOK {
			w.WriteHeader(b.tokenStatus)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-123"})
	})
	mux.HandleFunc("/oauth2/check_token", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.checkCalls++
		b.lastAuth = r.Header.Get("Authorization")
		w.WriteHeader(b.checkStatus)
	})
	mux.HandleFunc("/api/v1/lecture/0", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.lectureCalls++
		b.lastAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&b.lastLectureBody)
		if b.lectureCode != http.StatusOK {
			w.WriteHeader(b.lectureCode)
			return
		}
		json.NewEncoder(w).Encode(map[string]int{"id": b.lectureId})
	})
	mux.HandleFunc("/api/v1/lecture/", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if strings.HasSuffix(r.URL.Path, "/timestamps") {
			b.tsCalls++
			json.NewDecoder(r.Body).Decode(&b.lastTimestamps)
		} else {
			b.uploadCalls++
			file, header, err := r.FormFile("file")
			if err == nil {
				b.lastUploadName = header.Filename
				b.lastUploadContent, _ = io.ReadAll(file)
				file.Close()
			}
		}
		if b.uploadCode != http.StatusOK {
			w.WriteHeader(b.uploadCode)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func newTestClient(t *testing.T, stub *backendStub) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(stub.handler())
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	client := NewClient(config.API{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Scope:        "upload view",
		Version:      "v1",
	})
	client.SetEndpoint(u.Hostname(), u.Port(), false)
	return client, server
}

func TestLogin_EmptyCredentialsFailFast(t *testing.T) {
	stub := newBackendStub()
	client, _ := newTestClient(t, stub)

	for _, creds := range [][2]string{{"", "pw"}, {"user", ""}, {"", ""}} {
		ok, err := client.Login(context.Background(), creds[0], creds[1])
		if err != nil || ok {
			t.Errorf("Login(%q, %q) = (%v, %v), want (false, nil)", creds[0], creds[1], ok, err)
		}
	}
	if stub.tokenCalls != 0 {
		t.Errorf("token endpoint hit %d times, want 0", stub.tokenCalls)
	}
}

func TestLogin_SuccessStoresTokenAndConnects(t *testing.T) {
	stub := newBackendStub()
	client, _ := newTestClient(t, stub)

	ok, err := client.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !ok {
		t.Fatal("Login = false, want true")
	}
	if !client.Connected() {
		t.Error("client must be connected after a successful login")
	}
	form := stub.lastTokenForm
	if form.Get("grant_type") != "password" || form.Get("username") != "alice" || form.Get("password") != "secret" {
		t.Errorf("token form = %v, want password grant with credentials", form)
	}
	if form.Get("client_id") != "client-id" || form.Get("client_secret") != "client-secret" {
		t.Error("token form must carry the fixed client identity")
	}
	if form.Get("scope") != "upload view" {
		t.Errorf("scope = %q, want %q", form.Get("scope"), "upload view")
	}
}

func TestLogin_RejectedCredentials(t *testing.T) {
	stub := newBackendStub()
	stub.tokenStatus = http.StatusUnauthorized
	client, _ := newTestClient(t, stub)

	ok, err := client.Login(context.Background(), "alice", "wrong")
	if err != nil {
		t.Fatalf("credential rejection must not surface as a transport error: %v", err)
	}
	if ok || client.Connected() {
		t.Error("Login with rejected credentials must leave the client disconnected")
	}
}

func TestAuthenticatedCall_FailsImmediatelyWhenNeverConnected(t *testing.T) {
	stub := newBackendStub()
	client, _ := newTestClient(t, stub)

	_, err := client.CreateLecture(context.Background(), 1, 1, "Intro")
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("CreateLecture before login = %v, want ErrNotConnected", err)
	}
	if stub.checkCalls != 0 || stub.lectureCalls != 0 {
		t.Error("no network calls expected before a login")
	}
}

func TestPreflight_InvalidTokenThenSuccessfulReconnect(t *testing.T) {
	stub := newBackendStub()
	client, _ := newTestClient(t, stub)

	if ok, _ := client.Login(context.Background(), "alice", "secret"); !ok {
		t.Fatal("login failed")
	}

	stub.mu.Lock()
	stub.checkStatus = http.StatusUnauthorized
	stub.lectureId = 42
	stub.mu.Unlock()

	id, err := client.CreateLecture(context.Background(), 1, 3, "Intro")
	if err != nil {
		t.Fatalf("CreateLecture after reconnect failed: %v", err)
	}
	if id != 42 {
		t.Errorf("lecture id = %d, want 42", id)
	}
	// One exchange for the login, one for the pre-flight reconnect.
	if stub.tokenCalls != 2 {
		t.Errorf("token exchanges = %d, want 2", stub.tokenCalls)
	}
}

func TestPreflight_InvalidTokenAndFailedReconnect(t *testing.T) {
	stub := newBackendStub()
	client, _ := newTestClient(t, stub)

	if ok, _ := client.Login(context.Background(), "alice", "secret"); !ok {
		t.Fatal("login failed")
	}

	stub.mu.Lock()
	stub.checkStatus = http.StatusUnauthorized
	stub.tokenStatus = http.StatusUnauthorized
	stub.mu.Unlock()

	_, err := client.CreateLecture(context.Background(), 1, 3, "Intro")
	if !errors.Is(err, ErrUnableToConnect) {
		t.Errorf("CreateLecture = %v, want ErrUnableToConnect", err)
	}
	if stub.lectureCalls != 0 {
		t.Error("the authenticated request must not be made after a failed reconnect")
	}
	// Exactly one re-authentication attempt per call.
	if stub.tokenCalls != 2 {
		t.Errorf("token exchanges = %d, want 2 (login + one retry)", stub.tokenCalls)
	}
}

func TestCreateLecture_SendsBodyAndBearer(t *testing.T) {
	stub := newBackendStub()
	stub.lectureId = 7
	client, _ := newTestClient(t, stub)
	if ok, _ := client.Login(context.Background(), "alice", "secret"); !ok {
		t.Fatal("login failed")
	}

	id, err := client.CreateLecture(context.Background(), 2, 5, "Graphs")
	if err != nil {
		t.Fatalf("CreateLecture failed: %v", err)
	}
	if id != 7 {
		t.Errorf("lecture id = %d, want 7", id)
	}
	if stub.lastAuth != "bearer tok-123" {
		t.Errorf("auth header = %q, want bearer token", stub.lastAuth)
	}
	want := map[string]interface{}{"course_id": float64(2), "number": float64(5), "name": "Graphs"}
	if !reflect.DeepEqual(stub.lastLectureBody, want) {
		t.Errorf("lecture body = %v, want %v", stub.lastLectureBody, want)
	}
}

func TestCreateLecture_ErrorCarriesEndpointAndStatus(t *testing.T) {
	stub := newBackendStub()
	stub.lectureCode = http.StatusInternalServerError
	client, _ := newTestClient(t, stub)
	if ok, _ := client.Login(context.Background(), "alice", "secret"); !ok {
		t.Fatal("login failed")
	}

	_, err := client.CreateLecture(context.Background(), 1, 1, "Broken")
	if err == nil {
		t.Fatal("CreateLecture should fail on status 500")
	}
	if !strings.Contains(err.Error(), "/lecture/0") || !strings.Contains(err.Error(), "500") {
		t.Errorf("error %q must name the endpoint and the status", err)
	}
}

func TestUploadMedia_StreamsMultipartFile(t *testing.T) {
	stub := newBackendStub()
	client, _ := newTestClient(t, stub)
	if ok, _ := client.Login(context.Background(), "alice", "secret"); !ok {
		t.Fatal("login failed")
	}

	mediaPath := filepath.Join(t.TempDir(), "vid-1590000000000.mp4")
	if err := os.WriteFile(mediaPath, []byte("binary video payload"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := client.UploadMedia(context.Background(), 42, mediaPath); err != nil {
		t.Fatalf("UploadMedia failed: %v", err)
	}
	if stub.lastUploadName != "vid-1590000000000.mp4" {
		t.Errorf("uploaded filename = %q", stub.lastUploadName)
	}
	if string(stub.lastUploadContent) != "binary video payload" {
		t.Errorf("uploaded content = %q", stub.lastUploadContent)
	}
}

func TestUploadMedia_MissingFile(t *testing.T) {
	stub := newBackendStub()
	client, _ := newTestClient(t, stub)
	if ok, _ := client.Login(context.Background(), "alice", "secret"); !ok {
		t.Fatal("login failed")
	}

	err := client.UploadMedia(context.Background(), 42, filepath.Join(t.TempDir(), "missing.mp4"))
	if err == nil {
		t.Fatal("UploadMedia with a missing file should fail")
	}
	if stub.uploadCalls != 0 {
		t.Error("no upload request expected for a missing file")
	}
}

func TestUploadTimestamps_SendsOrderedJSONArray(t *testing.T) {
	stub := newBackendStub()
	client, _ := newTestClient(t, stub)
	if ok, _ := client.Login(context.Background(), "alice", "secret"); !ok {
		t.Fatal("login failed")
	}

	timestamps := []dto.TimeStamp{{Time: 0, Page: 1}, {Time: 4, Page: 2}, {Time: 90, Page: 3}}
	if err := client.UploadTimestamps(context.Background(), 42, timestamps); err != nil {
		t.Fatalf("UploadTimestamps failed: %v", err)
	}
	if !reflect.DeepEqual(stub.lastTimestamps, timestamps) {
		t.Errorf("received timestamps = %+v, want %+v", stub.lastTimestamps, timestamps)
	}
}

func TestUploadPDF_TargetsPdfEndpoint(t *testing.T) {
	stub := newBackendStub()
	client, _ := newTestClient(t, stub)
	if ok, _ := client.Login(context.Background(), "alice", "secret"); !ok {
		t.Fatal("login failed")
	}

	pdfPath := filepath.Join(t.TempDir(), "slides.pdf")
	if err := os.WriteFile(pdfPath, []byte("%PDF-1.4"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := client.UploadPDF(context.Background(), 42, pdfPath); err != nil {
		t.Fatalf("UploadPDF failed: %v", err)
	}
	if stub.lastUploadName != "slides.pdf" {
		t.Errorf("uploaded filename = %q", stub.lastUploadName)
	}
}

func TestSetEndpoint_SwitchesBackendWithoutDroppingToken(t *testing.T) {
	stub := newBackendStub()
	client, _ := newTestClient(t, stub)
	if ok, _ := client.Login(context.Background(), "alice", "secret"); !ok {
		t.Fatal("login failed")
	}

	// Repointing the client does not invalidate the issued token.
	client.SetEndpoint("elsewhere.example", "9999", true)
	if !client.Connected() {
		t.Error("client must stay connected after an endpoint change")
	}
	if client.Protocol != "https" {
		t.Errorf("protocol = %s, want https", client.Protocol)
	}
}
