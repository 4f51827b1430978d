// Package covod implements the authenticated client for the CoVoD
// lecture-archive backend: oauth2 password-grant token handling, lecture
// creation and artifact uploads.
package covod

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"covod-recorder/config"
	"covod-recorder/dto"
)

var (
	// ErrNotConnected is returned when an authenticated call is attempted
	// before a successful login.
	ErrNotConnected = errors.New("not connected to API")

	// ErrUnableToConnect is returned when the pre-flight token check failed
	// and the single re-authentication attempt failed as well.
	ErrUnableToConnect = errors.New("unable to connect to API")

	// errAuthRejected marks a credential rejection during the token
	// exchange, as opposed to a transport failure.
	errAuthRejected = errors.New("authentication rejected")
)

type credentials struct {
	username string
	password string
}

// Client talks to one archive backend instance. Hostname, port and protocol
// may be changed via SetEndpoint before first use; doing so mid-session does
// not invalidate an already-issued token.
type Client struct {
	Hostname string
	Port     string
	Protocol string

	version      string
	clientID     string
	clientSecret string
	scope        string

	httpClient *http.Client

	// mu guards token, connected and creds. ensureConnected holds it across
	// the check-then-reconnect sequence so concurrent calls cannot race a
	// stale token into two failed re-authentications.
	mu        sync.Mutex
	token     string
	connected bool
	creds     credentials
}

func NewClient(cfg config.API) *Client {
	protocol := "http"
	if cfg.Secure {
		protocol = "https"
	}
	version := cfg.Version
	if version == "" {
		version = "v1"
	}
	return &Client{
		Hostname:     cfg.Hostname,
		Port:         cfg.Port,
		Protocol:     protocol,
		version:      version,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		scope:        cfg.Scope,
		httpClient:   &http.Client{},
	}
}

// SetEndpoint points the client at a different backend instance.
func (c *Client) SetEndpoint(hostname, port string, secure bool) {
	c.Hostname = hostname
	c.Port = port
	if secure {
		c.Protocol = "https"
	} else {
		c.Protocol = "http"
	}
}

func (c *Client) baseURL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Hostname, c.Port)
}

func (c *Client) apiURL(path string) string {
	return fmt.Sprintf("%s/api/%s%s", c.baseURL(), c.version, path)
}

// Connected reports whether the session currently holds a token.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Login stores the credentials and performs the token exchange. Empty
// username or password fails fast without a network call. A credential
// rejection returns (false, nil); transport failures return the error.
func (c *Client) Login(ctx context.Context, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = credentials{username: username, password: password}

	if err := c.connectLocked(ctx); err != nil {
		if errors.Is(err, errAuthRejected) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// connectLocked exchanges the stored credentials for a token. Caller must
// hold c.mu.
func (c *Client) connectLocked(ctx context.Context) error {
	token, status, err := c.generateToken(ctx)
	if err != nil {
		c.connected = false
		return err
	}
	if status != http.StatusOK {
		c.connected = false
		return fmt.Errorf("%w: token endpoint returned status %d", errAuthRejected, status)
	}
	c.token = token
	c.connected = true
	return nil
}

func (c *Client) generateToken(ctx context.Context) (string, int, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", c.clientID)
	form.Set("username", c.creds.username)
	form.Set("password", c.creds.password)
	form.Set("client_secret", c.clientSecret)
	form.Set("scope", c.scope)

	endpoint := c.baseURL() + "/oauth2/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token exchange: %w", err)
	}
	defer res.Body.Close()

	zerolog.Ctx(ctx).Debug().Int("status", res.StatusCode).Msg("token exchange response")
	if res.StatusCode != http.StatusOK {
		return "", res.StatusCode, nil
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return "", res.StatusCode, fmt.Errorf("decode token response: %w", err)
	}
	return body.AccessToken, res.StatusCode, nil
}

// CheckToken probes the token-validation endpoint. Only HTTP 200 counts as
// valid; transport errors are treated as invalid.
func (c *Client) CheckToken(ctx context.Context, token string) bool {
	endpoint := c.baseURL() + "/oauth2/check_token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "bearer "+token)

	res, err := c.httpClient.Do(req)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("token check failed")
		return false
	}
	defer res.Body.Close()
	return res.StatusCode == http.StatusOK
}

// ensureConnected applies the pre-flight policy for every authenticated
// call: fail immediately when never connected, probe the current token and
// re-authenticate exactly once when it is invalid.
func (c *Client) ensureConnected(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return "", ErrNotConnected
	}
	if c.CheckToken(ctx, c.token) {
		return c.token, nil
	}
	if err := c.connectLocked(ctx); err != nil {
		return "", errors.Join(ErrUnableToConnect, err)
	}
	return c.token, nil
}

// CreateLecture registers a new lecture and returns the server-assigned id.
func (c *Client) CreateLecture(ctx context.Context, courseID, number int, name string) (int, error) {
	token, err := c.ensureConnected(ctx)
	if err != nil {
		return 0, err
	}

	payload, err := json.Marshal(map[string]interface{}{
		"course_id": courseID,
		"number":    number,
		"name":      name,
	})
	if err != nil {
		return 0, err
	}

	endpoint := c.apiURL("/lecture/0")
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("create lecture: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		return 0, apiError(endpoint, res.StatusCode)
	}

	var body struct {
		Id int `json:"id"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode lecture response: %w", err)
	}

	zerolog.Ctx(ctx).Info().Int("lecture_id", body.Id).Msg("lecture created")
	return body.Id, nil
}

// UploadMedia streams the media file as multipart form content to the
// lecture's media endpoint.
func (c *Client) UploadMedia(ctx context.Context, lectureID int, mediaPath string) error {
	return c.uploadFile(ctx, fmt.Sprintf("/lecture/%d/media", lectureID), mediaPath)
}

// UploadPDF streams the slide PDF to the lecture's pdf endpoint.
func (c *Client) UploadPDF(ctx context.Context, lectureID int, pdfPath string) error {
	return c.uploadFile(ctx, fmt.Sprintf("/lecture/%d/pdf", lectureID), pdfPath)
}

func (c *Client) uploadFile(ctx context.Context, path, filePath string) error {
	token, err := c.ensureConnected(ctx)
	if err != nil {
		return err
	}

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open upload file: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		part, err := writer.CreateFormFile("file", filepath.Base(filePath))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(writer.Close())
	}()

	endpoint := c.apiURL(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "bearer "+token)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		return apiError(endpoint, res.StatusCode)
	}

	zerolog.Ctx(ctx).Info().Str("file", filepath.Base(filePath)).Str("endpoint", endpoint).Msg("file uploaded")
	return nil
}

// UploadTimestamps submits the ordered event sequence as a JSON array.
func (c *Client) UploadTimestamps(ctx context.Context, lectureID int, timestamps []dto.TimeStamp) error {
	token, err := c.ensureConnected(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(timestamps)
	if err != nil {
		return err
	}

	endpoint := c.apiURL(fmt.Sprintf("/lecture/%d/timestamps", lectureID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload timestamps: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		return apiError(endpoint, res.StatusCode)
	}

	zerolog.Ctx(ctx).Info().Int("lecture_id", lectureID).Int("count", len(timestamps)).Msg("timestamps uploaded")
	return nil
}

func apiError(endpoint string, status int) error {
	return fmt.Errorf("%s: unexpected status %d", endpoint, status)
}
