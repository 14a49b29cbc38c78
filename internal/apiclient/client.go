// Package apiclient wraps the remote LMS REST API consumed by the agent.
// The bearer token lives on the client instance, never in process-global
// state, so two sessions can never race on a shared default header.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// StatusError is a non-2xx response from the remote API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Client talks to the remote LMS API.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger

	mu    sync.RWMutex
	token string
}

// New creates a Client for the given base URL (no trailing slash).
func New(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "apiclient").Logger(),
	}
}

// SetToken installs the bearer token used for subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the currently installed bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// LoginResult is the subset of the login response the agent keeps.
type LoginResult struct {
	Token string `json:"token"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Login authenticates against POST /auth/login and installs the returned
// token on the client.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})

	var parsed struct {
		Token string `json:"token"`
		User  struct {
			Email string `json:"email"`
			Name  string `json:"name"`
		} `json:"user"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", bytes.NewReader(body), &parsed); err != nil {
		return LoginResult{}, err
	}

	c.SetToken(parsed.Token)
	return LoginResult{Token: parsed.Token, Email: parsed.User.Email, Name: parsed.User.Name}, nil
}

// SubmitAssignment uploads an assignment file as multipart form content.
// submittedAt is the client-recorded submission moment and is sent
// explicitly so the server preserves the original intent time even when the
// upload happens much later.
func (c *Client) SubmitAssignment(ctx context.Context, assessmentID int64, filePath, originalFilename string, submittedAt time.Time) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open assignment file: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("assignment_file", originalFilename)
	if err != nil {
		return fmt.Errorf("build multipart: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copy assignment file: %w", err)
	}
	if err := writer.WriteField("submitted_at", submittedAt.UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("write submitted_at field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}

	path := fmt.Sprintf("/assessments/%d/submit-assignment", assessmentID)
	req, err := c.newRequest(ctx, http.MethodPost, path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.doExpectOK(req)
}

// QuizAnswer is one answer in the server's expected ordered list shape.
type QuizAnswer struct {
	QuestionID      int64   `json:"question_id"`
	QuestionType    string  `json:"question_type"`
	SubmittedAnswer string  `json:"submitted_answer"`
	SelectedOptions []int64 `json:"selected_options"`
	IsCorrect       bool    `json:"is_correct"`
	ScoreEarned     float64 `json:"score_earned"`
}

// QuizSyncPayload is the body of POST /assessments/{id}/sync-offline-quiz.
type QuizSyncPayload struct {
	Answers     []QuizAnswer `json:"answers"`
	StartedAt   string       `json:"started_at"`
	CompletedAt string       `json:"completed_at"`
	SubmittedAt string       `json:"submitted_at"`
}

// SyncOfflineQuiz uploads a completed offline quiz attempt.
func (c *Client) SyncOfflineQuiz(ctx context.Context, assessmentID int64, payload QuizSyncPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode quiz payload: %w", err)
	}

	path := fmt.Sprintf("/assessments/%d/sync-offline-quiz", assessmentID)
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doExpectOK(req)
}

// AttemptStatus fetches the authoritative attempt/grade snapshot as an
// opaque JSON document.
func (c *Client) AttemptStatus(ctx context.Context, assessmentID int64) (json.RawMessage, error) {
	path := fmt.Sprintf("/assessments/%d/attempt-status", assessmentID)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch attempt status: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read attempt status: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}
	return json.RawMessage(raw), nil
}

// ServerTime fetches the trusted server clock from GET /time.
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	var parsed struct {
		ServerTime string `json:"server_time"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/time", nil, &parsed); err != nil {
		return time.Time{}, err
	}

	t, err := time.Parse(time.RFC3339, parsed.ServerTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse server_time: %w", err)
	}
	return t, nil
}

// Probe reports whether the remote API is reachable right now. Uses a short
// deadline independent of the client timeout so a dead link fails fast.
func (c *Client) Probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.ServerTime(probeCtx)
	return err == nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) doExpectOK(req *http.Request) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
