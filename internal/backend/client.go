// Package backend is the HTTP client for the remote render service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/heimdex/clipdesk/internal/ident"
	"github.com/heimdex/clipdesk/internal/logging"
	"github.com/heimdex/clipdesk/internal/render"
)

const (
	maxRecordBody = 4 << 20
	maxErrorBody  = 4096
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Detail     string
	Body       string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend request failed: HTTP %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("backend request failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// RenderResult is the success body of POST /render.
type RenderResult struct {
	OutputURL string `json:"output_url"`
}

// Client talks to the render backend.
type Client struct {
	baseURL    string
	token      string
	deviceID   string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (c *Client) SetDeviceID(id string) {
	c.deviceID = id
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) ListProjects(ctx context.Context) ([]ident.Record, error) {
	var out []ident.Record
	if err := c.do(ctx, http.MethodGet, "/projects", nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateProject(ctx context.Context, title, description string) (ident.Record, error) {
	body, contentType, err := multipartBody(func(w *multipart.Writer) error {
		if err := w.WriteField("title", title); err != nil {
			return err
		}
		return w.WriteField("description", description)
	})
	if err != nil {
		return nil, fmt.Errorf("build project form: %w", err)
	}

	var out ident.Record
	if err := c.do(ctx, http.MethodPost, "/projects", body, contentType, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UploadAsset streams content as the "file" part of a multipart upload.
func (c *Client) UploadAsset(ctx context.Context, projectID, filename string, content io.Reader) (ident.Record, error) {
	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)

	go func() {
		err := func() error {
			if err := mw.WriteField("project_id", projectID); err != nil {
				return err
			}
			part, err := mw.CreateFormFile("file", filename)
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, content); err != nil {
				return err
			}
			return mw.Close()
		}()
		pw.CloseWithError(err)
	}()

	c.logger.Info("uploading asset", "project_id", projectID, "filename", filename)

	var out ident.Record
	if err := c.do(ctx, http.MethodPost, "/assets/upload", pr, mw.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListAssets(ctx context.Context, projectID string) ([]ident.Record, error) {
	var out []ident.Record
	path := "/projects/" + url.PathEscape(projectID) + "/assets"
	if err := c.do(ctx, http.MethodGet, path, nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Render(ctx context.Context, req render.Request) (*RenderResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal render request: %w", err)
	}

	c.logger.Info("submitting render",
		"project_id", req.ProjectID,
		"asset_id", req.AssetID,
		"body_bytes", len(body),
	)

	var out RenderResult
	if err := c.do(ctx, http.MethodPost, "/render", bytes.NewReader(body), "application/json", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Clipdesk-Request-Id", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.deviceID != "" {
		req.Header.Set("X-Clipdesk-Device-Id", c.deviceID)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("backend response",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			StatusCode: resp.StatusCode,
			Detail:     parseDetail(respBody),
			Body:       string(respBody),
		}
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, maxRecordBody))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// parseDetail extracts the "detail" member of an error body. Structured
// details (validation error lists) are returned as compact JSON.
func parseDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(payload.Detail, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload.Detail); err != nil {
		return string(payload.Detail)
	}
	return buf.String()
}

func multipartBody(fill func(*multipart.Writer) error) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := fill(w); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
