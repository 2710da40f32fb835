// Package client is a typed HTTP client for the Attest API.
package client

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
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/attest/internal/documents"
	"github.com/JaimeStill/attest/internal/orchestration"
	"github.com/JaimeStill/attest/internal/workflow"
	"github.com/JaimeStill/attest/pkg/pagination"
)

// DefaultBasePath is the API module prefix on the server.
const DefaultBasePath = "/api"

// ErrRequestFailed is wrapped by every error for a non-2xx response.
var ErrRequestFailed = errors.New("request failed")

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return ErrRequestFailed }

// Client calls the Attest API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Client for the server at serverURL (scheme and host, with an
// optional path that replaces the default /api base path).
func New(serverURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid server url %q", serverURL)
	}

	base := strings.TrimRight(u.String(), "/")
	if u.Path == "" || u.Path == "/" {
		base += DefaultBasePath
	}

	c := &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: 30 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the API root the client sends requests to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Upload sends the files at paths as one batch.
func (c *Client) Upload(ctx context.Context, paths ...string) (*orchestration.UploadReport, error) {
	if len(paths) == 0 {
		return nil, errors.New("no files to upload")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, p := range paths {
		if err := addFile(mw, p); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	var report orchestration.UploadReport
	if err := c.do(ctx, http.MethodPost, "/documents", mw.FormDataContentType(), &body, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func addFile(mw *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	part, err := mw.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("create form file %s: %w", path, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

// Documents lists one page of documents, optionally filtered by status.
func (c *Client) Documents(ctx context.Context, status documents.Status, page, pageSize int) (*pagination.PageResult[documents.Document], error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}

	path := "/documents"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var result pagination.PageResult[documents.Document]
	if err := c.getJSON(ctx, path, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Document returns one document.
func (c *Client) Document(ctx context.Context, id uuid.UUID) (*documents.Document, error) {
	var doc documents.Document
	if err := c.getJSON(ctx, "/documents/"+id.String(), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Remove deletes a document from the registry.
func (c *Client) Remove(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/documents/"+id.String(), "", nil, nil)
}

// State returns the combined workflow state.
func (c *Client) State(ctx context.Context) (*orchestration.State, error) {
	var state orchestration.State
	if err := c.getJSON(ctx, "/workflow", &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Regulations lists the regulations the server accepts.
func (c *Client) Regulations(ctx context.Context) ([]string, error) {
	var regs []string
	if err := c.getJSON(ctx, "/workflow/regulations", &regs); err != nil {
		return nil, err
	}
	return regs, nil
}

// Configure stores a draft company description.
func (c *Client) Configure(ctx context.Context, description string) (*orchestration.State, error) {
	return c.stateCall(ctx, http.MethodPut, "/workflow/configuration", map[string]string{
		"company_description": description,
	})
}

// RunIngestion runs ingestion. An empty description uses the stored draft.
func (c *Client) RunIngestion(ctx context.Context, description string) (*orchestration.State, error) {
	var body any
	if description != "" {
		body = map[string]string{"company_description": description}
	}
	return c.stateCall(ctx, http.MethodPost, "/workflow/ingestion", body)
}

// RunProcessing processes every uploaded document.
func (c *Client) RunProcessing(ctx context.Context) (*orchestration.State, error) {
	return c.stateCall(ctx, http.MethodPost, "/workflow/processing", nil)
}

// RunAnalysis analyzes processed documents against regulation.
func (c *Client) RunAnalysis(ctx context.Context, regulation string) (*orchestration.State, error) {
	return c.stateCall(ctx, http.MethodPost, "/workflow/analysis", map[string]string{
		"regulation": regulation,
	})
}

// Cancel fails a running stage.
func (c *Client) Cancel(ctx context.Context, stage workflow.Stage, reason string) (*orchestration.State, error) {
	var body any
	if reason != "" {
		body = map[string]string{"reason": reason}
	}
	return c.stateCall(ctx, http.MethodPost, "/workflow/"+string(stage)+"/cancel", body)
}

// Reset returns stage and its downstream stages to pending.
func (c *Client) Reset(ctx context.Context, stage workflow.Stage) (*orchestration.State, error) {
	return c.stateCall(ctx, http.MethodPost, "/workflow/"+string(stage)+"/reset", nil)
}

func (c *Client) stateCall(ctx context.Context, method, path string, body any) (*orchestration.State, error) {
	var (
		reader      io.Reader
		contentType string
	)
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}

	var state orchestration.State
	if err := c.do(ctx, method, path, contentType, reader, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, "", nil, out)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
