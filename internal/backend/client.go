// Package backend adapts the compliance backend's HTTP API to the
// orchestration service interfaces.
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
	"regexp"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/JaimeStill/attest/internal/documents"
	"github.com/JaimeStill/attest/internal/orchestration"
	"github.com/JaimeStill/attest/pkg/formatting"
	"github.com/JaimeStill/attest/pkg/lifecycle"
)

const (
	defaultTimeout  = 10 * time.Minute
	healthTimeout   = 5 * time.Second
	maxErrorBodyLen = 512
)

// Client calls the compliance backend. It implements every orchestration
// service interface.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	healthy    atomic.Bool
}

var (
	_ orchestration.UploadService     = (*Client)(nil)
	_ orchestration.IngestionService  = (*Client)(nil)
	_ orchestration.ProcessingService = (*Client)(nil)
	_ orchestration.AnalysisService   = (*Client)(nil)
)

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New creates a Client for the backend at baseURL. A zero timeout uses the
// default; stage calls are also bounded by the caller's context.
func New(baseURL string, timeout time.Duration, logger *slog.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend base url %q", baseURL)
	}

	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		baseURL:    strings.TrimRight(u.String(), "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("system", "backend"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// envelope is the response shape shared by every backend endpoint.
type envelope struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Files   []string `json:"files"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// Send uploads files in one multipart request. A file succeeds when the
// backend lists its name among the stored files.
func (c *Client) Send(ctx context.Context, files []orchestration.UploadFile) ([]documents.Outcome, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	for _, f := range files {
		part, err := w.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, fmt.Errorf("upload: build form: %w", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, fmt.Errorf("upload: build form: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("upload: build form: %w", err)
	}

	env, err := c.do(ctx, "upload", http.MethodPost, "/upload", w.FormDataContentType(), &body)
	if err != nil {
		return nil, err
	}

	stored := make(map[string]bool, len(env.Files))
	for _, name := range env.Files {
		stored[name] = true
	}

	outcomes := make([]documents.Outcome, len(files))
	for i, f := range files {
		if stored[f.Name] || stored[SecureName(f.Name)] {
			outcomes[i] = documents.OK()
			continue
		}
		outcomes[i] = documents.Fail("rejected by backend")
	}

	c.logger.Info("files uploaded", "sent", len(files), "stored", len(env.Files))
	return outcomes, nil
}

// Setup prepares backend ingestion for the company.
func (c *Client) Setup(ctx context.Context, description string) error {
	payload, err := json.Marshal(map[string]string{"company_description": description})
	if err != nil {
		return fmt.Errorf("setup ingestion: %w", err)
	}

	env, err := c.do(ctx, "setup ingestion", http.MethodPost, "/setup_ingestion", "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}

	c.logger.Info("ingestion setup complete", "message", env.Message)
	return nil
}

// Process processes every file the backend holds.
func (c *Client) Process(ctx context.Context) error {
	env, err := c.do(ctx, "process files", http.MethodPost, "/process_files", "", nil)
	if err != nil {
		return err
	}

	c.logger.Info("files processed", "message", env.Message)
	return nil
}

// Analyze runs a compliance analysis for regulation.
func (c *Client) Analyze(ctx context.Context, regulation string) error {
	path := "/analyze/" + url.PathEscape(regulation)

	env, err := c.do(ctx, "analyze", http.MethodPost, path, "", nil)
	if err != nil {
		return err
	}

	c.logger.Info("analysis complete", "regulation", regulation, "message", env.Message)
	return nil
}

// ResetSession restarts the backend's compliance session. The backend drops
// its company context and every uploaded file.
func (c *Client) ResetSession(ctx context.Context) error {
	env, err := c.do(ctx, "reset session", http.MethodPost, "/reset", "", nil)
	if err != nil {
		return err
	}

	c.logger.Info("backend session reset", "message", env.Message)
	return nil
}

// Health checks the backend's health endpoint and records the result for Ready.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("health: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.healthy.Store(false)
		return fmt.Errorf("health: %w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
	if resp.StatusCode != http.StatusOK {
		c.healthy.Store(false)
		return &StatusError{Op: "health", StatusCode: resp.StatusCode, Body: string(data)}
	}

	h, err := formatting.Decode[healthResponse](data)
	if err != nil || h.Status != "healthy" {
		c.healthy.Store(false)
		return fmt.Errorf("health: %w: unexpected response %q", ErrRequestFailed, strings.TrimSpace(string(data)))
	}

	c.healthy.Store(true)
	return nil
}

// Ready reports the result of the last health check.
func (c *Client) Ready() bool {
	return c.healthy.Load()
}

// Start probes the backend once at startup and registers it as a readiness check.
func (c *Client) Start(lc *lifecycle.Coordinator) error {
	c.logger.Info("starting backend client", "base_url", c.baseURL)
	lc.RegisterCheck("backend", c)

	lc.OnStartup(func() {
		if err := c.Health(lc.Context()); err != nil {
			c.logger.Warn("backend health check failed", "error", err)
			return
		}
		c.logger.Info("backend healthy")
	})

	return nil
}

func (c *Client) do(ctx context.Context, op, method, path, contentType string, body io.Reader) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}

	c.logger.Debug("backend call", "op", op, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if env, err := formatting.Decode[envelope](data); err == nil && env.Error != "" {
			return nil, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: env.Error}
		}
		if len(data) > maxErrorBodyLen {
			data = data[:maxErrorBodyLen]
		}
		return nil, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(data)}
	}

	env, err := formatting.Decode[envelope](data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !env.Success {
		reason := env.Error
		if reason == "" {
			reason = "no error message"
		}
		return nil, &RejectedError{Op: op, Message: reason}
	}

	return &env, nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SecureName reproduces the name the backend stores an upload under:
// characters are folded to ASCII (accents dropped, others removed), slashes
// and whitespace runs become underscores, remaining unsafe
// characters are dropped, and dots and underscores are trimmed from both ends.
func SecureName(name string) string {
	var b strings.Builder
	for _, r := range norm.NFKD.String(name) {
		switch {
		case r == '/':
			b.WriteByte(' ')
		case r <= unicode.MaxASCII:
			b.WriteRune(r)
		}
	}
	name = strings.Join(strings.Fields(b.String()), "_")
	name = unsafeName.ReplaceAllString(name, "")
	return strings.Trim(name, "._")
}
