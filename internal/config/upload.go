package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/JaimeStill/attest/pkg/formatting"
)

// Upload targets.
const (
	UploadTargetBackend = "backend"
	UploadTargetStorage = "storage"
)

const (
	EnvUploadTarget            = "ATTEST_UPLOAD_TARGET"
	EnvUploadConcurrency       = "ATTEST_UPLOAD_CONCURRENCY"
	EnvUploadAllowedExtensions = "ATTEST_UPLOAD_ALLOWED_EXTENSIONS"
	EnvUploadMaxFileSize       = "ATTEST_UPLOAD_MAX_FILE_SIZE"
)

// UploadConfig controls file acceptance and where accepted files are sent.
type UploadConfig struct {
	Target            string   `toml:"target"`
	Concurrency       int      `toml:"concurrency"`
	AllowedExtensions []string `toml:"allowed_extensions"`
	MaxFileSize       string   `toml:"max_file_size"`
}

// MaxFileSizeBytes returns the per-file limit in bytes.
func (c *UploadConfig) MaxFileSizeBytes() int64 {
	n, _ := formatting.ParseBytes(c.MaxFileSize)
	return n
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *UploadConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *UploadConfig) Merge(overlay *UploadConfig) {
	if overlay.Target != "" {
		c.Target = overlay.Target
	}
	if overlay.Concurrency != 0 {
		c.Concurrency = overlay.Concurrency
	}
	if overlay.AllowedExtensions != nil {
		c.AllowedExtensions = overlay.AllowedExtensions
	}
	if overlay.MaxFileSize != "" {
		c.MaxFileSize = overlay.MaxFileSize
	}
}

func (c *UploadConfig) loadDefaults() {
	if c.Target == "" {
		c.Target = UploadTargetBackend
	}
	if c.Concurrency == 0 {
		c.Concurrency = 4
	}
	if len(c.AllowedExtensions) == 0 {
		c.AllowedExtensions = []string{"pdf", "docx", "txt", "md"}
	}
	if c.MaxFileSize == "" {
		c.MaxFileSize = "50MB"
	}
}

func (c *UploadConfig) loadEnv() {
	if v := os.Getenv(EnvUploadTarget); v != "" {
		c.Target = v
	}
	if v := os.Getenv(EnvUploadConcurrency); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Concurrency = n
		}
	}
	if v := os.Getenv(EnvUploadAllowedExtensions); v != "" {
		exts := strings.Split(v, ",")
		for i, e := range exts {
			exts[i] = strings.TrimSpace(e)
		}
		c.AllowedExtensions = exts
	}
	if v := os.Getenv(EnvUploadMaxFileSize); v != "" {
		c.MaxFileSize = v
	}
}

func (c *UploadConfig) validate() error {
	switch c.Target {
	case UploadTargetBackend, UploadTargetStorage:
	default:
		return fmt.Errorf("invalid target %q (expected %s or %s)", c.Target, UploadTargetBackend, UploadTargetStorage)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	n, err := formatting.ParseBytes(c.MaxFileSize)
	if err != nil {
		return fmt.Errorf("invalid max_file_size: %w", err)
	}
	if n <= 0 {
		return fmt.Errorf("max_file_size must be positive")
	}
	return nil
}
