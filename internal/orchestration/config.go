package orchestration

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/JaimeStill/attest/pkg/formatting"
)

// Config holds the facade's validation rules and run timing.
type Config struct {
	// AllowedExtensions lists accepted file extensions without the dot.
	AllowedExtensions []string
	// MaxFileSize is the largest accepted file in bytes.
	MaxFileSize int64
	// Regulations lists the regulation identifiers accepted by RunAnalysis.
	Regulations []string
	// StageTimeout bounds each external stage call.
	StageTimeout time.Duration
	// AbandonTimeout is how long an abandoned run may stay running before
	// it is failed.
	AbandonTimeout time.Duration
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		AllowedExtensions: []string{"pdf", "docx", "txt", "md"},
		MaxFileSize:       50 << 20,
		Regulations:       []string{"GDPR", "NIST", "HIPAA", "ISO27001"},
		StageTimeout:      10 * time.Minute,
		AbandonTimeout:    5 * time.Minute,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()

	if len(c.AllowedExtensions) == 0 {
		c.AllowedExtensions = d.AllowedExtensions
	}
	exts := make([]string, len(c.AllowedExtensions))
	for i, e := range c.AllowedExtensions {
		exts[i] = strings.ToLower(strings.TrimPrefix(e, "."))
	}
	c.AllowedExtensions = exts

	if len(c.Regulations) == 0 {
		c.Regulations = d.Regulations
	}
	regs := make([]string, len(c.Regulations))
	for i, r := range c.Regulations {
		regs[i] = strings.ToUpper(r)
	}
	c.Regulations = regs

	if c.MaxFileSize <= 0 {
		c.MaxFileSize = d.MaxFileSize
	}
	if c.StageTimeout <= 0 {
		c.StageTimeout = d.StageTimeout
	}
	if c.AbandonTimeout <= 0 {
		c.AbandonTimeout = d.AbandonTimeout
	}
	return c
}

// checkFile returns a rejection reason, or "" if the file is acceptable.
func (c Config) checkFile(name string, size int64) string {
	if name == "" {
		return "file name is empty"
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if !slices.Contains(c.AllowedExtensions, ext) {
		return "file type not allowed; accepted: " + strings.Join(c.AllowedExtensions, ", ")
	}
	if size == 0 {
		return "file is empty"
	}
	if size > c.MaxFileSize {
		return fmt.Sprintf(
			"file too large: %s exceeds %s",
			formatting.FormatBytes(size, 2),
			formatting.FormatBytes(c.MaxFileSize, 2),
		)
	}
	return ""
}

func (c Config) regulation(r string) (string, bool) {
	r = strings.ToUpper(strings.TrimSpace(r))
	return r, slices.Contains(c.Regulations, r)
}
