package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	EnvWorkflowStageTimeout   = "ATTEST_WORKFLOW_STAGE_TIMEOUT"
	EnvWorkflowAbandonTimeout = "ATTEST_WORKFLOW_ABANDON_TIMEOUT"
	EnvWorkflowRegulations    = "ATTEST_WORKFLOW_REGULATIONS"
)

// WorkflowConfig holds stage run timing and the supported regulations.
type WorkflowConfig struct {
	StageTimeout   string   `toml:"stage_timeout"`
	AbandonTimeout string   `toml:"abandon_timeout"`
	Regulations    []string `toml:"regulations"`
}

// StageTimeoutDuration returns StageTimeout as a time.Duration.
func (c *WorkflowConfig) StageTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.StageTimeout)
	return d
}

// AbandonTimeoutDuration returns AbandonTimeout as a time.Duration.
func (c *WorkflowConfig) AbandonTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.AbandonTimeout)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *WorkflowConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *WorkflowConfig) Merge(overlay *WorkflowConfig) {
	if overlay.StageTimeout != "" {
		c.StageTimeout = overlay.StageTimeout
	}
	if overlay.AbandonTimeout != "" {
		c.AbandonTimeout = overlay.AbandonTimeout
	}
	if overlay.Regulations != nil {
		c.Regulations = overlay.Regulations
	}
}

func (c *WorkflowConfig) loadDefaults() {
	if c.StageTimeout == "" {
		c.StageTimeout = "10m"
	}
	if c.AbandonTimeout == "" {
		c.AbandonTimeout = "5m"
	}
	if len(c.Regulations) == 0 {
		c.Regulations = []string{"GDPR", "NIST", "HIPAA", "ISO27001"}
	}
}

func (c *WorkflowConfig) loadEnv() {
	if v := os.Getenv(EnvWorkflowStageTimeout); v != "" {
		c.StageTimeout = v
	}
	if v := os.Getenv(EnvWorkflowAbandonTimeout); v != "" {
		c.AbandonTimeout = v
	}
	if v := os.Getenv(EnvWorkflowRegulations); v != "" {
		regs := strings.Split(v, ",")
		for i, r := range regs {
			regs[i] = strings.TrimSpace(r)
		}
		c.Regulations = regs
	}
}

func (c *WorkflowConfig) validate() error {
	stage, err := time.ParseDuration(c.StageTimeout)
	if err != nil {
		return fmt.Errorf("invalid stage_timeout: %w", err)
	}
	if stage <= 0 {
		return fmt.Errorf("stage_timeout must be positive")
	}
	abandon, err := time.ParseDuration(c.AbandonTimeout)
	if err != nil {
		return fmt.Errorf("invalid abandon_timeout: %w", err)
	}
	if abandon <= 0 {
		return fmt.Errorf("abandon_timeout must be positive")
	}
	for _, r := range c.Regulations {
		if r == "" {
			return fmt.Errorf("regulations must not contain empty entries")
		}
	}
	return nil
}
