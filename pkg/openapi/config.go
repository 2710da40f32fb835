package openapi

import (
	"cmp"
	"os"
)

const (
	defaultTitle       = "Attest API"
	defaultDescription = "Document compliance workflow: upload, ingestion, processing, and regulatory analysis."
)

// Config holds the document metadata rendered into the info object.
type Config struct {
	Title       string `toml:"title"`
	Description string `toml:"description"`
}

// ConfigEnv names the environment variables that override Config fields.
type ConfigEnv struct {
	Title       string
	Description string
}

// Finalize resolves each field in order: environment, configured value, default.
func (c *Config) Finalize(env *ConfigEnv) error {
	var e ConfigEnv
	if env != nil {
		e = *env
	}
	c.Title = cmp.Or(lookup(e.Title), c.Title, defaultTitle)
	c.Description = cmp.Or(lookup(e.Description), c.Description, defaultDescription)
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	c.Title = cmp.Or(overlay.Title, c.Title)
	c.Description = cmp.Or(overlay.Description, c.Description)
}

func lookup(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
