package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/JaimeStill/attest/internal/events"
)

const (
	EnvEventsTopic  = "ATTEST_EVENTS_TOPIC"
	EnvEventsBuffer = "ATTEST_EVENTS_BUFFER"
	EnvEventsSource = "ATTEST_EVENTS_SOURCE"
)

// EventsConfig holds the workflow event bus settings.
type EventsConfig struct {
	Topic  string `toml:"topic"`
	Buffer int64  `toml:"buffer"`
	Source string `toml:"source"`
}

// Bus returns the event bus settings.
func (c *EventsConfig) Bus() events.Config {
	return events.Config{Topic: c.Topic, Buffer: c.Buffer, Source: c.Source}
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *EventsConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	if c.Buffer < 0 {
		return fmt.Errorf("buffer must not be negative")
	}
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *EventsConfig) Merge(overlay *EventsConfig) {
	if overlay.Topic != "" {
		c.Topic = overlay.Topic
	}
	if overlay.Buffer != 0 {
		c.Buffer = overlay.Buffer
	}
	if overlay.Source != "" {
		c.Source = overlay.Source
	}
}

func (c *EventsConfig) loadDefaults() {
	if c.Topic == "" {
		c.Topic = "attest.workflow"
	}
	if c.Buffer == 0 {
		c.Buffer = 64
	}
	if c.Source == "" {
		c.Source = "/attest"
	}
}

func (c *EventsConfig) loadEnv() {
	if v := os.Getenv(EnvEventsTopic); v != "" {
		c.Topic = v
	}
	if v := os.Getenv(EnvEventsBuffer); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Buffer = n
		}
	}
	if v := os.Getenv(EnvEventsSource); v != "" {
		c.Source = v
	}
}
