package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	StoreNone     = "none"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Frame sources.
const (
	// FramesInternal ticks from a local timer at the design frame rate.
	FramesInternal = "internal"
	// FramesDisplay ticks on every frame reported by the display.
	FramesDisplay = "display"
)

// RunConfig is the run.yaml of a lab installation.
type RunConfig struct {
	Version int `yaml:"version"`
	Run     struct {
		Design string            `yaml:"design"`
		ID     string            `yaml:"id"`
		Seeds  map[string]uint64 `yaml:"seeds"`
		Frames string            `yaml:"frames"`
		// Restore resumes the run with the same id from its store.
		Restore bool `yaml:"restore"`
	} `yaml:"run"`
	Store struct {
		Backend string `yaml:"backend"`
		Path    string `yaml:"path"`
	} `yaml:"store"`
	MQTT struct {
		URL      string `yaml:"url"`
		Prefix   string `yaml:"prefix"`
		Optional bool   `yaml:"optional"`
	} `yaml:"mqtt"`
	Display struct {
		RefreshTolerance float64 `yaml:"refresh_tolerance"`
	} `yaml:"display"`
	HTTP struct {
		Port int `yaml:"port"`
	} `yaml:"http"`
}

// HTTPPort returns the configured API port, defaulting to 8080 if not set.
func (c *RunConfig) HTTPPort() int {
	if c.HTTP.Port == 0 {
		return 8080
	}
	return c.HTTP.Port
}

// FrameSource returns the configured frame source, defaulting to internal.
func (c *RunConfig) FrameSource() string {
	if c.Run.Frames == "" {
		return FramesInternal
	}
	return c.Run.Frames
}

// StoreBackend returns the configured backend, defaulting to sqlite.
func (c *RunConfig) StoreBackend() string {
	if c.Store.Backend == "" {
		return StoreSQLite
	}
	return c.Store.Backend
}

// StorePath returns the SQLite file, defaulting to stimuli.db.
func (c *RunConfig) StorePath() string {
	if c.Store.Path == "" {
		return "stimuli.db"
	}
	return c.Store.Path
}

// Validate checks the fields that have no usable default.
func (c *RunConfig) Validate() error {
	if c.Version != 1 {
		return fmt.Errorf("unsupported run.yaml version: %d", c.Version)
	}
	if c.Run.Design == "" {
		return fmt.Errorf("run.design is required")
	}
	switch c.StoreBackend() {
	case StoreNone, StoreSQLite, StorePostgres:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	switch c.FrameSource() {
	case FramesInternal, FramesDisplay:
	default:
		return fmt.Errorf("unknown frame source %q", c.Run.Frames)
	}
	if c.Display.RefreshTolerance < 0 {
		return fmt.Errorf("display.refresh_tolerance must not be negative")
	}
	return nil
}

// ApplyEnv lets the environment override run.yaml.
func (c *RunConfig) ApplyEnv(e *Env) {
	if e.RunID != "" {
		c.Run.ID = e.RunID
	}
	if e.Design != "" {
		c.Run.Design = e.Design
	}
	if e.StoreBackend != "" {
		c.Store.Backend = e.StoreBackend
	}
	if e.StorePath != "" {
		c.Store.Path = e.StorePath
	}
	if e.MQTTURL != "" {
		c.MQTT.URL = e.MQTTURL
	}
	if e.TopicPrefix != "" {
		c.MQTT.Prefix = e.TopicPrefix
	}
	if e.HTTPPort != 0 {
		c.HTTP.Port = e.HTTPPort
	}
}

// LoadRunConfig reads and validates run.yaml.
func LoadRunConfig(path string) (*RunConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg RunConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
