package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"inkday/internal/fsutil"
)

// NOTE: This file provides the server configuration model and the YAML
// load/save behavior shared with the display client config, including
// first-run config creation and 0600 permissions.

// SourceConfig describes a single ICS subscription source.
type SourceConfig struct {
	// ID is an internal identifier used for logging and as Occurrence.SourceID.
	ID string `yaml:"id" json:"id"`
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url" validate:"required,url"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	// Color is an optional tag passed through to the layout (e.g. "red").
	Color string `yaml:"color,omitempty" json:"color,omitempty"`
}

// SizeConfig is a pixel resolution.
type SizeConfig struct {
	Width  int `yaml:"width" json:"width" validate:"gt=0"`
	Height int `yaml:"height" json:"height" validate:"gt=0"`
}

// ForecastConfig controls the weather panel.
type ForecastConfig struct {
	Enabled   bool    `yaml:"enabled" json:"enabled"`
	Latitude  float64 `yaml:"latitude" json:"latitude" validate:"latitude"`
	Longitude float64 `yaml:"longitude" json:"longitude" validate:"longitude"`
	// MaxAge is how old a summary may be at composition time before it is
	// dropped from the model.
	MaxAge  time.Duration `yaml:"max_age" json:"max_age" validate:"gte=0"`
	Timeout time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`
	// Units is "metric" or "imperial"; only affects how temperatures are drawn.
	Units string `yaml:"units" json:"units" validate:"oneof=metric imperial"`
	// BaseURL overrides the Open-Meteo endpoint (tests, self-hosted instances).
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty" validate:"omitempty,url"`
}

// ArtifactConfig controls where the rendered image is published.
type ArtifactConfig struct {
	// Name is the artifact base name, served as /<name>.png.
	Name string `yaml:"name" json:"name" validate:"required,excludesall=/?#"`
	Dir  string `yaml:"dir" json:"dir" validate:"required"`
}

// RenderConfig controls the headless rendering engine.
type RenderConfig struct {
	Timeout time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`
	// Template optionally replaces the embedded layout document.
	Template string `yaml:"template,omitempty" json:"template,omitempty"`
	// ExecPath optionally points at a specific Chromium binary.
	ExecPath string `yaml:"exec_path,omitempty" json:"exec_path,omitempty"`
}

// FetchConfig controls calendar feed retrieval.
type FetchConfig struct {
	Timeout  time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`
	CacheDir string        `yaml:"cache_dir" json:"cache_dir" validate:"required"`
}

// MirrorConfig enables uploading every new artifact to an S3-compatible bucket.
type MirrorConfig struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint" validate:"required"`
	Bucket    string `yaml:"bucket" json:"bucket" validate:"required"`
	AccessKey string `yaml:"access_key" json:"-"`
	SecretKey string `yaml:"secret_key" json:"-"`
	UseSSL    bool   `yaml:"use_ssl" json:"use_ssl"`
	Prefix    string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API endpoints.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level server configuration.
type Config struct {
	// Listen is the HTTP listen address for the artifact and API.
	Listen string `yaml:"listen" json:"listen" validate:"required,hostname_port"`

	// Timezone is the IANA timezone used as canonical display zone (e.g. "Europe/London").
	Timezone string `yaml:"timezone" json:"timezone" validate:"required,timezone"`

	// RefreshCron schedules the calendar+forecast refresh stage.
	RefreshCron string `yaml:"refresh" json:"refresh" validate:"required"`

	// RenderCron schedules the render+publish stage.
	RenderCron string `yaml:"render" json:"render" validate:"required"`

	// Sources is the list of subscribed ICS feeds. IDs must be unique.
	Sources []SourceConfig `yaml:"sources" json:"sources" validate:"unique=ID,dive"`

	// Display is the target panel resolution.
	Display SizeConfig `yaml:"display" json:"display"`

	Forecast ForecastConfig `yaml:"forecast" json:"forecast"`
	Artifact ArtifactConfig `yaml:"artifact" json:"artifact"`
	Render   RenderConfig   `yaml:"render_engine" json:"render_engine"`
	Fetch    FetchConfig    `yaml:"fetch" json:"fetch"`

	// Mirror, if non-nil, uploads each new artifact to object storage.
	Mirror *MirrorConfig `yaml:"mirror,omitempty" json:"mirror,omitempty"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on /api/*.
	// The artifact and /health stay open so the display client needs no credentials.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"-"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "0.0.0.0:8080",
		Timezone:    "Europe/London",
		RefreshCron: "*/5 * * * *",
		// Offset by a minute so a render usually sees a fresh refresh.
		RenderCron: "1-59/5 * * * *",
		Sources:    []SourceConfig{},
		Display:    SizeConfig{Width: 1304, Height: 984},
		Forecast: ForecastConfig{
			Enabled:   false,
			Latitude:  51.5072,
			Longitude: -0.1276,
			MaxAge:    3 * time.Hour,
			Timeout:   10 * time.Second,
			Units:     "metric",
		},
		Artifact: ArtifactConfig{Name: "calendar", Dir: "/var/lib/inkday"},
		Render:   RenderConfig{Timeout: 30 * time.Second},
		Fetch:    FetchConfig{Timeout: 15 * time.Second, CacheDir: "/var/lib/inkday/ics-cache"},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.RenderCron == "" {
		c.RenderCron = def.RenderCron
	}
	if c.Sources == nil {
		c.Sources = []SourceConfig{}
	}
	for i := range c.Sources {
		s := &c.Sources[i]
		if s.ID == "" {
			if s.Name != "" {
				s.ID = s.Name
			} else {
				s.ID = s.URL
			}
		}
	}
	if c.Display.Width <= 0 || c.Display.Height <= 0 {
		c.Display = def.Display
	}
	if c.Forecast.MaxAge == 0 {
		c.Forecast.MaxAge = def.Forecast.MaxAge
	}
	if c.Forecast.Timeout <= 0 {
		c.Forecast.Timeout = def.Forecast.Timeout
	}
	if c.Forecast.Units == "" {
		c.Forecast.Units = def.Forecast.Units
	}
	if c.Artifact.Name == "" {
		c.Artifact.Name = def.Artifact.Name
	}
	if c.Artifact.Dir == "" {
		c.Artifact.Dir = def.Artifact.Dir
	}
	if c.Render.Timeout <= 0 {
		c.Render.Timeout = def.Render.Timeout
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = def.Fetch.Timeout
	}
	if c.Fetch.CacheDir == "" {
		c.Fetch.CacheDir = filepath.Join(c.Artifact.Dir, "ics-cache")
	}
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	return resolveLocation(c.Timezone)
}

// ArtifactPath is the well-known published file.
func (c *Config) ArtifactPath() string {
	return filepath.Join(c.Artifact.Dir, c.Artifact.Name+".png")
}

// Load loads the server configuration from the given YAML path, applies
// environment overrides and validates the result.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - continue with the defaults
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.Getenv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()
	if err := readOrCreate(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename with 0600 permissions.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()
	return saveYAML(path, cfg)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

// readOrCreate unmarshals path into out. When the file is missing, out
// (already holding defaults) is written to path first.
func readOrCreate(path string, out any) error {
	if path == "" {
		return errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			return saveYAML(path, out)
		}
		return err
	}
	return yaml.Unmarshal(data, out)
}

func saveYAML(path string, v any) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if err := fsutil.EnsureDir(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, data, 0o600)
}

func resolveLocation(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}
