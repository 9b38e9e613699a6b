package config

import (
	"errors"
	"net/url"
	"os"
	"strings"
	"time"
)

// PanelConfig selects the driver used to put the image on screen.
type PanelConfig struct {
	// Driver is "epd" (Waveshare 12.48" B over cgo) or "noop" (log only).
	Driver string `yaml:"driver" json:"driver" validate:"oneof=epd noop"`
	Width  int    `yaml:"width" json:"width" validate:"gt=0"`
	Height int    `yaml:"height" json:"height" validate:"gt=0"`
}

// PowerConfig controls host standby prevention while the poller is active.
type PowerConfig struct {
	Inhibit bool `yaml:"inhibit" json:"inhibit"`
	// Command is the inhibitor binary; it must accept systemd-inhibit flags.
	Command string `yaml:"command" json:"command"`
}

// BatteryConfig enables battery telemetry over I2C (PiSugar-compatible).
type BatteryConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Bus     string `yaml:"bus" json:"bus"`
	Addr    uint16 `yaml:"addr" json:"addr"`
}

// DisplayConfig is the configuration of the display client (poller).
type DisplayConfig struct {
	// ServerURL is the base URL of the artifact server, e.g. "http://calendar.lan:8080".
	ServerURL string `yaml:"server_url" json:"server_url" validate:"required,url"`

	// ArtifactName must match the server's artifact.name.
	ArtifactName string `yaml:"artifact_name" json:"artifact_name" validate:"required,excludesall=/?#"`

	// IntervalSeconds is the poll interval.
	IntervalSeconds int `yaml:"interval_seconds" json:"interval_seconds" validate:"gt=0"`

	// RequestTimeout bounds each artifact fetch.
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout" validate:"gt=0"`

	// WorkDir holds the locally displayed artifact copies.
	WorkDir string `yaml:"work_dir" json:"work_dir" validate:"required"`

	// FullRefresh repaints the whole panel on every change to avoid ghosting.
	FullRefresh bool `yaml:"full_refresh" json:"full_refresh"`

	Panel   PanelConfig   `yaml:"panel" json:"panel"`
	Power   PowerConfig   `yaml:"power" json:"power"`
	Battery BatteryConfig `yaml:"battery" json:"battery"`
}

// DefaultDisplayConfig returns an in-memory default client configuration.
func DefaultDisplayConfig() *DisplayConfig {
	return &DisplayConfig{
		ServerURL:       "http://127.0.0.1:8080",
		ArtifactName:    "calendar",
		IntervalSeconds: 60,
		RequestTimeout:  20 * time.Second,
		WorkDir:         "/var/lib/inkday-display",
		FullRefresh:     true,
		Panel:           PanelConfig{Driver: "noop", Width: 1304, Height: 984},
		Power:           PowerConfig{Inhibit: false, Command: "systemd-inhibit"},
		// PiSugar3 battery controller address.
		Battery: BatteryConfig{Enabled: false, Bus: "", Addr: 0x57},
	}
}

// Normalize fills in missing/zero values with defaults.
func (c *DisplayConfig) Normalize() {
	def := DefaultDisplayConfig()
	c.ServerURL = strings.TrimRight(c.ServerURL, "/")
	if c.ServerURL == "" {
		c.ServerURL = def.ServerURL
	}
	if c.ArtifactName == "" {
		c.ArtifactName = def.ArtifactName
	}
	if c.IntervalSeconds <= 0 {
		c.IntervalSeconds = def.IntervalSeconds
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.WorkDir == "" {
		c.WorkDir = def.WorkDir
	}
	if c.Panel.Driver == "" {
		c.Panel.Driver = def.Panel.Driver
	}
	if c.Panel.Width <= 0 || c.Panel.Height <= 0 {
		c.Panel.Width, c.Panel.Height = def.Panel.Width, def.Panel.Height
	}
	if c.Power.Command == "" {
		c.Power.Command = def.Power.Command
	}
	if c.Battery.Addr == 0 {
		c.Battery.Addr = def.Battery.Addr
	}
}

// Interval is IntervalSeconds as a duration.
func (c *DisplayConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// ArtifactURL is the artifact endpoint without the cache-busting parameter.
func (c *DisplayConfig) ArtifactURL() (*url.URL, error) {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.New("server_url must be absolute")
	}
	return u.JoinPath(c.ArtifactName + ".png"), nil
}

// LoadDisplay loads the display client configuration, creating it with
// defaults on first run.
func LoadDisplay(path string) (*DisplayConfig, error) {
	return LoadDisplayWithEnv(path, os.Getenv)
}

// LoadDisplayWithEnv is LoadDisplay with an explicit environment lookup.
func LoadDisplayWithEnv(path string, getenv func(string) string) (*DisplayConfig, error) {
	cfg := DefaultDisplayConfig()
	if err := readOrCreate(path, cfg); err != nil {
		return nil, err
	}
	cfg.ApplyEnv(getenv)
	cfg.Normalize()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveDisplay writes the client configuration atomically with 0600 permissions.
func SaveDisplay(path string, cfg *DisplayConfig) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()
	return saveYAML(path, cfg)
}
