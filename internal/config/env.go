package config

import (
	"fmt"
	"strings"
)

// Environment variables understood by both binaries. ICAL_URLS and
// CALENDAR_NAMES are comma separated and must have the same number of entries;
// when set they replace the configured sources.
const (
	EnvTimezone      = "TIMEZONE"
	EnvICalURLs      = "ICAL_URLS"
	EnvCalendarNames = "CALENDAR_NAMES"
	EnvListen        = "INKDAY_LISTEN"
	EnvServerURL     = "INKDAY_SERVER_URL"
)

// ApplyEnv overlays environment values onto c.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		return nil
	}
	if tz := strings.TrimSpace(getenv(EnvTimezone)); tz != "" {
		c.Timezone = tz
	}
	if l := strings.TrimSpace(getenv(EnvListen)); l != "" {
		c.Listen = l
	}

	sources, err := sourcesFromEnv(getenv(EnvICalURLs), getenv(EnvCalendarNames))
	if err != nil {
		return err
	}
	if sources != nil {
		c.Sources = sources
	}
	return nil
}

// sourcesFromEnv pairs URLs with names by position. It returns nil, nil when
// ICAL_URLS is unset.
func sourcesFromEnv(urlsRaw, namesRaw string) ([]SourceConfig, error) {
	if strings.TrimSpace(urlsRaw) == "" {
		return nil, nil
	}
	urls := strings.Split(urlsRaw, ",")
	names := strings.Split(namesRaw, ",")
	if strings.TrimSpace(namesRaw) == "" || len(urls) != len(names) {
		return nil, fmt.Errorf("%s and %s must have the same number of entries (%d urls, %d names)",
			EnvICalURLs, EnvCalendarNames, len(urls), len(names))
	}

	out := make([]SourceConfig, 0, len(urls))
	for i, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		name := strings.TrimSpace(names[i])
		out = append(out, SourceConfig{ID: name, Name: name, URL: u})
	}
	return out, nil
}

// ApplyEnv overlays environment values onto the display client config.
func (c *DisplayConfig) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		return
	}
	if u := strings.TrimSpace(getenv(EnvServerURL)); u != "" {
		c.ServerURL = u
	}
}
