package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the canonical, fully-normalized runtime configuration.
//
// The on-disk file may be YAML or JSON and may carry clients either nested
// under a "clients" key (current shape) or as a flat id -> client mapping
// (legacy shape). Both are resolved into this one record at load time; nothing
// downstream ever sees the legacy shape.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Scrape    ScrapeConfig    `json:"scrape"`
	CRM       CRMConfig       `json:"crm"`
	Storage   StorageConfig   `json:"storage"`

	Clients map[string]ClientConfig `json:"clients"`
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console bool        `json:"console,omitempty"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// SchedulerConfig controls the poll loop.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type SchedulerConfig struct {
	// PollInterval is how often the loop checks for due jobs. Default "60s".
	PollInterval string `json:"poll_interval,omitempty"`
	// RunOnStart runs every enabled client immediately after scheduling.
	RunOnStart bool `json:"run_on_start,omitempty"`
}

// ScrapeConfig carries app-wide scraping defaults. Clients may override
// targets and keyword lists individually.
type ScrapeConfig struct {
	// TargetDelay is the pause between consecutive search targets of one
	// client. Default "5s".
	TargetDelay string `json:"target_delay,omitempty"`
	// RequestTimeout bounds a single page fetch. Default "30s".
	RequestTimeout string `json:"request_timeout,omitempty"`
	UserAgent      string `json:"user_agent,omitempty"`

	// DefaultTargets are the listing URLs scraped for clients that do not
	// configure their own search_targets.
	DefaultTargets []string `json:"default_targets,omitempty"`

	// IncludeKeywords mark a listing as a lead (manufacturing vocabulary in
	// the original deployment). ExcludeKeywords drop listings outright
	// (staffing agencies). Clients may override IncludeKeywords.
	IncludeKeywords []string `json:"include_keywords,omitempty"`
	ExcludeKeywords []string `json:"exclude_keywords,omitempty"`
}

type CRMConfig struct {
	// BaseURL of the CRM REST API. Default is the hosted endpoint.
	BaseURL string `json:"base_url,omitempty"`
	// RatePerSec throttles outgoing CRM requests. 0 disables throttling.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// StorageConfig controls the optional run-history store.
//
// Driver values: "file" (JSON Lines), "sqlite" (requires the sqlite build
// tag). Empty or "none" disables history persistence.
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// ClientConfig is one client's scraping and delivery settings.
//
// Loaded once per scheduler generation and treated as immutable afterwards;
// job execution never mutates it.
type ClientConfig struct {
	// ID is filled from the map key during normalization.
	ID   string `json:"-"`
	Name string `json:"name,omitempty"`

	// Enabled defaults to true when omitted.
	Enabled *bool `json:"enabled,omitempty"`

	// Schedule is a 5-field cron-like expression. Takes precedence over
	// ScheduleIntervalHours, which is the legacy fixed-hour format. When
	// both are absent the client runs every 24 hours.
	Schedule              string `json:"schedule,omitempty"`
	ScheduleIntervalHours int    `json:"schedule_interval_hours,omitempty"`

	SearchTargets  []string `json:"search_targets,omitempty"`
	SearchKeywords []string `json:"search_keywords,omitempty"`
	MaxPages       int      `json:"max_pages,omitempty"`
	MaxListings    int      `json:"max_listings,omitempty"`

	CRMAPIKey string `json:"crm_api_key,omitempty"`

	OutputFile string `json:"output_file,omitempty"`
	LogFile    string `json:"log_file,omitempty"`
}

// IsEnabled treats an omitted flag as enabled.
func (c ClientConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// DisplayName falls back to the id when no name is configured.
func (c ClientConfig) DisplayName() string {
	if strings.TrimSpace(c.Name) != "" {
		return c.Name
	}
	return c.ID
}

const (
	defaultMaxPages    = 5
	defaultMaxListings = 50
)

// applyDefaults fills per-client defaults after shape normalization.
func (c *ClientConfig) applyDefaults(id string) {
	c.ID = id
	if strings.TrimSpace(c.Name) == "" {
		c.Name = id
	}
	if c.MaxPages <= 0 {
		c.MaxPages = defaultMaxPages
	}
	if c.MaxListings <= 0 {
		c.MaxListings = defaultMaxListings
	}
	if strings.TrimSpace(c.OutputFile) == "" {
		c.OutputFile = fmt.Sprintf("results_%s.json", id)
	}
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
