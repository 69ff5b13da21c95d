// Package config provides configuration management using Viper
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// SendMode selects how recorded events are delivered.
type SendMode string

const (
	Immediate SendMode = "Immediate"
	Batch     SendMode = "Batch"
)

// LogLevel represents the logging level for the SDK
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var (
	ErrMissingConfig   = errors.New("configuration is required")
	ErrMissingAppID    = errors.New("appId is required in the configuration")
	ErrMissingEndpoint = errors.New("endpoint is required in the configuration")
)

// Config holds all configuration parameters for the SDK and its tools.
// Durations are in milliseconds.
type Config struct {
	// Delivery settings
	AppID              string   `mapstructure:"appid" yaml:"app_id"`
	Endpoint           string   `mapstructure:"endpoint" yaml:"endpoint"`
	SendMode           SendMode `mapstructure:"sendmode" yaml:"send_mode"`
	SendEventsInterval int64    `mapstructure:"sendeventsinterval" yaml:"send_events_interval"`
	AuthCookie         string   `mapstructure:"authcookie" yaml:"auth_cookie"`
	Platform           string   `mapstructure:"platform" yaml:"platform"`

	// Auto tracking toggles
	AutoTrackAppStart       bool `mapstructure:"autotrackappstart" yaml:"auto_track_app_start"`
	AutoTrackAppEnd         bool `mapstructure:"autotrackappend" yaml:"auto_track_app_end"`
	AutoTrackPageShow       bool `mapstructure:"autotrackpageshow" yaml:"auto_track_page_show"`
	AutoTrackUserEngagement bool `mapstructure:"autotrackuserengagement" yaml:"auto_track_user_engagement"`
	AutoTrackMPShare        bool `mapstructure:"autotrackmpshare" yaml:"auto_track_mp_share"`
	AutoTrackMPFavorite     bool `mapstructure:"autotrackmpfavorite" yaml:"auto_track_mp_favorite"`

	// Session settings
	SessionTimeoutDuration int64 `mapstructure:"sessiontimeoutduration" yaml:"session_timeout_duration"`

	// Storage
	StoragePath string `mapstructure:"storagepath" yaml:"storage_path"`

	// Logging settings
	Debug            bool     `mapstructure:"debug" yaml:"debug"`
	LogLevel         LogLevel `mapstructure:"loglevel" yaml:"log_level"`
	LogsDirectory    string   `mapstructure:"logsdir" yaml:"logs_dir"`
	LogsMaxSizeInMb  int      `mapstructure:"logsmaxsizeinmb" yaml:"logs_max_size_in_mb"`
	LogsMaxBackups   int      `mapstructure:"logsmaxbackups" yaml:"logs_max_backups"`
	LogsMaxAgeInDays int      `mapstructure:"logsmaxageindays" yaml:"logs_max_age_in_days"`

	// Collector settings
	CollectorPort               string `mapstructure:"collectorport" yaml:"collector_port"`
	CollectorDatabase           string `mapstructure:"collectordatabase" yaml:"collector_database"`
	ReceivedEventsRetentionDays int    `mapstructure:"receivedeventsretentiondays" yaml:"received_events_retention_days"`
}

var envBindings = map[string]string{
	"appid":                       "CLICKSTREAM_APP_ID",
	"endpoint":                    "CLICKSTREAM_ENDPOINT",
	"sendmode":                    "CLICKSTREAM_SEND_MODE",
	"sendeventsinterval":          "CLICKSTREAM_SEND_EVENTS_INTERVAL",
	"authcookie":                  "CLICKSTREAM_AUTH_COOKIE",
	"platform":                    "CLICKSTREAM_PLATFORM",
	"autotrackappstart":           "CLICKSTREAM_AUTO_TRACK_APP_START",
	"autotrackappend":             "CLICKSTREAM_AUTO_TRACK_APP_END",
	"autotrackpageshow":           "CLICKSTREAM_AUTO_TRACK_PAGE_SHOW",
	"autotrackuserengagement":     "CLICKSTREAM_AUTO_TRACK_USER_ENGAGEMENT",
	"autotrackmpshare":            "CLICKSTREAM_AUTO_TRACK_MP_SHARE",
	"autotrackmpfavorite":         "CLICKSTREAM_AUTO_TRACK_MP_FAVORITE",
	"sessiontimeoutduration":      "CLICKSTREAM_SESSION_TIMEOUT_DURATION",
	"storagepath":                 "CLICKSTREAM_STORAGE_PATH",
	"debug":                       "CLICKSTREAM_DEBUG",
	"loglevel":                    "CLICKSTREAM_LOG_LEVEL",
	"logsdir":                     "CLICKSTREAM_LOGS_DIR",
	"logsmaxsizeinmb":             "CLICKSTREAM_LOGS_MAX_SIZE_IN_MB",
	"logsmaxbackups":              "CLICKSTREAM_LOGS_MAX_BACKUPS",
	"logsmaxageindays":            "CLICKSTREAM_LOGS_MAX_AGE_IN_DAYS",
	"collectorport":               "CLICKSTREAM_COLLECTOR_PORT",
	"collectordatabase":           "CLICKSTREAM_COLLECTOR_DATABASE",
	"receivedeventsretentiondays": "CLICKSTREAM_RECEIVED_EVENTS_RETENTION_DAYS",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("appid", "")
	v.SetDefault("endpoint", "")
	v.SetDefault("sendmode", string(Immediate))
	v.SetDefault("sendeventsinterval", 5000)
	v.SetDefault("authcookie", "")
	v.SetDefault("platform", "WeChatMP")
	v.SetDefault("autotrackappstart", true)
	v.SetDefault("autotrackappend", true)
	v.SetDefault("autotrackpageshow", true)
	v.SetDefault("autotrackuserengagement", true)
	v.SetDefault("autotrackmpshare", false)
	v.SetDefault("autotrackmpfavorite", false)
	v.SetDefault("sessiontimeoutduration", 1800000)
	v.SetDefault("storagepath", "storage/clickstream.db")
	v.SetDefault("debug", false)
	v.SetDefault("loglevel", string(LogLevelInfo))
	v.SetDefault("logsdir", "")
	v.SetDefault("logsmaxsizeinmb", 20)
	v.SetDefault("logsmaxbackups", 10)
	v.SetDefault("logsmaxageindays", 30)
	v.SetDefault("collectorport", "8686")
	v.SetDefault("collectordatabase", "storage/collector.db")
	v.SetDefault("receivedeventsretentiondays", 30)
}

// Defaults returns a configuration holding only default values. It has
// no app id or endpoint and does not pass Validate.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		// Defaults are static, a failure here is a programming error.
		panic(fmt.Sprintf("config: failed to unmarshal defaults: %v", err))
	}
	return cfg
}

// Load reads defaults, the optional config file at path and CLICKSTREAM_*
// environment variables, in increasing precedence. The result is not
// validated so tools can inspect partial configurations.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields the delivery pipeline depends on.
func (c *Config) Validate() error {
	if c == nil {
		return ErrMissingConfig
	}
	if c.AppID == "" {
		return ErrMissingAppID
	}
	if c.Endpoint == "" {
		return ErrMissingEndpoint
	}
	if c.SendMode != Immediate && c.SendMode != Batch {
		return fmt.Errorf("invalid send mode: %s", c.SendMode)
	}
	if c.SendEventsInterval <= 0 {
		return fmt.Errorf("invalid send events interval: %d", c.SendEventsInterval)
	}
	if c.SessionTimeoutDuration <= 0 {
		return fmt.Errorf("invalid session timeout duration: %d", c.SessionTimeoutDuration)
	}
	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, "":
	default:
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	return nil
}

// Clone returns a copy that can be modified independently.
func (c *Config) Clone() *Config {
	copied := *c
	return &copied
}

// BatchInterval returns the batch flush period.
func (c *Config) BatchInterval() time.Duration {
	return time.Duration(c.SendEventsInterval) * time.Millisecond
}

// SessionTimeout returns how long a session survives in the background.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutDuration) * time.Millisecond
}

// IsBatch reports whether events are buffered for periodic delivery.
func (c *Config) IsBatch() bool {
	return c.SendMode == Batch
}
