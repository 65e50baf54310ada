// Package config loads genpkg settings from defaults, an optional YAML
// file, the environment and command line flags, in increasing precedence.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/git-pkgs/genpkg/internal/core"
)

// Formats accepted by the format setting.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Config is the resolved configuration of one invocation.
type Config struct {
	APIURL          string
	JobToken        string
	PrivateToken    string
	APITimeout      time.Duration
	TransferTimeout time.Duration
	Prune           Prune
	Confirm         bool
	KeepTemp        bool
	LogLevel        string
	Format          string
}

// Prune holds the retention settings.
type Prune struct {
	MaxAgeDays       int
	Protect          []string
	RetainLatest     bool
	BreakerThreshold int
}

// envNames lists the environment variables of each key, most specific
// first. CI_* variables are set by GitLab CI jobs.
var envNames = map[string][]string{
	"api_url":                 {"GENPKG_API_URL", "CI_API_V4_URL"},
	"job_token":               {"GENPKG_JOB_TOKEN", "CI_JOB_TOKEN"},
	"private_token":           {"GENPKG_PRIVATE_TOKEN", "GITLAB_TOKEN"},
	"api_timeout":             {"GENPKG_API_TIMEOUT"},
	"transfer_timeout":        {"GENPKG_TRANSFER_TIMEOUT"},
	"prune.max_age_days":      {"GENPKG_PRUNE_MAX_AGE_DAYS"},
	"prune.protect":           {"GENPKG_PRUNE_PROTECT"},
	"prune.retain_latest":     {"GENPKG_PRUNE_RETAIN_LATEST"},
	"prune.breaker_threshold": {"GENPKG_PRUNE_BREAKER_THRESHOLD"},
	"confirm":                 {"GENPKG_CONFIRM"},
	"keep_temp":               {"GENPKG_KEEP_TEMP"},
	"log_level":               {"GENPKG_LOG_LEVEL"},
	"format":                  {"GENPKG_FORMAT"},
}

// flagKeys maps command line flags to configuration keys. The protect flag
// is read separately so that patterns containing commas survive.
var flagKeys = map[string]string{
	"api-url":           "api_url",
	"api-timeout":       "api_timeout",
	"transfer-timeout":  "transfer_timeout",
	"max-age-days":      "prune.max_age_days",
	"retain-latest":     "prune.retain_latest",
	"breaker-threshold": "prune.breaker_threshold",
	"confirm":           "confirm",
	"keep-temp":         "keep_temp",
	"log-level":         "log_level",
	"format":            "format",
}

// New returns a viper instance with defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("api_url", "https://gitlab.com/api/v4")
	v.SetDefault("api_timeout", 30*time.Second)
	v.SetDefault("transfer_timeout", 10*time.Minute)
	v.SetDefault("prune.max_age_days", 30)
	v.SetDefault("prune.protect", []string{})
	v.SetDefault("prune.retain_latest", true)
	v.SetDefault("prune.breaker_threshold", 5)
	v.SetDefault("confirm", false)
	v.SetDefault("keep_temp", false)
	v.SetDefault("log_level", "warn")
	v.SetDefault("format", FormatText)

	for key, names := range envNames {
		_ = v.BindEnv(append([]string{key}, names...)...)
	}
	return v
}

// BindFlags binds the flags of fs that exist to their keys.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding --%s: %w", name, err)
		}
	}
	return nil
}

// Load reads configFile when set and resolves the configuration. fs may
// be nil; when it has a changed "protect" flag, its values replace the
// configured patterns.
func Load(v *viper.Viper, configFile string, fs *pflag.FlagSet) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		APIURL:          v.GetString("api_url"),
		JobToken:        v.GetString("job_token"),
		PrivateToken:    v.GetString("private_token"),
		APITimeout:      v.GetDuration("api_timeout"),
		TransferTimeout: v.GetDuration("transfer_timeout"),
		Prune: Prune{
			MaxAgeDays:       v.GetInt("prune.max_age_days"),
			Protect:          v.GetStringSlice("prune.protect"),
			RetainLatest:     v.GetBool("prune.retain_latest"),
			BreakerThreshold: v.GetInt("prune.breaker_threshold"),
		},
		Confirm:  v.GetBool("confirm"),
		KeepTemp: v.GetBool("keep_temp"),
		LogLevel: v.GetString("log_level"),
		Format:   v.GetString("format"),
	}

	if fs != nil && fs.Changed("protect") {
		patterns, err := fs.GetStringArray("protect")
		if err != nil {
			return nil, err
		}
		cfg.Prune.Protect = patterns
	}
	return cfg, nil
}

// Validate rejects settings no command can run with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &core.ArgumentError{Msg: fmt.Sprintf("invalid API URL %q", c.APIURL)}
	}
	if c.APITimeout <= 0 {
		return &core.ArgumentError{Msg: fmt.Sprintf("API timeout must be positive, got %s", c.APITimeout)}
	}
	if c.TransferTimeout <= 0 {
		return &core.ArgumentError{Msg: fmt.Sprintf("transfer timeout must be positive, got %s", c.TransferTimeout)}
	}
	switch c.Format {
	case FormatText, FormatJSON, FormatYAML:
	default:
		return &core.ArgumentError{Msg: fmt.Sprintf("unknown output format %q (want text, json or yaml)", c.Format)}
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return &core.ArgumentError{Msg: fmt.Sprintf("unknown log level %q", c.LogLevel)}
	}
	return nil
}
