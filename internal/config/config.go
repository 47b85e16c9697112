// Package config provides configuration management for dmwatch.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/whole-tale/girder-wt-data-manager/internal/constants"
)

// Config is the dmwatch client configuration.
//
// Config file location:
//   - Windows: %USERPROFILE%\.config\wholetale\dmwatch.ini
//   - Unix: ~/.config/wholetale/dmwatch.ini
//
// INI format:
//
//	[girder]
//	api_url = http://localhost:8080/api/v1
//	token = <girder token>
//
//	[monitor]
//	poll_interval = 5s
//	placeholder_data = false
//	session_id =
//
//	[http]
//	timeout = 30s
//	retry_max = 2
//	proxy_mode = no-proxy
//	proxy_host =
//	proxy_port = 0
//	proxy_user =
//	no_proxy =
//
//	[logging]
//	file =
type Config struct {
	// Girder connection settings
	APIURL string
	Token  string

	// Monitor settings
	PollInterval time.Duration
	Placeholder  bool   // inject the synthetic transfer into rendered views
	SessionID    string // restrict transfer listings to one session

	// HTTP settings
	Timeout       time.Duration
	RetryMax      int
	ProxyMode     string // no-proxy, system, basic, ntlm
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string // never written to disk
	NoProxy       string

	LogFile string
}

// Validation errors
var (
	ErrMissingAPIURL       = errors.New("api_url is required")
	ErrInvalidAPIURL       = errors.New("api_url must be an absolute http(s) URL")
	ErrMissingToken        = errors.New("token is required")
	ErrInvalidPollInterval = fmt.Errorf("poll_interval must be at least %s", constants.MinPollInterval)
	ErrInvalidRetryMax     = errors.New("retry_max must be between 0 and 10")
	ErrInvalidProxyMode    = errors.New("proxy_mode must be one of no-proxy, system, basic, ntlm")
	ErrMissingProxyHost    = errors.New("proxy_host is required for basic and ntlm proxy modes")
	ErrUnknownKey          = errors.New("unknown config key")
)

// DefaultConfigPath returns the default path for the config file.
func DefaultConfigPath() (string, error) {
	var configDir string

	if runtime.GOOS == "windows" {
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", errors.New("USERPROFILE environment variable not set")
		}
		configDir = filepath.Join(userProfile, ".config", "wholetale")
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config", "wholetale")
	}

	return filepath.Join(configDir, "dmwatch.ini"), nil
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		APIURL:       "http://localhost:8080/api/v1",
		PollInterval: constants.DefaultPollInterval,
		Timeout:      constants.APIContextTimeout,
		RetryMax:     constants.DefaultRetryMax,
		ProxyMode:    "no-proxy",
	}
}

// Load loads configuration from an INI file.
// If the file doesn't exist, returns a config with default values and no error.
// If the file exists but is invalid, returns an error.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	girder := iniFile.Section("girder")
	cfg.APIURL = girder.Key("api_url").MustString(cfg.APIURL)
	cfg.Token = girder.Key("token").String()

	monitor := iniFile.Section("monitor")
	cfg.PollInterval = monitor.Key("poll_interval").MustDuration(cfg.PollInterval)
	cfg.Placeholder = monitor.Key("placeholder_data").MustBool(false)
	cfg.SessionID = monitor.Key("session_id").String()

	httpSection := iniFile.Section("http")
	cfg.Timeout = httpSection.Key("timeout").MustDuration(cfg.Timeout)
	cfg.RetryMax = httpSection.Key("retry_max").MustInt(cfg.RetryMax)
	cfg.ProxyMode = httpSection.Key("proxy_mode").MustString(cfg.ProxyMode)
	cfg.ProxyHost = httpSection.Key("proxy_host").String()
	cfg.ProxyPort = httpSection.Key("proxy_port").MustInt(0)
	cfg.ProxyUser = httpSection.Key("proxy_user").String()
	cfg.NoProxy = httpSection.Key("no_proxy").String()

	cfg.LogFile = iniFile.Section("logging").Key("file").String()

	return cfg, nil
}

// Save writes configuration to an INI file.
// Creates parent directories if they don't exist. The proxy password is
// never persisted; the token is, so the file is made owner-only.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()
	for _, f := range fields {
		if f.secret {
			continue
		}
		section, key, _ := strings.Cut(f.name, ".")
		iniFile.Section(section).Key(key).SetValue(f.get(cfg))
	}

	// Use temporary file + rename for atomicity
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if err := c.ValidateForConnection(); err != nil {
		return err
	}
	if c.PollInterval < constants.MinPollInterval {
		return ErrInvalidPollInterval
	}
	if c.RetryMax < 0 || c.RetryMax > 10 {
		return ErrInvalidRetryMax
	}
	switch strings.ToLower(c.ProxyMode) {
	case "", "no-proxy", "system":
	case "basic", "ntlm":
		if strings.TrimSpace(c.ProxyHost) == "" {
			return ErrMissingProxyHost
		}
	default:
		return ErrInvalidProxyMode
	}
	return nil
}

// ValidateForConnection checks only the settings needed to reach the API.
func (c *Config) ValidateForConnection() error {
	if strings.TrimSpace(c.APIURL) == "" {
		return ErrMissingAPIURL
	}
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidAPIURL
	}
	if strings.TrimSpace(c.Token) == "" {
		return ErrMissingToken
	}
	return nil
}

// field binds a dotted "section.key" name to a Config member.
type field struct {
	name   string
	secret bool
	get    func(*Config) string
	set    func(*Config, string) error
}

var fields = []field{
	{name: "girder.api_url",
		get: func(c *Config) string { return c.APIURL },
		set: func(c *Config, v string) error { c.APIURL = v; return nil }},
	{name: "girder.token",
		get: func(c *Config) string { return c.Token },
		set: func(c *Config, v string) error { c.Token = v; return nil }},
	{name: "monitor.poll_interval",
		get: func(c *Config) string { return c.PollInterval.String() },
		set: func(c *Config, v string) error { return setDuration(&c.PollInterval, v) }},
	{name: "monitor.placeholder_data",
		get: func(c *Config) string { return strconv.FormatBool(c.Placeholder) },
		set: func(c *Config, v string) error { return setBool(&c.Placeholder, v) }},
	{name: "monitor.session_id",
		get: func(c *Config) string { return c.SessionID },
		set: func(c *Config, v string) error { c.SessionID = v; return nil }},
	{name: "http.timeout",
		get: func(c *Config) string { return c.Timeout.String() },
		set: func(c *Config, v string) error { return setDuration(&c.Timeout, v) }},
	{name: "http.retry_max",
		get: func(c *Config) string { return strconv.Itoa(c.RetryMax) },
		set: func(c *Config, v string) error { return setInt(&c.RetryMax, v) }},
	{name: "http.proxy_mode",
		get: func(c *Config) string { return c.ProxyMode },
		set: func(c *Config, v string) error { c.ProxyMode = strings.ToLower(v); return nil }},
	{name: "http.proxy_host",
		get: func(c *Config) string { return c.ProxyHost },
		set: func(c *Config, v string) error { c.ProxyHost = v; return nil }},
	{name: "http.proxy_port",
		get: func(c *Config) string { return strconv.Itoa(c.ProxyPort) },
		set: func(c *Config, v string) error { return setInt(&c.ProxyPort, v) }},
	{name: "http.proxy_user",
		get: func(c *Config) string { return c.ProxyUser },
		set: func(c *Config, v string) error { c.ProxyUser = v; return nil }},
	{name: "http.proxy_password", secret: true,
		get: func(c *Config) string { return c.ProxyPassword },
		set: func(c *Config, v string) error { c.ProxyPassword = v; return nil }},
	{name: "http.no_proxy",
		get: func(c *Config) string { return c.NoProxy },
		set: func(c *Config, v string) error { c.NoProxy = v; return nil }},
	{name: "logging.file",
		get: func(c *Config) string { return c.LogFile },
		set: func(c *Config, v string) error { c.LogFile = v; return nil }},
}

func lookupField(name string) (field, error) {
	for _, f := range fields {
		if f.name == name {
			return f, nil
		}
	}
	return field{}, fmt.Errorf("%w: %s", ErrUnknownKey, name)
}

// Keys lists the settable keys in file order.
func Keys() []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, f.name)
	}
	return out
}

// Get returns the string form of a dotted key such as "monitor.poll_interval".
func (c *Config) Get(key string) (string, error) {
	f, err := lookupField(key)
	if err != nil {
		return "", err
	}
	return f.get(c), nil
}

// Set parses and assigns a dotted key.
func (c *Config) Set(key, value string) error {
	f, err := lookupField(key)
	if err != nil {
		return err
	}
	if err := f.set(c, strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// Redacted returns every key with secrets masked, sorted by key.
func (c *Config) Redacted() map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		v := f.get(c)
		if (f.secret || f.name == "girder.token") && v != "" {
			v = maskSecret(v)
		}
		out[f.name] = v
	}
	return out
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

func setDuration(dst *time.Duration, v string) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

func setInt(dst *int, v string) error {
	i, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = i
	return nil
}
