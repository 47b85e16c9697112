package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables recognised by dmwatch.
const (
	EnvAPIURL       = "DMWATCH_API_URL"
	EnvToken        = "DMWATCH_TOKEN"
	EnvPollInterval = "DMWATCH_POLL_INTERVAL"
	EnvPlaceholder  = "DMWATCH_PLACEHOLDER"
)

// LoadEnvFiles reads .env and then .env.local from dir; later files win.
// Missing files are skipped. The process environment is not modified.
func LoadEnvFiles(dir string) (map[string]string, error) {
	merged := make(map[string]string)
	for _, name := range []string{".env", ".env.local"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		vals, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", name, err)
		}
		for k, v := range vals {
			merged[k] = v
		}
	}
	return merged, nil
}

// ApplyEnv overlays DMWATCH_* values onto cfg. Values found by lookup (the
// process environment) take precedence over those in files.
func (c *Config) ApplyEnv(files map[string]string, lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		if lookup != nil {
			if v, ok := lookup(key); ok {
				return v, true
			}
		}
		v, ok := files[key]
		return v, ok
	}

	if v, ok := get(EnvAPIURL); ok && v != "" {
		c.APIURL = v
	}
	if v, ok := get(EnvToken); ok && v != "" {
		c.Token = v
	}
	if v, ok := get(EnvPollInterval); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPollInterval, err)
		}
		c.PollInterval = d
	}
	if v, ok := get(EnvPlaceholder); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPlaceholder, err)
		}
		c.Placeholder = b
	}
	return nil
}

// LoadAll resolves the file, .env files in the working directory and the
// process environment, in increasing order of precedence. Flags are applied
// by the caller.
func LoadAll(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	files, err := LoadEnvFiles(wd)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(files, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}
