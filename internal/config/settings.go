package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Remote data-manager setting keys, stored by Girder under system/setting.
const (
	SettingPrivateStoragePath     = "dm.private_storage_path"
	SettingPrivateStorageCapacity = "dm.private_storage_capacity"
	SettingGCRunInterval          = "dm.gc_run_interval"
	SettingGCCollectStartFraction = "dm.gc_collect_start_fraction"
	SettingGCCollectEndFraction   = "dm.gc_collect_end_fraction"
)

// ErrUnknownSetting is returned for keys outside the data-manager catalogue.
var ErrUnknownSetting = errors.New("unknown data manager setting")

// Setting describes one server-side data-manager setting.
type Setting struct {
	Key         string
	Description string
	Default     string // server default, for display only
	normalize   func(string) (string, error)
}

// Settings is the catalogue, in the order the server's config form shows them.
var Settings = []Setting{
	{
		Key:         SettingPrivateStoragePath,
		Description: "Directory holding the data manager's file cache",
		Default:     "/tmp/ps",
		normalize:   normalizePath,
	},
	{
		Key:         SettingPrivateStorageCapacity,
		Description: "Cache capacity in bytes (accepts sizes such as 100GB)",
		Default:     strconv.FormatUint(100*humanize.GiByte, 10),
		normalize:   normalizeCapacity,
	},
	{
		Key:         SettingGCRunInterval,
		Description: "Seconds between garbage collection runs",
		Default:     "600",
		normalize:   normalizeInterval,
	},
	{
		Key:         SettingGCCollectStartFraction,
		Description: "Cache usage fraction at which collection starts",
		Default:     "0.5",
		normalize:   normalizeFraction,
	},
	{
		Key:         SettingGCCollectEndFraction,
		Description: "Cache usage fraction at which collection stops",
		Default:     "0.5",
		normalize:   normalizeFraction,
	},
}

// SettingKeys returns the catalogue keys in order.
func SettingKeys() []string {
	keys := make([]string, 0, len(Settings))
	for _, s := range Settings {
		keys = append(keys, s.Key)
	}
	return keys
}

// LookupSetting finds a catalogue entry by key.
func LookupSetting(key string) (Setting, error) {
	for _, s := range Settings {
		if s.Key == key {
			return s, nil
		}
	}
	return Setting{}, fmt.Errorf("%w: %s", ErrUnknownSetting, key)
}

// Normalize trims and validates a value, returning the form sent to the server.
func (s Setting) Normalize(raw string) (string, error) {
	v := strings.TrimSpace(raw)
	out, err := s.normalize(v)
	if err != nil {
		return "", fmt.Errorf("%s: %w", s.Key, err)
	}
	return out, nil
}

// ParseSettingAssignments parses KEY=VALUE pairs into normalised values,
// keeping the argument order.
func ParseSettingAssignments(args []string) ([][2]string, error) {
	out := make([][2]string, 0, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("expected KEY=VALUE, got %q", arg)
		}
		s, err := LookupSetting(strings.TrimSpace(key))
		if err != nil {
			return nil, err
		}
		v, err := s.Normalize(value)
		if err != nil {
			return nil, err
		}
		out = append(out, [2]string{s.Key, v})
	}
	return out, nil
}

// ValidateFractions checks that collection stops at or below where it starts.
func ValidateFractions(start, end float64) error {
	if math.IsNaN(start) || math.IsNaN(end) {
		return fmt.Errorf("%s and %s must be numbers", SettingGCCollectStartFraction, SettingGCCollectEndFraction)
	}
	if end > start {
		return fmt.Errorf("%s (%g) must not exceed %s (%g)",
			SettingGCCollectEndFraction, end, SettingGCCollectStartFraction, start)
	}
	return nil
}

func normalizePath(v string) (string, error) {
	if v == "" {
		return "", errors.New("path must not be empty")
	}
	return v, nil
}

func normalizeCapacity(v string) (string, error) {
	if n, err := strconv.ParseUint(v, 10, 64); err == nil {
		return strconv.FormatUint(n, 10), nil
	}
	n, err := humanize.ParseBytes(v)
	if err != nil {
		return "", fmt.Errorf("invalid capacity %q", v)
	}
	return strconv.FormatUint(n, 10), nil
}

func normalizeInterval(v string) (string, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return "", fmt.Errorf("interval must be a positive number of seconds, got %q", v)
	}
	return strconv.Itoa(n), nil
}

func normalizeFraction(v string) (string, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || f < 0 || f > 1 {
		return "", fmt.Errorf("fraction must be between 0 and 1, got %q", v)
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}
