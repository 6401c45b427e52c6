package bgrid

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

// Config is a map of keyword to arbitrary data to specify configurations via keyword.
// Keys are case-insensitive.
type Config map[string]interface{}

// GetString returns the string for a key or "" if not present.
func (c Config) GetString(key string) (string, bool, error) {
	v, found := c[strings.ToLower(key)]
	if !found || v == nil {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", true, fmt.Errorf("setting %q is not a string (%T): %w", key, v, ErrValue)
	}
	return s, true, nil
}

// GetBool returns a boolean setting, accepting TOML booleans or strings.
func (c Config) GetBool(key string) (bool, bool, error) {
	v, found := c[strings.ToLower(key)]
	if !found || v == nil {
		return false, false, nil
	}
	switch b := v.(type) {
	case bool:
		return b, true, nil
	case string:
		return b == "true" || b == "1", true, nil
	default:
		return false, true, fmt.Errorf("setting %q is not a bool (%T): %w", key, v, ErrValue)
	}
}

// GetInt returns an integer setting, accepting TOML integers or floats.
func (c Config) GetInt(key string) (int, bool, error) {
	v, found := c[strings.ToLower(key)]
	if !found || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case int:
		return n, true, nil
	case int64:
		return int(n), true, nil
	case float64:
		return int(n), true, nil
	default:
		return 0, true, fmt.Errorf("setting %q is not an integer (%T): %w", key, v, ErrValue)
	}
}

// GetBytes returns a size setting that may be given as a number of bytes or
// a human-readable string like "512 MB".
func (c Config) GetBytes(key string) (uint64, bool, error) {
	v, found := c[strings.ToLower(key)]
	if !found || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case int:
		return uint64(n), true, nil
	case int64:
		return uint64(n), true, nil
	case string:
		b, err := humanize.ParseBytes(n)
		if err != nil {
			return 0, true, fmt.Errorf("setting %q: %v: %w", key, err, ErrValue)
		}
		return b, true, nil
	default:
		return 0, true, fmt.Errorf("setting %q is not a size (%T): %w", key, v, ErrValue)
	}
}

// StoreConfig is a store-specific configuration where each engine defines
// the settings it accepts.
type StoreConfig struct {
	Config

	// Engine is a simple name describing the engine, e.g., "badger".
	Engine string
}

// NewStoreConfig lower-cases setting keys so lookups are case-insensitive.
func NewStoreConfig(engine string, settings map[string]interface{}) StoreConfig {
	c := make(Config, len(settings))
	for k, v := range settings {
		c[strings.ToLower(k)] = v
	}
	return StoreConfig{Config: c, Engine: engine}
}

// ConvertToAbsolute returns an absolute path for a path relative to the directory
// of a reference file, e.g., a TOML configuration.
func ConvertToAbsolute(path, referenceFile string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(filepath.Dir(referenceFile), path)
}

// FileExists returns true if a file or directory exists at the path.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

const (
	Kilo = 1 << 10
	Mega = 1 << 20
	Giga = 1 << 30
)

// HumanBytes returns a human-readable size for logging.
func HumanBytes(n int) string {
	return humanize.Bytes(uint64(n))
}
