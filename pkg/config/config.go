// Package config loads process-level daemon configuration: defaults that
// apply to every watched root unless a query overrides them (default
// sync_timeout and lock_timeout), plus the cookie subdirectory name used on
// filesystems where deep-subtree creations may be coalesced. Loading itself
// is ambient plumbing exercised by the daemon entry point; resolving
// per-query overrides against these defaults is the caller's job.
package config

import (
	"os"
	"time"

	"github.com/wisprd/wisp/pkg/encoding"
	"github.com/wisprd/wisp/pkg/filesystem"
)

// EnvironmentVariableConfigurationPath is the name of the environment
// variable that can be used to override the global configuration file path.
const EnvironmentVariableConfigurationPath = "WISP_CONFIG_FILE"

// Configuration is the TOML-based global daemon configuration object.
type Configuration struct {
	// SyncTimeout is the default cookie sync timeout, in milliseconds,
	// applied when a query omits sync_timeout.
	SyncTimeout uint64 `toml:"sync_timeout"`
	// LockTimeout is the default lock wait timeout, in milliseconds, applied
	// when a query omits lock_timeout.
	LockTimeout uint64 `toml:"lock_timeout"`
	// CookieDirectory, if non-empty, names a subdirectory (relative to the
	// watched root) in which cookie files are created instead of the root
	// itself.
	CookieDirectory string `toml:"cookie_dir"`
}

// Default returns the configuration applied when no file is found.
func Default() *Configuration {
	return &Configuration{
		SyncTimeout: 60000,
		LockTimeout: 60000,
	}
}

// SyncTimeoutDuration returns SyncTimeout as a time.Duration.
func (c *Configuration) SyncTimeoutDuration() time.Duration {
	return time.Duration(c.SyncTimeout) * time.Millisecond
}

// LockTimeoutDuration returns LockTimeout as a time.Duration.
func (c *Configuration) LockTimeoutDuration() time.Duration {
	return time.Duration(c.LockTimeout) * time.Millisecond
}

// Path returns the path to the global configuration file, honoring
// EnvironmentVariableConfigurationPath if set.
func Path() (string, error) {
	if override := os.Getenv(EnvironmentVariableConfigurationPath); override != "" {
		return override, nil
	}
	return filesystem.WispConfigurationPath, nil
}

// Load attempts to load the global configuration file, falling back to
// Default if the file does not exist.
func Load() (*Configuration, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}

	result := Default()
	if err := encoding.LoadAndUnmarshalTOML(path, result); err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return result, nil
}
