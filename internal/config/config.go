// Package config holds the process-wide viper instance. Precedence, highest
// first: command-line flags (bound by the CLI), CALLFLOW_* environment
// variables, the config file, built-in defaults.
//
// The config file is .callflow.yaml, looked up in the working directory and
// its parents, then in the home directory. A missing file is not an error.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config keys.
const (
	KeyDB           = "db"             // database path
	KeyActor        = "actor"          // default actor for writes
	KeyJSON         = "json"           // machine-readable output
	KeyHistoryKeep  = "history.keep"   // snapshots retained by history cleanup
	KeyPurgeTTL     = "purge.ttl"      // age before inactive segments are purged
	KeySegmentTypes = "segment_types"  // custom segment type capabilities
)

// ConfigFileName is the config file looked up in CWD parents and $HOME.
const ConfigFileName = ".callflow.yaml"

var v *viper.Viper

// Initialize builds the viper instance: defaults, env binding, and the
// config file if one exists. Safe to call again (tests do).
func Initialize() error {
	nv := viper.New()

	nv.SetDefault(KeyDB, defaultDBPath())
	nv.SetDefault(KeyActor, "")
	nv.SetDefault(KeyJSON, false)
	nv.SetDefault(KeyHistoryKeep, 10)
	nv.SetDefault(KeyPurgeTTL, 30*24*time.Hour)

	nv.SetEnvPrefix("CALLFLOW")
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	nv.AutomaticEnv()

	if path := findConfigFile(); path != "" {
		nv.SetConfigFile(path)
		if err := nv.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	v = nv
	return nil
}

// Viper exposes the underlying instance for flag binding and for readers
// that need structured values (the segment-type dictionary).
func Viper() *viper.Viper {
	ensureInitialized()
	return v
}

func GetString(key string) string {
	ensureInitialized()
	return v.GetString(key)
}

func GetBool(key string) bool {
	ensureInitialized()
	return v.GetBool(key)
}

func GetInt(key string) int {
	ensureInitialized()
	return v.GetInt(key)
}

func GetDuration(key string) time.Duration {
	ensureInitialized()
	return v.GetDuration(key)
}

// Set overrides a value in memory. Used by the CLI to push resolved global
// flags down to everything reading through this package.
func Set(key string, value any) {
	ensureInitialized()
	v.Set(key, value)
}

func ensureInitialized() {
	if v == nil {
		// Initialization failures surface on the explicit Initialize call;
		// the fallback here only covers direct library use.
		_ = Initialize()
	}
}

// defaultDBPath prefers a per-user location and falls back to the working
// directory when the home directory cannot be resolved.
func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "callflow.db"
	}
	return filepath.Join(home, ".callflow", "callflow.db")
}

// findConfigFile walks from the working directory up to the filesystem
// root, then tries the home directory.
func findConfigFile() string {
	cwd, err := os.Getwd()
	if err == nil {
		for dir := cwd; ; dir = filepath.Dir(dir) {
			path := filepath.Join(dir, ConfigFileName)
			if _, err := os.Stat(path); err == nil {
				return path
			}
			if dir == filepath.Dir(dir) {
				break
			}
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ConfigFileName)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
