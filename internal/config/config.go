package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"stemdeck/pkg/spec"

	"github.com/rs/zerolog"
)

// Config holds runtime configuration, loaded from environment variables.
type Config struct {
	ManifestPath string
	CacheDir     string
	CacheKey     string
	Device       string

	PriorityTracks int
	SettleDelay    time.Duration
	StaggerDelay   time.Duration
	TickInterval   time.Duration

	LogLevel zerolog.Level
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	return Config{
		ManifestPath: envStr("STEMDECK_MANIFEST", "song.yaml"),
		CacheDir:     envStr("STEMDECK_CACHE_DIR", defaultCacheDir()),
		CacheKey:     envStr("STEMDECK_CACHE_KEY", "stemdeck"),
		Device:       envStr("STEMDECK_DEVICE", spec.DefaultDevice),

		PriorityTracks: envInt("STEMDECK_PRIORITY", spec.PriorityTracks),
		SettleDelay:    envMillis("STEMDECK_SETTLE_MS", spec.SettleDelay),
		StaggerDelay:   envMillis("STEMDECK_STAGGER_MS", spec.StaggerDelay),
		TickInterval:   envMillis("STEMDECK_TICK_MS", spec.TickInterval),

		LogLevel: envLevel("STEMDECK_LOG_LEVEL", zerolog.InfoLevel),
	}
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "stemdeck")
	}
	return filepath.Join(os.TempDir(), "stemdeck")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// envMillis reads a millisecond count. "0" disables the delay.
func envMillis(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			if n == 0 {
				return -1
			}
			return time.Duration(n) * time.Millisecond
		}
	}
	return fallback
}

func envLevel(key string, fallback zerolog.Level) zerolog.Level {
	if v := os.Getenv(key); v != "" {
		if lvl, err := zerolog.ParseLevel(v); err == nil {
			return lvl
		}
	}
	return fallback
}
