// Package config loads process-wide settings from the environment, the
// same way cmd/server/main.go in the teacher repo mixes flag defaults with
// os.Getenv reads rather than a struct-tag env-binding library.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the process-wide configuration (spec §6 "Environment/config
// (representative)").
type Config struct {
	DataDir                string
	MaxCollectTimeoutMs    int
	ScoringInterval        int64
	ScoringEnabled         bool
	EliminateAtOrBelowZero bool
	DefaultGridW           int
	DefaultGridH           int
	DefaultEpoch           int64
	DefaultVisibility      int
	ListenAddr             string
	NamespacesConfigPath   string
}

// Load reads Config from the environment with the defaults the original
// server shipped.
func Load() Config {
	return Config{
		DataDir:                getEnv("DATA_DIR", "data/sims"),
		MaxCollectTimeoutMs:    getEnvInt("MAX_COLLECT_TIMEOUT_MS", 30_000),
		ScoringInterval:        getEnvInt64("SCORING_INTERVAL", 10),
		ScoringEnabled:         getEnvBool("SCORING_ENABLED", true),
		EliminateAtOrBelowZero: getEnvBool("ELIMINATE_AT_OR_BELOW_ZERO", false),
		DefaultGridW:           getEnvInt("DEFAULT_GRID_W", 64),
		DefaultGridH:           getEnvInt("DEFAULT_GRID_H", 64),
		DefaultEpoch:           getEnvInt64("DEFAULT_EPOCH", 10),
		DefaultVisibility:      getEnvInt("DEFAULT_VISIBILITY_RADIUS", 0),
		ListenAddr:             getEnv("LISTEN_ADDR", ":8080"),
		NamespacesConfigPath:   getEnv("NAMESPACES_CONFIG", "configs/namespaces.yaml"),
	}
}

// CollectTimeout is MaxCollectTimeoutMs as a time.Duration, the unit the
// tick loop actually wants.
func (c Config) CollectTimeout() time.Duration {
	return time.Duration(c.MaxCollectTimeoutMs) * time.Millisecond
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
