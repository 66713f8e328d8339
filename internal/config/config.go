package config

import (
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultPort is the fixed listen port of the exporter.
	DefaultPort = 9400

	// DefaultQueryTimeout bounds a single nvidia-smi invocation.
	DefaultQueryTimeout = 5 * time.Second

	// DefaultCommand is the GPU query utility invoked on every scrape.
	DefaultCommand = "nvidia-smi"
)

// Config holds all exporter configuration values.
//
// Port, command and query timeout are fixed; only the debug switch is read
// from the environment.
type Config struct {
	Port         int
	Command      string
	QueryTimeout time.Duration
	InstanceID   string

	DebugEndpoints bool // NVSMI_EXPORTER_DEBUG_ENDPOINTS, default: false — enables pprof/debug routes
}

// Load returns the exporter Config.
func Load() Config {
	return Config{
		Port:           DefaultPort,
		Command:        DefaultCommand,
		QueryTimeout:   DefaultQueryTimeout,
		InstanceID:     uuid.New().String(),
		DebugEndpoints: parseBool("NVSMI_EXPORTER_DEBUG_ENDPOINTS", false),
	}
}

func parseBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}
