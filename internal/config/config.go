package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all configuration for the sandbox broker.
// All values are configurable via SANDBOX_* environment variables.
type Config struct {
	// Container resource limits
	MemoryLimit string  // e.g. "512m"
	CPULimit    float64 // fraction of a CPU

	// Execution
	ExecTimeoutS int

	// Session management
	SessionTTLM      int
	MaxSessions      int
	CleanupIntervalM int

	// Size limits
	MaxUploadBytes       int64
	MaxArtifactReadBytes int64
	MaxOutputBytes       int64
	MaxCodeBytes         int64

	// Docker
	Image string

	// HTTP server (artifact downloads + tool API)
	HTTPHost string
	HTTPPort int
	APIKey   string // optional; empty disables auth

	// Logging
	LogLevel  string
	LogFile   string // empty means stdout
	LogFormat string // "console" or "json"
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		MemoryLimit: envOrDefault("SANDBOX_MEMORY_LIMIT", "512m"),
		CPULimit:    1.0,

		ExecTimeoutS: envOrDefaultInt("SANDBOX_EXEC_TIMEOUT_S", 60),

		SessionTTLM:      envOrDefaultInt("SANDBOX_SESSION_TTL_M", 30),
		MaxSessions:      envOrDefaultInt("SANDBOX_MAX_SESSIONS", 10),
		CleanupIntervalM: envOrDefaultInt("SANDBOX_CLEANUP_INTERVAL_M", 5),

		MaxUploadBytes:       envOrDefaultInt64("SANDBOX_MAX_UPLOAD_BYTES", 50*1024*1024),
		MaxArtifactReadBytes: envOrDefaultInt64("SANDBOX_MAX_ARTIFACT_READ_BYTES", 10*1024*1024),
		MaxOutputBytes:       envOrDefaultInt64("SANDBOX_MAX_OUTPUT_BYTES", 100*1024),
		MaxCodeBytes:         envOrDefaultInt64("SANDBOX_MAX_CODE_BYTES", 100*1024),

		Image: envOrDefault("SANDBOX_IMAGE", "llm-sandbox:latest"),

		HTTPHost: envOrDefault("SANDBOX_HTTP_HOST", "127.0.0.1"),
		HTTPPort: 8080,
		APIKey:   os.Getenv("SANDBOX_API_KEY"),

		LogLevel:  envOrDefault("SANDBOX_LOG_LEVEL", "info"),
		LogFile:   os.Getenv("SANDBOX_LOG_FILE"),
		LogFormat: envOrDefault("SANDBOX_LOG_FORMAT", "console"),
	}

	if portStr := os.Getenv("SANDBOX_HTTP_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid SANDBOX_HTTP_PORT %q: %w", portStr, err)
		}
		cfg.HTTPPort = port
	}

	if cpuStr := os.Getenv("SANDBOX_CPU_LIMIT"); cpuStr != "" {
		cpu, err := strconv.ParseFloat(cpuStr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SANDBOX_CPU_LIMIT %q: %w", cpuStr, err)
		}
		cfg.CPULimit = cpu
	}

	if cfg.LogFormat != "console" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("invalid SANDBOX_LOG_FORMAT %q: must be console or json", cfg.LogFormat)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
