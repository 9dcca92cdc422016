package server

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"objserve/pkg/byterange"
	"objserve/pkg/r2"

	"github.com/dustin/go-humanize"
	"github.com/gnitoahc/go-dotenv"
)

// Config is the process configuration, read from the environment (and an
// optional .env file) and then overridden by command line flags.
type Config struct {
	Port            int
	MetricsPort     int
	LogLevel        string
	RangePolicy     string
	MaxRangeLength  string
	ShutdownTimeout time.Duration
	Backend         BackendConfig
}

// BackendConfig selects and configures the object backend.
type BackendConfig struct {
	// Driver is one of "r2", "sqlite" or "libsql".
	Driver string
	// Source is the DSN of the sqlite/libsql store.
	Source string
	R2     r2.Config
}

// LoadConfig reads the configuration. Values missing from the environment
// fall back to defaults suitable for a local sqlite store.
func LoadConfig(envFile string) (Config, error) {
	if envFile != "" {
		dotenv.Load(envFile)
	}

	port, err := strconv.Atoi(dotenv.Get("PORT", "3000"))
	if err != nil {
		return Config{}, fmt.Errorf("config: PORT: %w", err)
	}
	metricsPort, err := strconv.Atoi(dotenv.Get("METRICS_PORT", "9090"))
	if err != nil {
		return Config{}, fmt.Errorf("config: METRICS_PORT: %w", err)
	}
	shutdownTimeout, err := time.ParseDuration(dotenv.Get("SHUTDOWN_TIMEOUT", "10s"))
	if err != nil {
		return Config{}, fmt.Errorf("config: SHUTDOWN_TIMEOUT: %w", err)
	}

	return Config{
		Port:            port,
		MetricsPort:     metricsPort,
		LogLevel:        dotenv.Get("LOG_LEVEL", "info"),
		RangePolicy:     dotenv.Get("RANGE_POLICY", "eager"),
		MaxRangeLength:  dotenv.Get("MAX_RANGE_LENGTH", "8MiB"),
		ShutdownTimeout: shutdownTimeout,
		Backend: BackendConfig{
			Driver: dotenv.Get("OBJECT_BACKEND_DRIVER", "sqlite"),
			Source: dotenv.Get("OBJECT_STORAGE_SOURCE", "file:object_storage.db?cache=shared"),
			R2: r2.Config{
				AccountID:        dotenv.Get("CF_ACCOUNT_ID", ""),
				AccessKey:        dotenv.Get("CF_ACCESS_KEY", ""),
				SecretAccessKey:  dotenv.Get("CF_SECRET_ACCESS_KEY", ""),
				Bucket:           dotenv.Get("CF_BUCKET", ""),
				EndpointOverride: dotenv.Get("CF_ENDPOINT", ""),
				UsePathStyle:     dotenv.Get("CF_USE_PATH_STYLE", "false") == "true",
			},
		},
	}, nil
}

// Resolver builds the range resolver described by the configuration.
// An invalid or non-positive MaxRangeLength falls back to the default.
func (c Config) Resolver() (byterange.Resolver, error) {
	policy, err := byterange.ParsePolicy(c.RangePolicy)
	if err != nil {
		return byterange.Resolver{}, err
	}
	return byterange.NewResolver(policy, ParseByteSize(c.MaxRangeLength)), nil
}

// ParseByteSize reads sizes such as "8MiB", "500kB" or "1048576".
// It returns 0 for anything it cannot use.
func ParseByteSize(v string) int64 {
	n, err := humanize.ParseBytes(strings.TrimSpace(v))
	if err != nil || n == 0 || n > math.MaxInt64 {
		return 0
	}
	return int64(n)
}

// NewLogger builds the process logger. level is debug, info, warn or error.
func NewLogger(w io.Writer, level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}
