package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAddr is the HTTP/WebSocket listen address for the viewer hub.
	DefaultAddr = ":43127"
	// DefaultGRPCAddr is the listen address for the frame streaming service.
	DefaultGRPCAddr = ":43128"
	// DefaultTickHz is the simulation rate; one frame is produced per tick.
	DefaultTickHz = 60.0
	// DefaultSpeed is the distance the ray travels per tick.
	DefaultSpeed = 0.005
	// DefaultPingInterval controls the keepalive cadence for WebSocket connections.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxClients bounds concurrent viewer connections. Zero disables the limit.
	DefaultMaxClients = 64

	// DefaultReplayDumpWindow bounds how frequently replay dumps may be requested.
	DefaultReplayDumpWindow = time.Minute
	// DefaultReplayDumpBurst sets how many replay dumps may be requested per window.
	DefaultReplayDumpBurst = 1
	// DefaultReplayMaxBundles caps how many closed replay bundles stay on disk.
	DefaultReplayMaxBundles = 20
	// DefaultReplayMaxAge removes bundles older than a week.
	DefaultReplayMaxAge = 7 * 24 * time.Hour

	DefaultLogLevel      = "info"
	DefaultLogPath       = "raygrid.log"
	DefaultLogMaxSizeMB  = 100
	DefaultLogMaxBackups = 10
	DefaultLogMaxAgeDays = 7
	DefaultLogCompress   = true
)

// Config captures all runtime tunables for the demo host.
type Config struct {
	Address          string
	GRPCAddress      string
	GRPCSecret       string
	SteeringSecret   string
	AllowedOrigins   []string
	TickHz           float64
	Seed             int64
	Speed            float64
	ScenePath        string
	ReplayDir        string
	AdminToken       string
	MaxClients       int
	PingInterval     time.Duration
	ReplayDumpWindow time.Duration
	ReplayDumpBurst  int
	ReplayMaxBundles int
	ReplayMaxAge     time.Duration
	Logging          LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load reads the configuration from RAYGRID_* environment variables, applying
// defaults and collecting every invalid override into a single error.
func Load() (*Config, error) {
	cfg := &Config{
		Address:          getString("RAYGRID_ADDR", DefaultAddr),
		GRPCAddress:      getString("RAYGRID_GRPC_ADDR", DefaultGRPCAddr),
		GRPCSecret:       strings.TrimSpace(os.Getenv("RAYGRID_GRPC_SECRET")),
		SteeringSecret:   strings.TrimSpace(os.Getenv("RAYGRID_STEERING_SECRET")),
		AllowedOrigins:   parseList(os.Getenv("RAYGRID_ALLOWED_ORIGINS")),
		TickHz:           DefaultTickHz,
		Speed:            DefaultSpeed,
		ScenePath:        strings.TrimSpace(os.Getenv("RAYGRID_SCENE_PATH")),
		ReplayDir:        strings.TrimSpace(os.Getenv("RAYGRID_REPLAY_DIR")),
		AdminToken:       strings.TrimSpace(os.Getenv("RAYGRID_ADMIN_TOKEN")),
		MaxClients:       DefaultMaxClients,
		PingInterval:     DefaultPingInterval,
		ReplayDumpWindow: DefaultReplayDumpWindow,
		ReplayDumpBurst:  DefaultReplayDumpBurst,
		ReplayMaxBundles: DefaultReplayMaxBundles,
		ReplayMaxAge:     DefaultReplayMaxAge,
		Logging: LoggingConfig{
			Level:      getString("RAYGRID_LOG_LEVEL", DefaultLogLevel),
			Path:       getString("RAYGRID_LOG_PATH", DefaultLogPath),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	//1.- An explicitly empty RAYGRID_GRPC_ADDR, or "off", disables the gRPC listener.
	if raw, set := os.LookupEnv("RAYGRID_GRPC_ADDR"); set && strings.TrimSpace(raw) == "" || strings.EqualFold(cfg.GRPCAddress, "off") {
		cfg.GRPCAddress = ""
	}

	if raw := strings.TrimSpace(os.Getenv("RAYGRID_TICK_HZ")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || !(value > 0) {
			problems = append(problems, fmt.Sprintf("RAYGRID_TICK_HZ must be a positive number, got %q", raw))
		} else {
			cfg.TickHz = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("RAYGRID_SEED")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			problems = append(problems, fmt.Sprintf("RAYGRID_SEED must be an integer, got %q", raw))
		} else {
			cfg.Seed = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("RAYGRID_SPEED")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || !(value > 0) {
			problems = append(problems, fmt.Sprintf("RAYGRID_SPEED must be a positive number, got %q", raw))
		} else {
			cfg.Speed = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("RAYGRID_MAX_CLIENTS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("RAYGRID_MAX_CLIENTS must be a non-negative integer, got %q", raw))
		} else {
			cfg.MaxClients = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("RAYGRID_PING_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("RAYGRID_PING_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.PingInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("RAYGRID_REPLAY_DUMP_WINDOW")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("RAYGRID_REPLAY_DUMP_WINDOW must be a positive duration, got %q", raw))
		} else {
			cfg.ReplayDumpWindow = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("RAYGRID_REPLAY_DUMP_BURST")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("RAYGRID_REPLAY_DUMP_BURST must be a positive integer, got %q", raw))
		} else {
			cfg.ReplayDumpBurst = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("RAYGRID_REPLAY_MAX_BUNDLES")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("RAYGRID_REPLAY_MAX_BUNDLES must be a non-negative integer, got %q", raw))
		} else {
			cfg.ReplayMaxBundles = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("RAYGRID_REPLAY_MAX_AGE")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration < 0 {
			problems = append(problems, fmt.Sprintf("RAYGRID_REPLAY_MAX_AGE must be a non-negative duration, got %q", raw))
		} else {
			cfg.ReplayMaxAge = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("RAYGRID_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("RAYGRID_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("RAYGRID_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("RAYGRID_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("RAYGRID_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("RAYGRID_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("RAYGRID_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("RAYGRID_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if cfg.GRPCAddress != "" && cfg.GRPCAddress == cfg.Address {
		problems = append(problems, "RAYGRID_GRPC_ADDR must differ from RAYGRID_ADDR")
	}

	if len(problems) > 0 {
		return nil, errors.New(strings.Join(problems, "; "))
	}
	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
