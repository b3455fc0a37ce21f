package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/susu3304/whereami/internal/catalog"
	"github.com/susu3304/whereami/internal/game"
	"github.com/susu3304/whereami/internal/geoscore"
	"github.com/susu3304/whereami/internal/observability"
)

const (
	StoreLocal    = "local"
	StorePostgres = "postgres"

	TargetsPostgres = "postgres"
	TargetsMinio    = "minio"
)

type Config struct {
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`

	// Where saved games and history live.
	Store       string `env:"STORE" envDefault:"local"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"whereami.db"`

	// Where targets come from.
	Targets string `env:"TARGETS" envDefault:"postgres"`
	Minio   Minio  `envPrefix:"MINIO_"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"whereami.history"`

	// Game
	NumRounds     int           `env:"ROUNDS" envDefault:"3"`
	Mode          game.Mode     `env:"MODE" envDefault:"random"`
	GameID        string        `env:"GAME_ID"`
	PlayerID      string        `env:"PLAYER_ID" envDefault:"local"`
	PathPoints    int           `env:"PATH_POINTS" envDefault:"50"`
	AutoSaveDelay time.Duration `env:"AUTOSAVE_DELAY" envDefault:"1s"`

	CurveNearWeight  float64 `env:"CURVE_NEAR_WEIGHT" envDefault:"0.8"`
	CurveNearScaleKm float64 `env:"CURVE_NEAR_SCALE_KM" envDefault:"40"`
	CurveFarScaleKm  float64 `env:"CURVE_FAR_SCALE_KM" envDefault:"600"`

	TracingEnabled     bool    `env:"TRACING_ENABLED" envDefault:"false"`
	TracingServiceName string  `env:"TRACING_SERVICE_NAME" envDefault:"whereami"`
	TracingSampleRatio float64 `env:"TRACING_SAMPLE_RATIO" envDefault:"1"`

	// Empty disables the /metrics endpoint.
	MetricsAddr string `env:"METRICS_ADDR"`
}

type Minio struct {
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
	Bucket    string `env:"BUCKET" envDefault:"whereami"`
	Region    string `env:"REGION"`
	Prefix    string `env:"PREFIX" envDefault:"catalog"`
}

func Load() (*Config, error) {
	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store {
	case StoreLocal:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	default:
		return fmt.Errorf("unknown STORE %q", c.Store)
	}

	switch c.Targets {
	case TargetsPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case TargetsMinio:
		if c.Minio.Endpoint == "" {
			return fmt.Errorf("MINIO_ENDPOINT is required")
		}
		if c.Minio.AccessKey == "" || c.Minio.SecretKey == "" {
			return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required")
		}
	default:
		return fmt.Errorf("unknown TARGETS %q", c.Targets)
	}

	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required")
	}
	if c.PathPoints < 2 {
		return fmt.Errorf("PATH_POINTS must be at least 2")
	}
	if c.AutoSaveDelay < 0 {
		return fmt.Errorf("AUTOSAVE_DELAY must not be negative")
	}
	if _, err := c.GameSettings().Normalize(); err != nil {
		return err
	}
	if err := c.Curve().Validate(); err != nil {
		return err
	}
	if c.TracingSampleRatio < 0 || c.TracingSampleRatio > 1 {
		return fmt.Errorf("TRACING_SAMPLE_RATIO must be within [0, 1]")
	}
	return nil
}

func (c *Config) GameSettings() game.Settings {
	return game.Settings{NumRounds: c.NumRounds, Mode: c.Mode, GameID: c.GameID}
}

func (c *Config) Curve() geoscore.Curve {
	return geoscore.Curve{
		NearWeight:  c.CurveNearWeight,
		NearScaleKm: c.CurveNearScaleKm,
		FarScaleKm:  c.CurveFarScaleKm,
	}
}

func (c *Config) MinioStore() catalog.MinioConfig {
	return catalog.MinioConfig{
		Endpoint:  c.Minio.Endpoint,
		AccessKey: c.Minio.AccessKey,
		SecretKey: c.Minio.SecretKey,
		UseSSL:    c.Minio.UseSSL,
		Bucket:    c.Minio.Bucket,
		Region:    c.Minio.Region,
	}
}

func (c *Config) Tracing() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     c.TracingEnabled,
		ServiceName: c.TracingServiceName,
		Exporter:    "stdout",
		SampleRatio: c.TracingSampleRatio,
	}
}
