package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	appdb "github.com/yungbote/rollup-backend/internal/data/db"
	"github.com/yungbote/rollup-backend/internal/observability"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
	"github.com/yungbote/rollup-backend/internal/platform/envutil"
	"github.com/yungbote/rollup-backend/internal/temporalx"
)

const (
	SourceMemory = "memory"
	SourceSQL    = "sql"
	SourcePGX    = "pgx"
	SourceMongo  = "mongo"

	TargetMemory = "memory"
	TargetSQL    = "sql"
)

type Config struct {
	LogMode string

	SourceDriver string       `validate:"oneof=memory sql pgx mongo"`
	TargetDriver string       `validate:"oneof=memory sql"`
	DB           appdb.Config `validate:"-"`

	PgxDSN        string `validate:"required_if=SourceDriver pgx"`
	MongoURI      string `validate:"required_if=SourceDriver mongo"`
	MongoDatabase string `validate:"required_if=SourceDriver mongo"`

	SchemaFile   string
	QueryTimeout time.Duration `validate:"gte=0"`
	WriteTimeout time.Duration `validate:"gte=0"`

	RedisAddr    string
	RedisChannel string
	LockTTL      time.Duration `validate:"required_with=RedisAddr"`

	Temporal temporalx.Config         `validate:"-"`
	Otel     observability.OtelConfig `validate:"-"`

	Port        string `validate:"required"`
	MetricsAddr string
	JWTSecret   string
	CORSOrigins []string

	ExportBucket      string
	ExportCredentials string
}

var validate = validator.New()

func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := Config{
		LogMode: envutil.String("LOG_MODE", "development", log),

		SourceDriver: strings.ToLower(envutil.String("ROLLUP_SOURCE_DRIVER", SourceSQL, log)),
		TargetDriver: strings.ToLower(envutil.String("ROLLUP_TARGET_DRIVER", TargetSQL, log)),
		DB: appdb.Config{
			Driver:       strings.ToLower(envutil.String("DB_DRIVER", appdb.DriverSQLite, log)),
			Host:         envutil.String("POSTGRES_HOST", "localhost", log),
			Port:         envutil.String("POSTGRES_PORT", "5432", log),
			User:         envutil.String("POSTGRES_USER", "postgres", log),
			Password:     envutil.String("POSTGRES_PASSWORD", "", log),
			Name:         envutil.String("POSTGRES_NAME", "rollup", log),
			SSLMode:      envutil.String("POSTGRES_SSLMODE", "disable", log),
			SQLitePath:   envutil.String("SQLITE_PATH", "rollup.db", log),
			MaxOpenConns: envutil.Int("DB_MAX_OPEN_CONNS", 10, log),
			MaxIdleConns: envutil.Int("DB_MAX_IDLE_CONNS", 5, log),
		},

		PgxDSN:        envutil.String("PGX_DSN", "", log),
		MongoURI:      envutil.String("MONGO_URI", "", log),
		MongoDatabase: envutil.String("MONGO_DATABASE", "", log),

		SchemaFile:   envutil.String("ROLLUP_SCHEMA_FILE", "", log),
		QueryTimeout: envutil.Duration("ROLLUP_QUERY_TIMEOUT", 60*time.Second, log),
		WriteTimeout: envutil.Duration("ROLLUP_WRITE_TIMEOUT", 15*time.Second, log),

		RedisAddr:    envutil.String("REDIS_ADDR", "", log),
		RedisChannel: envutil.String("REDIS_CHANNEL", "rollup:runs", log),
		LockTTL:      envutil.Duration("ROLLUP_LOCK_TTL", 2*time.Minute, log),

		Temporal: temporalx.LoadConfig(log),
		Otel: observability.OtelConfig{
			Enabled:     envutil.Bool("OTEL_ENABLED", false, log),
			ServiceName: envutil.String("OTEL_SERVICE_NAME", "rollup-backend", log),
			Environment: envutil.String("OTEL_ENVIRONMENT", "development", log),
			Version:     envutil.String("SERVICE_VERSION", "dev", log),
			Endpoint:    envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", "", log),
			Insecure:    envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", false, log),
			Headers:     observability.ParseHeaders(envutil.String("OTEL_EXPORTER_OTLP_HEADERS", "", log)),
		},

		Port:        envutil.String("PORT", "8080", log),
		MetricsAddr: envutil.String("METRICS_ADDR", "", log),
		JWTSecret:   envutil.String("ROLLUP_JWT_SECRET", "", log),
		CORSOrigins: envutil.CSV("CORS_ORIGINS", nil, log),

		ExportBucket:      envutil.String("GCS_EXPORT_BUCKET", "", log),
		ExportCredentials: envutil.String("GCS_CREDENTIALS_FILE", "", log),
	}

	ratio := envutil.String("OTEL_SAMPLER_RATIO", "1", log)
	f, err := strconv.ParseFloat(ratio, 64)
	if err != nil {
		return cfg, fmt.Errorf("OTEL_SAMPLER_RATIO: %w", err)
	}
	cfg.Otel.SampleRatio = f

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.TargetDriver == TargetSQL || c.SourceDriver == SourceSQL {
		if err := validate.Struct(c.DB); err != nil {
			return fmt.Errorf("invalid database config: %w", err)
		}
	}
	return nil
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}
