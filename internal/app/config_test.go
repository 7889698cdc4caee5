package app

import (
	"testing"
	"time"

	appdb "github.com/yungbote/rollup-backend/internal/data/db"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ROLLUP_SOURCE_DRIVER", "")
	t.Setenv("DB_DRIVER", "")
	cfg, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.SourceDriver != SourceSQL || cfg.TargetDriver != TargetSQL || cfg.DB.Driver != appdb.DriverSQLite {
		t.Fatalf("drivers: %+v", cfg)
	}
	if cfg.QueryTimeout != 60*time.Second || cfg.WriteTimeout != 15*time.Second {
		t.Fatalf("timeouts: query=%v write=%v", cfg.QueryTimeout, cfg.WriteTimeout)
	}
	if cfg.Addr() != ":8080" {
		t.Fatalf("addr: %s", cfg.Addr())
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("ROLLUP_SOURCE_DRIVER", "PGX")
	t.Setenv("PGX_DSN", "postgres://localhost/rollup")
	t.Setenv("ROLLUP_QUERY_TIMEOUT", "2m")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("OTEL_SAMPLER_RATIO", "0.25")
	cfg, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.SourceDriver != SourcePGX || cfg.QueryTimeout != 2*time.Minute || cfg.Otel.SampleRatio != 0.25 {
		t.Fatalf("overrides: %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example.com" {
		t.Fatalf("cors origins: %v", cfg.CORSOrigins)
	}
}

func TestConfigValidate(t *testing.T) {
	base := func() Config {
		return Config{
			SourceDriver: SourceMemory,
			TargetDriver: TargetMemory,
			Port:         "8080",
		}
	}
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"memory", func(*Config) {}, true},
		{"unknown source", func(c *Config) { c.SourceDriver = "kafka" }, false},
		{"pgx without dsn", func(c *Config) { c.SourceDriver = SourcePGX }, false},
		{"mongo without database", func(c *Config) { c.SourceDriver = SourceMongo; c.MongoURI = "mongodb://x" }, false},
		{"sql with bad db driver", func(c *Config) { c.TargetDriver = TargetSQL; c.DB.Driver = "oracle" }, false},
		{"sql with sqlite", func(c *Config) { c.TargetDriver = TargetSQL; c.DB.Driver = appdb.DriverSQLite }, true},
		{"redis without ttl", func(c *Config) { c.RedisAddr = "localhost:6379" }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if (err == nil) != tc.ok {
				t.Fatalf("want ok=%v got err=%v", tc.ok, err)
			}
		})
	}
}
