package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "PRIDESTORE_"

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds application-wide configuration.
type Config struct {
	Port            string
	Backend         string
	SQLitePath      string
	PostgresDSN     string
	DataDir         string
	NumShards       int
	ShutdownTimeout time.Duration

	EnableSnapshots  bool
	SnapshotInterval time.Duration
	EnableWal        bool
	BackupInterval   time.Duration
	BackupRetention  time.Duration

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool

	QueryTimeout      time.Duration
	WriteTimeout      time.Duration
	UpsertRetries     int
	UniqueNaturalKeys bool
	WorkerPoolSize    int

	LogLevel  string
	LogPretty bool

	AdminUser     string
	AdminPassword string
}

// NewDefaultConfig creates a Config struct with sensible default values.
func NewDefaultConfig() Config {
	return Config{
		Port:              ":5876",
		Backend:           BackendMemory,
		SQLitePath:        "data/pride-store.db",
		DataDir:           "data",
		NumShards:         16,
		ShutdownTimeout:   10 * time.Second,
		EnableSnapshots:   true,
		SnapshotInterval:  5 * time.Minute,
		EnableWal:         true,
		BackupInterval:    1 * time.Hour,
		BackupRetention:   7 * 24 * time.Hour,
		S3Region:          "us-east-1",
		QueryTimeout:      30 * time.Second,
		WriteTimeout:      10 * time.Second,
		UpsertRetries:     3,
		UniqueNaturalKeys: true,
		WorkerPoolSize:    8,
		LogLevel:          "info",
		AdminUser:         "admin",
		AdminPassword:     "adminpass",
	}
}

// LoadConfig loads configuration with a clear precedence: Environment > .env files > Defaults.
// With no files given, ".env" in the working directory is read when present.
func LoadConfig(envFiles ...string) Config {
	cfg := NewDefaultConfig()
	log.Info().Msg("Loading configuration...")
	if err := godotenv.Load(envFiles...); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug().Strs("files", envFiles).Msg("No .env file found")
		} else {
			log.Warn().Err(err).Msg("Failed to read .env file")
		}
	}
	applyEnvConfig(&cfg)
	return cfg
}

func env(key string) string {
	return os.Getenv(EnvPrefix + key)
}

// applyEnvConfig overrides config values from environment variables.
func applyEnvConfig(cfg *Config) {
	overrideString("PORT", &cfg.Port)
	if backend := env("BACKEND"); backend != "" {
		switch b := strings.ToLower(backend); b {
		case BackendMemory, BackendSQLite, BackendPostgres:
			cfg.Backend = b
			log.Info().Str("value", b).Msg("Overriding Backend from environment")
		default:
			log.Warn().Str("value", backend).Msg("Invalid PRIDESTORE_BACKEND env var, using default")
		}
	}
	overrideString("SQLITE_PATH", &cfg.SQLitePath)
	if dsn := env("POSTGRES_DSN"); dsn != "" {
		// The DSN may carry a password, so it is not logged.
		cfg.PostgresDSN = dsn
	}
	overrideString("DATA_DIR", &cfg.DataDir)
	overrideInt("NUM_SHARDS", &cfg.NumShards, 1)

	overrideBool("ENABLE_SNAPSHOTS", &cfg.EnableSnapshots)
	overrideBool("ENABLE_WAL", &cfg.EnableWal)
	overrideDuration("SNAPSHOT_INTERVAL", &cfg.SnapshotInterval)
	overrideDuration("BACKUP_INTERVAL", &cfg.BackupInterval)
	overrideDuration("BACKUP_RETENTION", &cfg.BackupRetention)

	overrideString("S3_BUCKET", &cfg.S3Bucket)
	overrideString("S3_REGION", &cfg.S3Region)
	overrideString("S3_ENDPOINT", &cfg.S3Endpoint)
	overrideBool("S3_PATH_STYLE", &cfg.S3PathStyle)

	overrideDuration("QUERY_TIMEOUT", &cfg.QueryTimeout)
	overrideDuration("WRITE_TIMEOUT", &cfg.WriteTimeout)
	overrideInt("UPSERT_RETRIES", &cfg.UpsertRetries, 1)
	overrideBool("UNIQUE_NATURAL_KEYS", &cfg.UniqueNaturalKeys)
	overrideInt("WORKER_POOL_SIZE", &cfg.WorkerPoolSize, 1)
	overrideDuration("SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)

	overrideString("LOG_LEVEL", &cfg.LogLevel)
	overrideBool("LOG_PRETTY", &cfg.LogPretty)

	overrideString("ADMIN_USER", &cfg.AdminUser)
	if pass := env("ADMIN_PASSWORD"); pass != "" {
		cfg.AdminPassword = pass
	}
}

func overrideString(key string, target *string) {
	if v := env(key); v != "" {
		*target = v
		log.Info().Str("key", EnvPrefix+key).Str("value", v).Msg("Overriding value from environment")
	}
}

func overrideInt(key string, target *int, minimum int) {
	v := env(key)
	if v == "" {
		return
	}
	if i, err := strconv.Atoi(v); err == nil && i >= minimum {
		*target = i
		log.Info().Str("key", EnvPrefix+key).Int("value", i).Msg("Overriding value from environment")
	} else {
		log.Warn().Str("key", EnvPrefix+key).Str("value", v).Msg("Invalid integer in env var, using default")
	}
}

func overrideBool(key string, target *bool) {
	v := env(key)
	if v == "" {
		return
	}
	if b, err := strconv.ParseBool(v); err == nil {
		*target = b
		log.Info().Str("key", EnvPrefix+key).Bool("value", b).Msg("Overriding value from environment")
	} else {
		log.Warn().Str("key", EnvPrefix+key).Str("value", v).Msg("Invalid boolean in env var, using default")
	}
}

func overrideDuration(key string, target *time.Duration) {
	v := env(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*target = d
		log.Info().Str("key", EnvPrefix+key).Str("value", v).Msg("Overriding duration from environment")
	} else {
		log.Warn().Str("key", EnvPrefix+key).Str("value", v).Msg("Invalid duration format in env var, using default")
	}
}
