package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	SyncModeDirect = "direct"
	SyncModeOutbox = "outbox"
)

type Config struct {
	Host     string `mapstructure:"DB_HOST"`
	User     string `mapstructure:"DB_USER"`
	Password string `mapstructure:"DB_PASSWORD"`
	Name     string `mapstructure:"DB_NAME"`
	DBPort   string `mapstructure:"DB_PORT"`
	SSLMode  string `mapstructure:"DB_SSLMODE"`

	ServerPort     string `mapstructure:"SERVER_PORT"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	MirrorPrefix  string `mapstructure:"MIRROR_PREFIX"`

	JWTKey   string        `mapstructure:"JWT_KEY"`
	TokenTTL time.Duration `mapstructure:"TOKEN_TTL"`

	SyncMode           string        `mapstructure:"SYNC_MODE"`
	OutboxPollInterval time.Duration `mapstructure:"OUTBOX_POLL_INTERVAL"`
	OutboxBatchSize    int           `mapstructure:"OUTBOX_BATCH_SIZE"`
	OutboxMaxAttempts  int           `mapstructure:"OUTBOX_MAX_ATTEMPTS"`
	OutboxRate         int           `mapstructure:"OUTBOX_RATE"`

	S3Endpoint        string `mapstructure:"S3_ENDPOINT"`
	S3Region          string `mapstructure:"S3_REGION"`
	S3BucketName      string `mapstructure:"S3_BUCKET_NAME"`
	S3AccessKeyID     string `mapstructure:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `mapstructure:"S3_SECRET_ACCESS_KEY"`
}

// Load reads ./.env when present and lets the environment override it.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath("./")
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	if _, err := os.Stat(".env"); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "failed to read .env")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// AutomaticEnv only resolves keys viper already knows about, so every
	// key gets a default, even an empty one.
	defaults := map[string]any{
		"DB_HOST":              "",
		"DB_USER":              "",
		"DB_PASSWORD":          "",
		"DB_NAME":              "",
		"DB_PORT":              "5432",
		"DB_SSLMODE":           "disable",
		"SERVER_PORT":          "8080",
		"ALLOWED_ORIGINS":      "http://localhost:3000",
		"LOG_LEVEL":            "info",
		"REDIS_ADDR":           "localhost:6379",
		"REDIS_PASSWORD":       "",
		"REDIS_DB":             0,
		"MIRROR_PREFIX":        "mirror",
		"JWT_KEY":              "",
		"TOKEN_TTL":            24 * time.Hour,
		"SYNC_MODE":            SyncModeDirect,
		"OUTBOX_POLL_INTERVAL": 500 * time.Millisecond,
		"OUTBOX_BATCH_SIZE":    100,
		"OUTBOX_MAX_ATTEMPTS":  10,
		"OUTBOX_RATE":          200,
		"S3_ENDPOINT":          "",
		"S3_REGION":            "us-east-1",
		"S3_BUCKET_NAME":       "",
		"S3_ACCESS_KEY_ID":     "",
		"S3_SECRET_ACCESS_KEY": "",
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"DB_USER", c.User},
		{"DB_PASSWORD", c.Password},
		{"DB_NAME", c.Name},
		{"DB_PORT", c.DBPort},
		{"DB_HOST", c.Host},
		{"SERVER_PORT", c.ServerPort},
		{"REDIS_ADDR", c.RedisAddr},
		{"JWT_KEY", c.JWTKey},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.key)
		}
	}

	switch c.SyncMode {
	case SyncModeDirect, SyncModeOutbox:
	default:
		return fmt.Errorf("SYNC_MODE must be %q or %q, got %q", SyncModeDirect, SyncModeOutbox, c.SyncMode)
	}

	if c.SyncMode == SyncModeOutbox {
		if c.OutboxBatchSize <= 0 || c.OutboxMaxAttempts <= 0 || c.OutboxRate <= 0 {
			return fmt.Errorf("OUTBOX_BATCH_SIZE, OUTBOX_MAX_ATTEMPTS and OUTBOX_RATE must be positive")
		}
	}

	return nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.Host, c.User, c.Password, c.Name, c.DBPort, c.SSLMode)
}

// Origins splits ALLOWED_ORIGINS into its entries.
func (c *Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func (c *Config) S3Enabled() bool {
	return c.S3BucketName != "" && c.S3AccessKeyID != "" && c.S3SecretAccessKey != ""
}
