package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"

	minTokenSecretLen = 32
)

type Config struct {
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	GRPCAddr string `mapstructure:"GRPC_ADDR"`

	StorageDriver     string `mapstructure:"STORAGE_DRIVER"`
	MySQLDSN          string `mapstructure:"MYSQL_DSN"`
	MySQLMaxOpenConns int    `mapstructure:"MYSQL_MAX_OPEN_CONNS"`
	MySQLMaxIdleConns int    `mapstructure:"MYSQL_MAX_IDLE_CONNS"`
	MigrateOnStart    bool   `mapstructure:"MIGRATE_ON_START"`

	RedisAddr       string        `mapstructure:"REDIS_ADDR"`
	RedisPassword   string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB         int           `mapstructure:"REDIS_DB"`
	ProductCacheTTL time.Duration `mapstructure:"PRODUCT_CACHE_TTL"`
	CheckoutLockTTL time.Duration `mapstructure:"CHECKOUT_LOCK_TTL"`

	TokenSecret string        `mapstructure:"TOKEN_SECRET"`
	TokenTTL    time.Duration `mapstructure:"TOKEN_TTL"`

	StripeAPIKey        string `mapstructure:"STRIPE_API_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	CheckoutSuccessURL  string `mapstructure:"CHECKOUT_SUCCESS_URL"`
	CheckoutCancelURL   string `mapstructure:"CHECKOUT_CANCEL_URL"`

	KafkaBrokers []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string   `mapstructure:"KAFKA_TOPIC"`

	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	WorkerCount int `mapstructure:"WORKER_COUNT"`
	QueueSize   int `mapstructure:"QUEUE_SIZE"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
}

var defaults = map[string]interface{}{
	"HTTP_ADDR":                   ":8080",
	"GRPC_ADDR":                   ":50051",
	"STORAGE_DRIVER":              DriverMySQL,
	"MYSQL_DSN":                   "root:root@tcp(localhost:3306)/timeless?parseTime=true",
	"MYSQL_MAX_OPEN_CONNS":        50,
	"MYSQL_MAX_IDLE_CONNS":        25,
	"MIGRATE_ON_START":            true,
	"REDIS_ADDR":                  "localhost:6379",
	"REDIS_PASSWORD":              "",
	"REDIS_DB":                    0,
	"PRODUCT_CACHE_TTL":           "5m",
	"CHECKOUT_LOCK_TTL":           "30s",
	"TOKEN_SECRET":                "",
	"TOKEN_TTL":                   "24h",
	"STRIPE_API_KEY":              "",
	"STRIPE_WEBHOOK_SECRET":       "",
	"CHECKOUT_SUCCESS_URL":        "http://localhost:5173/success",
	"CHECKOUT_CANCEL_URL":         "http://localhost:5173/cart",
	"KAFKA_BROKERS":               []string{},
	"KAFKA_TOPIC":                 "checkout-events",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
	"WORKER_COUNT":                10,
	"QUEUE_SIZE":                  1000,
	"LOG_LEVEL":                   "info",
	"LOG_FORMAT":                  "json",
}

// Load reads defaults, then the optional file named by CONFIG_FILE, then the
// environment. The returned viper instance is needed for Watch.
func Load() (*Config, *viper.Viper, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, v, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.StorageDriver {
	case DriverMySQL:
		if c.MySQLDSN == "" {
			errs = append(errs, errors.New("MYSQL_DSN is required for the mysql driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER %q is not one of mysql, memory", c.StorageDriver))
	}
	if len(c.TokenSecret) < minTokenSecretLen {
		errs = append(errs, fmt.Errorf("TOKEN_SECRET must be at least %d bytes", minTokenSecretLen))
	}
	if c.StripeAPIKey == "" {
		errs = append(errs, errors.New("STRIPE_API_KEY is required"))
	}
	if c.StripeWebhookSecret == "" {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required"))
	}
	if c.WorkerCount <= 0 {
		errs = append(errs, errors.New("WORKER_COUNT must be positive"))
	}
	if c.QueueSize <= 0 {
		errs = append(errs, errors.New("QUEUE_SIZE must be positive"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	return errors.Join(errs...)
}

// Watch calls onLogLevel whenever the config file changes. Only the log
// level is applied without a restart. It is a no-op without a config file.
func Watch(v *viper.Viper, onLogLevel func(level string)) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onLogLevel(v.GetString("LOG_LEVEL"))
	})
	v.WatchConfig()
}
