package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ServiceName string `mapstructure:"SERVICE_NAME"`
	Env         string `mapstructure:"APP_ENV"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	GRPCAddr string `mapstructure:"GRPC_ADDR"`

	MySQLDSN          string        `mapstructure:"MYSQL_DSN"`
	MySQLMaxOpenConns int           `mapstructure:"MYSQL_MAX_OPEN_CONNS"`
	MySQLMaxIdleConns int           `mapstructure:"MYSQL_MAX_IDLE_CONNS"`
	MySQLConnLifetime time.Duration `mapstructure:"MYSQL_CONN_MAX_LIFETIME"`
	RunMigrations     bool          `mapstructure:"RUN_MIGRATIONS"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	RedisPoolSize int    `mapstructure:"REDIS_POOL_SIZE"`

	GatewayBaseURL   string        `mapstructure:"GATEWAY_BASE_URL"`
	GatewayKeyID     string        `mapstructure:"GATEWAY_KEY_ID"`
	GatewayKeySecret string        `mapstructure:"GATEWAY_KEY_SECRET"`
	GatewayTimeout   time.Duration `mapstructure:"GATEWAY_TIMEOUT"`
	GatewayMaxTries  uint          `mapstructure:"GATEWAY_MAX_TRIES"`
	Currency         string        `mapstructure:"CURRENCY"`

	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string `mapstructure:"KAFKA_TOPIC"`

	ExpirySweepInterval time.Duration `mapstructure:"EXPIRY_SWEEP_INTERVAL"`
	TracingEnabled      bool          `mapstructure:"TRACING_ENABLED"`
}

var defaults = map[string]any{
	"SERVICE_NAME":            "campus-order",
	"APP_ENV":                 "local",
	"LOG_LEVEL":               "info",
	"HTTP_ADDR":               ":8080",
	"GRPC_ADDR":               ":50051",
	"MYSQL_DSN":               "root:root@tcp(localhost:3306)/campus?parseTime=true&multiStatements=true",
	"MYSQL_MAX_OPEN_CONNS":    50,
	"MYSQL_MAX_IDLE_CONNS":    25,
	"MYSQL_CONN_MAX_LIFETIME": 5 * time.Minute,
	"RUN_MIGRATIONS":          true,
	"REDIS_ADDR":              "localhost:6379",
	"REDIS_PASSWORD":          "",
	"REDIS_DB":                0,
	"REDIS_POOL_SIZE":         100,
	"GATEWAY_BASE_URL":        "https://api.razorpay.com",
	"GATEWAY_KEY_ID":          "",
	"GATEWAY_KEY_SECRET":      "",
	"GATEWAY_TIMEOUT":         10 * time.Second,
	"GATEWAY_MAX_TRIES":       3,
	"CURRENCY":                "INR",
	"KAFKA_BROKERS":           "",
	"KAFKA_TOPIC":             "campus.order-events",
	"EXPIRY_SWEEP_INTERVAL":   time.Minute,
	"TRACING_ENABLED":         false,
}

// Load reads defaults, then the optional config file at path (any format
// viper understands, including .env), then environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Validate checks everything the process needs before it starts serving.
func (c *Config) Validate() error {
	var errs []error
	if c.GatewayKeyID == "" || c.GatewayKeySecret == "" {
		errs = append(errs, errors.New("GATEWAY_KEY_ID and GATEWAY_KEY_SECRET are required"))
	}
	if c.GatewayMaxTries == 0 {
		errs = append(errs, errors.New("GATEWAY_MAX_TRIES must be positive"))
	}
	if c.MySQLDSN == "" {
		errs = append(errs, errors.New("MYSQL_DSN is required"))
	}
	if c.RedisAddr == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required"))
	}
	if c.MySQLMaxOpenConns <= 0 || c.RedisPoolSize <= 0 {
		errs = append(errs, errors.New("pool sizes must be positive"))
	}
	if c.ExpirySweepInterval <= 0 {
		errs = append(errs, errors.New("EXPIRY_SWEEP_INTERVAL must be positive"))
	}
	if len(c.Brokers()) > 0 && c.KafkaTopic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set"))
	}
	return errors.Join(errs...)
}

// Brokers splits KAFKA_BROKERS on commas; empty means events are only logged.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
