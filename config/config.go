package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cointrade/models"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "config/config.yml"

var envPaths = map[string]string{
	EnvironmentProduction: "config/config.production.yml",
	EnvironmentStaging:    "config/config.staging.yml",
}

type Config struct {
	App       AppConfig                 `yaml:"app"`
	Exchanges map[string]ExchangeConfig `yaml:"exchanges"`
	Proxy     ProxyConfig               `yaml:"proxy"`
	Sessions  SessionsConfig            `yaml:"sessions"`
	Logging   LoggingConfig             `yaml:"logging"`
	Metrics   MetricsConfig             `yaml:"metrics"`
	Journal   JournalConfig             `yaml:"journal"`
	Watcher   WatcherConfig             `yaml:"watcher"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ExchangeConfig overrides one exchange's defaults. Zero values keep the
// driver's own settings.
type ExchangeConfig struct {
	BaseURL        string            `yaml:"base_url"`
	AltBaseURLs    map[string]string `yaml:"alt_base_urls"`
	Timeout        time.Duration     `yaml:"timeout"`
	Retries        int               `yaml:"retries"`
	RetryBackoff   time.Duration     `yaml:"retry_backoff"`
	RateLimitRPS   float64           `yaml:"rate_limit_rps"`
	RateLimitBurst int               `yaml:"rate_limit_burst"`
	RecvWindow     int               `yaml:"recv_window"`
}

type ProxyConfig struct {
	Default         string        `yaml:"default"`
	TTL             time.Duration `yaml:"ttl"`
	ShardsFile      string        `yaml:"shards_file"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type SessionsConfig struct {
	GRVTTTL         time.Duration `yaml:"grvt_ttl"`
	BluefinTokenTTL time.Duration `yaml:"bluefin_token_ttl"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type MetricsConfig struct {
	CloudWatch     CloudWatchConfig `yaml:"cloudwatch"`
	ReportInterval time.Duration    `yaml:"report_interval"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

type JournalConfig struct {
	S3    S3Config    `yaml:"s3"`
	Kafka KafkaConfig `yaml:"kafka"`
}

type S3Config struct {
	Enabled         bool          `yaml:"enabled"`
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	Prefix          string        `yaml:"prefix"`
	Endpoint        string        `yaml:"endpoint"`
	PathStyle       bool          `yaml:"path_style"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
	BatchSize       int           `yaml:"batch_size"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type WatcherConfig struct {
	Interval time.Duration `yaml:"interval"`
	Limit    int           `yaml:"limit"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		App:       AppConfig{Name: "cointrade", Version: "dev"},
		Exchanges: map[string]ExchangeConfig{},
		Proxy:     ProxyConfig{TTL: time.Hour, MaxIdleConns: 100, MaxConnsPerHost: 20, IdleConnTimeout: 90 * time.Second},
		Sessions:  SessionsConfig{GRVTTTL: 23 * time.Hour, BluefinTokenTTL: 30 * time.Minute},
		Logging:   LoggingConfig{Level: "warn", Format: "json", Output: "stderr"},
		Metrics: MetricsConfig{
			CloudWatch:     CloudWatchConfig{Namespace: "Cointrade", Dashboard: "cointrade"},
			ReportInterval: 30 * time.Second,
		},
		Journal: JournalConfig{
			S3:    S3Config{Prefix: "journal", FlushInterval: time.Minute, BatchSize: 500},
			Kafka: KafkaConfig{Topic: "cointrade.events"},
		},
		Watcher: WatcherConfig{Interval: 10 * time.Second, Limit: 50},
	}
}

// ResolvePath picks the environment specific file for APP_ENV when the
// caller asked for the default path.
func ResolvePath(path string) string {
	return resolveEnvSpecificPath(path, DefaultPath, envPaths)
}

// LoadConfig reads path over the defaults, applies env overrides and
// validates the result. A missing file at the default path yields the
// defaults.
func LoadConfig(path string) (*Config, error) {
	config := Default()
	resolved := ResolvePath(path)
	data, err := os.ReadFile(resolved)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && (path == "" || path == DefaultPath):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if config.Exchanges == nil {
		config.Exchanges = map[string]ExchangeConfig{}
	}
	if config.App.Environment == "" {
		config.App.Environment = AppEnvironment()
	}

	applyEnv(&config)

	config.Journal.S3.Bucket = strings.TrimSpace(config.Journal.S3.Bucket)
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &config, nil
}

func applyEnv(config *Config) {
	if v := strings.TrimSpace(os.Getenv("COINTRADE_PROXY")); v != "" {
		config.Proxy.Default = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		config.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("AWS_REGION")); v != "" {
		config.Journal.S3.Region = v
		if config.Metrics.CloudWatch.Region == "" {
			config.Metrics.CloudWatch.Region = v
		}
	}
	if v := strings.TrimSpace(os.Getenv("JOURNAL_S3_BUCKET")); v != "" {
		config.Journal.S3.Bucket = v
	}
	if config.Journal.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Journal.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Journal.S3.SecretAccessKey = strings.TrimSpace(v)
		}
	}
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		var brokers []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		config.Journal.Kafka.Brokers = brokers
	}
}

// EnvCredentials reads API credentials from the environment. They are
// never taken from the YAML file.
func EnvCredentials() models.ApiKeys {
	return models.ApiKeys{
		APIKey:   os.Getenv("COINTRADE_API_KEY"),
		Secret:   os.Getenv("COINTRADE_SECRET"),
		Password: os.Getenv("COINTRADE_PASSWORD"),
		UID:      os.Getenv("COINTRADE_UID"),
	}
}

func validateConfig(cfg *Config) error {
	if cfg.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}
	if IsProductionLike(cfg.App.Environment) && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be json in %s", cfg.App.Environment)
	}

	for name, ex := range cfg.Exchanges {
		if ex.Timeout < 0 {
			return fmt.Errorf("exchanges.%s.timeout must be greater than 0", name)
		}
		if ex.RetryBackoff < 0 {
			return fmt.Errorf("exchanges.%s.retry_backoff must not be negative", name)
		}
		if ex.RateLimitRPS < 0 || ex.RateLimitBurst < 0 {
			return fmt.Errorf("exchanges.%s.rate_limit_rps and rate_limit_burst must not be negative", name)
		}
		if ex.RecvWindow < 0 || ex.RecvWindow > 60000 {
			return fmt.Errorf("exchanges.%s.recv_window must be between 0 and 60000", name)
		}
	}

	if cfg.Proxy.TTL <= 0 {
		return fmt.Errorf("proxy.ttl must be greater than 0")
	}
	if cfg.Sessions.GRVTTTL <= 0 || cfg.Sessions.BluefinTokenTTL <= 0 {
		return fmt.Errorf("sessions.grvt_ttl and sessions.bluefin_token_ttl must be greater than 0")
	}
	if cfg.Watcher.Interval <= 0 {
		return fmt.Errorf("watcher.interval must be greater than 0")
	}
	if cfg.Watcher.Limit <= 0 {
		return fmt.Errorf("watcher.limit must be greater than 0")
	}

	if cfg.Metrics.CloudWatch.Enabled && cfg.Metrics.CloudWatch.Region == "" {
		return fmt.Errorf("metrics.cloudwatch.region is required when CloudWatch is enabled")
	}

	if s3 := cfg.Journal.S3; s3.Enabled {
		if s3.Bucket == "" {
			return fmt.Errorf("journal.s3.bucket is required when S3 is enabled")
		}
		if s3.Region == "" {
			return fmt.Errorf("journal.s3.region is required when S3 is enabled")
		}
		if !isValidS3Bucket(s3.Bucket) {
			return fmt.Errorf("journal.s3.bucket '%s' is invalid", s3.Bucket)
		}
		if s3.FlushInterval <= 0 {
			return fmt.Errorf("journal.s3.flush_interval must be greater than 0")
		}
		if s3.BatchSize <= 0 {
			return fmt.Errorf("journal.s3.batch_size must be greater than 0")
		}
	}
	if k := cfg.Journal.Kafka; k.Enabled {
		if len(k.Brokers) == 0 {
			return fmt.Errorf("journal.kafka.brokers is required when Kafka is enabled")
		}
		if k.Topic == "" {
			return fmt.Errorf("journal.kafka.topic is required when Kafka is enabled")
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
