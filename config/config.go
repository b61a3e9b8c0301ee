package config

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type WebServerConfig struct {
	Port            string `mapstructure:"port"`
	IP              string `mapstructure:"ip"`
	ReadTimeout     int    `mapstructure:"read_timeout"`
	WriteTimeout    int    `mapstructure:"write_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
	BodyReadTimeout int    `mapstructure:"body_read_timeout"` // seconds before a hung body read gets 408
	MaxBodyBytes    int64  `mapstructure:"max_body_bytes"`
}

type RedisConfig struct {
	Address          string `mapstructure:"address"`
	Password         string `mapstructure:"password"`
	DB               int    `mapstructure:"db"`
	PoolSize         int    `mapstructure:"pool_size"`
	MinIdleConns     int    `mapstructure:"min_idle_conns"`
	OperationTimeout int    `mapstructure:"operation_timeout"`
}

type CacheConfig struct {
	Capacity   int `mapstructure:"capacity"`
	TTLSeconds int `mapstructure:"ttl_seconds"`
}

type TrackerConfig struct {
	FlushThreshold        int `mapstructure:"flush_threshold"`
	CommandFlushThreshold int `mapstructure:"command_flush_threshold"`
	FlushIntervalSeconds  int `mapstructure:"flush_interval_seconds"`
	FlushTimeoutSeconds   int `mapstructure:"flush_timeout_seconds"`
	MaxQueued             int `mapstructure:"max_queued"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// StoreConfig holds the document-store service account credentials.
// All three values are required together; a partially configured
// credential set is a deployment mistake and must fail fast.
type StoreConfig struct {
	ProjectID   string `mapstructure:"project_id"`
	PrivateKey  string `mapstructure:"private_key"`
	ClientEmail string `mapstructure:"client_email"`
}

type IngestConfig struct {
	BaseURL        string `mapstructure:"base_url"` // client-side ingestion endpoint base
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type Config struct {
	WebServer WebServerConfig `mapstructure:"webserver"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Store     StoreConfig     `mapstructure:"store"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
}

func LoadConfig() (Config, error) {
	var config Config

	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	// Enable environment variable overrides
	viper.SetEnvPrefix("ANALYTICS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Printf("Error reading config file: %v", err)
			return config, err
		}
		// No config file is fine: defaults plus env overrides apply.
	}

	if err := viper.Unmarshal(&config); err != nil {
		log.Printf("Unable to decode into struct: %v", err)
		return config, err
	}

	if err := config.Store.Validate(); err != nil {
		return config, err
	}

	return config, nil
}

func MustLoadConfig() Config {
	config, err := LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	return config
}

// Validate enforces all-or-nothing presence of the store credentials.
func (s StoreConfig) Validate() error {
	var missing []string
	if s.ProjectID == "" {
		missing = append(missing, "store.project_id")
	}
	if s.PrivateKey == "" {
		missing = append(missing, "store.private_key")
	}
	if s.ClientEmail == "" {
		missing = append(missing, "store.client_email")
	}
	if len(missing) > 0 {
		return fmt.Errorf("incomplete store credentials: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func setDefaults() {
	// WebServer defaults
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.ip", "127.0.0.1")
	viper.SetDefault("webserver.read_timeout", 15)
	viper.SetDefault("webserver.write_timeout", 15)
	viper.SetDefault("webserver.shutdown_timeout", 30)
	viper.SetDefault("webserver.body_read_timeout", 5)
	viper.SetDefault("webserver.max_body_bytes", 16*1024)

	// Redis defaults
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.min_idle_conns", 5)
	viper.SetDefault("redis.operation_timeout", 5)

	// Cache defaults (user-document cache in front of the store)
	viper.SetDefault("cache.capacity", 1000)
	viper.SetDefault("cache.ttl_seconds", 300) // 5 minutes

	// Tracker defaults, matching the browser client's behavior
	viper.SetDefault("tracker.flush_threshold", 10)
	viper.SetDefault("tracker.command_flush_threshold", 3)
	viper.SetDefault("tracker.flush_interval_seconds", 30)
	viper.SetDefault("tracker.flush_timeout_seconds", 10)
	viper.SetDefault("tracker.max_queued", 100)

	// RateLimit defaults
	viper.SetDefault("ratelimit.requests_per_second", 10.0)
	viper.SetDefault("ratelimit.burst", 20)

	// Ingest defaults
	viper.SetDefault("ingest.base_url", "http://127.0.0.1:8080")
	viper.SetDefault("ingest.timeout_seconds", 3)
}
