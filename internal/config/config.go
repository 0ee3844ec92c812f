// Package config loads configuration from .env files, environment
// variables, and defaults.
package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all service configuration.
type Config struct {
	App   AppConfig   `mapstructure:"app"`
	Redis RedisConfig `mapstructure:"redis"`
	Mongo MongoConfig `mapstructure:"mongo"`
	Kafka KafkaConfig `mapstructure:"kafka"`
	S3    S3Config    `mapstructure:"s3"`
	Auth  AuthConfig  `mapstructure:"auth"`
	Sim   SimConfig   `mapstructure:"sim"`
	Price PriceConfig `mapstructure:"price"`
	Feed  FeedConfig  `mapstructure:"feed"`
}

type AppConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MongoConfig configures the holdings ledger. An empty URI disables it.
type MongoConfig struct {
	URI string `mapstructure:"uri"`
}

// KafkaConfig configures tick publication. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// S3Config configures the bulk loader. An empty bucket disables it.
type S3Config struct {
	Bucket string `mapstructure:"bucket"`
	Region string `mapstructure:"region"`
	Prefix string `mapstructure:"prefix"`
}

// AuthConfig points at the external auth API. An empty base URL disables
// token resolution (holdings endpoints then require an explicit userId).
type AuthConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type SimConfig struct {
	CreateInterval  time.Duration `mapstructure:"create_interval"`
	RetractInterval time.Duration `mapstructure:"retract_interval"`
	BatchSize       int           `mapstructure:"batch_size"`
	BatchPause      time.Duration `mapstructure:"batch_pause"`
	Seed            int64         `mapstructure:"seed"`
	AutoStart       bool          `mapstructure:"auto_start"`
	AutoStartDate   string        `mapstructure:"auto_start_date"`
}

type PriceConfig struct {
	BaseVolatility float64 `mapstructure:"base_volatility"`
	LargeMoveProb  float64 `mapstructure:"large_move_prob"`
	LargeMoveRange float64 `mapstructure:"large_move_range"`
	TrendBias      float64 `mapstructure:"trend_bias"`
	MinPrice       float64 `mapstructure:"min_price"`
}

type FeedConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// Load reads configuration from .env file, environment variables, and defaults.
func Load() (*Config, error) {
	v := viper.New()

	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on environment")
	}

	v.SetDefault("app.port", ":8200")
	v.SetDefault("app.env", "local")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("mongo.uri", "")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "market_ticks")

	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.prefix", "bhavcopy")

	v.SetDefault("auth.base_url", "")

	v.SetDefault("sim.create_interval", 5*time.Second)
	v.SetDefault("sim.retract_interval", 120*time.Second)
	v.SetDefault("sim.batch_size", 1000)
	v.SetDefault("sim.batch_pause", 5*time.Millisecond)
	v.SetDefault("sim.seed", 0)
	v.SetDefault("sim.auto_start", false)
	v.SetDefault("sim.auto_start_date", "")

	v.SetDefault("price.base_volatility", 0.02)
	v.SetDefault("price.large_move_prob", 0.1)
	v.SetDefault("price.large_move_range", 0.06)
	v.SetDefault("price.trend_bias", 0.005)
	v.SetDefault("price.min_price", 1.0)

	v.SetDefault("feed.interval", 2*time.Second)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnv(v,
		"app.port", "app.env",
		"redis.addr", "redis.password", "redis.db",
		"mongo.uri",
		"kafka.brokers", "kafka.topic",
		"s3.bucket", "s3.region", "s3.prefix",
		"auth.base_url",
		"sim.create_interval", "sim.retract_interval", "sim.batch_size",
		"sim.batch_pause", "sim.seed", "sim.auto_start", "sim.auto_start_date",
		"price.base_volatility", "price.large_move_prob", "price.large_move_range",
		"price.trend_bias", "price.min_price",
		"feed.interval",
	)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %v", err)
	}

	if cfg.Sim.AutoStart && cfg.Sim.AutoStartDate == "" {
		return nil, fmt.Errorf("sim.auto_start requires sim.auto_start_date")
	}

	return &cfg, nil
}

func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("could not bind env var for key %s: %v", key, err)
		}
	}
}
