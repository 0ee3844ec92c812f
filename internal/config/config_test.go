package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.App.Port != ":8200" {
		t.Errorf("app.port = %q", cfg.App.Port)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("redis.addr = %q", cfg.Redis.Addr)
	}
	if cfg.Sim.CreateInterval != 5*time.Second {
		t.Errorf("sim.create_interval = %v", cfg.Sim.CreateInterval)
	}
	if cfg.Sim.RetractInterval != 120*time.Second {
		t.Errorf("sim.retract_interval = %v", cfg.Sim.RetractInterval)
	}
	if cfg.Sim.BatchSize != 1000 {
		t.Errorf("sim.batch_size = %d", cfg.Sim.BatchSize)
	}
	if cfg.Price.BaseVolatility != 0.02 {
		t.Errorf("price.base_volatility = %v", cfg.Price.BaseVolatility)
	}
	if cfg.Mongo.URI != "" || cfg.S3.Bucket != "" || len(cfg.Kafka.Brokers) != 0 {
		t.Errorf("optional collaborators should default off: %+v", cfg)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("APP_PORT", ":9999")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("SIM_CREATE_INTERVAL", "10s")
	t.Setenv("MONGO_URI", "mongodb://mongo:27017/trades")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.Port != ":9999" {
		t.Errorf("app.port = %q, want :9999", cfg.App.Port)
	}
	if cfg.Redis.Addr != "redis:6379" {
		t.Errorf("redis.addr = %q", cfg.Redis.Addr)
	}
	if cfg.Sim.CreateInterval != 10*time.Second {
		t.Errorf("sim.create_interval = %v, want 10s", cfg.Sim.CreateInterval)
	}
	if cfg.Mongo.URI != "mongodb://mongo:27017/trades" {
		t.Errorf("mongo.uri = %q", cfg.Mongo.URI)
	}
}

func TestAutoStartRequiresDate(t *testing.T) {
	t.Setenv("SIM_AUTO_START", "true")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when auto_start is set without a date")
	}

	t.Setenv("SIM_AUTO_START_DATE", "2025-01-01 00:00:00")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Sim.AutoStart || cfg.Sim.AutoStartDate == "" {
		t.Errorf("auto start config = %+v", cfg.Sim)
	}
}
