package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Scheduler SchedulerConfig
	Gateway   GatewayConfig
	Watermark WatermarkConfig
	Dispatch  DispatchConfig
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	PostgresURL string
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type SchedulerConfig struct {
	Interval time.Duration
}

type GatewayConfig struct {
	BaseURL    string
	InstanceID string
	Token      string
	Timeout    time.Duration
}

type WatermarkConfig struct {
	URL     string
	Timeout time.Duration
}

type DispatchConfig struct {
	SendDelay time.Duration
	LogCap    int
}

func LoadAll() (cfg *Config, err error) {
	// The env helpers panic on missing or malformed values; surface that
	// as an error to the caller.
	defer func() {
		if r := recover(); r != nil {
			cfg = nil
			err = fmt.Errorf("config: %v", r)
		}
	}()

	cfg = &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			PostgresURL: mustEnv("POSTGRES_URL"),
		},
		Redis: RedisConfig{
			Address:  mustEnv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Scheduler: SchedulerConfig{
			Interval: time.Duration(getEnvInt("TICK_INTERVAL_SECONDS", 60)) * time.Second,
		},
		Gateway: GatewayConfig{
			BaseURL:    getEnv("GATEWAY_BASE_URL", "https://api.ultramsg.com"),
			InstanceID: mustEnv("GATEWAY_INSTANCE_ID"),
			Token:      mustEnv("GATEWAY_TOKEN"),
			Timeout:    time.Duration(getEnvInt("GATEWAY_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Watermark: WatermarkConfig{
			URL:     mustEnv("WATERMARK_URL"),
			Timeout: time.Duration(getEnvInt("WATERMARK_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Dispatch: DispatchConfig{
			SendDelay: time.Duration(getEnvInt("SEND_DELAY_MS", 1200)) * time.Millisecond,
			LogCap:    getEnvInt("LOG_CAP", 1000),
		},
	}

	validate(cfg)
	return cfg, nil
}

func validate(cfg *Config) {
	if cfg.Scheduler.Interval <= 0 {
		panic("TICK_INTERVAL_SECONDS must be > 0")
	}
	if cfg.Dispatch.SendDelay <= 0 {
		panic("SEND_DELAY_MS must be > 0")
	}
	if cfg.Dispatch.LogCap <= 0 {
		panic("LOG_CAP must be > 0")
	}
	if cfg.Gateway.Timeout <= 0 {
		panic("GATEWAY_TIMEOUT_SECONDS must be > 0")
	}
	if cfg.Watermark.Timeout <= 0 {
		panic("WATERMARK_TIMEOUT_SECONDS must be > 0")
	}
}

func mustEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("missing required env var: %s", key))
	}
	return val
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Sprintf("invalid int for env %s: %s", key, v))
	}
	return i
}
