package main

import (
	"fmt"
	"os"
	"time"

	"proctorhub/internal/common/cache"
	"proctorhub/internal/common/mq"
	"proctorhub/internal/common/storage"
	monitorservice "proctorhub/internal/monitor/service"
	"proctorhub/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8080"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// AuthConfig holds token validation settings.
type AuthConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// IntegrityConfig holds event signing settings.
type IntegrityConfig struct {
	Secret string `yaml:"secret"`
}

// AuditConfig holds report archiving settings.
type AuditConfig struct {
	Bucket string `yaml:"bucket"`
}

// AppConfig holds monitor-service config.
type AppConfig struct {
	Server    ServerConfig                       `yaml:"server"`
	Logger    logger.Config                      `yaml:"logger"`
	Redis     cache.RedisConfig                  `yaml:"redis"`
	Kafka     mq.KafkaConfig                     `yaml:"kafka"`
	MinIO     storage.MinIOConfig                `yaml:"minio"`
	Auth      AuthConfig                         `yaml:"auth"`
	Integrity IntegrityConfig                    `yaml:"integrity"`
	Monitor   monitorservice.Config              `yaml:"monitor"`
	Narrator  monitorservice.ModelNarratorConfig `yaml:"narrator"`
	Audit     AuditConfig                        `yaml:"audit"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if cfg.Auth.Secret == "" {
		return nil, fmt.Errorf("auth secret is required")
	}
	if cfg.Integrity.Secret == "" {
		return nil, fmt.Errorf("integrity secret is required")
	}
	applyRedisDefaults(&cfg.Redis)
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Monitor.HeartbeatInterval == 0 {
		cfg.Monitor.HeartbeatInterval = monitorservice.DefaultHeartbeatInterval
	}
	if cfg.Monitor.HeartbeatTolerance == 0 {
		cfg.Monitor.HeartbeatTolerance = monitorservice.DefaultHeartbeatTolerance
	}
	if cfg.Audit.Bucket == "" {
		cfg.Audit.Bucket = cfg.MinIO.Bucket
	}
	return &cfg, nil
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	if cfg == nil {
		return
	}
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
}
