package main

import (
	"fmt"
	"os"
	"time"

	"proctorhub/internal/common/storage"
	"proctorhub/internal/sandbox/model"
	"proctorhub/internal/sandbox/profile"
	execservice "proctorhub/internal/sandbox/service"
	"proctorhub/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8081"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 30 * time.Second
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

// SubmissionConfig holds submission archive settings.
type SubmissionConfig struct {
	Bucket string `yaml:"bucket"`
}

// QuestionsConfig points at the exam question bank file.
type QuestionsConfig struct {
	Path string `yaml:"path"`
}

// AppConfig holds exec-service config.
type AppConfig struct {
	Server     ServerConfig        `yaml:"server"`
	Logger     logger.Config       `yaml:"logger"`
	Auth       AuthConfig          `yaml:"auth"`
	MinIO      storage.MinIOConfig `yaml:"minio"`
	Submission SubmissionConfig    `yaml:"submission"`
	Exec       execservice.Config  `yaml:"exec"`
	Languages  []profile.Language  `yaml:"languages"`
	Questions  QuestionsConfig     `yaml:"questions"`
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
	if cfg.Auth.Secret == "" {
		return nil, fmt.Errorf("auth secret is required")
	}
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
	if cfg.Exec.MaxConcurrent == 0 {
		cfg.Exec = execservice.DefaultConfig()
	}
	if cfg.Submission.Bucket == "" {
		cfg.Submission.Bucket = cfg.MinIO.Bucket
	}
	return &cfg, nil
}

// questionBank is the on-disk format of the question file.
type questionBank struct {
	Questions []*model.Question `yaml:"questions"`
}

func loadQuestions(path string) ([]*model.Question, error) {
	if path == "" {
		return nil, nil
	}
	var bank questionBank
	if err := loadYAML(path, &bank); err != nil {
		return nil, err
	}
	return bank.Questions, nil
}
