package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/markahope-aag/hazardos-sub008/internal/flagx"
	"github.com/markahope-aag/hazardos-sub008/internal/timex"
	"gopkg.in/yaml.v3"
)

// fileConfig is the file representation of Config.
type fileConfig struct {
	GRPCAddr        string         `json:"grpc_addr" yaml:"grpc_addr"`
	HTTPAddr        string         `json:"http_addr" yaml:"http_addr"`
	PhotoDir        string         `json:"photo_dir" yaml:"photo_dir"`
	PublicBaseURL   string         `json:"public_base_url" yaml:"public_base_url"`
	MaxPhotoBytes   int64          `json:"max_photo_bytes" yaml:"max_photo_bytes"`
	ShutdownTimeout timex.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel        string         `json:"log_level" yaml:"log_level"`
	LogFormat       string         `json:"log_format" yaml:"log_format"`
}

func parseFile(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	fc := &fileConfig{
		GRPCAddr:        cfg.GRPCAddr,
		HTTPAddr:        cfg.HTTPAddr,
		PhotoDir:        cfg.PhotoDir,
		PublicBaseURL:   cfg.PublicBaseURL,
		MaxPhotoBytes:   cfg.MaxPhotoBytes,
		ShutdownTimeout: timex.Duration{Duration: cfg.ShutdownTimeout},
		LogLevel:        cfg.LogLevel,
		LogFormat:       cfg.LogFormat,
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, fc)
	default:
		err = json.Unmarshal(data, fc)
	}
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	cfg.GRPCAddr = fc.GRPCAddr
	cfg.HTTPAddr = fc.HTTPAddr
	cfg.PhotoDir = fc.PhotoDir
	cfg.PublicBaseURL = fc.PublicBaseURL
	cfg.MaxPhotoBytes = fc.MaxPhotoBytes
	cfg.ShutdownTimeout = fc.ShutdownTimeout.Duration
	cfg.LogLevel = fc.LogLevel
	cfg.LogFormat = fc.LogFormat
	return nil
}
