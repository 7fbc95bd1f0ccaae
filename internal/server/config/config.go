// Package config handles configuration for the reference backend, including
// defaults, a JSON or YAML overlay and command-line flags.
package config

import (
	"fmt"
	"time"
)

// Config holds runtime settings for the backend.
//
// Fields:
//   - GRPCAddr: bind address for the draft and health gRPC services.
//   - HTTPAddr: bind address for the photo receiver.
//   - PhotoDir: directory uploaded photos are stored in.
//   - PublicBaseURL: prefix of the URLs returned for stored photos.
type Config struct {
	GRPCAddr        string
	HTTPAddr        string
	PhotoDir        string
	PublicBaseURL   string
	MaxPhotoBytes   int64
	ShutdownTimeout time.Duration
	LogLevel        string
	LogFormat       string
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.GRPCAddr = ":50051"
	c.HTTPAddr = ":8080"
	c.PhotoDir = "photos"
	c.PublicBaseURL = "http://127.0.0.1:8080/files"
	c.MaxPhotoBytes = 32 << 20
	c.ShutdownTimeout = 5 * time.Second
	c.LogLevel = "info"
	c.LogFormat = "json"
}

// LoadConfig builds a Config by applying defaults, then the optional config
// file and finally the command-line flags in args.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseFile(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if cfg.PhotoDir == "" {
		return nil, fmt.Errorf("invalid config: photo dir must not be empty")
	}
	return cfg, nil
}
