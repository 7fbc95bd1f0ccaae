package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

const (
	BackendHTTP  = "http"
	BackendS3    = "s3"
	BackendMinio = "minio"
)

type S3Config struct {
	Region        string `json:"region" yaml:"region"`
	Endpoint      string `json:"endpoint" yaml:"endpoint"`
	AccessKey     string `json:"access_key" yaml:"access_key"`
	SecretKey     string `json:"secret_key" yaml:"secret_key"`
	Bucket        string `json:"bucket" yaml:"bucket"`
	PublicBaseURL string `json:"public_base_url" yaml:"public_base_url"`
}

type MinioConfig struct {
	Endpoint      string `json:"endpoint" yaml:"endpoint"`
	AccessKey     string `json:"access_key" yaml:"access_key"`
	SecretKey     string `json:"secret_key" yaml:"secret_key"`
	Bucket        string `json:"bucket" yaml:"bucket"`
	Region        string `json:"region" yaml:"region"`
	Secure        bool   `json:"secure" yaml:"secure"`
	PublicBaseURL string `json:"public_base_url" yaml:"public_base_url"`
}

type UploadConfig struct {
	// Backend is one of BackendHTTP, BackendS3 or BackendMinio.
	Backend      string      `json:"backend" yaml:"backend"`
	HTTPEndpoint string      `json:"http_endpoint" yaml:"http_endpoint"`
	S3           S3Config    `json:"s3" yaml:"s3"`
	Minio        MinioConfig `json:"minio" yaml:"minio"`
}

type LogConfig struct {
	Level      string `json:"level" yaml:"level"`
	Format     string `json:"format" yaml:"format"`
	File       string `json:"file" yaml:"file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
}

// Config holds runtime settings for the engine.
type Config struct {
	DataDir         string
	DatabasePath    string
	DraftServerAddr string
	DeviceID        string
	Upload          UploadConfig

	PollInterval        time.Duration
	SyncInterval        time.Duration
	OnlineCheckInterval time.Duration
	OnlineCheckTimeout  time.Duration
	RequestTimeout      time.Duration
	UploadTimeout       time.Duration

	MaxAttempts       int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
	UploadedRetention time.Duration

	// StorageQuota overrides the filesystem estimate when positive (bytes).
	StorageQuota int64
	InboxDir     string

	Log           LogConfig
	TraceExporter string
}

// LoadDefaults populates c with defaults suitable for a local setup.
func (c *Config) LoadDefaults() {
	c.DataDir = "fieldsync-data"
	c.DraftServerAddr = "127.0.0.1:50051"
	c.Upload = UploadConfig{
		Backend:      BackendHTTP,
		HTTPEndpoint: "http://127.0.0.1:8080/photos",
		S3:           S3Config{Region: "us-east-1"},
		Minio:        MinioConfig{Region: "us-east-1"},
	}
	c.PollInterval = 5 * time.Second
	c.SyncInterval = 30 * time.Second
	c.OnlineCheckInterval = 3 * time.Second
	c.OnlineCheckTimeout = 3 * time.Second
	c.RequestTimeout = 10 * time.Second
	c.UploadTimeout = 60 * time.Second
	c.MaxAttempts = 3
	c.RetryBaseDelay = 2 * time.Second
	c.RetryMaxDelay = 5 * time.Minute
	c.UploadedRetention = 24 * time.Hour
	c.Log = LogConfig{Level: "info", Format: "text", MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 28}
	c.TraceExporter = "none"
}

// DBPath returns the database file, defaulting to a file in DataDir.
func (c *Config) DBPath() string {
	if c.DatabasePath != "" {
		return c.DatabasePath
	}
	return filepath.Join(c.DataDir, "fieldsync.db")
}

// Validate reports settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Upload.Backend {
	case BackendHTTP:
		if c.Upload.HTTPEndpoint == "" {
			errs = append(errs, errors.New("upload.http_endpoint is required for the http backend"))
		}
	case BackendS3:
		if c.Upload.S3.Bucket == "" {
			errs = append(errs, errors.New("upload.s3.bucket is required for the s3 backend"))
		}
	case BackendMinio:
		if c.Upload.Minio.Endpoint == "" || c.Upload.Minio.Bucket == "" {
			errs = append(errs, errors.New("upload.minio.endpoint and bucket are required for the minio backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown upload backend %q", c.Upload.Backend))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir must not be empty"))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts))
	}
	for name, d := range map[string]time.Duration{
		"poll_interval":         c.PollInterval,
		"sync_interval":         c.SyncInterval,
		"online_check_interval": c.OnlineCheckInterval,
		"online_check_timeout":  c.OnlineCheckTimeout,
		"request_timeout":       c.RequestTimeout,
		"upload_timeout":        c.UploadTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	return errors.Join(errs...)
}

// LoadConfig builds a Config from defaults, the optional config file and
// then the flags found in args (usually os.Args[1:]).
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseFile(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
