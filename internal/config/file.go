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

// fileConfig mirrors Config for file decoding. Intervals use timex.Duration.
type fileConfig struct {
	DataDir         string       `json:"data_dir" yaml:"data_dir"`
	DatabasePath    string       `json:"database_path" yaml:"database_path"`
	DraftServerAddr string       `json:"draft_server_addr" yaml:"draft_server_addr"`
	DeviceID        string       `json:"device_id" yaml:"device_id"`
	Upload          UploadConfig `json:"upload" yaml:"upload"`

	PollInterval        timex.Duration `json:"poll_interval" yaml:"poll_interval"`
	SyncInterval        timex.Duration `json:"sync_interval" yaml:"sync_interval"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval" yaml:"online_check_interval"`
	OnlineCheckTimeout  timex.Duration `json:"online_check_timeout" yaml:"online_check_timeout"`
	RequestTimeout      timex.Duration `json:"request_timeout" yaml:"request_timeout"`
	UploadTimeout       timex.Duration `json:"upload_timeout" yaml:"upload_timeout"`

	MaxAttempts       int            `json:"max_attempts" yaml:"max_attempts"`
	RetryBaseDelay    timex.Duration `json:"retry_base_delay" yaml:"retry_base_delay"`
	RetryMaxDelay     timex.Duration `json:"retry_max_delay" yaml:"retry_max_delay"`
	UploadedRetention timex.Duration `json:"uploaded_retention" yaml:"uploaded_retention"`

	StorageQuota int64  `json:"storage_quota" yaml:"storage_quota"`
	InboxDir     string `json:"inbox_dir" yaml:"inbox_dir"`

	Log           LogConfig `json:"log" yaml:"log"`
	TraceExporter string    `json:"trace_exporter" yaml:"trace_exporter"`
}

func toFile(c *Config) *fileConfig {
	return &fileConfig{
		DataDir:             c.DataDir,
		DatabasePath:        c.DatabasePath,
		DraftServerAddr:     c.DraftServerAddr,
		DeviceID:            c.DeviceID,
		Upload:              c.Upload,
		PollInterval:        timex.Duration{Duration: c.PollInterval},
		SyncInterval:        timex.Duration{Duration: c.SyncInterval},
		OnlineCheckInterval: timex.Duration{Duration: c.OnlineCheckInterval},
		OnlineCheckTimeout:  timex.Duration{Duration: c.OnlineCheckTimeout},
		RequestTimeout:      timex.Duration{Duration: c.RequestTimeout},
		UploadTimeout:       timex.Duration{Duration: c.UploadTimeout},
		MaxAttempts:         c.MaxAttempts,
		RetryBaseDelay:      timex.Duration{Duration: c.RetryBaseDelay},
		RetryMaxDelay:       timex.Duration{Duration: c.RetryMaxDelay},
		UploadedRetention:   timex.Duration{Duration: c.UploadedRetention},
		StorageQuota:        c.StorageQuota,
		InboxDir:            c.InboxDir,
		Log:                 c.Log,
		TraceExporter:       c.TraceExporter,
	}
}

func (f *fileConfig) apply(c *Config) {
	c.DataDir = f.DataDir
	c.DatabasePath = f.DatabasePath
	c.DraftServerAddr = f.DraftServerAddr
	c.DeviceID = f.DeviceID
	c.Upload = f.Upload
	c.PollInterval = f.PollInterval.Duration
	c.SyncInterval = f.SyncInterval.Duration
	c.OnlineCheckInterval = f.OnlineCheckInterval.Duration
	c.OnlineCheckTimeout = f.OnlineCheckTimeout.Duration
	c.RequestTimeout = f.RequestTimeout.Duration
	c.UploadTimeout = f.UploadTimeout.Duration
	c.MaxAttempts = f.MaxAttempts
	c.RetryBaseDelay = f.RetryBaseDelay.Duration
	c.RetryMaxDelay = f.RetryMaxDelay.Duration
	c.UploadedRetention = f.UploadedRetention.Duration
	c.StorageQuota = f.StorageQuota
	c.InboxDir = f.InboxDir
	c.Log = f.Log
	c.TraceExporter = f.TraceExporter
}

// parseFile overlays cfg with the file named by -c/-config, if any.
func parseFile(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	fc := toFile(cfg)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, fc)
	default:
		err = json.Unmarshal(data, fc)
	}
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	fc.apply(cfg)
	return nil
}
