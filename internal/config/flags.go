package config

import (
	"flag"
	"io"

	"github.com/markahope-aag/hazardos-sub008/internal/flagx"
)

var knownFlags = []string{
	"a", "d", "db", "device", "u", "e", "i", "p", "s", "m", "inbox", "l", "log-file", "trace",
}

// parseFlags overlays cfg with the flags it recognizes in args. Other flags
// are left to other components.
func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("fieldsync", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.DraftServerAddr, "a", cfg.DraftServerAddr, "draft server address")
	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	fs.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "database file")
	fs.StringVar(&cfg.DeviceID, "device", cfg.DeviceID, "device id")
	fs.StringVar(&cfg.Upload.Backend, "u", cfg.Upload.Backend, "upload backend (http, s3, minio)")
	fs.StringVar(&cfg.Upload.HTTPEndpoint, "e", cfg.Upload.HTTPEndpoint, "upload endpoint for the http backend")
	fs.DurationVar(&cfg.OnlineCheckInterval, "i", cfg.OnlineCheckInterval, "online check interval")
	fs.DurationVar(&cfg.PollInterval, "p", cfg.PollInterval, "status poll interval")
	fs.DurationVar(&cfg.SyncInterval, "s", cfg.SyncInterval, "periodic sync interval")
	fs.IntVar(&cfg.MaxAttempts, "m", cfg.MaxAttempts, "upload attempts before an item is frozen")
	fs.StringVar(&cfg.InboxDir, "inbox", cfg.InboxDir, "capture inbox directory")
	fs.StringVar(&cfg.Log.Level, "l", cfg.Log.Level, "log level")
	fs.StringVar(&cfg.Log.File, "log-file", cfg.Log.File, "log file (stderr when empty)")
	fs.StringVar(&cfg.TraceExporter, "trace", cfg.TraceExporter, "trace exporter (none, stdout)")

	return fs.Parse(flagx.FilterArgs(args, knownFlags))
}
