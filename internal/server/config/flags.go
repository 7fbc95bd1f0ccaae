package config

import (
	"flag"
	"io"

	"github.com/markahope-aag/hazardos-sub008/internal/flagx"
)

// parseFlags overlays cfg with the flags it recognizes:
//
//	-a string   gRPC bind address (e.g. ":50051")
//	-h string   HTTP bind address for the photo receiver
//	-d string   photo directory
//	-b string   public base URL of stored photos
//	-l string   log level
func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.GRPCAddr, "a", cfg.GRPCAddr, "gRPC bind address")
	fs.StringVar(&cfg.HTTPAddr, "h", cfg.HTTPAddr, "HTTP bind address")
	fs.StringVar(&cfg.PhotoDir, "d", cfg.PhotoDir, "photo directory")
	fs.StringVar(&cfg.PublicBaseURL, "b", cfg.PublicBaseURL, "public base URL of stored photos")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	return fs.Parse(flagx.FilterArgs(args, []string{"a", "h", "d", "b", "l"}))
}
