// Package config loads runtime configuration for the fieldsync engine.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional config file selected with -c or -config. Files ending in
//     .yaml or .yml are read as YAML, anything else as JSON. Keys missing
//     from the file keep their default.
//  3. Command-line flags, which override earlier values.
//
// Durations in files use timex.Duration, so "5s" and integer nanoseconds
// are both accepted:
//
//	data_dir: /var/lib/fieldsync
//	draft_server_addr: sync.example.com:50051
//	poll_interval: 5s
//	upload:
//	  backend: s3
//	  s3:
//	    bucket: survey-photos
//	    region: eu-west-1
//
// Supported flags
//
//	-a string      draft server address (host:port)
//	-d string      data directory
//	-db string     database file (default <data dir>/fieldsync.db)
//	-device string device id (default: generated once and persisted)
//	-u string      upload backend: http, s3 or minio
//	-e string      upload endpoint for the http backend
//	-i duration    online check interval
//	-p duration    status poll interval
//	-s duration    periodic sync interval
//	-m int         upload attempts before an item is frozen
//	-inbox string  capture inbox directory (empty disables it)
//	-l string      log level
//	-log-file string
//	-trace string  trace exporter: none or stdout
package config
