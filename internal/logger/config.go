package logger

import (
	"errors"
	"strings"
)

type Config struct {
	Level            string     `koanf:"level"`  // debug, info, warn, error
	Format           string     `koanf:"format"` // json, console
	Output           string     `koanf:"output"` // console, file, both
	File             FileConfig `koanf:"file"`
	EnableStacktrace bool       `koanf:"enable_stacktrace"`
}

// FileConfig controls rotation of the log file.
type FileConfig struct {
	Filename   string `koanf:"filename"`
	MaxSize    int    `koanf:"max_size"`    // megabytes
	MaxAge     int    `koanf:"max_age"`     // days
	MaxBackups int    `koanf:"max_backups"` // files
	Compress   bool   `koanf:"compress"`
}

func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "json",
		Output: "console",
		File: FileConfig{
			Filename:   "logs/skysearch.log",
			MaxSize:    100,
			MaxAge:     30,
			MaxBackups: 10,
			Compress:   true,
		},
	}
}

func (c Config) Validate() error {
	switch strings.ToLower(c.Level) {
	case "debug", "info", "warn", "error", "dpanic", "panic", "fatal":
	default:
		return errors.New("invalid log level, must be one of: debug, info, warn, error, dpanic, panic, fatal")
	}

	if c.Format != "json" && c.Format != "console" {
		return errors.New("invalid log format, must be 'json' or 'console'")
	}

	if c.Output != "console" && c.Output != "file" && c.Output != "both" {
		return errors.New("invalid log output, must be 'console', 'file' or 'both'")
	}

	if c.Output == "file" || c.Output == "both" {
		if c.File.Filename == "" {
			return errors.New("log file filename is required when output is 'file' or 'both'")
		}
		if c.File.MaxSize <= 0 {
			return errors.New("log file max_size must be greater than 0")
		}
		if c.File.MaxAge <= 0 {
			return errors.New("log file max_age must be greater than 0")
		}
		if c.File.MaxBackups < 0 {
			return errors.New("log file max_backups must be greater than or equal to 0")
		}
	}

	return nil
}
