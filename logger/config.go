package logger

import (
	"go.uber.org/zap/zapcore"
)

// Config holds the logging knobs: output format, minimum level, and
// whether to suppress the startup logo.
type Config struct {
	Format       string
	Level        zapcore.Level
	SuppressLogo bool
}

// NewConfig returns a new instance of Config with defaults.
func NewConfig() Config {
	return Config{
		Format: "auto",
	}
}
