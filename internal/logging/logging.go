// Package logging builds the zap logger used by every command: a rotating
// JSON debug log on disk plus a console core on stderr.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	File       string
	Level      string
	MaxSizeMB  int
	MaxBackups int
	Verbose    bool
}

// New returns a logger writing to opts.File (rotated) and stderr. The file
// receives everything at opts.Level; stderr gets warnings only unless
// Verbose is set.
func New(opts Options) (*zap.Logger, error) {
	fileLevel := zapcore.DebugLevel
	if opts.Level != "" {
		lvl, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		fileLevel = lvl
	}

	consoleLevel := zapcore.WarnLevel
	if opts.Verbose {
		consoleLevel = zapcore.DebugLevel
	}

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.TimeKey = ""
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stderr), consoleLevel),
	}

	if opts.File != "" {
		if dir := filepath.Dir(opts.File); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create log directory: %w", err)
			}
		}

		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 1
		}
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSize,
			MaxBackups: opts.MaxBackups,
		}

		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(rotator), fileLevel))
	}

	return zap.New(zapcore.NewTee(cores...)).Named("strava"), nil
}
