package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const logDir = "logs"

type Config struct {
	Level string `mapstructure:"level"`
	// File is relative to the logs directory. Empty disables file output.
	File    string `mapstructure:"file"`
	Console bool   `mapstructure:"console"`
}

func DefaultConfig() Config {
	return Config{
		Level:   "info",
		File:    "fraudguard.log",
		Console: true,
	}
}

// NewLogger builds the JSON logger. The returned closer flushes file output.
func NewLogger(cfg Config) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "time",
			logrus.FieldKeyMsg:  "msg",
		},
	})

	level := cfg.Level
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = env
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)

	if cfg.File == "" {
		logger.SetOutput(os.Stdout)
		return logger, io.NopCloser(nil), nil
	}

	logFile := filepath.Clean(filepath.Join(logDir, cfg.File))
	if !strings.HasPrefix(logFile, logDir+string(filepath.Separator)) {
		return nil, nil, fmt.Errorf("invalid log file path %q: must be in %s directory", cfg.File, logDir)
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0750); err != nil {
		return nil, nil, fmt.Errorf("failed to create logs directory: %w", err)
	}
	asyncWriter, err := NewAsyncFileWriter(logFile, 32*1024)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize async log writer: %w", err)
	}
	logger.SetOutput(asyncWriter)

	if cfg.Console {
		logger.AddHook(NewConsoleHook(os.Stdout))
	}
	return logger, asyncWriter, nil
}
