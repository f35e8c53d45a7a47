package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	OutputFile string // Path to log file (empty = stderr only)
	MaxSize    int64  // Max size in bytes before rotation (default: 10MB)
	MaxBackups int    // Number of old log files to keep (default: 3)
	JSONFormat bool   // Force JSON output even on a terminal
}

// closer tracks the open log file so Close can release it.
var (
	mu   sync.Mutex
	file *os.File
)

// New builds a logrus logger from config. Text output is used on an
// interactive terminal, JSON otherwise.
func New(config Config) (*logrus.Logger, error) {
	if config.MaxSize == 0 {
		config.MaxSize = 10 * 1024 * 1024 // 10MB
	}
	if config.MaxBackups == 0 {
		config.MaxBackups = 3
	}

	logger := logrus.New()

	level := logrus.InfoLevel
	if config.Level != "" {
		parsed, err := logrus.ParseLevel(config.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", config.Level, err)
		}
		level = parsed
	}
	logger.SetLevel(level)

	writers := []io.Writer{os.Stderr}

	if config.OutputFile != "" {
		dir := filepath.Dir(config.OutputFile)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
		}

		if err := rotateIfNeeded(config); err != nil {
			return nil, fmt.Errorf("failed to rotate logs: %w", err)
		}

		f, err := os.OpenFile(config.OutputFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", config.OutputFile, err)
		}
		mu.Lock()
		file = f
		mu.Unlock()
		writers = append(writers, f)
	}

	logger.SetOutput(io.MultiWriter(writers...))

	if config.JSONFormat || !term.IsTerminal(int(os.Stderr.Fd())) {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logger, nil
}

// rotateIfNeeded shifts log.N to log.N+1 and the current file to log.1 once
// it exceeds MaxSize.
func rotateIfNeeded(config Config) error {
	info, err := os.Stat(config.OutputFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	if info.Size() < config.MaxSize {
		return nil
	}

	for i := config.MaxBackups - 1; i >= 1; i-- {
		oldPath := fmt.Sprintf("%s.%d", config.OutputFile, i)
		newPath := fmt.Sprintf("%s.%d", config.OutputFile, i+1)
		if _, err := os.Stat(oldPath); err == nil {
			os.Rename(oldPath, newPath)
		}
	}

	if err := os.Rename(config.OutputFile, config.OutputFile+".1"); err != nil {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}

	return nil
}

// Close closes the log file if one is open
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	if file != nil {
		err := file.Close()
		file = nil
		return err
	}
	return nil
}
