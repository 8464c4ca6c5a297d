package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileLogger appends audit events as JSON lines, rotating by size.
type FileLogger struct {
	basePath string
	maxSize  int64
	mu       sync.Mutex
	file     *os.File
	encoder  *json.Encoder
}

// FileLoggerConfig configures the file logger.
type FileLoggerConfig struct {
	BasePath string
	MaxSize  int64 // bytes before rotation; 0 means 100MB
}

// NewFileLogger creates a file-based audit logger under config.BasePath.
func NewFileLogger(config FileLoggerConfig) (*FileLogger, error) {
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	l := &FileLogger{
		basePath: config.BasePath,
		maxSize:  config.MaxSize,
	}
	if l.maxSize == 0 {
		l.maxSize = 100 * 1024 * 1024
	}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLogger) open() error {
	name := filepath.Join(l.basePath, "audit.log")
	if info, err := os.Stat(name); err == nil && info.Size() >= l.maxSize {
		rotated := filepath.Join(l.basePath, fmt.Sprintf("audit-%s.log", time.Now().Format("2006-01-02-15-04-05")))
		if err := os.Rename(name, rotated); err != nil {
			return fmt.Errorf("failed to rotate audit log: %w", err)
		}
	}
	file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}
	l.file = file
	l.encoder = json.NewEncoder(file)
	return nil
}

// Log appends the event as one JSON line.
func (l *FileLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if info, err := l.file.Stat(); err == nil && info.Size() >= l.maxSize {
		l.file.Close()
		if err := l.open(); err != nil {
			return err
		}
	}
	return l.encoder.Encode(event)
}

// Close flushes and closes the current log file.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
