package logger

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

const (
	// DefaultBufferSize is the write buffer size for log files
	DefaultBufferSize = 32 * 1024

	// DefaultFlushInterval is how often buffered log lines reach the file
	DefaultFlushInterval = 2 * time.Second

	// LogFilePermissions restricts log files to the owner
	LogFilePermissions = 0o600
)

// BufferedFileWriter wraps a log file with buffered I/O and a periodic flush.
// It is safe for concurrent use.
type BufferedFileWriter struct {
	mu        sync.Mutex
	file      *os.File
	writer    *bufio.Writer
	filePath  string
	ticker    *time.Ticker
	stopFlush chan struct{}
	flushDone chan struct{}
	closed    bool
}

// NewBufferedFileWriter opens filePath in append mode and starts the flush loop.
// A non-positive interval falls back to DefaultFlushInterval.
func NewBufferedFileWriter(filePath string, interval time.Duration) (*BufferedFileWriter, error) {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, LogFilePermissions) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", filePath, err)
	}

	w := &BufferedFileWriter{
		file:      file,
		writer:    bufio.NewWriterSize(file, DefaultBufferSize),
		filePath:  filePath,
		ticker:    time.NewTicker(interval),
		stopFlush: make(chan struct{}),
		flushDone: make(chan struct{}),
	}
	go w.autoFlushLoop()

	return w, nil
}

func (w *BufferedFileWriter) autoFlushLoop() {
	defer close(w.flushDone)

	for {
		select {
		case <-w.stopFlush:
			return
		case <-w.ticker.C:
			// errors surface on the next Write
			_ = w.Flush()
		}
	}
}

// Write buffers p
func (w *BufferedFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.writer == nil {
		return 0, fmt.Errorf("writer is closed")
	}
	return w.writer.Write(p)
}

// Flush pushes buffered bytes to the OS without fsync
func (w *BufferedFileWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.writer == nil {
		return nil
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush buffer: %w", err)
	}
	return nil
}

// Close stops the flush loop, syncs and closes the file. Close is idempotent.
func (w *BufferedFileWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.ticker.Stop()
	close(w.stopFlush)
	<-w.flushDone

	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	if err := w.writer.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush buffer: %w", err))
	}
	if err := w.file.Sync(); err != nil {
		errs = append(errs, fmt.Errorf("failed to sync file: %w", err))
	}
	if err := w.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close file: %w", err))
	}
	w.writer = nil
	w.file = nil

	return errors.Join(errs...)
}

// FilePath returns the path of the underlying file
func (w *BufferedFileWriter) FilePath() string {
	return w.filePath
}

var _ io.WriteCloser = (*BufferedFileWriter)(nil)
