package logging

import (
	"io"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/whole-tale/girder-wt-data-manager/internal/constants"
)

// FileWriter tees zerolog JSON entries to a console writer and a rotating
// plain-text log file.
type FileWriter struct {
	mu      sync.RWMutex
	console io.Writer
	file    io.WriteCloser
	now     func() time.Time
}

// NewFileWriter creates a writer rotating path with lumberjack.
// console may be nil.
func NewFileWriter(path string, console io.Writer) *FileWriter {
	return newFileWriter(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    constants.LogFileMaxSizeMB,
		MaxBackups: constants.LogFileMaxBackups,
		MaxAge:     constants.LogFileMaxAgeDays,
		Compress:   true,
	}, console)
}

func newFileWriter(file io.WriteCloser, console io.Writer) *FileWriter {
	return &FileWriter{console: console, file: file, now: time.Now}
}

// Write implements io.Writer for zerolog.
func (w *FileWriter) Write(p []byte) (int, error) {
	n := len(p)

	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.console != nil {
		w.console.Write(p)
	}

	if w.file != nil {
		w.file.Write([]byte(formatFileEntry(w.now(), p)))
	}
	return n, nil
}

// SetConsole replaces the console destination.
func (w *FileWriter) SetConsole(console io.Writer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.console = console
}

// Close closes the log file.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// formatFileEntry renders one JSON entry as
// "2006-01-02 15:04:05.000 [level] component: message".
func formatFileEntry(at time.Time, p []byte) string {
	var entry struct {
		Level     string `json:"level"`
		Message   string `json:"message"`
		Component string `json:"component"`
		Error     string `json:"error"`
	}
	if err := json.Unmarshal(p, &entry); err != nil {
		return at.Format("2006-01-02 15:04:05.000") + " " + string(p)
	}

	level := entry.Level
	if level == "" {
		level = "info"
	}
	component := entry.Component
	if component == "" {
		component = "dmwatch"
	}
	line := at.Format("2006-01-02 15:04:05.000") + " [" + level + "] " + component + ": " + entry.Message
	if entry.Error != "" {
		line += " error=" + entry.Error
	}
	return line + "\n"
}
