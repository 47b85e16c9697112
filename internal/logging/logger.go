// Package logging provides structured logging for the dmwatch CLI.
package logging

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with the console formatting used across dmwatch.
// The underlying logger is swapped atomically so SetOutput may run while
// other goroutines are logging.
type Logger struct {
	zlog atomic.Pointer[zerolog.Logger]
	file *FileWriter
}

func newFrom(zl zerolog.Logger, file *FileWriter) *Logger {
	l := &Logger{file: file}
	l.zlog.Store(&zl)
	return l
}

func (l *Logger) z() *zerolog.Logger {
	return l.zlog.Load()
}

// Options configures NewLogger.
type Options struct {
	// Out receives console output. Defaults to stderr; stdout is reserved
	// for rendered views.
	Out io.Writer

	// File enables rotating file output when non-empty.
	File string
}

// NewLogger creates a console logger, optionally teeing to a rotating file.
func NewLogger(opts Options) *Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	var output io.Writer = zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "15:04:05",
	}

	var file *FileWriter
	if opts.File != "" {
		file = NewFileWriter(opts.File, output)
		output = file
	}

	return newFrom(zerolog.New(output).With().Timestamp().Logger(), file)
}

// NewDefaultCLILogger creates a default CLI logger.
func NewDefaultCLILogger() *Logger {
	return NewLogger(Options{})
}

// NewLoggerWithWriter creates a logger that writes raw JSON lines to w.
// Tests use it to inspect individual entries.
func NewLoggerWithWriter(w io.Writer) *Logger {
	return newFrom(zerolog.New(w).With().Timestamp().Logger(), nil)
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *Logger {
	return newFrom(zerolog.Nop(), nil)
}

// Info returns an info level event.
func (l *Logger) Info() *zerolog.Event {
	return l.z().Info()
}

// Error returns an error level event.
func (l *Logger) Error() *zerolog.Event {
	return l.z().Error()
}

// Debug returns a debug level event.
func (l *Logger) Debug() *zerolog.Event {
	return l.z().Debug()
}

// Warn returns a warn level event.
func (l *Logger) Warn() *zerolog.Event {
	return l.z().Warn()
}

// Named returns a child logger tagged with a component name.
func (l *Logger) Named(component string) *Logger {
	return newFrom(l.z().With().Str("component", component).Logger(), l.file)
}

// SetOutput changes the console writer for the logger.
// This is used to route logs above the live progress bars.
func (l *Logger) SetOutput(w io.Writer) {
	var output io.Writer = zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
	}
	if l.file != nil {
		l.file.SetConsole(output)
		output = l.file
	}
	zl := zerolog.New(output).With().Timestamp().Logger()
	l.zlog.Store(&zl)
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// SetGlobalLevel sets the global log level.
func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

func init() {
	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Configure global logger
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	})
}
