package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	slogmulti "github.com/samber/slog-multi"
)

// Options configure the run logger. When Dir is set, a per-run JSON log file
// is written alongside the console handler.
type Options struct {
	Dir     string
	RunID   string
	Debug   bool
	Console io.Writer
}

// New builds the fan-out logger: a console handler (text on a terminal, JSON
// otherwise) plus an optional per-run JSON file. The returned closer flushes
// and closes the file handler.
func New(opts Options) (*slog.Logger, func() error, error) {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	var consoleHandler slog.Handler
	if f, ok := console.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		consoleHandler = slog.NewTextHandler(console, handlerOpts)
	} else {
		consoleHandler = slog.NewJSONHandler(console, handlerOpts)
	}
	handlers := []slog.Handler{consoleHandler}

	closer := func() error { return nil }
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, nil, err
		}
		name := "run.log"
		if opts.RunID != "" {
			name = opts.RunID + ".log"
		}
		file, err := os.OpenFile(filepath.Join(opts.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		// The file handler always records debug so per-tick anomalies stay
		// diagnosable without rerunning.
		fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug})
		handlers = append(handlers, fileHandler)
		closer = file.Close
	}

	logger := slog.New(slogmulti.Fanout(handlers...))
	if opts.RunID != "" {
		logger = logger.With("run_id", opts.RunID)
	}
	return logger, closer, nil
}

// Discard returns a logger that drops everything, for tests and library use.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
