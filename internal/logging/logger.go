package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/coldbell/lp-pricer/internal/config"
)

// New builds the service logger described by cfg. Output is a comma separated
// list of sinks (console, stderr, file); "both" is console plus file. The
// returned func closes the log file when one was opened.
func New(serviceName string, cfg config.LogConfig) (*slog.Logger, func() error, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	sinks, err := parseOutputs(cfg.Output)
	if err != nil {
		return nil, nil, err
	}

	writer, closeWriter, err := openSinks(serviceName, cfg.FilePath, sinks)
	if err != nil {
		return nil, nil, err
	}

	handler, err := newHandler(cfg.Format, writer, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: durationsAsText,
	})
	if err != nil {
		_ = closeWriter()
		return nil, nil, err
	}
	return slog.New(handler).With("service", serviceName), closeWriter, nil
}

func newHandler(format string, w io.Writer, opts *slog.HandlerOptions) (slog.Handler, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return slog.NewTextHandler(w, opts), nil
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (expected text|json)", format)
	}
}

// durationsAsText renders durations as strings in both formats.
func durationsAsText(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindDuration {
		return slog.String(a.Key, a.Value.Duration().Round(time.Microsecond).String())
	}
	return a
}

type sink string

const (
	sinkConsole sink = "console"
	sinkStderr  sink = "stderr"
	sinkFile    sink = "file"
)

func parseOutputs(raw string) ([]sink, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return []sink{sinkConsole}, nil
	}
	var out []sink
	for _, part := range strings.Split(raw, ",") {
		var add []sink
		switch strings.TrimSpace(part) {
		case "console", "stdout":
			add = []sink{sinkConsole}
		case "stderr":
			add = []sink{sinkStderr}
		case "file":
			add = []sink{sinkFile}
		case "both":
			add = []sink{sinkConsole, sinkFile}
		default:
			return nil, fmt.Errorf("invalid log output %q (expected console|stderr|file|both)", raw)
		}
		for _, s := range add {
			if !slices.Contains(out, s) {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

func openSinks(serviceName, filePath string, sinks []sink) (io.Writer, func() error, error) {
	writers := make([]io.Writer, 0, len(sinks))
	var closers []func() error
	for _, s := range sinks {
		switch s {
		case sinkConsole:
			writers = append(writers, os.Stdout)
		case sinkStderr:
			writers = append(writers, os.Stderr)
		case sinkFile:
			file, err := openLogFile(serviceName, filePath)
			if err != nil {
				return nil, nil, err
			}
			writers = append(writers, file)
			closers = append(closers, file.Close)
		}
	}

	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		return errors.Join(errs...)
	}
	if len(writers) == 1 {
		return writers[0], closeAll, nil
	}
	return io.MultiWriter(writers...), closeAll, nil
}

// openLogFile appends to filePath, or var/log/lp-pricer/<service>.log when
// unset.
func openLogFile(serviceName, filePath string) (*os.File, error) {
	logPath := strings.TrimSpace(filePath)
	if logPath == "" {
		logPath = filepath.Join("var", "log", "lp-pricer", serviceName+".log")
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory for %q: %w", logPath, err)
	}
	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %q: %w", logPath, err)
	}
	return file, nil
}

func parseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug|info|warn|error)", raw)
	}
}
