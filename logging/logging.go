package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	DefaultFile       = "app.log"
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 5
)

type Options struct {
	Level string

	// File is the rotating log file. Empty disables the file sink.
	File       string
	MaxSizeMB  int
	MaxBackups int

	// Console defaults to os.Stdout.
	Console io.Writer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds the process logger. Console and file receive the same bytes:
// the slog handler serializes records and hands each one to the fan-out
// writer in a single Write call, so concurrent requests never split a line.
//
// Call it once per process. Two loggers rotating the same file would race
// on the rename.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	var out io.Writer = console
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, DefaultMaxSizeMB), // megabytes
			MaxBackups: orDefault(opts.MaxBackups, DefaultMaxBackups),
		}
		out = io.MultiWriter(console, file)
		closer = file
	}

	h := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	return slog.New(h), closer, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, errors.Wrapf(err, "invalid log level %q", s)
	}
	return level, nil
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
