package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New builds the process logger. Console output goes to stderr; when file is
// set, the same events are also written there. The returned closer releases
// the file and is never nil.
func New(level string, file string) (zerolog.Logger, io.Closer, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}

	var writer io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}
	var closer io.Closer = nopCloser{}
	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0700); err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("failed to open log file: %w", err)
		}
		writer = zerolog.MultiLevelWriter(writer, zerolog.ConsoleWriter{Out: f, NoColor: true})
		closer = f
	}

	logger := zerolog.New(writer).Level(lvl).With().Timestamp().Logger()
	log.Logger = logger
	return logger, closer, nil
}

// FileOnly builds a logger that never touches the terminal, for full-screen mode
func FileOnly(level string, file string) (zerolog.Logger, io.Closer, error) {
	if file == "" {
		return zerolog.Nop(), nopCloser{}, nil
	}
	lvl, err := ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, fmt.Errorf("failed to open log file: %w", err)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: f, NoColor: true}).Level(lvl).With().Timestamp().Caller().Logger()
	return logger, f, nil
}

// ParseLevel maps a config string to a zerolog level; empty means info
func ParseLevel(level string) (zerolog.Level, error) {
	if strings.TrimSpace(level) == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
