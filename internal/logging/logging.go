package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger. format is "pretty" for a
// console writer or "json" for structured output.
func Setup(level, format string) error {
	return SetupWriter(level, format, os.Stderr)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(level, format string, w io.Writer) error {
	parsedLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	var output io.Writer
	switch format {
	case "pretty", "":
		output = zerolog.ConsoleWriter{Out: w}
	case "json":
		output = w
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger().Level(parsedLevel)
	return nil
}

// Component returns the global logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
