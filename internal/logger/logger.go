// Package logger configures the process-wide logrus logger for the CLI.
package logger

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Options configures Init.
type Options struct {
	// Level is a logrus level name such as "info" or "debug".
	Level string
	// Verbose forces debug level regardless of Level.
	Verbose bool
	// DisableColor if true will disable outputting colors.
	DisableColor bool
	// Output defaults to stderr.
	Output io.Writer
}

// Init applies options to the standard logrus logger.
func Init(options Options) error {
	level := logrus.InfoLevel
	if options.Level != "" {
		l, err := logrus.ParseLevel(options.Level)
		if err != nil {
			return errors.Wrap(err, "log level")
		}
		level = l
	}
	if options.Verbose {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)

	out := options.Output
	if out == nil {
		out = os.Stderr
	}
	logrus.SetOutput(out)

	logrus.SetFormatter(&Formatter{
		DisableColor: options.DisableColor,
	})
	return nil
}
