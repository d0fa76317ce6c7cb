package config

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger creates the JSON logger shared by every component.
func NewLogger(level string) (*logrus.Logger, error) {
	log := logrus.New()

	// Set formatter to JSON
	log.SetFormatter(&logrus.JSONFormatter{})

	// Set output to stdout (default)
	log.SetOutput(os.Stdout)

	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetLevel(lvl)
	return log, nil
}
