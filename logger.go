package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

var baseLogger = newBaseLogger()

func newBaseLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// configureLogging applies the log section of the config to the shared logger.
func configureLogging(cfg *Config) error {
	if cfg.Log.Level != "" {
		level, err := logrus.ParseLevel(cfg.Log.Level)
		if err != nil {
			return err
		}
		baseLogger.SetLevel(level)
	}
	if cfg.Log.Json {
		baseLogger.SetFormatter(&logrus.JSONFormatter{})
	}
	return nil
}

func componentLogger(name string) *logrus.Entry {
	return baseLogger.WithField("component", name)
}
