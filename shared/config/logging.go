package config

import (
	"os"

	"github.com/sirupsen/logrus"
)

// InitLogging configures the global logrus logger from LOG_LEVEL and LOG_FORMAT
func InitLogging(service string) *logrus.Entry {
	if level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		logrus.SetLevel(level)
	}
	if getEnv("LOG_FORMAT", "text") == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	logrus.SetOutput(os.Stdout)
	return logrus.WithField("service", service)
}
