package config

import (
	"os"

	"github.com/sirupsen/logrus"
)

var logg = newLogger("info", false)

// GetLogger returns the application logger
func GetLogger() *logrus.Logger {
	return logg
}

// ConfigureLogger applies the level and format from cfg to the global logger
func ConfigureLogger(cfg *Config) {
	logg = newLogger(cfg.LogLevel, cfg.IsProduction())
}

func newLogger(level string, jsonFormat bool) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	if jsonFormat {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}

// LogError logs err with the module and function it came from
func LogError(logger *logrus.Logger, moduleName string, funcName string, context string, data any, err error) {
	fields := logrus.Fields{
		"module":   moduleName,
		"funcName": funcName,
		"context":  context,
	}
	if data != nil {
		fields["data"] = data
	}
	logger.WithFields(fields).Error(err.Error())
}
