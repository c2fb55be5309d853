// internal/logger/logger.go
package logger

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/unclebandit/broadcast-engine/internal/config"
)

var (
	appLogger *logrus.Logger
	mu        sync.Mutex
)

// Init configures the shared application logger. Safe to call more than once;
// the last call wins.
func Init(cfg config.LogConfig) *logrus.Logger {
	mu.Lock()
	defer mu.Unlock()

	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if cfg.JSON {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05.000",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	}

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
	}
	l.SetOutput(out)

	appLogger = l
	return l
}

// GetAppLogger returns the shared logger, initialising it with defaults on first use.
func GetAppLogger() *logrus.Logger {
	mu.Lock()
	l := appLogger
	mu.Unlock()
	if l != nil {
		return l
	}
	return Init(config.LogConfig{Level: "info"})
}
