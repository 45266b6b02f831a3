// Package applog provides the one process-wide structured logger used by
// internal/archive and internal/compat. It replaces the teacher's ad hoc
// debug-file writer with a leveled logrus.Logger configured once from
// internal/config.
package applog

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu  sync.RWMutex
	log = logrus.New()
)

func init() {
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.InfoLevel)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// Configure sets the logger's level and output format. level must be one
// of logrus's level names ("debug", "info", "warn", "error"); an unknown
// value falls back to "info". json selects the JSON formatter used by
// log-aggregation pipelines, matching the config flag an operator sets
// for production deployments.
func Configure(level string, json bool) {
	mu.Lock()
	defer mu.Unlock()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	if json {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// SetOutput redirects log output, primarily for test isolation.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	log.SetOutput(w)
}

// Logger returns the shared logger, pre-bound with no fields.
func Logger() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// WithField is a convenience wrapper over the shared logger.
func WithField(key string, value any) *logrus.Entry {
	return Logger().WithField(key, value)
}

// WithFields is a convenience wrapper over the shared logger.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Logger().WithFields(fields)
}
