// Package log provides logrus loggers for processors and hosts.
package log

import (
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

// DebugEnv enables debug level when parsed as true.
const DebugEnv = "NEURAL_DEBUG"

var debug bool

func init() {
	var err error
	debug, err = strconv.ParseBool(os.Getenv(DebugEnv))
	if err != nil {
		debug = false
	}
}

// GetLogger returns a new logger instance
func GetLogger() *logrus.Logger {
	l := logrus.New()
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// SetDebug overrides the debug level for loggers created after the call.
func SetDebug(v bool) {
	debug = v
}

// ForProcessor returns an entry tagged with processor name and id.
func ForProcessor(l *logrus.Logger, name, id string) *logrus.Entry {
	return l.WithFields(logrus.Fields{
		"processor": name,
		"id":        id,
	})
}
