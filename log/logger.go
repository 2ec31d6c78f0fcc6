// Package log constructs loggers for the engine.
package log

import (
	"io"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

var debug bool

func init() {
	var err error
	debug, err = strconv.ParseBool(os.Getenv("COLLIDER_DEBUG"))
	if err != nil {
		debug = false
	}
}

// New returns a new logger instance. Debug level is enabled when the
// COLLIDER_DEBUG environment variable is set to a true value.
func New() *logrus.Logger {
	l := logrus.New()
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// Silent returns a logger that discards all output. It is used as the
// default when no logger option is provided.
func Silent() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
