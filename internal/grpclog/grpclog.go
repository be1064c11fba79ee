// Package grpclog is the leveled logging shim corerpc logs diagnostics
// through (currently only serviceconfig.Parse): a small seam other loggers can be swapped
// into, without pulling a full structured-logging dependency into the
// core engine.
package grpclog

import (
	"log"
	"os"
)

// Logger is the minimal interface corerpc logs through.
type Logger interface {
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type stdLogger struct {
	l *log.Logger
}

func (s *stdLogger) Infof(format string, args ...interface{}) {
	s.l.Printf("INFO: "+format, args...)
}

func (s *stdLogger) Warningf(format string, args ...interface{}) {
	s.l.Printf("WARNING: "+format, args...)
}

func (s *stdLogger) Errorf(format string, args ...interface{}) {
	s.l.Printf("ERROR: "+format, args...)
}

var logger Logger = &stdLogger{l: log.New(os.Stderr, "corerpc: ", log.LstdFlags)}

// SetLogger replaces the package-wide logger, e.g. to route corerpc's
// diagnostics through an application's own structured logger.
func SetLogger(l Logger) {
	if l != nil {
		logger = l
	}
}

func Infof(format string, args ...interface{}) {
	logger.Infof(format, args...)
}

func Warningf(format string, args ...interface{}) {
	logger.Warningf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	logger.Errorf(format, args...)
}
