// Package testlog creates hclog loggers backed by testing.T to ease logging
// in tests.
package testlog

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
)

// LogPrinter is the methods of testing.T (or testing.B) needed by the test
// logger.
type LogPrinter interface {
	Logf(format string, args ...interface{})
}

// writer implements io.Writer on top of a LogPrinter.
type writer struct {
	t LogPrinter
}

// Write to an underlying LogPrinter. Never returns an error.
func (w *writer) Write(p []byte) (n int, err error) {
	w.t.Logf("%s", p)
	return len(p), nil
}

// NewWriter creates a new io.Writer backed by a testing.T.
func NewWriter(t LogPrinter) io.Writer {
	return &writer{t: t}
}

// HCLogger returns a trace-level logger that writes through t.Logf, so output
// from the code under test interleaves with the test's own logging.
func HCLogger(t LogPrinter) hclog.InterceptLogger {
	level := hclog.Trace
	if testlogLevel := os.Getenv("TEST_LOG_LEVEL"); testlogLevel != "" {
		level = hclog.LevelFromString(testlogLevel)
	}
	return hclog.NewInterceptLogger(&hclog.LoggerOptions{
		Level:           level,
		Output:          NewWriter(t),
		IncludeLocation: true,
	})
}
