//go:build !stdlog && !nolog
// +build !stdlog,!nolog

package build

import "os"

// LoggingType is a log type that defers sublogger construction to the
// embedding application.
const LoggingType = LogTypeDefault

// Write writes the provided byte slice to stdout.
func (w *LogWriter) Write(b []byte) (int, error) {
	os.Stdout.Write(b)
	return len(b), nil
}
