package eval

import (
	"io"
	"log"
	"os"
)

var (
	opsLogger  = newLogger(os.Stderr)
	diagLogger = newLogger(io.Discard)
)

// SetLogWriters routes operational and diagnostic logging. Nil writers
// leave the current destination unchanged.
func SetLogWriters(ops, diag io.Writer) {
	if ops != nil {
		opsLogger = newLogger(ops)
	}
	if diag != nil {
		diagLogger = newLogger(diag)
	}
}

func newLogger(w io.Writer) *log.Logger {
	return log.New(w, "[eval] ", log.LstdFlags|log.Lmicroseconds)
}

func opsf(format string, args ...interface{})  { opsLogger.Printf(format, args...) }
func diagf(format string, args ...interface{}) { diagLogger.Printf(format, args...) }
