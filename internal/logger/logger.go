package logger

import (
	"sync"
)

// Log levels recognized across the application.
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

var (
	globalLogger *Logger
	once         sync.Once
)

// Init returns the singleton logger, initializing it on first call with the
// given console level and, when logFile is non-empty, a debug-level file
// sink (an existing file is renamed to <logFile>.old first). Subsequent
// calls ignore the arguments and return the already initialized instance.
func Init(level, logFile string) *Logger {
	once.Do(func() {
		globalLogger = newZapLogger(level, logFile)
	})
	return globalLogger
}

// Get returns the singleton logger, initializing a console-only logger at
// the given level on first use.
func Get(level string) *Logger {
	return Init(level, "")
}
