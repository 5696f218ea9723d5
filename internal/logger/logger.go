// Package logger provides the application's leveled logging.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

const (
	LevelDebug = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu    sync.Mutex
	level = LevelInfo

	debugLog = log.New(os.Stdout, "[DEBUG] ", log.LstdFlags)
	infoLog  = log.New(os.Stdout, "[INFO] ", log.LstdFlags)
	warnLog  = log.New(os.Stdout, "[WARN] ", log.LstdFlags)
	errorLog = log.New(os.Stderr, "[ERROR] ", log.LstdFlags)
)

// SetOutput redirects all log output to w. Tests use this to keep output
// quiet or capture it.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	debugLog.SetOutput(w)
	infoLog.SetOutput(w)
	warnLog.SetOutput(w)
	errorLog.SetOutput(w)
}

// SetLevel sets the minimum level that will be emitted. Unknown names
// fall back to info.
func SetLevel(name string) {
	mu.Lock()
	defer mu.Unlock()

	switch strings.ToLower(name) {
	case "debug":
		level = LevelDebug
	case "warn", "warning":
		level = LevelWarn
	case "error":
		level = LevelError
	default:
		level = LevelInfo
	}
}

func Debug(format string, v ...interface{}) {
	if level <= LevelDebug {
		debugLog.Output(2, fmt.Sprintf(format, v...))
	}
}

func Info(format string, v ...interface{}) {
	if level <= LevelInfo {
		infoLog.Output(2, fmt.Sprintf(format, v...))
	}
}

func Warn(format string, v ...interface{}) {
	if level <= LevelWarn {
		warnLog.Output(2, fmt.Sprintf(format, v...))
	}
}

func Error(format string, v ...interface{}) {
	if level <= LevelError {
		errorLog.Output(2, fmt.Sprintf(format, v...))
	}
}
