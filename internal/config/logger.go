package config

import (
	"io"
	"log"
	"os"
	"sync"
)

var (
	logger     *log.Logger
	initLogger sync.Once
)

// GetLogger returns the process logger. Every line is prefixed by the caller with a
// bracket tag such as [monitor] or [sync].
func GetLogger() *log.Logger {
	initLogger.Do(func() {
		logger = log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds)
	})
	return logger
}

// DiscardLogger is handed to components in tests.
func DiscardLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func Truncate(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
