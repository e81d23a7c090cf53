package logger

import "sync/atomic"

type holder struct{ l Logger }

var global atomic.Pointer[holder]

func init() {
	SetGlobal(New(&Config{Level: InfoLevel, Format: "text", Output: "stderr"}))
}

// Global returns the process-wide logger used when a component is built
// without one.
func Global() Logger {
	return global.Load().l
}

// SetGlobal replaces the process-wide logger. nil is ignored.
func SetGlobal(l Logger) {
	if l == nil {
		return
	}
	global.Store(&holder{l: l})
}
