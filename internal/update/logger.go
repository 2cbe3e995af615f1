package update

import (
	"skylight/internal/debug"
)

// Logger is the diagnostic sink used by update components.
// *log.Logger from charmbracelet/log satisfies it.
type Logger interface {
	Debug(msg any, keyvals ...any)
	Info(msg any, keyvals ...any)
	Warn(msg any, keyvals ...any)
	Error(msg any, keyvals ...any)
}

func defaultLogger(component string) Logger {
	return debug.Logger(component)
}
