package logger

// Log levels used across the application.
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

// New constructs a logger for the given textual level. Loggers are explicit
// dependencies passed into whatever composes them; there is no process-wide
// instance to reach for.
func New(level string) *Logger {
	return newZapLogger(level)
}
