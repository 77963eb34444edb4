package core

// Logger is any leveled application logger.
// Implementations may inspect trailing args for well-known types
// (errors, accounts) and report them with extra context.
type Logger interface {
	Enable(enabled bool)
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}
