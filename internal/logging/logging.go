package logging

import (
	"fmt"
	"log"
	"os"
)

// Logger is a simple logger that writes to the console.
type Logger struct {
	*log.Logger
}

// NewLogger creates a new Logger.
func NewLogger() *Logger {
	return &Logger{
		Logger: log.New(os.Stdout, "", log.LstdFlags),
	}
}

// Info logs an informational message.
func (l *Logger) Info(msg string, args ...interface{}) {
	l.Println(format("INFO", msg, args...))
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.Println(format("WARN", msg, args...))
}

// Error logs an error message.
func (l *Logger) Error(msg string, args ...interface{}) {
	l.Println(format("ERROR", msg, args...))
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.Println(format("DEBUG", msg, args...))
}

// format renders a message followed by key=value pairs. A trailing odd
// argument is printed as-is.
func format(level, msg string, args ...interface{}) string {
	out := level + ": " + msg
	for i := 0; i+1 < len(args); i += 2 {
		out += fmt.Sprintf(" %v=%v", args[i], args[i+1])
	}
	if len(args)%2 == 1 {
		out += fmt.Sprintf(" %v", args[len(args)-1])
	}
	return out
}
