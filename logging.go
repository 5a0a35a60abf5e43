package taskbridge

import "github.com/loykin/taskbridge/internal/common"

// Logger is the structured logger used across the bridge.
type Logger = common.Logger

// LogLevel represents logging verbosity levels
type LogLevel = common.LogLevel

const (
	LogLevelError = common.LogLevelError
	LogLevelWarn  = common.LogLevelWarn
	LogLevelInfo  = common.LogLevelInfo
	LogLevelDebug = common.LogLevelDebug
)

// NewLogger creates a text logger on stdout
func NewLogger(level LogLevel) *Logger { return common.NewLogger(level) }

// NewJSONLogger creates a JSON logger on stdout
func NewJSONLogger(level LogLevel) *Logger { return common.NewJSONLogger(level) }

// NewColorLogger creates a colourised logger on stdout
func NewColorLogger(level LogLevel) *Logger { return common.NewColorLogger(level) }

// SetDefaultLogger replaces the logger every component uses
func SetDefaultLogger(l *Logger) { common.SetDefaultLogger(l) }

// EnableMasking toggles masking of credentials in log output
func EnableMasking(enabled bool) { common.EnableMasking(enabled) }
