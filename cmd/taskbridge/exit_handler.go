package main

import (
	"os"

	"github.com/loykin/taskbridge/internal/common"
)

// ExitHandler provides a testable way to handle program termination
type ExitHandler interface {
	Exit(code int)
	LogFatalError(err error, msg string, keyvals ...any)
}

// DefaultExitHandler implements ExitHandler for production use
type DefaultExitHandler struct{}

func NewDefaultExitHandler() *DefaultExitHandler {
	return &DefaultExitHandler{}
}

func (h *DefaultExitHandler) Exit(code int) {
	os.Exit(code)
}

// LogFatalError logs err with keyvals through the current default logger and exits 1.
func (h *DefaultExitHandler) LogFatalError(err error, msg string, keyvals ...any) {
	common.GetLogger().WithComponent("main").Error(msg, append([]any{"error", err}, keyvals...)...)
	h.Exit(1)
}

// Global exit handler (can be replaced for testing)
var exitHandler ExitHandler = NewDefaultExitHandler()
