package script

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrScriptNotLoaded    = errors.New("script not loaded")
	ErrNoConstructor      = errors.New("script type has no zero-argument constructor")
	ErrDefinitionNotFound = errors.New("script definition not found")
	ErrManifestNotFound   = errors.New("mod manifest not found")
	ErrDependencyNotFound = errors.New("dependency mod not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidOperation   = errors.New("invalid operation")
	ErrTimerNotFound      = errors.New("timer not found")
	ErrParameterType      = errors.New("parameter type mismatch")
	ErrParameterRange     = errors.New("parameter out of range")
	ErrUnknownParameter   = errors.New("unknown parameter")
)

// Diagnostic is one compiler message. Line and Column are 1-based; zero means
// the position is unknown.
type Diagnostic struct {
	Path    string
	Line    int
	Column  int
	Message string
}

func (d Diagnostic) String() string {
	switch {
	case d.Line > 0 && d.Column > 0:
		return fmt.Sprintf("%s:%d:%d: %s", d.Path, d.Line, d.Column, d.Message)
	case d.Line > 0:
		return fmt.Sprintf("%s:%d: %s", d.Path, d.Line, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Path, d.Message)
}

// CompilationError carries every diagnostic produced for one source unit.
type CompilationError struct {
	Path        string
	Diagnostics []Diagnostic
}

func (e *CompilationError) Error() string {
	if len(e.Diagnostics) == 1 {
		return "compile " + e.Path + ": " + e.Diagnostics[0].String()
	}
	return fmt.Sprintf("compile %s: %d errors:\n  %s", e.Path, len(e.Diagnostics), strings.Join(e.Messages(), "\n  "))
}

// Messages returns the formatted diagnostics, in source order.
func (e *CompilationError) Messages() []string {
	out := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		out[i] = d.String()
	}
	return out
}
