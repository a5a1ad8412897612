package assignment

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for assignment tool runs.
var (
	ErrToolFailure    = errors.New("assignment tool failed")
	ErrTimeout        = errors.New("assignment tool exceeded its time limit")
	ErrCancelled      = errors.New("assignment tool run cancelled")
	ErrMissingOutput  = errors.New("assignment tool produced no posterior output")
	ErrInvalidInput   = errors.New("invalid assignment input")
	ErrUnknownSpecies = errors.New("no reference data for species")
)

// ToolError reports a non-zero exit along with what the tool wrote to stderr.
type ToolError struct {
	ExitCode int
	Stderr   string
}

func (e *ToolError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s: exit status %d", ErrToolFailure, e.ExitCode)
	}
	return fmt.Sprintf("%s: exit status %d: %s", ErrToolFailure, e.ExitCode, msg)
}

func (e *ToolError) Is(target error) bool {
	return target == ErrToolFailure
}
