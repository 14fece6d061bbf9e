package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned for unknown run ids.
	ErrNotFound = errors.New("run not found")

	// ErrNotReady is returned when a completed result is required but the
	// run is still executing or has failed.
	ErrNotReady = errors.New("run has no result")

	// ErrAborted marks a run cancelled between simulated days.
	ErrAborted = errors.New("aborted")
)

// InvalidConfigError lists every problem found while validating a run's
// configuration. No portfolio exists when it is returned.
type InvalidConfigError struct {
	Problems []string
}

func (e *InvalidConfigError) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

// ExecutionError wraps a portfolio invariant violation raised while filling
// an order for Symbol.
type ExecutionError struct {
	Symbol string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution %s: %v", e.Symbol, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Error codes reported in a failed run's error object.
const (
	CodeInvalidConfig = "invalid_config"
	CodeExecution     = "execution_error"
	CodeAborted       = "aborted"
	CodeDataLoad      = "data_load_error"
	CodeInternal      = "internal_error"
)

// RunError is the serialisable failure of a run.
type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newRunError(err error) *RunError {
	if err == nil {
		return nil
	}
	var (
		invalid *InvalidConfigError
		exec    *ExecutionError
		load    *loadError
	)
	code := CodeInternal
	switch {
	case errors.As(err, &invalid):
		code = CodeInvalidConfig
	case errors.As(err, &exec):
		code = CodeExecution
	case errors.Is(err, ErrAborted):
		code = CodeAborted
	case errors.As(err, &load):
		code = CodeDataLoad
	}
	return &RunError{Code: code, Message: err.Error()}
}

// loadError marks a failure to materialise the run's dataset.
type loadError struct{ err error }

func (e *loadError) Error() string { return "load data: " + e.err.Error() }
func (e *loadError) Unwrap() error { return e.err }
