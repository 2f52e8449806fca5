// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrCorruptInput         = errors.New("corrupt input")
	ErrTemporalLeakage      = errors.New("temporal leakage")
	ErrInsufficientData     = errors.New("insufficient data")
	ErrDataNotFound         = errors.New("data not found")
	ErrModelNotFound        = errors.New("model artifact not found")
	ErrDatabaseError        = errors.New("database error")
)

// ConfigError represents a rejected configuration value. It is raised
// before any per-instrument work begins.
type ConfigError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfiguration
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field string, value interface{}, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// DataError represents corrupt or malformed input data. It aborts only
// the affected instrument's run.
type DataError struct {
	Instrument string
	Message    string
	Err        error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s]: %s: %v", e.Instrument, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s]: %s", e.Instrument, e.Message)
}

func (e *DataError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrCorruptInput
}

// NewDataError creates a new DataError.
func NewDataError(instrument, message string, err error) *DataError {
	return &DataError{
		Instrument: instrument,
		Message:    message,
		Err:        err,
	}
}

// LeakageError represents a validation window that overlaps the frozen
// model's training data. It is fatal to the affected request.
type LeakageError struct {
	Instrument     string
	WindowStart    string
	TrainingCutoff string
}

func (e *LeakageError) Error() string {
	return fmt.Sprintf("temporal leakage [%s]: validation start %s is not after training cutoff %s",
		e.Instrument, e.WindowStart, e.TrainingCutoff)
}

func (e *LeakageError) Unwrap() error {
	return ErrTemporalLeakage
}

// NewLeakageError creates a new LeakageError.
func NewLeakageError(instrument, windowStart, trainingCutoff string) *LeakageError {
	return &LeakageError{
		Instrument:     instrument,
		WindowStart:    windowStart,
		TrainingCutoff: trainingCutoff,
	}
}

// RunError represents a failure inside a single instrument's run.
// Other instruments in a batch continue.
type RunError struct {
	Instrument string
	Stage      string
	Err        error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run error [%s] %s: %v", e.Instrument, e.Stage, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// NewRunError creates a new RunError.
func NewRunError(instrument, stage string, err error) *RunError {
	return &RunError{
		Instrument: instrument,
		Stage:      stage,
		Err:        err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
