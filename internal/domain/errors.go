package domain

import (
	"errors"
	"fmt"
)

// Common domain errors.
var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict is returned when an operation conflicts with the current state.
	ErrConflict = errors.New("conflict")

	// ErrAlreadyPlaying is returned when starting playback that is already running.
	ErrAlreadyPlaying = errors.New("playback is already running")

	// ErrLoadInProgress is returned when a reload is requested while one is running.
	ErrLoadInProgress = errors.New("dataset load already in progress")

	// ErrNotLoaded is returned when data is requested before a successful load.
	ErrNotLoaded = errors.New("datasets not loaded")

	// ErrLoad is the sentinel wrapped by every LoadError.
	ErrLoad = errors.New("dataset load failed")
)

// RowError describes one malformed tabular row. It is a warning, never fatal.
type RowError struct {
	Dataset string `json:"dataset"`
	Line    int    `json:"line"`
	Column  string `json:"column,omitempty"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s line %d, column %s: %s", e.Dataset, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s line %d: %s", e.Dataset, e.Line, e.Message)
}

// LoadError is a fetch or whole-file parse failure of a dataset.
type LoadError struct {
	Dataset string
	Op      string
	Err     error
}

func (e *LoadError) Error() string {
	return "error " + e.Op + " " + e.Dataset + " data: " + e.Err.Error()
}

func (e *LoadError) Unwrap() []error {
	return []error{ErrLoad, e.Err}
}

// NewLoadError creates a new LoadError.
func NewLoadError(dataset, op string, err error) *LoadError {
	return &LoadError{Dataset: dataset, Op: op, Err: err}
}

// NotFoundError wraps ErrNotFound with additional context.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e NotFoundError) Error() string {
	return e.Resource + " not found: " + e.ID
}

func (e NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resource, id string) NotFoundError {
	return NotFoundError{Resource: resource, ID: id}
}
