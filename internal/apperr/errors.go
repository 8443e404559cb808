// Package apperr holds the error taxonomy shared by the gateways and the HTTP
// layer. Handlers classify errors with errors.As and map them onto status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNotFound is returned when a row addressed by id does not exist.
var ErrNotFound = errors.New("not found")

// ConfigError reports missing connection credentials.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

// Config builds a ConfigError.
func Config(format string, args ...any) error {
	return &ConfigError{Message: fmt.Sprintf(format, args...)}
}

// ValidationError reports bad input shape, size or type.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Validation builds a ValidationError.
func Validation(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// UpstreamError is a non-2xx response from a vendor API.
type UpstreamError struct {
	Vendor  string
	Status  int
	Body    string
	Message string
}

func (e *UpstreamError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = strings.TrimSpace(e.Body)
	}
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s API error: %d - %s", e.Vendor, e.Status, msg)
}

// HTTPStatus lets the retry policy classify the failure.
func (e *UpstreamError) HTTPStatus() int { return e.Status }

// StoreError wraps a failure of the relational or object store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Store wraps err as a StoreError; nil stays nil.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// HTTPStatus maps an error onto the status code a handler should return.
func HTTPStatus(err error) int {
	var (
		cfgErr  *ConfigError
		valErr  *ValidationError
		upErr   *UpstreamError
		storErr *StoreError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &valErr):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &cfgErr), errors.As(err, &upErr), errors.As(err, &storErr):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
