// Package apperr holds the error taxonomy shared by the pipeline and the API.
package apperr

import (
	"errors"
	"fmt"
)

// ConfigurationError is a client-side rejection: unsupported chain, missing
// or invalid setting. It is never retried.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration: " + e.Reason
	}
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

// Config builds a ConfigurationError.
func Config(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// UpstreamDataError wraps any failure of the block, timestamp or log source,
// including responses that cannot be decoded.
type UpstreamDataError struct {
	Op  string
	Err error
}

func (e *UpstreamDataError) Error() string { return "upstream " + e.Op + ": " + e.Err.Error() }

func (e *UpstreamDataError) Unwrap() error { return e.Err }

// Upstream wraps err as an UpstreamDataError unless it already is one.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	var ue *UpstreamDataError
	if errors.As(err, &ue) {
		return err
	}
	return &UpstreamDataError{Op: op, Err: err}
}

func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

func IsUpstream(err error) bool {
	var ue *UpstreamDataError
	return errors.As(err, &ue)
}
