package main

import (
	"errors"
	"fmt"
	"time"
)

// RequestExhaustedError reports that every transport-level attempt of a
// logical call failed. It wraps the last transport error.
type RequestExhaustedError struct {
	Method   string
	URL      string
	Attempts int
	Err      error
}

func (e *RequestExhaustedError) Error() string {
	return fmt.Sprintf("%s %s failed after %d attempt(s): %v", e.Method, e.URL, e.Attempts, e.Err)
}

func (e *RequestExhaustedError) Unwrap() error {
	return e.Err
}

// UnexpectedStatusError reports a final response status that did not match
// the expected status, or fell outside [200,300) when no expectation was
// supplied (Expected is zero in that case).
type UnexpectedStatusError struct {
	Expected int
	Actual   int
	Body     string
}

func (e *UnexpectedStatusError) Error() string {
	if e.Expected != 0 {
		return fmt.Sprintf("expected status %d, got %d. Response: %s", e.Expected, e.Actual, e.Body)
	}
	return fmt.Sprintf("unexpected status %d. Response: %s", e.Actual, e.Body)
}

// InvalidJSONError reports a response body that could not be parsed as JSON
// when a JSON-field check was requested.
type InvalidJSONError struct {
	Err error
}

func (e *InvalidJSONError) Error() string {
	return fmt.Sprintf("expected JSON response but got non-JSON content: %v", e.Err)
}

func (e *InvalidJSONError) Unwrap() error {
	return e.Err
}

// JSONFieldMismatchError reports the first requested field/value pair that
// was missing from or did not match the parsed JSON body.
type JSONFieldMismatchError struct {
	Key      string
	Expected interface{}
	Actual   interface{}
	Missing  bool
}

func (e *JSONFieldMismatchError) Error() string {
	if e.Missing {
		return fmt.Sprintf("expected %s=%v but field is missing", e.Key, e.Expected)
	}
	return fmt.Sprintf("expected %s=%v, got %v", e.Key, e.Expected, e.Actual)
}

// LatencyExceededError reports a final attempt whose duration exceeded the
// caller-supplied bound.
type LatencyExceededError struct {
	Measured time.Duration
	Allowed  time.Duration
	Method   string
	URL      string
}

func (e *LatencyExceededError) Error() string {
	return fmt.Sprintf("response time %.2fs exceeds maximum allowed %.2fs for %s %s",
		e.Measured.Seconds(), e.Allowed.Seconds(), e.Method, e.URL)
}

// MissingCredentialsError reports an authentication bootstrap invoked without
// a resolvable username/password pair.
type MissingCredentialsError struct{}

func (e *MissingCredentialsError) Error() string {
	return "missing credentials: provide them explicitly or set TEST_USER and TEST_PASSWORD"
}

// failureLabel classifies a failure for the report's statistics table.
func failureLabel(err error) string {
	var exhausted *RequestExhaustedError
	var status *UnexpectedStatusError
	var invalid *InvalidJSONError
	var mismatch *JSONFieldMismatchError
	var latency *LatencyExceededError
	var creds *MissingCredentialsError

	switch {
	case errors.As(err, &exhausted):
		return "Request Exhausted"
	case errors.As(err, &status):
		return fmt.Sprintf("Unexpected Status (%d)", status.Actual)
	case errors.As(err, &invalid):
		return "Invalid JSON"
	case errors.As(err, &mismatch):
		return "JSON Field Mismatch"
	case errors.As(err, &latency):
		return "Latency Exceeded"
	case errors.As(err, &creds):
		return "Missing Credentials"
	default:
		return "Other Errors"
	}
}

// errorKind returns the short type name used in the execution log and the
// per-error report entries.
func errorKind(err error) string {
	var exhausted *RequestExhaustedError
	var status *UnexpectedStatusError
	var invalid *InvalidJSONError
	var mismatch *JSONFieldMismatchError
	var latency *LatencyExceededError
	var creds *MissingCredentialsError

	switch {
	case errors.As(err, &exhausted):
		return "RequestExhausted"
	case errors.As(err, &status):
		return "UnexpectedStatus"
	case errors.As(err, &invalid):
		return "InvalidJSON"
	case errors.As(err, &mismatch):
		return "JSONFieldMismatch"
	case errors.As(err, &latency):
		return "LatencyExceeded"
	case errors.As(err, &creds):
		return "MissingCredentials"
	default:
		return "Error"
	}
}
