// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"errors"
	"fmt"
	"strings"
)

// APIError is returned by every Client method.
type APIError struct {
	// Status is the HTTP status code, or 0 when no response was received.
	Status int
	// Message is the backend's "error" field, or "HTTP <status>".
	Message string
	// Errors holds validation details from the backend's "errors" field.
	Errors []string
	// Cause is the underlying transport or decoding error, if any.
	Cause error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := e.Message
	if len(e.Errors) > 0 {
		msg += ": " + strings.Join(e.Errors, "; ")
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *APIError) Unwrap() error {
	return e.Cause
}

// IsNetwork reports whether the request never got an HTTP response.
func (e *APIError) IsNetwork() bool {
	return e.Status == 0
}

// IsNetworkError reports whether err is an *APIError for a transport failure.
func IsNetworkError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsNetwork()
}

// StatusCode extracts the HTTP status from err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

func networkError(err error) *APIError {
	return &APIError{Message: "network error", Cause: err}
}
