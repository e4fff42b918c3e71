package sdk

import (
	"fmt"
	"strings"
)

// ConfigurationError reports missing or invalid local configuration.
// It is raised before any network call is made.
type ConfigurationError struct {
	// Missing lists required configuration keys that were absent, in declaration order.
	Missing []string
	// Reason describes any other configuration problem.
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing required configuration fields: %s", strings.Join(e.Missing, ", ")))
	}
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	if len(parts) == 0 {
		return "configuration error"
	}
	return "configuration error: " + strings.Join(parts, ": ")
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// AuthenticationError reports that the identity provider did not issue an access token.
type AuthenticationError struct {
	// Code is the provider's error code (e.g. "invalid_client"), when present.
	Code string
	// Description is the provider's error_description, when present.
	Description string
	Err         error
}

func (e *AuthenticationError) Error() string {
	switch {
	case e.Code != "" || e.Description != "":
		return fmt.Sprintf("failed to acquire token: %s - %s", e.Code, e.Description)
	case e.Err != nil:
		return fmt.Sprintf("failed to acquire token: %v", e.Err)
	default:
		return "failed to acquire token"
	}
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// DirectoryRequestError reports a non-success HTTP response from the directory API.
type DirectoryRequestError struct {
	Method     string
	Path       string
	StatusCode int
	Status     string
	// Code and Message are taken from the Graph error payload ({"error":{"code","message"}}).
	Code    string
	Message string
	// Body is the raw response payload.
	Body []byte
}

func (e *DirectoryRequestError) Error() string {
	msg := fmt.Sprintf("directory request %s %s failed (HTTP %d)", e.Method, e.Path, e.StatusCode)
	switch {
	case e.Code != "" || e.Message != "":
		return fmt.Sprintf("%s: %s: %s", msg, e.Code, e.Message)
	case len(e.Body) > 0:
		return fmt.Sprintf("%s: %s", msg, strings.TrimSpace(string(e.Body)))
	default:
		return msg
	}
}
