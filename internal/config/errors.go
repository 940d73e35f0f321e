package config

import (
	"fmt"
	"strings"
)

// ConfigurationError reports missing or invalid configuration, typically
// absent provider credentials.
type ConfigurationError struct {
	Field       string   `json:"field"`       // Offending setting, e.g. "provider.client_id"
	Message     string   `json:"message"`     // Human-readable error message
	Suggestions []string `json:"suggestions"` // Actionable suggestions to fix the error
}

// Error implements the error interface
func (ce *ConfigurationError) Error() string {
	if ce.Field == "" {
		return "configuration error: " + ce.Message
	}
	return fmt.Sprintf("configuration error: %s: %s", ce.Field, ce.Message)
}

// DetailedError returns the message followed by suggestions, for CLI output.
func (ce *ConfigurationError) DetailedError() string {
	parts := []string{ce.Error()}
	if len(ce.Suggestions) > 0 {
		parts = append(parts, "  Suggestions:")
		for _, suggestion := range ce.Suggestions {
			parts = append(parts, "    - "+suggestion)
		}
	}
	return strings.Join(parts, "\n")
}

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}
