package errors

import (
	"fmt"
)

// ValidationError represents an error when validation fails
type ValidationError struct {
	Field   string
	Message string
}

// Error returns the error message
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
}

// ConfigError represents an error related to configuration
type ConfigError struct {
	Section string
	Message string
}

// Error returns the error message
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Section, e.Message)
}
