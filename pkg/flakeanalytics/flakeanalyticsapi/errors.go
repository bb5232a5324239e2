package flakeanalyticsapi

import (
	"errors"
	"fmt"
)

// ConfigurationError indicates that the data source cannot produce the
// required shape at all, e.g. a missing required column. It is fatal: no
// computation is attempted on top of it.
type ConfigurationError struct {
	message string
}

func NewConfigurationError(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{message: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	return e.message
}

func IsConfigurationError(err error) bool {
	var configurationError *ConfigurationError
	return errors.As(err, &configurationError)
}

// ValidationError indicates a user-correctable problem with a filter
// selection, e.g. an inverted date range. Callers reject the selection and
// retain the last valid one.
type ValidationError struct {
	message string
}

func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return e.message
}

func IsValidationError(err error) bool {
	var validationError *ValidationError
	return errors.As(err, &validationError)
}
