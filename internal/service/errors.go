package service

import "fmt"

// ValidationError reports a malformed or missing input field.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid or missing field %q", e.Field)
}
