package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRecord is the sentinel behind every ValidationError.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrUnknownDomain is returned for collections that are not registered.
	ErrUnknownDomain = errors.New("unknown domain")
)

// ValidationError explains why a record was rejected.
type ValidationError struct {
	Type    string
	ID      string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s %s %s", e.Type, e.Field, e.Message)
	}
	return fmt.Sprintf("%s %q: %s %s", e.Type, e.ID, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRecord
}

func invalid(typ, id, field, msg string) error {
	return &ValidationError{Type: typ, ID: id, Field: field, Message: msg}
}
