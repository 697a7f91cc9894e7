package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/eventdesk/apiserver/internal/store"
)

var (
	// ErrInvalidCredentials is returned for unknown users, wrong passwords
	// and inactive accounts alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidActivation is returned for every activation failure so the
	// cause cannot be told apart by the caller.
	ErrInvalidActivation = errors.New("activation link is invalid")
)

// ValidationError carries field-level messages for rejected input.
// Nothing is written to the store when it is returned.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a message for field, keeping the first one reported.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

// Err returns e when any field failed and nil otherwise.
func (e *ValidationError) Err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func invalid(field, message string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, message)
	return v
}

// fromStoreError converts constraint failures into a ValidationError on
// field and wraps anything else with op.
func fromStoreError(err error, op, field, message string) error {
	if errors.Is(err, store.ErrConflict) ||
		errors.Is(err, store.ErrInvalidReference) ||
		errors.Is(err, store.ErrConstraint) {
		return invalid(field, message)
	}
	return fmt.Errorf("%s: %w", op, err)
}
