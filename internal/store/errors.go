package store

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

var (
	// ErrConflict is returned when a unique constraint rejects a write.
	ErrConflict = errors.New("conflict")
	// ErrInvalidReference is returned when a foreign key points at a missing row.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrConstraint is returned when a check constraint rejects a write or a
	// value does not fit its column.
	ErrConstraint = errors.New("constraint violation")
)

// mapError translates postgres constraint failures into store sentinels.
// Other errors are returned unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case "23505":
		return ErrConflict
	case "23503":
		return ErrInvalidReference
	case "23514", "22001", "22P02", "22007", "22008":
		return ErrConstraint
	}
	return err
}
