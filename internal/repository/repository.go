package repository

import (
	"errors"

	"github.com/lib/pq"
)

// Sentinel errors surfaced by repositories so services can translate them
// into domain errors without inspecting driver details.
var (
	// ErrDuplicate indicates a unique constraint rejected the write.
	ErrDuplicate = errors.New("duplicate record")

	// ErrCourseFull indicates the capacity check inside the enrollment
	// transaction found no remaining seats.
	ErrCourseFull = errors.New("course is at capacity")
)

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}
	return false
}
