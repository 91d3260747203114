package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the scheduler and its collaborators.
// Use errors.Is to check: errors.Is(err, domain.ErrStaleCard)
var (
	// ErrInvalidInput is a caller bug: a bad ease button or a malformed card.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidConfig is returned when a deck config cannot drive scheduling,
	// such as empty steps where a step is required or a non-positive multiplier.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrStaleCard is returned when a card changed between being handed out
	// and being answered. Fetch the next card again and retry.
	ErrStaleCard = errors.New("stale card")

	// ErrNotFound is returned by repositories when a row does not exist.
	ErrNotFound = errors.New("not found")
)

// StoreError wraps an I/O failure from a repository.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
