package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an object doesn't exist or is deleted (has TTL <= now).
	ErrNotFound = errors.New("lattice: object not found")

	// ErrAlreadyExists is returned when saving a new object whose ID is already stored.
	ErrAlreadyExists = errors.New("lattice: object already exists")

	// ErrConcurrentModification is returned when optimistic lock fails (version mismatch).
	ErrConcurrentModification = errors.New("lattice: object was modified concurrently")

	// ErrAbstractEntity is returned when inserting an instance of an abstract entity.
	ErrAbstractEntity = errors.New("lattice: cannot insert abstract entity")

	// ErrUnknownProperty is returned when reading or writing a property the entity doesn't declare.
	ErrUnknownProperty = errors.New("lattice: unknown property")

	// ErrNoIdentity is returned when fetching by identity for an entity without identity attributes.
	ErrNoIdentity = errors.New("lattice: entity has no identity attribute")

	// ErrForeignObject is returned when an object from another context is passed in.
	ErrForeignObject = errors.New("lattice: object belongs to another context")

	// ErrUnprocessedKeys is returned when DynamoDB keeps throttling a batch read
	// past the configured retries.
	ErrUnprocessedKeys = errors.New("lattice: keys left unprocessed")

	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("lattice: validation failed")
)

// ValidationCode classifies a ValidationError.
type ValidationCode int

const (
	MissingMandatoryProperty ValidationCode = iota + 1
	TypeMismatch
	TooFewItems
	TooManyItems
	InvalidDestination
)

func (c ValidationCode) String() string {
	switch c {
	case MissingMandatoryProperty:
		return "missing mandatory property"
	case TypeMismatch:
		return "type mismatch"
	case TooFewItems:
		return "too few items"
	case TooManyItems:
		return "too many items"
	case InvalidDestination:
		return "invalid destination"
	}
	return fmt.Sprintf("ValidationCode(%d)", int(c))
}

// ValidationError reports a value rejected for a property.
type ValidationError struct {
	Entity   string
	Property string
	Code     ValidationCode
	Value    any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("lattice: %s.%s: %s", e.Entity, e.Property, e.Code)
}

// Is makes errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
