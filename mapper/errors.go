package mapper

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jacentio/lattice/schema"
)

var (
	// ErrInvalidJSONObject is returned when a JSON value doesn't have the
	// shape its entity or relationship requires.
	ErrInvalidJSONObject = errors.New("lattice: invalid JSON object")

	// ErrIdentityNotFound is returned when identity-based resolution is
	// requested for an entity that defines no identity attribute.
	ErrIdentityNotFound = errors.New("lattice: identity attribute not found")

	// ErrEntityNotFound is returned when an entity or bound type is absent
	// from the model.
	ErrEntityNotFound = schema.ErrEntityNotFound
)

// Error describes where an import failed. errors.Is matches its Kind.
type Error struct {
	Kind         error
	Entity       string
	Relationship string
	KeyPath      string
	Err          error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	switch {
	case e.Relationship != "":
		fmt.Fprintf(&b, ": cannot serialize '%s' into relationship '%s.%s'", e.KeyPath, e.Entity, e.Relationship)
	case e.Entity != "":
		b.WriteString(": ")
		b.WriteString(e.Entity)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }
