package mapper

import (
	"context"
	"log/slog"

	"github.com/jacentio/lattice/schema"
	"github.com/jacentio/lattice/store"
	"github.com/jacentio/lattice/transform"
)

// Session is the object store an import runs against. *store.Context
// implements it.
type Session interface {
	Model() *schema.Model
	Insert(entity string) (*store.Object, error)
	FetchExisting(ctx context.Context, entity *schema.Entity, tuples [][]any) ([]*store.Object, error)
	Delete(obj *store.Object)
	Validate(obj *store.Object, property string, value any) (any, error)
	Set(obj *store.Object, property string, value any) error
}

// savepointer is implemented by sessions that can undo a span of changes.
type savepointer interface {
	Savepoint() *store.Savepoint
}

var _ interface {
	Session
	savepointer
} = (*store.Context)(nil)

// Mode selects how imported objects are matched to existing ones.
type Mode int

const (
	// Insert creates a new object for every JSON object.
	Insert Mode = iota

	// Merge updates the existing object with the same identity, if any.
	Merge
)

func (m Mode) String() string {
	if m == Merge {
		return "merge"
	}
	return "insert"
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Mapper) { m.logger = logger }
}

// Mapper imports JSON into a Session and exports objects back to JSON.
// A Mapper holds no per-call state and is safe for concurrent use; each
// session must only be used by one call at a time.
type Mapper struct {
	registry *transform.Registry
	logger   *slog.Logger
}

// New creates a Mapper resolving transformer, dictionary transformer and
// entity mapper names in registry. A nil registry resolves nothing.
func New(registry *transform.Registry, opts ...Option) *Mapper {
	if registry == nil {
		registry = transform.NewRegistry()
	}
	m := &Mapper{registry: registry}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Registry returns the transformer registry.
func (m *Mapper) Registry() *transform.Registry { return m.registry }

// inheritedName returns the first non-empty name found walking up from e.
func inheritedName(e *schema.Entity, name func(*schema.Entity) string) string {
	for cur := e; cur != nil; cur = cur.ParentEntity() {
		if n := name(cur); n != "" {
			return n
		}
	}
	return ""
}
