package schema

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
)

var (
	// ErrEntityNotFound is returned when a requested entity or bound type
	// has no schema in the model.
	ErrEntityNotFound = errors.New("lattice: entity not found")

	// ErrInvalidModel is returned by Build for inconsistent declarations.
	ErrInvalidModel = errors.New("lattice: invalid model")
)

// Model is an immutable set of resolved entities.
type Model struct {
	entities []*Entity
	byName   map[string]*Entity
	byType   map[reflect.Type]*Entity
}

// Entity returns the entity with the given name.
func (m *Model) Entity(name string) (*Entity, error) {
	if e, ok := m.byName[name]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrEntityNotFound, name)
}

// EntityForType returns the entity bound to a native type with [Builder.Bind].
// Pointer types resolve to their element type.
func (m *Model) EntityForType(t reflect.Type) (*Entity, error) {
	if t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if e, ok := m.byType[t]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("%w: no entity bound to %v", ErrEntityNotFound, t)
}

// Entities returns every entity in declaration order.
func (m *Model) Entities() []*Entity { return m.entities }

// Builder assembles a Model from static declarations.
type Builder struct {
	entities []*Entity
	bindings map[string]reflect.Type
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{bindings: make(map[string]reflect.Type)}
}

// Add declares entities. The declarations are owned by the resulting Model
// and must not be added to another Builder.
func (b *Builder) Add(entities ...*Entity) *Builder {
	b.entities = append(b.entities, entities...)
	return b
}

// Bind associates the type of sample with an entity so it can be resolved
// with [Model.EntityForType].
func (b *Builder) Bind(entity string, sample any) *Builder {
	t := reflect.TypeOf(sample)
	if t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	b.bindings[entity] = t
	return b
}

// Build resolves inheritance, destinations and inverses and rejects
// inconsistent declarations.
func (b *Builder) Build() (*Model, error) {
	m := &Model{
		entities: b.entities,
		byName:   make(map[string]*Entity, len(b.entities)),
		byType:   make(map[reflect.Type]*Entity, len(b.bindings)),
	}

	for _, e := range b.entities {
		if e == nil || e.Name == "" {
			return nil, fmt.Errorf("%w: entity without a name", ErrInvalidModel)
		}
		if _, dup := m.byName[e.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate entity %q", ErrInvalidModel, e.Name)
		}
		m.byName[e.Name] = e
		e.parent, e.children = nil, nil
		e.attributes, e.relations, e.identity = nil, nil, nil
		e.attrByName, e.relByName = nil, nil
	}

	for _, e := range b.entities {
		if e.Parent == "" {
			continue
		}
		p, ok := m.byName[e.Parent]
		if !ok {
			return nil, fmt.Errorf("%w: entity %q: unknown parent %q", ErrInvalidModel, e.Name, e.Parent)
		}
		e.parent = p
		p.children = append(p.children, e)
	}
	for _, e := range b.entities {
		seen := map[*Entity]bool{}
		for cur := e; cur != nil; cur = cur.parent {
			if seen[cur] {
				return nil, fmt.Errorf("%w: entity %q: inheritance cycle", ErrInvalidModel, e.Name)
			}
			seen[cur] = true
		}
	}

	for _, e := range b.entities {
		if err := resolveProperties(e); err != nil {
			return nil, err
		}
	}
	for _, e := range b.entities {
		if err := m.resolveRelationships(e); err != nil {
			return nil, err
		}
	}
	for _, e := range b.entities {
		if err := resolveIdentity(e); err != nil {
			return nil, err
		}
	}
	for _, e := range b.entities {
		if err := checkIdentityOnly(e); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(b.bindings))
	for name := range b.bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		e, ok := m.byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: binding for unknown entity %q", ErrInvalidModel, name)
		}
		t := b.bindings[name]
		if prev, dup := m.byType[t]; dup {
			return nil, fmt.Errorf("%w: type %v bound to both %q and %q", ErrInvalidModel, t, prev.Name, name)
		}
		e.goType = t
		m.byType[t] = e
	}

	return m, nil
}

// resolveProperties flattens inherited properties, parents first.
func resolveProperties(e *Entity) error {
	if e.attributes != nil {
		return nil
	}
	e.attrByName = make(map[string]*Attribute)
	e.relByName = make(map[string]*Relationship)
	e.attributes = []*Attribute{}
	e.relations = []*Relationship{}

	if e.parent != nil {
		if err := resolveProperties(e.parent); err != nil {
			return err
		}
		for _, a := range e.parent.attributes {
			e.attributes = append(e.attributes, a)
			e.attrByName[a.Name] = a
		}
		for _, r := range e.parent.relations {
			e.relations = append(e.relations, r)
			e.relByName[r.Name] = r
		}
	}

	taken := func(name string) bool {
		_, a := e.attrByName[name]
		_, r := e.relByName[name]
		return a || r
	}
	for _, a := range e.Attributes {
		if a == nil || a.Name == "" {
			return fmt.Errorf("%w: entity %q: attribute without a name", ErrInvalidModel, e.Name)
		}
		if taken(a.Name) {
			return fmt.Errorf("%w: entity %q: duplicate property %q", ErrInvalidModel, e.Name, a.Name)
		}
		if _, ok := attributeTypeNames[a.Type]; !ok {
			return fmt.Errorf("%w: %s.%s: unknown type %v", ErrInvalidModel, e.Name, a.Name, a.Type)
		}
		if a.Default != nil {
			d, ok := a.Type.Coerce(a.Default)
			if !ok {
				return fmt.Errorf("%w: %s.%s: default %v is not a %v", ErrInvalidModel, e.Name, a.Name, a.Default, a.Type)
			}
			a.Default = d
		}
		a.entity = e
		e.attributes = append(e.attributes, a)
		e.attrByName[a.Name] = a
	}
	for _, r := range e.Relationships {
		if r == nil || r.Name == "" {
			return fmt.Errorf("%w: entity %q: relationship without a name", ErrInvalidModel, e.Name)
		}
		if taken(r.Name) {
			return fmt.Errorf("%w: entity %q: duplicate property %q", ErrInvalidModel, e.Name, r.Name)
		}
		if r.Ordered && !r.ToMany {
			return fmt.Errorf("%w: %s.%s: only to-many relationships can be ordered", ErrInvalidModel, e.Name, r.Name)
		}
		r.entity, r.inverse = e, nil
		e.relations = append(e.relations, r)
		e.relByName[r.Name] = r
	}
	return nil
}

func (m *Model) resolveRelationships(e *Entity) error {
	for _, r := range e.Relationships {
		dest, ok := m.byName[r.Destination]
		if !ok {
			return fmt.Errorf("%w: %s.%s: unknown destination %q", ErrInvalidModel, e.Name, r.Name, r.Destination)
		}
		r.destination = dest
		if r.Inverse == "" {
			continue
		}
		inv, ok := dest.relByName[r.Inverse]
		if !ok {
			return fmt.Errorf("%w: %s.%s: unknown inverse %s.%s", ErrInvalidModel, e.Name, r.Name, dest.Name, r.Inverse)
		}
		if inv.Inverse != "" && inv.Inverse != r.Name {
			return fmt.Errorf("%w: %s.%s: inverse %s.%s points to %q", ErrInvalidModel, e.Name, r.Name, dest.Name, inv.Name, inv.Inverse)
		}
		if inv.Destination != e.Name && !e.IsKindOf(m.byName[inv.Destination]) {
			return fmt.Errorf("%w: %s.%s: inverse %s.%s does not lead back to %s", ErrInvalidModel, e.Name, r.Name, dest.Name, inv.Name, e.Name)
		}
		r.inverse = inv
		// A one-sided declaration links both ends.
		if inv.Inverse == "" {
			if inv.inverse != nil && inv.inverse != r {
				return fmt.Errorf("%w: %s.%s: %s.%s is already the inverse of %s.%s", ErrInvalidModel, e.Name, r.Name, dest.Name, inv.Name, inv.inverse.entity.Name, inv.inverse.Name)
			}
			inv.inverse = r
		}
	}
	return nil
}

func resolveIdentity(e *Entity) error {
	var names []string
	for cur := e; cur != nil && len(names) == 0; cur = cur.parent {
		names = cur.Identity
	}
	if len(names) == 0 {
		return nil
	}
	ids := make([]*Attribute, 0, len(names))
	for _, name := range names {
		a, ok := e.attrByName[name]
		if !ok {
			return fmt.Errorf("%w: entity %q: identity attribute %q not declared", ErrInvalidModel, e.Name, name)
		}
		ids = append(ids, a)
	}
	e.identity = ids
	return nil
}

// checkIdentityOnly rejects identity-only relationships whose destination
// cannot be addressed by identity.
func checkIdentityOnly(e *Entity) error {
	for _, r := range e.Relationships {
		if !r.IdentityOnly {
			continue
		}
		ids := r.destination.IdentityAttributes()
		if len(ids) == 0 {
			return fmt.Errorf("%w: %s.%s is identity-only but %s defines no identity attribute", ErrInvalidModel, e.Name, r.Name, r.destination.Name)
		}
		for _, a := range ids {
			if !a.Serializable() {
				return fmt.Errorf("%w: %s.%s is identity-only but %s.%s has no key path", ErrInvalidModel, e.Name, r.Name, r.destination.Name, a.Name)
			}
		}
	}
	return nil
}
