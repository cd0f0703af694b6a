package store

import (
	"maps"

	"github.com/google/uuid"

	"github.com/jacentio/lattice/schema"
)

// Object is an instance of an entity registered with a Context.
//
// Attribute values are held in their canonical Go form (see
// [schema.AttributeType.Coerce]). To-one relationship values are *Object and
// to-many relationship values are []*Object.
type Object struct {
	id     uuid.UUID
	entity *schema.Entity
	ctx    *Context
	values map[string]any

	seq       uint64
	idKey     string
	version   int64
	createdAt string
	persisted bool
	dirty     bool
	deleted   bool
}

// ID returns the stable object identifier.
func (o *Object) ID() uuid.UUID { return o.id }

// Entity returns the concrete entity of the object.
func (o *Object) Entity() *schema.Entity { return o.entity }

// Value returns the current value of a property, or nil when unset.
func (o *Object) Value(name string) any {
	v := o.values[name]
	if objs, ok := v.([]*Object); ok {
		return append([]*Object(nil), objs...)
	}
	return v
}

// Related returns the objects referenced by a relationship, for both to-one
// and to-many relationships.
func (o *Object) Related(name string) []*Object {
	switch v := o.values[name].(type) {
	case *Object:
		if v == nil {
			return nil
		}
		return []*Object{v}
	case []*Object:
		return append([]*Object(nil), v...)
	}
	return nil
}

// Values returns a snapshot of all property values.
func (o *Object) Values() map[string]any {
	out := maps.Clone(o.values)
	for k, v := range out {
		if objs, ok := v.([]*Object); ok {
			out[k] = append([]*Object(nil), objs...)
		}
	}
	return out
}

// IdentityValues returns the values of the entity's identity attributes.
func (o *Object) IdentityValues() []any {
	ids := o.entity.IdentityAttributes()
	if len(ids) == 0 {
		return nil
	}
	out := make([]any, len(ids))
	for i, a := range ids {
		out[i] = o.values[a.Name]
	}
	return out
}

// Version returns the stored version, zero for objects never saved.
func (o *Object) Version() int64 { return o.version }

// IsDeleted reports whether the object was deleted from its context.
func (o *Object) IsDeleted() bool { return o.deleted }

// HasChanges reports whether the object differs from its stored form.
func (o *Object) HasChanges() bool { return o.dirty || !o.persisted }

func (o *Object) String() string {
	return o.entity.Name + "#" + o.id.String()
}
