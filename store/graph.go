package store

import (
	"bytes"
	"fmt"
	"reflect"
	"slices"
	"time"

	"github.com/jacentio/lattice/internal/identity"
	"github.com/jacentio/lattice/schema"
)

// normalize checks value against a property and returns its canonical form.
// Mandatory properties are only enforced when strict is set.
func (c *Context) normalize(o *Object, property string, value any, strict bool) (any, error) {
	if a, ok := o.entity.Attribute(property); ok {
		if value == nil {
			if strict && a.Required {
				return nil, c.invalid(o, property, MissingMandatoryProperty, value)
			}
			return nil, nil
		}
		v, ok := a.Type.Coerce(value)
		if !ok {
			return nil, c.invalid(o, property, TypeMismatch, value)
		}
		return v, nil
	}

	r, ok := o.entity.Relationship(property)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownProperty, o.entity.Name, property)
	}

	if !r.ToMany {
		var dest *Object
		switch v := value.(type) {
		case nil:
		case *Object:
			dest = v
		default:
			return nil, c.invalid(o, property, TypeMismatch, value)
		}
		if dest == nil {
			if strict && r.Required {
				return nil, c.invalid(o, property, MissingMandatoryProperty, nil)
			}
			return nil, nil
		}
		if !c.acceptable(r, dest) {
			return nil, c.invalid(o, property, InvalidDestination, dest)
		}
		return dest, nil
	}

	var objs []*Object
	switch v := value.(type) {
	case nil:
	case []*Object:
		objs = v
	default:
		return nil, c.invalid(o, property, TypeMismatch, value)
	}
	out := make([]*Object, 0, len(objs))
	for _, d := range objs {
		if d == nil || slices.Contains(out, d) {
			continue
		}
		if !c.acceptable(r, d) {
			return nil, c.invalid(o, property, InvalidDestination, d)
		}
		out = append(out, d)
	}

	n := len(out)
	if strict {
		if r.Required && n == 0 {
			return nil, c.invalid(o, property, MissingMandatoryProperty, nil)
		}
		if r.MinCount > 0 && n < r.MinCount && (n > 0 || r.Required) {
			return nil, c.invalid(o, property, TooFewItems, out)
		}
		if r.MaxCount > 0 && n > r.MaxCount {
			return nil, c.invalid(o, property, TooManyItems, out)
		}
	}
	if n == 0 {
		return nil, nil
	}
	return out, nil
}

func (c *Context) acceptable(r *schema.Relationship, dest *Object) bool {
	return dest.ctx == c && !dest.deleted && dest.entity.IsKindOf(r.DestinationEntity())
}

func (c *Context) invalid(o *Object, property string, code ValidationCode, value any) error {
	return &ValidationError{Entity: o.entity.Name, Property: property, Code: code, Value: value}
}

// record appends an undo step while a savepoint is open.
func (c *Context) record(undo func()) {
	if c.depth > 0 {
		c.journal = append(c.journal, undo)
	}
}

// assign stores a value without touching inverses. Slices are never
// modified in place so an undo step can restore the previous one.
func (c *Context) assign(o *Object, name string, v any) {
	prev, had := o.values[name]
	if had == (v != nil) && (!had || sameValue(prev, v)) {
		return
	}
	prevDirty := o.dirty
	if v == nil {
		delete(o.values, name)
	} else {
		o.values[name] = v
	}
	o.dirty = true
	c.record(func() {
		if had {
			o.values[name] = prev
		} else {
			delete(o.values, name)
		}
		o.dirty = prevDirty
	})
}

func sameValue(a, b any) bool {
	switch x := a.(type) {
	case *Object:
		y, ok := b.(*Object)
		return ok && x == y
	case []*Object:
		y, ok := b.([]*Object)
		return ok && slices.Equal(x, y)
	case []byte:
		y, ok := b.([]byte)
		return ok && bytes.Equal(x, y)
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	}
	return reflect.DeepEqual(a, b)
}

func (c *Context) setToOne(o *Object, r *schema.Relationship, dest *Object) {
	old, _ := o.values[r.Name].(*Object)
	if old == dest {
		return
	}
	inv := r.InverseRelationship()
	if old != nil && inv != nil {
		c.unlink(old, inv, o)
	}
	if dest == nil {
		c.assign(o, r.Name, nil)
	} else {
		c.assign(o, r.Name, dest)
	}
	if dest != nil && inv != nil {
		c.link(dest, inv, o)
	}
}

func (c *Context) setToMany(o *Object, r *schema.Relationship, dests []*Object) {
	old, _ := o.values[r.Name].([]*Object)
	if len(old) == 0 && len(dests) == 0 {
		return
	}
	inv := r.InverseRelationship()
	if inv != nil {
		for _, x := range old {
			if !slices.Contains(dests, x) {
				c.unlink(x, inv, o)
			}
		}
	}
	if len(dests) == 0 {
		c.assign(o, r.Name, nil)
	} else {
		c.assign(o, r.Name, slices.Clone(dests))
	}
	if inv != nil {
		for _, x := range dests {
			if !slices.Contains(old, x) {
				c.link(x, inv, o)
			}
		}
	}
}

// link adds o to relationship r of x. A to-one r that pointed elsewhere is
// detached from its previous target first.
func (c *Context) link(x *Object, r *schema.Relationship, o *Object) {
	if r.ToMany {
		cur, _ := x.values[r.Name].([]*Object)
		if slices.Contains(cur, o) {
			return
		}
		c.assign(x, r.Name, append(slices.Clone(cur), o))
		return
	}
	prev, _ := x.values[r.Name].(*Object)
	if prev == o {
		return
	}
	if prev != nil {
		if inv := r.InverseRelationship(); inv != nil {
			c.unlink(prev, inv, x)
		}
	}
	c.assign(x, r.Name, o)
}

// unlink removes o from relationship r of x.
func (c *Context) unlink(x *Object, r *schema.Relationship, o *Object) {
	if r.ToMany {
		cur, _ := x.values[r.Name].([]*Object)
		i := slices.Index(cur, o)
		if i < 0 {
			return
		}
		next := slices.Delete(slices.Clone(cur), i, i+1)
		if len(next) == 0 {
			c.assign(x, r.Name, nil)
		} else {
			c.assign(x, r.Name, next)
		}
		return
	}
	if prev, _ := x.values[r.Name].(*Object); prev == o {
		c.assign(x, r.Name, nil)
	}
}

// identityKey returns the identity family and encoded identity tuple of o.
func identityKey(o *Object) (family, key string, ok bool) {
	values := o.IdentityValues()
	if values == nil {
		return "", "", false
	}
	key, ok = identity.Key(values...)
	if !ok {
		return "", "", false
	}
	return o.entity.Root().Name, key, true
}

func indexKey(o *Object) string {
	family, key, ok := identityKey(o)
	if !ok {
		return ""
	}
	return family + "\x00" + key
}

// index registers a loaded object in the identity index.
func (c *Context) index(o *Object) {
	o.idKey = indexKey(o)
	if o.idKey != "" {
		c.identity[o.idKey] = o
	}
}

// reindex moves o to the index slot of its current identity.
func (c *Context) reindex(o *Object) {
	key := indexKey(o)
	if key == o.idKey {
		return
	}
	oldKey := o.idKey
	holder, held := c.identity[key]
	if oldKey != "" && c.identity[oldKey] == o {
		delete(c.identity, oldKey)
	}
	if key != "" {
		c.identity[key] = o
	}
	o.idKey = key
	c.record(func() {
		if key != "" {
			if held {
				c.identity[key] = holder
			} else {
				delete(c.identity, key)
			}
		}
		if oldKey != "" {
			c.identity[oldKey] = o
		}
		o.idKey = oldKey
	})
}

// Savepoint marks a point the context can be rolled back to.
type Savepoint struct {
	c    *Context
	mark int
	done bool
}

// Savepoint opens a savepoint. Savepoints nest and must be closed in
// reverse order with Rollback or Release.
func (c *Context) Savepoint() *Savepoint {
	c.depth++
	return &Savepoint{c: c, mark: len(c.journal)}
}

// Rollback undoes every change made since the savepoint was opened. Objects
// inserted in that span are marked deleted.
func (s *Savepoint) Rollback() {
	if s.done {
		return
	}
	s.done = true
	j := s.c.journal
	for i := len(j) - 1; i >= s.mark; i-- {
		j[i]()
	}
	s.c.journal = j[:s.mark]
	s.c.close()
}

// Release keeps the changes made since the savepoint was opened.
func (s *Savepoint) Release() {
	if s.done {
		return
	}
	s.done = true
	s.c.close()
}

func (c *Context) close() {
	c.depth--
	if c.depth == 0 {
		c.journal = nil
	}
}
