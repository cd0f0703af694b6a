package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/jacentio/lattice/internal/identity"
	"github.com/jacentio/lattice/schema"
)

// ErrSavepointActive is returned by Save while a savepoint is open.
var ErrSavepointActive = errors.New("lattice: cannot save while a savepoint is open")

// Backend persists objects on behalf of a Context.
type Backend interface {
	// Fetch returns the live items whose identity_key is one of keys.
	Fetch(ctx context.Context, keys []string) ([]*Item, error)

	// Load returns the live items with the given IDs. Missing IDs are skipped.
	Load(ctx context.Context, ids []uuid.UUID) ([]*Item, error)

	// Save writes a change set.
	Save(ctx context.Context, changes *ChangeSet) error
}

// ChangeSet is the set of writes produced by Context.Save.
type ChangeSet struct {
	// Inserted items must not exist yet.
	Inserted []*Item

	// Updated items carry their new version; the stored version must be
	// Version-1.
	Updated []*Item

	// Deleted items carry the version they were loaded with.
	Deleted []*Item
}

// Empty reports whether the change set has no writes.
func (cs *ChangeSet) Empty() bool {
	return len(cs.Inserted) == 0 && len(cs.Updated) == 0 && len(cs.Deleted) == 0
}

// Option configures a Context.
type Option func(*Context)

// WithBackend attaches a persistent backend. Without one the context is
// purely in-memory.
func WithBackend(b Backend) Option {
	return func(c *Context) { c.backend = b }
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Context) { c.now = now }
}

// Context is a unit of work over a set of objects. It tracks inserts,
// updates and deletes until Save, keeps inverse relationships consistent and
// supports nested savepoints.
//
// A Context is not safe for concurrent use.
type Context struct {
	model   *schema.Model
	backend Backend
	now     func() time.Time

	objects  map[uuid.UUID]*Object
	identity map[string]*Object
	removed  map[uuid.UUID]*Object
	seq      uint64

	journal []func()
	depth   int
}

// NewContext creates an empty Context for a model.
func NewContext(model *schema.Model, opts ...Option) *Context {
	c := &Context{
		model:    model,
		now:      time.Now,
		objects:  make(map[uuid.UUID]*Object),
		identity: make(map[string]*Object),
		removed:  make(map[uuid.UUID]*Object),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the schema the context was created with.
func (c *Context) Model() *schema.Model { return c.model }

// Insert registers a new instance of the named entity. Attributes with a
// default value are initialized to it.
func (c *Context) Insert(entity string) (*Object, error) {
	e, err := c.model.Entity(entity)
	if err != nil {
		return nil, err
	}
	if e.Abstract {
		return nil, fmt.Errorf("%w: %s", ErrAbstractEntity, e.Name)
	}
	c.seq++
	o := &Object{
		id:     uuid.New(),
		entity: e,
		ctx:    c,
		values: make(map[string]any),
		seq:    c.seq,
	}
	for _, a := range e.AllAttributes() {
		if a.Default != nil {
			o.values[a.Name] = a.Default
		}
	}
	c.objects[o.id] = o
	c.record(func() {
		delete(c.objects, o.id)
		o.deleted = true
	})
	c.reindex(o)
	return o, nil
}

// Delete removes an object, nullifying every relationship that points to it.
func (c *Context) Delete(o *Object) {
	if o == nil || o.ctx != c || o.deleted {
		return
	}
	for _, r := range o.entity.AllRelationships() {
		if r.ToMany {
			c.setToMany(o, r, nil)
		} else {
			c.setToOne(o, r, nil)
		}
	}

	key := o.idKey
	delete(c.objects, o.id)
	if key != "" && c.identity[key] == o {
		delete(c.identity, key)
	}
	o.deleted = true
	if o.persisted {
		c.removed[o.id] = o
	}
	c.record(func() {
		c.objects[o.id] = o
		if key != "" {
			c.identity[key] = o
		}
		o.deleted = false
		delete(c.removed, o.id)
	})
}

// Get returns the current value of a property.
func (c *Context) Get(o *Object, property string) (any, error) {
	if _, ok := o.entity.Attribute(property); ok {
		return o.Value(property), nil
	}
	if _, ok := o.entity.Relationship(property); ok {
		return o.Value(property), nil
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrUnknownProperty, o.entity.Name, property)
}

// Validate checks value against the rules of a property and returns it in
// canonical form. It does not modify the object.
func (c *Context) Validate(o *Object, property string, value any) (any, error) {
	return c.normalize(o, property, value, true)
}

// Set assigns a property. Relationship changes update the inverse
// relationship of every object involved.
func (c *Context) Set(o *Object, property string, value any) error {
	if o.ctx != c {
		return ErrForeignObject
	}
	if o.deleted {
		return fmt.Errorf("%w: %s", ErrNotFound, o)
	}
	v, err := c.normalize(o, property, value, false)
	if err != nil {
		return err
	}
	if a, ok := o.entity.Attribute(property); ok {
		c.assign(o, a.Name, v)
		if slices.Contains(o.entity.IdentityAttributes(), a) {
			c.reindex(o)
		}
		return nil
	}
	r, _ := o.entity.Relationship(property)
	if r.ToMany {
		objs, _ := v.([]*Object)
		c.setToMany(o, r, objs)
	} else {
		dest, _ := v.(*Object)
		c.setToOne(o, r, dest)
	}
	return nil
}

// Objects returns the live objects of an entity and its sub-entities in
// insertion order.
func (c *Context) Objects(entity string) []*Object {
	e, err := c.model.Entity(entity)
	if err != nil {
		return nil
	}
	var out []*Object
	for _, o := range c.objects {
		if o.entity.IsKindOf(e) {
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b *Object) int { return compareSeq(a.seq, b.seq) })
	return out
}

// Count returns the number of live objects of an entity and its sub-entities.
func (c *Context) Count(entity string) int { return len(c.Objects(entity)) }

// Object returns the live object with the given ID.
func (c *Context) Object(id uuid.UUID) (*Object, bool) {
	o, ok := c.objects[id]
	return o, ok
}

// HasChanges reports whether Save would write anything.
func (c *Context) HasChanges() bool {
	if len(c.removed) > 0 {
		return true
	}
	for _, o := range c.objects {
		if o.HasChanges() {
			return true
		}
	}
	return false
}

// FetchExisting returns the objects of entity (or its sub-entities) whose
// identity matches one of the given tuples. Each tuple holds one value per
// identity attribute. Objects not yet registered are loaded from the
// backend together with the objects they reference.
func (c *Context) FetchExisting(ctx context.Context, entity *schema.Entity, tuples [][]any) ([]*Object, error) {
	ids := entity.IdentityAttributes()
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoIdentity, entity.Name)
	}
	family := entity.Root().Name

	wanted := make(map[string]bool, len(tuples))
	var missing []string
	var out []*Object
	seen := make(map[*Object]bool)
	for _, tuple := range tuples {
		if len(tuple) != len(ids) {
			continue
		}
		values := make([]any, len(ids))
		valid := true
		for i, a := range ids {
			v, ok := a.Type.Coerce(tuple[i])
			if !ok || v == nil {
				valid = false
				break
			}
			values[i] = v
		}
		if !valid {
			continue
		}
		key, _ := identity.Key(values...)
		idx := family + "\x00" + key
		if wanted[idx] {
			continue
		}
		wanted[idx] = true
		if o, ok := c.identity[idx]; ok {
			if o.entity.IsKindOf(entity) && !seen[o] {
				seen[o] = true
				out = append(out, o)
			}
			continue
		}
		if c.backend != nil {
			missing = append(missing, identity.Hash(family, key))
		}
	}

	if len(missing) > 0 {
		items, err := c.backend.Fetch(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", entity.Name, err)
		}
		objs, err := c.materialize(ctx, items)
		if err != nil {
			return nil, err
		}
		for _, o := range objs {
			if wanted[o.idKey] && o.entity.IsKindOf(entity) && !seen[o] {
				seen[o] = true
				out = append(out, o)
			}
		}
	}

	slices.SortFunc(out, func(a, b *Object) int { return compareSeq(a.seq, b.seq) })
	return out, nil
}

// Save writes all pending changes to the backend. Without a backend the
// changes are simply marked as saved.
func (c *Context) Save(ctx context.Context) error {
	if c.depth > 0 {
		return ErrSavepointActive
	}
	now := c.now().UTC().Format(time.RFC3339)

	var cs ChangeSet
	var inserted, updated []*Object
	live := make([]*Object, 0, len(c.objects))
	for _, o := range c.objects {
		live = append(live, o)
	}
	slices.SortFunc(live, func(a, b *Object) int { return compareSeq(a.seq, b.seq) })
	for _, o := range live {
		switch {
		case !o.persisted:
			cs.Inserted = append(cs.Inserted, c.toItem(o, 1, now, now))
			inserted = append(inserted, o)
		case o.dirty:
			cs.Updated = append(cs.Updated, c.toItem(o, o.version+1, o.createdAt, now))
			updated = append(updated, o)
		}
	}
	for _, o := range c.removed {
		cs.Deleted = append(cs.Deleted, &Item{ID: o.id, Entity: o.entity.Name, Version: o.version})
	}

	if c.backend != nil && !cs.Empty() {
		if err := c.backend.Save(ctx, &cs); err != nil {
			return err
		}
	}

	for _, o := range inserted {
		o.persisted, o.dirty = true, false
		o.version, o.createdAt = 1, now
	}
	for _, o := range updated {
		o.dirty = false
		o.version++
	}
	clear(c.removed)
	return nil
}

func (c *Context) toItem(o *Object, version int64, createdAt, updatedAt string) *Item {
	item := &Item{
		ID:         o.id,
		Entity:     o.entity.Name,
		Version:    version,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
		Attributes: make(map[string]any),
		Refs:       make(map[string][]uuid.UUID),
	}
	if family, key, ok := identityKey(o); ok {
		item.IdentityKey = identity.Hash(family, key)
	}
	for _, a := range o.entity.AllAttributes() {
		if v, ok := o.values[a.Name]; ok && v != nil {
			item.Attributes[a.Name] = v
		}
	}
	for _, r := range o.entity.AllRelationships() {
		targets := o.Related(r.Name)
		if len(targets) == 0 {
			continue
		}
		ids := make([]uuid.UUID, len(targets))
		for i, t := range targets {
			ids[i] = t.id
		}
		item.Refs[r.Name] = ids
	}
	return item
}

// materialize registers stored items as objects, loading every object they
// reference. Items already registered resolve to the registered object.
func (c *Context) materialize(ctx context.Context, items []*Item) ([]*Object, error) {
	var out []*Object
	created := make(map[*Object]map[string][]uuid.UUID)
	pending := items
	first := true
	for len(pending) > 0 {
		var refs []uuid.UUID
		for _, it := range pending {
			if _, gone := c.removed[it.ID]; gone {
				continue
			}
			if o, ok := c.objects[it.ID]; ok {
				if first {
					out = append(out, o)
				}
				continue
			}
			e, err := c.model.Entity(it.Entity)
			if err != nil {
				return nil, fmt.Errorf("object %s: %w", it.ID, err)
			}
			c.seq++
			o := &Object{
				id:        it.ID,
				entity:    e,
				ctx:       c,
				values:    make(map[string]any),
				seq:       c.seq,
				version:   it.Version,
				createdAt: it.CreatedAt,
				persisted: true,
			}
			for name, v := range it.Attributes {
				if a, ok := e.Attribute(name); ok {
					if cv, ok := a.Type.Coerce(v); ok && cv != nil {
						o.values[name] = cv
					}
				}
			}
			c.objects[o.id] = o
			c.index(o)
			created[o] = it.Refs
			if first {
				out = append(out, o)
			}
			for _, ids := range it.Refs {
				for _, id := range ids {
					if _, ok := c.objects[id]; !ok {
						refs = append(refs, id)
					}
				}
			}
		}
		first = false
		if len(refs) == 0 {
			break
		}
		loaded, err := c.backend.Load(ctx, uniqueIDs(refs))
		if err != nil {
			return nil, fmt.Errorf("load references: %w", err)
		}
		pending = loaded
	}

	for o, refs := range created {
		for name, ids := range refs {
			r, ok := o.entity.Relationship(name)
			if !ok {
				continue
			}
			var targets []*Object
			for _, id := range ids {
				if t, ok := c.objects[id]; ok {
					targets = append(targets, t)
				}
			}
			switch {
			case len(targets) == 0:
			case r.ToMany:
				o.values[name] = targets
			default:
				o.values[name] = targets[0]
			}
		}
	}
	return out, nil
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func compareSeq(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
