package mapper

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/jacentio/lattice/internal/identity"
	"github.com/jacentio/lattice/jsonval"
	"github.com/jacentio/lattice/schema"
	"github.com/jacentio/lattice/store"
)

// Import maps v onto objects of the named entity. v is a JSON object, an
// array of objects, or bare identity values. The call is atomic: on error
// every change it made is undone when s supports savepoints, and every
// object it inserted is deleted otherwise.
func (m *Mapper) Import(ctx context.Context, s Session, entity string, v jsonval.Value, mode Mode) ([]*store.Object, error) {
	e, err := s.Model().Entity(entity)
	if err != nil {
		return nil, err
	}
	return m.importEntity(ctx, s, e, v, mode)
}

// ImportObject imports a single JSON object.
func (m *Mapper) ImportObject(ctx context.Context, s Session, entity string, obj jsonval.Object, mode Mode) (*store.Object, error) {
	objs, err := m.Import(ctx, s, entity, obj.Value(), mode)
	if err != nil || len(objs) == 0 {
		return nil, err
	}
	return objs[0], nil
}

// ImportArray imports every element of a JSON array.
func (m *Mapper) ImportArray(ctx context.Context, s Session, entity string, arr jsonval.Array, mode Mode) ([]*store.Object, error) {
	return m.Import(ctx, s, entity, arr.Value(), mode)
}

// ImportData decodes JSON bytes and imports the result. Malformed input
// fails with ErrInvalidJSONObject before the session is touched.
func (m *Mapper) ImportData(ctx context.Context, s Session, entity string, data []byte, mode Mode) ([]*store.Object, error) {
	e, err := s.Model().Entity(entity)
	if err != nil {
		return nil, err
	}
	v, err := jsonval.Parse(data)
	if err != nil {
		return nil, &Error{Kind: ErrInvalidJSONObject, Entity: e.Name, Err: err}
	}
	return m.importEntity(ctx, s, e, v, mode)
}

// ImportFor imports v into the entity bound to the Go type T.
func ImportFor[T any](ctx context.Context, m *Mapper, s Session, v jsonval.Value, mode Mode) ([]*store.Object, error) {
	e, err := s.Model().EntityForType(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return nil, err
	}
	return m.importEntity(ctx, s, e, v, mode)
}

// Find returns the existing objects whose identity appears in v, which has
// the same shape Import accepts. Nothing is inserted or modified.
func (m *Mapper) Find(ctx context.Context, s Session, entity string, v jsonval.Value) ([]*store.Object, error) {
	e, err := s.Model().Entity(entity)
	if err != nil {
		return nil, err
	}
	if len(e.IdentityAttributes()) == 0 {
		return nil, &Error{Kind: ErrIdentityNotFound, Entity: e.Name}
	}

	r := &importer{m: m, s: s, ctx: ctx}
	var tuples [][]any
	for _, el := range elements(v) {
		obj, ok, err := r.prepare(e, el, true)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if tuple, ok := r.identityTuple(e, obj); ok {
			tuples = append(tuples, tuple)
		}
	}
	if len(tuples) == 0 {
		return nil, nil
	}
	return s.FetchExisting(ctx, e, tuples)
}

// IdentityOf returns the identity values obj maps to for entity once the
// dictionary transformer has run. ok is false when obj lacks part of the
// identity or the entity has none.
func (m *Mapper) IdentityOf(s Session, entity string, obj jsonval.Object) (tuple []any, ok bool, err error) {
	e, err := s.Model().Entity(entity)
	if err != nil {
		return nil, false, err
	}
	r := &importer{m: m, s: s}
	prepared, _, err := r.prepare(e, obj.Value(), true)
	if err != nil {
		return nil, false, err
	}
	tuple, ok = r.identityTuple(e, prepared)
	return tuple, ok, nil
}

func (m *Mapper) importEntity(ctx context.Context, s Session, e *schema.Entity, v jsonval.Value, mode Mode) ([]*store.Object, error) {
	elems := elements(v)
	if len(elems) == 0 {
		return []*store.Object{}, nil
	}

	r := &importer{m: m, s: s, ctx: ctx, mode: mode, seen: make(map[batchKey]*store.Object)}
	var sp *store.Savepoint
	if sv, ok := s.(savepointer); ok {
		sp = sv.Savepoint()
	}

	m.logger.Debug("import started", "entity", e.Name, "elements", len(elems), "mode", mode)
	objs, err := r.importArray(e, elems, mode, true)
	if err != nil {
		if sp != nil {
			sp.Rollback()
		} else {
			r.discard()
		}
		m.logger.Warn("import rolled back", "entity", e.Name, "inserted", len(r.inserted), "error", err)
		return nil, err
	}
	if sp != nil {
		sp.Release()
	}
	m.logger.Debug("import finished", "entity", e.Name, "objects", len(objs), "inserted", len(r.inserted))
	return objs, nil
}

func elements(v jsonval.Value) jsonval.Array {
	if arr, ok := v.AsArray(); ok {
		return arr
	}
	return jsonval.Array{v}
}

// importer carries the state of one top-level import call.
type importer struct {
	m    *Mapper
	s    Session
	ctx  context.Context
	mode Mode

	inserted []*store.Object
	// seen holds every object imported so far, by identity.
	seen map[batchKey]*store.Object
}

type batchKey struct {
	root *schema.Entity
	key  string
}

// discard deletes every object inserted by the call, newest first.
func (r *importer) discard() {
	for i := len(r.inserted) - 1; i >= 0; i-- {
		r.s.Delete(r.inserted[i])
	}
}

type element struct {
	obj    jsonval.Object
	entity *schema.Entity
}

func (r *importer) importArray(e *schema.Entity, elems jsonval.Array, mode Mode, top bool) ([]*store.Object, error) {
	prepared := make([]element, 0, len(elems))
	for _, el := range elems {
		obj, ok, err := r.prepare(e, el, top)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		concrete, err := r.concrete(e, obj)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, element{obj: obj, entity: concrete})
	}

	var existing map[string]*store.Object
	if mode == Merge {
		var err error
		if existing, err = r.fetchExisting(e, prepared); err != nil {
			return nil, err
		}
	}

	out := make([]*store.Object, 0, len(prepared))
	listed := make(map[*store.Object]bool, len(prepared))
	for _, p := range prepared {
		key, hasKey := r.identityKey(e, p.obj)
		seenKey := batchKey{root: e.Root(), key: key}

		var obj *store.Object
		reused := false
		if hasKey {
			if o, ok := r.seen[seenKey]; ok {
				obj, reused = o, true
			} else if o, ok := existing[key]; ok {
				obj, reused = o, true
			}
		}
		if obj == nil {
			var err error
			if obj, err = r.s.Insert(p.entity.Name); err != nil {
				return nil, err
			}
			r.inserted = append(r.inserted, obj)
		}
		if hasKey {
			r.seen[seenKey] = obj
		}

		if err := r.populate(obj, p.obj, reused); err != nil {
			return nil, err
		}

		if listed[obj] {
			continue
		}
		listed[obj] = true
		out = append(out, obj)
	}
	return out, nil
}

// prepare turns an array element into the JSON object to import. Null
// elements are dropped. Bare identity values are accepted at the top level
// and dropped in nested arrays.
func (r *importer) prepare(e *schema.Entity, el jsonval.Value, top bool) (jsonval.Object, bool, error) {
	var obj jsonval.Object
	switch el.Kind() {
	case jsonval.KindObject:
		obj, _ = el.AsObject()
	case jsonval.KindNull:
		return nil, false, nil
	default:
		if !top {
			return nil, false, nil
		}
		if el.Kind() == jsonval.KindArray && len(e.IdentityAttributes()) < 2 {
			return nil, false, nil
		}
		stub, err := identityObject(e, el)
		if err != nil {
			return nil, false, err
		}
		obj = stub
	}

	name := inheritedName(e, func(e *schema.Entity) string { return e.DictionaryTransformer })
	if name == "" {
		return obj, true, nil
	}
	fn, ok := r.m.registry.Dictionary(name)
	if !ok {
		return obj, true, nil
	}
	if out, ok := fn(obj.Clone()); ok && out != nil {
		return out, true, nil
	}
	return obj, true, nil
}

// concrete picks the entity to instantiate for obj using the entity mapper.
func (r *importer) concrete(e *schema.Entity, obj jsonval.Object) (*schema.Entity, error) {
	name := inheritedName(e, func(e *schema.Entity) string { return e.EntityMapper })
	if name == "" {
		return e, nil
	}
	fn, ok := r.m.registry.EntityMapper(name)
	if !ok {
		return e, nil
	}
	chosen, ok := fn(obj)
	if !ok || chosen == "" {
		return e, nil
	}
	c, err := r.s.Model().Entity(chosen)
	if err != nil {
		return nil, fmt.Errorf("entity mapper %s: %w", name, err)
	}
	if !c.IsKindOf(e) {
		return nil, fmt.Errorf("entity mapper %s: %w: %s is not a kind of %s", name, ErrEntityNotFound, c.Name, e.Name)
	}
	return c, nil
}

// fetchExisting looks up the objects matching the identities of the batch
// in one call and indexes them by identity key.
func (r *importer) fetchExisting(e *schema.Entity, batch []element) (map[string]*store.Object, error) {
	if len(e.IdentityAttributes()) == 0 {
		return nil, &Error{Kind: ErrIdentityNotFound, Entity: e.Name}
	}

	var tuples [][]any
	for _, p := range batch {
		if tuple, ok := r.identityTuple(e, p.obj); ok {
			tuples = append(tuples, tuple)
		}
	}
	if len(tuples) == 0 {
		return nil, nil
	}

	found, err := r.s.FetchExisting(r.ctx, e, tuples)
	if err != nil {
		return nil, err
	}
	existing := make(map[string]*store.Object, len(found))
	for _, o := range found {
		if key, ok := identity.Key(o.IdentityValues()...); ok {
			existing[key] = o
		}
	}
	return existing, nil
}

// identityTuple extracts the identity of obj as native values, transformed
// and coerced like the attributes they will be assigned to.
func (r *importer) identityTuple(e *schema.Entity, obj jsonval.Object) ([]any, bool) {
	ids := e.IdentityAttributes()
	if len(ids) == 0 {
		return nil, false
	}
	tuple := make([]any, len(ids))
	for i, a := range ids {
		raw, ok := obj.Lookup(a.KeyPath)
		if !ok || raw.IsNull() {
			return nil, false
		}
		v, ok := a.Type.Coerce(r.attributeValue(a, raw))
		if !ok || v == nil {
			return nil, false
		}
		tuple[i] = v
	}
	return tuple, true
}

func (r *importer) identityKey(e *schema.Entity, obj jsonval.Object) (string, bool) {
	tuple, ok := r.identityTuple(e, obj)
	if !ok {
		return "", false
	}
	return identity.Key(tuple...)
}

// attributeValue converts a present, non-null JSON value for an attribute.
// A transformer that yields no value makes the attribute nil.
func (r *importer) attributeValue(a *schema.Attribute, raw jsonval.Value) any {
	if a.Transformer != "" {
		if tr, ok := r.m.registry.Lookup(a.Transformer); ok {
			v, ok := tr.Forward(raw.Interface())
			if !ok {
				return nil
			}
			return v
		}
	}
	// Keep the literal so large integers survive.
	if n, ok := raw.AsNumber(); ok && (a.Type == schema.Integer || a.Type == schema.Float) {
		return n
	}
	return raw.Interface()
}

// populate assigns every mapped property of o from obj. In a partial update
// absent properties keep their value, which is re-validated.
func (r *importer) populate(o *store.Object, obj jsonval.Object, partial bool) error {
	e := o.Entity()

	for _, a := range e.AllAttributes() {
		if !a.Serializable() {
			continue
		}
		raw, present := obj.Lookup(a.KeyPath)
		if !present && partial {
			if _, err := r.s.Validate(o, a.Name, o.Value(a.Name)); err != nil {
				return err
			}
			continue
		}

		var value any
		switch {
		case !present:
			value = a.Default
		case raw.IsNull():
		default:
			value = r.attributeValue(a, raw)
		}
		if err := r.assign(o, a.Name, value); err != nil {
			return err
		}
	}

	for _, rel := range e.AllRelationships() {
		if !rel.Serializable() {
			continue
		}
		raw, present := obj.Lookup(rel.KeyPath)
		if !present && partial {
			if _, err := r.s.Validate(o, rel.Name, o.Value(rel.Name)); err != nil {
				return err
			}
			continue
		}

		var value any
		if present && !raw.IsNull() {
			v, err := r.relationshipValue(rel, raw)
			if err != nil {
				return err
			}
			value = v
		}
		if err := r.assign(o, rel.Name, value); err != nil {
			return err
		}
	}
	return nil
}

func (r *importer) assign(o *store.Object, property string, value any) error {
	v, err := r.s.Validate(o, property, value)
	if err != nil {
		return err
	}
	return r.s.Set(o, property, v)
}

func (r *importer) relationshipValue(rel *schema.Relationship, raw jsonval.Value) (any, error) {
	dest := rel.DestinationEntity()

	// Identity references always resolve to the existing object.
	mode := r.mode
	if rel.IdentityOnly {
		wrapped, err := identityObjects(rel, raw)
		if err != nil {
			return nil, err
		}
		raw, mode = wrapped, Merge
	}

	if rel.ToMany {
		arr, ok := raw.AsArray()
		if !ok {
			return nil, mismatch(rel)
		}
		return r.importArray(dest, arr, mode, false)
	}

	child, ok := raw.AsObject()
	if !ok {
		return nil, mismatch(rel)
	}
	objs, err := r.importArray(dest, jsonval.Array{child.Value()}, mode, false)
	if err != nil || len(objs) == 0 {
		return nil, err
	}
	return objs[0], nil
}

func mismatch(rel *schema.Relationship) error {
	return &Error{
		Kind:         ErrInvalidJSONObject,
		Entity:       rel.Entity().Name,
		Relationship: rel.Name,
		KeyPath:      rel.KeyPath,
	}
}

// identityObjects rewrites the identity values of an identity-only
// relationship into JSON objects holding just the destination identity.
func identityObjects(rel *schema.Relationship, raw jsonval.Value) (jsonval.Value, error) {
	dest := rel.DestinationEntity()
	if !rel.ToMany {
		obj, err := identityObject(dest, raw)
		if err != nil {
			return jsonval.Null(), relationshipError(rel, err)
		}
		return obj.Value(), nil
	}

	arr, ok := raw.AsArray()
	if !ok {
		return jsonval.Null(), mismatch(rel)
	}
	out := make(jsonval.Array, 0, len(arr))
	for _, el := range arr {
		if el.IsNull() {
			continue
		}
		obj, err := identityObject(dest, el)
		if err != nil {
			return jsonval.Null(), relationshipError(rel, err)
		}
		out = append(out, obj.Value())
	}
	return out.Value(), nil
}

func relationshipError(rel *schema.Relationship, err error) error {
	var e *Error
	if errors.As(err, &e) && e.Relationship == "" {
		return &Error{
			Kind:         e.Kind,
			Entity:       rel.Entity().Name,
			Relationship: rel.Name,
			KeyPath:      rel.KeyPath,
			Err:          e.Err,
		}
	}
	return err
}

// identityObject builds {identityKeyPath: v} for entity e. Composite
// identities take an array with one scalar per identity attribute.
func identityObject(e *schema.Entity, v jsonval.Value) (jsonval.Object, error) {
	ids := e.IdentityAttributes()
	if len(ids) == 0 {
		return nil, &Error{Kind: ErrInvalidJSONObject, Entity: e.Name, Err: ErrIdentityNotFound}
	}

	components := jsonval.Array{v}
	if len(ids) > 1 {
		arr, ok := v.AsArray()
		if !ok || len(arr) != len(ids) {
			return nil, &Error{Kind: ErrInvalidJSONObject, Entity: e.Name,
				Err: fmt.Errorf("expected %d identity values, got %s", len(ids), v)}
		}
		components = arr
	}

	out := jsonval.Object{}
	for i, a := range ids {
		c := components[i]
		if !c.IsScalar() {
			return nil, &Error{Kind: ErrInvalidJSONObject, Entity: e.Name,
				Err: fmt.Errorf("identity value %s is not a scalar", c)}
		}
		if !a.Serializable() {
			return nil, &Error{Kind: ErrInvalidJSONObject, Entity: e.Name,
				Err: fmt.Errorf("identity attribute %s has no key path", a.Name)}
		}
		out.SetPath(a.KeyPath, c)
	}
	return out, nil
}
