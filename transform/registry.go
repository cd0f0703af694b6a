// Package transform holds named conversion functions used while mapping
// JSON onto entities.
//
// A [Registry] keeps three independent namespaces: value transformers
// (JSON value to native value and optionally back), dictionary transformers
// (JSON object to JSON object, applied before mapping) and entity mappers
// (JSON object to concrete entity name). Functions never fail loudly: a
// function handed a value it does not understand reports "no value" and a
// panic inside a registered function is converted to "no value" as well.
package transform

import (
	"sort"
	"sync"

	"github.com/jacentio/lattice/jsonval"
)

// ValueFunc converts a value. The boolean is false when there is no result.
type ValueFunc func(any) (any, bool)

// DictionaryFunc reshapes a JSON object before mapping.
type DictionaryFunc func(jsonval.Object) (jsonval.Object, bool)

// EntityMapperFunc returns the name of the concrete entity for a JSON object.
type EntityMapperFunc func(jsonval.Object) (string, bool)

// Transformer is a named value transformer.
type Transformer struct {
	name    string
	forward ValueFunc
	reverse ValueFunc
}

// Name returns the name the transformer was registered under.
func (t *Transformer) Name() string { return t.name }

// Reversible reports whether the transformer can convert native values back.
func (t *Transformer) Reversible() bool { return t.reverse != nil }

// Forward converts a JSON-side value into a native value.
func (t *Transformer) Forward(v any) (any, bool) { return call(t.forward, v) }

// Reverse converts a native value back into a JSON-side value.
func (t *Transformer) Reverse(v any) (any, bool) {
	if t.reverse == nil {
		return nil, false
	}
	return call(t.reverse, v)
}

func call(fn ValueFunc, v any) (out any, ok bool) {
	defer func() {
		if recover() != nil {
			out, ok = nil, false
		}
	}()
	out, ok = fn(v)
	if !ok {
		return nil, false
	}
	return out, true
}

// Registry stores transformers by name. It is safe for concurrent use;
// writes are serialized.
type Registry struct {
	mu           sync.RWMutex
	values       map[string]*Transformer
	dictionaries map[string]DictionaryFunc
	mappers      map[string]EntityMapperFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		values:       make(map[string]*Transformer),
		dictionaries: make(map[string]DictionaryFunc),
		mappers:      make(map[string]EntityMapperFunc),
	}
}

// Register stores a one-way value transformer, replacing any previous
// transformer with the same name.
func (r *Registry) Register(name string, forward ValueFunc) {
	r.RegisterReversible(name, forward, nil)
}

// RegisterReversible stores a value transformer with a reverse function.
// A nil reverse makes the transformer one-way.
func (r *Registry) RegisterReversible(name string, forward, reverse ValueFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[name] = &Transformer{name: name, forward: forward, reverse: reverse}
}

// RegisterDictionary stores a dictionary transformer.
func (r *Registry) RegisterDictionary(name string, fn DictionaryFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dictionaries[name] = func(o jsonval.Object) (out jsonval.Object, ok bool) {
		defer func() {
			if recover() != nil {
				out, ok = nil, false
			}
		}()
		return fn(o)
	}
}

// RegisterEntityMapper stores an entity mapper.
func (r *Registry) RegisterEntityMapper(name string, fn EntityMapperFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mappers[name] = func(o jsonval.Object) (out string, ok bool) {
		defer func() {
			if recover() != nil {
				out, ok = "", false
			}
		}()
		return fn(o)
	}
}

// Lookup returns the value transformer registered under name.
func (r *Registry) Lookup(name string) (*Transformer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.values[name]
	return t, ok
}

// Dictionary returns the dictionary transformer registered under name.
func (r *Registry) Dictionary(name string) (DictionaryFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.dictionaries[name]
	return fn, ok
}

// EntityMapper returns the entity mapper registered under name.
func (r *Registry) EntityMapper(name string) (EntityMapperFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.mappers[name]
	return fn, ok
}

// Unregister removes name from every namespace.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.values, name)
	delete(r.dictionaries, name)
	delete(r.mappers, name)
}

// Reset removes everything.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.values)
	clear(r.dictionaries)
	clear(r.mappers)
}

// Names returns the sorted names of all registered functions.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	for n := range r.values {
		seen[n] = struct{}{}
	}
	for n := range r.dictionaries {
		seen[n] = struct{}{}
	}
	for n := range r.mappers {
		seen[n] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Func adapts a typed function into a ValueFunc. Inputs that are not a T
// produce no value.
func Func[T, U any](fn func(T) (U, bool)) ValueFunc {
	return func(v any) (any, bool) {
		t, ok := v.(T)
		if !ok {
			return nil, false
		}
		u, ok := fn(t)
		if !ok {
			return nil, false
		}
		return u, true
	}
}
