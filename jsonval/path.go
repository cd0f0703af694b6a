package jsonval

import "strings"

// Lookup returns the value at a dotted key path such as "name.real_name".
// The second result is false when any component is missing or an
// intermediate value is not an object. An explicit null is present.
func (o Object) Lookup(keyPath string) (Value, bool) {
	if keyPath == "" {
		return Value{}, false
	}
	cur := o
	parts := strings.Split(keyPath, ".")
	for i, part := range parts {
		v, ok := cur[part]
		if !ok {
			return Value{}, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		if cur, ok = v.AsObject(); !ok {
			return Value{}, false
		}
	}
	return Value{}, false
}

// SetPath stores v at a dotted key path, creating intermediate objects as
// needed. Existing intermediate objects are reused so sibling paths that
// share a prefix end up in the same nested object.
func (o Object) SetPath(keyPath string, v Value) {
	parts := strings.Split(keyPath, ".")
	cur := o
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].AsObject()
		if !ok {
			next = Object{}
			cur[part] = next.Value()
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}

// Clone returns a deep copy of o.
func (o Object) Clone() Object {
	if o == nil {
		return nil
	}
	out := make(Object, len(o))
	for k, v := range o {
		out[k] = v.clone()
	}
	return out
}

func (v Value) clone() Value {
	switch v.kind {
	case KindArray:
		arr := make(Array, len(v.arr))
		for i, e := range v.arr {
			arr[i] = e.clone()
		}
		return arr.Value()
	case KindObject:
		return v.obj.Clone().Value()
	}
	return v
}
