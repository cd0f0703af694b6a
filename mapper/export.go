package mapper

import (
	"encoding/json"

	"github.com/jacentio/lattice/jsonval"
	"github.com/jacentio/lattice/schema"
	"github.com/jacentio/lattice/store"
)

// Export returns the JSON representation of obj. Relationships whose
// inverse is being exported further up the same call are omitted, so cyclic
// graphs terminate.
func (m *Mapper) Export(obj *store.Object) jsonval.Object {
	if obj == nil {
		return nil
	}
	x := &exporter{m: m, active: make(map[*schema.Relationship]int)}
	return x.object(obj)
}

// ExportMany exports each object independently.
func (m *Mapper) ExportMany(objs []*store.Object) jsonval.Array {
	out := make(jsonval.Array, 0, len(objs))
	for _, o := range objs {
		if o == nil {
			out = append(out, jsonval.Null())
			continue
		}
		out = append(out, m.Export(o).Value())
	}
	return out
}

// ExportData encodes the export of objs as a JSON array.
func (m *Mapper) ExportData(objs []*store.Object) ([]byte, error) {
	return json.Marshal(m.ExportMany(objs).Value())
}

// exporter holds the relationships being exported by one Export call.
type exporter struct {
	m      *Mapper
	active map[*schema.Relationship]int
}

func (x *exporter) object(o *store.Object) jsonval.Object {
	out := jsonval.Object{}
	e := o.Entity()

	for _, a := range e.AllAttributes() {
		if !a.Serializable() {
			continue
		}
		out.SetPath(a.KeyPath, x.attribute(a, o.Value(a.Name)))
	}

	for _, r := range e.AllRelationships() {
		if !r.Serializable() {
			continue
		}
		if inv := r.InverseRelationship(); inv != nil && x.active[inv] > 0 {
			continue
		}
		x.active[r]++
		v := x.relationship(r, o)
		x.active[r]--
		out.SetPath(r.KeyPath, v)
	}
	return out
}

func (x *exporter) attribute(a *schema.Attribute, v any) jsonval.Value {
	if v == nil {
		return jsonval.Null()
	}
	if a.Transformer != "" {
		if tr, ok := x.m.registry.Lookup(a.Transformer); ok && tr.Reversible() {
			rv, ok := tr.Reverse(v)
			if !ok {
				return jsonval.Null()
			}
			v = rv
		}
	}
	jv, err := jsonval.FromAny(v)
	if err != nil {
		return jsonval.Null()
	}
	return jv
}

func (x *exporter) relationship(r *schema.Relationship, o *store.Object) jsonval.Value {
	targets := o.Related(r.Name)
	if r.ToMany {
		out := make(jsonval.Array, 0, len(targets))
		for _, t := range targets {
			out = append(out, x.target(r, t))
		}
		return out.Value()
	}
	if len(targets) == 0 {
		return jsonval.Null()
	}
	return x.target(r, targets[0])
}

func (x *exporter) target(r *schema.Relationship, t *store.Object) jsonval.Value {
	if !r.IdentityOnly {
		return x.object(t).Value()
	}
	ids := t.Entity().IdentityAttributes()
	switch len(ids) {
	case 0:
		return jsonval.Null()
	case 1:
		return x.attribute(ids[0], t.Value(ids[0].Name))
	}
	out := make(jsonval.Array, len(ids))
	for i, a := range ids {
		out[i] = x.attribute(a, t.Value(a.Name))
	}
	return out.Value()
}
