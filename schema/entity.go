package schema

import "reflect"

// Attribute describes a typed value stored on an entity.
type Attribute struct {
	Name string
	Type AttributeType

	// KeyPath is the dotted JSON key path, e.g. "name.real_name". Attributes
	// without a key path are ignored by import and export.
	KeyPath string

	// Transformer names a value transformer applied on import and, when
	// reversible, on export.
	Transformer string

	// Required attributes fail validation when they hold no value.
	Required bool

	// Default is assigned to new objects and to attributes absent from
	// non-merge imports.
	Default any

	entity *Entity
}

// Serializable reports whether the attribute participates in JSON mapping.
func (a *Attribute) Serializable() bool { return a.KeyPath != "" }

// Entity returns the entity that declares the attribute.
func (a *Attribute) Entity() *Entity { return a.entity }

// Relationship describes a reference from one entity to another.
type Relationship struct {
	Name        string
	Destination string
	ToMany      bool
	Ordered     bool

	// Inverse names the relationship on the destination pointing back here.
	Inverse string

	// IdentityOnly relationships are represented in JSON by the identity
	// value(s) of the destination instead of nested objects.
	IdentityOnly bool

	KeyPath  string
	Required bool

	// MinCount and MaxCount bound to-many relationships. Zero means unbounded.
	MinCount int
	MaxCount int

	entity      *Entity
	destination *Entity
	inverse     *Relationship
}

// Serializable reports whether the relationship participates in JSON mapping.
func (r *Relationship) Serializable() bool { return r.KeyPath != "" }

// Entity returns the entity that declares the relationship.
func (r *Relationship) Entity() *Entity { return r.entity }

// DestinationEntity returns the resolved destination.
func (r *Relationship) DestinationEntity() *Entity { return r.destination }

// InverseRelationship returns the resolved inverse, or nil.
func (r *Relationship) InverseRelationship() *Relationship { return r.inverse }

// Entity describes a type of persisted object. Sub-entities name their
// Parent and inherit its attributes, relationships, identity, entity mapper
// and dictionary transformer.
type Entity struct {
	Name     string
	Parent   string
	Abstract bool

	// Identity lists the attributes whose values identify an instance.
	// When empty the identity of the nearest ancestor declaring one is used.
	Identity []string

	// EntityMapper names a function choosing a concrete sub-entity from the
	// incoming JSON object.
	EntityMapper string

	// DictionaryTransformer names a function reshaping the incoming JSON
	// object before any value is read from it.
	DictionaryTransformer string

	Attributes    []*Attribute
	Relationships []*Relationship

	parent     *Entity
	children   []*Entity
	attributes []*Attribute
	relations  []*Relationship
	attrByName map[string]*Attribute
	relByName  map[string]*Relationship
	identity   []*Attribute
	goType     reflect.Type
}

// ParentEntity returns the entity this one inherits from, or nil.
func (e *Entity) ParentEntity() *Entity { return e.parent }

// SubEntities returns the direct descendants of e.
func (e *Entity) SubEntities() []*Entity { return e.children }

// Root returns the top of the inheritance chain.
func (e *Entity) Root() *Entity {
	for e.parent != nil {
		e = e.parent
	}
	return e
}

// IsKindOf reports whether e is other or one of its descendants.
func (e *Entity) IsKindOf(other *Entity) bool {
	for cur := e; cur != nil; cur = cur.parent {
		if cur == other {
			return true
		}
	}
	return false
}

// Family returns e followed by all of its descendants.
func (e *Entity) Family() []*Entity {
	out := []*Entity{e}
	for _, c := range e.children {
		out = append(out, c.Family()...)
	}
	return out
}

// AllAttributes returns inherited attributes followed by the entity's own.
func (e *Entity) AllAttributes() []*Attribute { return e.attributes }

// AllRelationships returns inherited relationships followed by the entity's own.
func (e *Entity) AllRelationships() []*Relationship { return e.relations }

// Attribute looks up an attribute, including inherited ones.
func (e *Entity) Attribute(name string) (*Attribute, bool) {
	a, ok := e.attrByName[name]
	return a, ok
}

// Relationship looks up a relationship, including inherited ones.
func (e *Entity) Relationship(name string) (*Relationship, bool) {
	r, ok := e.relByName[name]
	return r, ok
}

// IdentityAttributes returns the attributes identifying instances of e,
// walking up the inheritance chain. It returns nil when no entity in the
// chain declares an identity.
func (e *Entity) IdentityAttributes() []*Attribute { return e.identity }

// GoType returns the native type bound to the entity, if any.
func (e *Entity) GoType() reflect.Type { return e.goType }
