// Package schema describes the entities that JSON documents are mapped onto.
//
// A [Model] is declared once at startup, either in code with a [Builder] or
// from YAML with [LoadYAML], and is immutable afterwards.
//
// # Declaring entities
//
//	b := schema.NewBuilder().Add(
//	    &schema.Entity{
//	        Name:     "Character",
//	        Identity: []string{"identifier"},
//	        Attributes: []*schema.Attribute{
//	            {Name: "identifier", Type: schema.String, KeyPath: "id"},
//	            {Name: "realName", Type: schema.String, KeyPath: "real_name"},
//	        },
//	        Relationships: []*schema.Relationship{
//	            {Name: "publisher", Destination: "Publisher", Inverse: "characters", KeyPath: "publisher"},
//	        },
//	    },
//	    ...
//	)
//	model, err := b.Build()
//
// # Mapping metadata
//
//   - KeyPath: dotted JSON key path; properties without one are not mapped
//   - Identity: attribute(s) used to find existing objects, inherited by sub-entities
//   - Transformer: value transformer name, resolved at mapping time
//   - EntityMapper: picks a concrete sub-entity from the JSON object
//   - DictionaryTransformer: reshapes the JSON object before mapping
//   - IdentityOnly: relationship serialized as destination identity values
//
// # Errors
//
//   - [ErrEntityNotFound] - no entity with the requested name or bound type
//   - [ErrInvalidModel] - inconsistent declarations rejected by Build
package schema
