// Package mapper converts between JSON values and the objects of a
// [store.Context].
//
// # Import
//
// [Mapper.Import] accepts a JSON object, an array of objects, or bare
// identity values, and creates one object per element. In [Merge] mode the
// identities of every element of an array are looked up with a single
// [Session.FetchExisting] call, existing objects are updated in place and
// properties absent from the JSON keep their current value. Elements of the
// same array that share an identity resolve to the same object.
//
// Nested objects are imported recursively into the destination entity of
// their relationship. Relationships flagged identity-only take identity
// values instead of nested objects:
//
//	{"id": "1699", "publisher": "10", "cards": [["hearts", "A"]]}
//
// Every value passes through the session's validation before it is set.
// The first failure aborts the call and undoes everything it changed.
//
// # Export
//
// [Mapper.Export] is the inverse of Import. A relationship is left out when
// its inverse is already being exported higher up in the same call, so
// bidirectional graphs produce finite documents.
//
// # Transformers
//
// Value transformers, dictionary transformers and entity mappers are looked
// up by name in the [transform.Registry] given to [New]. Names that aren't
// registered are ignored.
package mapper
