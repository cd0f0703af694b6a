// Package store holds the object graph that JSON is imported into and
// persists it to DynamoDB.
//
// # Contexts
//
// A [Context] is a unit of work over objects of a [schema.Model]. It
// creates objects with [Context.Insert], assigns properties with
// [Context.Set] and removes objects with [Context.Delete]. Relationship
// assignments keep the inverse relationship of every object involved in
// step, so a to-one assignment also updates the destination's to-many
// collection and vice versa.
//
// Objects with identity attributes are indexed by their identity tuple
// within their entity's inheritance family. [Context.FetchExisting] looks
// objects up by identity, loading them from the backend when the context
// doesn't hold them yet.
//
// Savepoints make a span of changes reversible:
//
//	sp := c.Savepoint()
//	if err := apply(c); err != nil {
//	    sp.Rollback()
//	    return err
//	}
//	sp.Release()
//
// # Persistence
//
// [Store] is the DynamoDB [Backend]. Every object is one item of a single
// table keyed by "object_id":
//
//	object_id     S  object UUID
//	entity        S  concrete entity name
//	identity_key  S  hashed identity tuple (absent without identity)
//	version       N  optimistic lock version
//	created_at    S  ISO 8601
//	updated_at    S  ISO 8601
//	attrs         M  attribute values
//	refs          M  relationship name to list of object UUIDs
//	ttl           N  set on deletion
//
// A global secondary index on "identity_key" serves identity lookups; without
// one the table is scanned. The index must project all attributes.
//
// # Errors
//
//   - [ErrNotFound] - object doesn't exist or is deleted
//   - [ErrAlreadyExists] - object with ID already exists
//   - [ErrConcurrentModification] - optimistic lock failed
//   - [ErrAbstractEntity] - abstract entities have no instances
//   - [ErrUnknownProperty] - property not declared by the entity
//   - [ErrValidation] - matches every [ValidationError]
package store
