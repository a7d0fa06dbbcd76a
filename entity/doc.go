/*
Package entity provides normalized, immutable collections of entities and the
pure operations that derive new collections from old ones.

A [Collection] stores its entities twice: once as an ordered sequence of
identifiers and once as a mapping from identifier to entity. Both views always
describe the same set of identifiers because the only way to obtain a
Collection is through the operations of this package, and each operation
builds both views together.

Operations never modify their input. Every operation returns a new Collection
(or the very same Collection when nothing changed); entities that were not
touched are shared between the old and the new Collection, so references to an
older Collection remain valid and unaffected by later operations.

The identifier of an entity is derived by a [Selector]. Every operation accepts
one; passing nil selects [DefaultSelector], which understands an EntityID
method, a struct field tagged `entity:"id"`, an exported struct field named ID,
and the "id" key of string-keyed maps.

The add-style operations fail with [ErrDuplicateID] when an identifier is
already present. Operations addressing entities by identifier (update, remove)
treat a missing identifier as a no-op.
*/
package entity
