// Package registry owns the canonical, ordered collection of convoys.
//
// A Registry value is immutable. Every mutation (Create, Join, Leave)
// returns a new Registry that shares untouched convoys with its parent, so
// a published Registry can be read concurrently without locks and an old
// value is never changed underneath a reader.
//
// # Invariants
//
//   - Convoy ids are unique within a registry.
//   - A roster never lists the same user twice.
//   - The organizer is always on the roster with IsOrganizer set, and no
//     other participant carries the flag.
//   - len(Participants) <= MaxParticipants whenever a maximum is set.
//
// # Declined mutations
//
// Join and Leave report refusals (unknown convoy, duplicate join, full
// convoy, organizer leaving, no identity) as a false result and return the
// receiver unchanged. Only Create returns errors: ErrUnauthenticated when no
// identity is supplied and ErrInvalidConvoy for malformed input.
package registry
