// Package store defines the convoy data model and its durable persistence.
//
// # Data Model
//
//   - Identity: the authenticated user snapshot (id, name, e-mail, avatar)
//   - Convoy: a group trip with route, schedule, roster and optional capacity
//   - Participant: a roster entry; exactly one carries IsOrganizer
//   - Waypoint: an intermediate stop ordered by a sort key
//   - ChatMessage: an immutable chat ledger entry
//   - Snapshot: identity + convoys + messages, the unit of persistence
//
// # Persistence
//
// SnapshotStore is the persistence adapter. It encodes a Snapshot as JSON
// with every temporal field written as an ISO-8601 (RFC 3339) string and
// revives those strings into time.Time on load:
//
//	{
//	  "identity": {...} | null,
//	  "convoys":  [...],
//	  "messages": {"<convoyId>": [...]}
//	}
//
// Each top-level key is optional. A blob that fails to decode is rejected as
// a whole with ErrCorruptSnapshot; a partially decoded snapshot is never
// returned.
//
// # Backends
//
// SnapshotStore writes through a BlobStore:
//
//   - SQLiteBlobStore: modernc.org/sqlite, table snapshots(key, data, updated_at)
//   - BoltBlobStore: go.etcd.io/bbolt, one bucket
//   - MemoryBlobStore: in-process map, for tests and throwaway sessions
//
// Use OpenBlobStore(driver, path) to select one from configuration.
//
// # Errors
//
//   - ErrNotFound: no blob stored under the key
//   - ErrCorruptSnapshot: stored blob is unreadable
package store
