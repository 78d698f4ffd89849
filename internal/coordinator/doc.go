// Package coordinator is the single entry point for convoy state.
//
// A Coordinator binds the signed-in identity, the convoy registry and the
// chat ledger, writes every committed change through to durable storage and
// notifies observers before the action returns.
//
// # Actions
//
// Actions read the identity from the coordinator itself; callers never pass
// one. Declined requests (duplicate join, full convoy, organizer leaving,
// blank message) return false and change nothing. Leaving a convoy the user
// is not on returns true and also changes nothing. Only CreateConvoy returns
// an error, ErrUnauthenticated, when nobody is signed in.
//
//	c, err := coordinator.Open(ctx, coordinator.Options{Blobs: blobs})
//	c.Login(ctx, "demo@example.com", "password")
//	convoy, err := c.CreateConvoy(ctx, registry.CreateData{Title: "Ostsee"})
//	c.SendMessage(ctx, convoy.ID, "Wer fährt mit?")
//
// # Concurrency
//
// Readers load an immutable state value through an atomic pointer and never
// block. Writers first wait out the simulated latency, then hold a single
// mutex for check-then-set and the write-through save, so capacity checks
// cannot race. Once started, an action always commits; its context only
// carries values.
//
// Observers run on the acting goroutine after the writer mutex is released
// and before the action returns. They see the committed state and may call
// selectors or start further actions.
//
// # Persistence
//
// Open loads the snapshot once. Missing or unreadable snapshots fall back to
// the embedded demo dataset, key by key, as do stored convoys or messages
// that break a registry or ledger rule. A failed write-through is logged and
// does not fail the action; the in-memory state stays authoritative.
package coordinator
