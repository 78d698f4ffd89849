// Package conversation holds the per-convoy chat ledger and the change
// broadcaster that keeps observers current.
//
// # Ledger
//
// Ledger is an immutable map of convoy id to an append-only message list.
// Append returns a new Ledger; existing lists are never edited, reordered
// or truncated, so a message handed out once stays valid forever.
//
//	next, msg, ok := ledger.Append(identity, convoyID, "Treffpunkt 8 Uhr", now, newID)
//
// Append declines (ok == false) when there is no identity or the text is
// blank after trimming. Stored text is trimmed. ValidateMessages checks
// lists read back from storage.
//
// # Broadcaster
//
// Broadcaster fans a Change out to registered observers synchronously:
// Publish returns only after every observer has run. Observers subscribe to
// one convoy key or to AllConvoys.
//
//	id := b.Subscribe(ctx, conversation.AllConvoys, func(c conversation.Change) {
//	    render(c)
//	})
//
// Observers run on the publishing goroutine with no broadcaster lock held.
// They may read state, subscribe, unsubscribe or publish again.
//
// A subscription made with a cancellable context ends when the context is
// done, on Unsubscribe or on Close, whichever comes first.
package conversation
