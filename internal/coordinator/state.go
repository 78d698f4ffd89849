// ABOUTME: Immutable state value published by the coordinator
// ABOUTME: Bundles identity, registry and ledger and converts to and from snapshots

package coordinator

import (
	"github.com/2389/convoy-coordinator/internal/conversation"
	"github.com/2389/convoy-coordinator/internal/registry"
	"github.com/2389/convoy-coordinator/internal/store"
)

// state is never modified after it is published.
type state struct {
	identity *store.Identity
	convoys  *registry.Registry
	ledger   *conversation.Ledger
}

func (s *state) withIdentity(identity *store.Identity) *state {
	next := *s
	next.identity = identity
	return &next
}

func (s *state) withConvoys(r *registry.Registry) *state {
	next := *s
	next.convoys = r
	return &next
}

func (s *state) withLedger(l *conversation.Ledger) *state {
	next := *s
	next.ledger = l
	return &next
}

func (s *state) snapshot() *store.Snapshot {
	snap := &store.Snapshot{
		Convoys:  s.convoys.All(),
		Messages: s.ledger.All(),
	}
	if s.identity != nil {
		id := *s.identity
		snap.Identity = &id
	}
	return snap
}
