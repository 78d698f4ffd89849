// ABOUTME: Read-only projections of the current coordinator state
// ABOUTME: Every value returned is a copy; callers cannot reach stored data

package coordinator

import (
	"github.com/2389/convoy-coordinator/internal/store"
)

// Unbounded is reported by SpotsLeft for convoys without a capacity
const Unbounded = -1

// Identity returns the signed-in user.
func (c *Coordinator) Identity() (store.Identity, bool) {
	st := c.current.Load()
	if st.identity == nil {
		return store.Identity{}, false
	}
	return *st.identity, true
}

// IsAuthenticated reports whether someone is signed in.
func (c *Coordinator) IsAuthenticated() bool {
	return c.current.Load().identity != nil
}

// Convoy looks up a convoy by id.
func (c *Coordinator) Convoy(id string) (store.Convoy, bool) {
	return c.current.Load().convoys.Get(id)
}

// Convoys returns every convoy in insertion order.
func (c *Coordinator) Convoys() []store.Convoy {
	return c.current.Load().convoys.All()
}

// SearchConvoys returns the convoys matching term, ignoring case, in title,
// description, start or destination name or tags. An empty status matches
// every status.
func (c *Coordinator) SearchConvoys(term string, status store.Status) []store.Convoy {
	return c.current.Load().convoys.Search(term, status)
}

// IsParticipant reports whether the signed-in user is on the convoy's roster.
func (c *Coordinator) IsParticipant(convoyID string) bool {
	st := c.current.Load()
	return st.convoys.IsParticipant(st.identity, convoyID)
}

// UserConvoys returns the convoys the signed-in user participates in.
func (c *Coordinator) UserConvoys() []store.Convoy {
	st := c.current.Load()
	return st.convoys.ListForUser(st.identity)
}

// Messages returns a convoy's chat history in send order.
func (c *Coordinator) Messages(convoyID string) []store.ChatMessage {
	return c.current.Load().ledger.List(convoyID)
}

// Waypoints returns a convoy's waypoints sorted by their order key.
func (c *Coordinator) Waypoints(convoyID string) ([]store.Waypoint, bool) {
	convoy, ok := c.Convoy(convoyID)
	if !ok {
		return nil, false
	}
	return convoy.SortedWaypoints(), true
}

// SpotsLeft returns the remaining capacity of a convoy, or Unbounded.
func (c *Coordinator) SpotsLeft(convoyID string) (int, bool) {
	convoy, ok := c.Convoy(convoyID)
	if !ok {
		return 0, false
	}
	if convoy.MaxParticipants == nil {
		return Unbounded, true
	}
	return max(*convoy.MaxParticipants-len(convoy.Participants), 0), true
}

// Snapshot returns a copy of the full persisted state.
func (c *Coordinator) Snapshot() *store.Snapshot {
	return c.current.Load().snapshot()
}
