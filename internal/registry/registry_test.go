// ABOUTME: Tests for the convoy registry membership rules
// ABOUTME: Covers create defaults, capacity, duplicate joins, organizer protection and immutability

package registry

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/convoy-coordinator/internal/store"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func sequentialIDs(prefix string) IDFunc {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func user(id string) *store.Identity {
	return &store.Identity{ID: id, Name: "User " + id, Email: id + "@example.com"}
}

func intPtr(n int) *int { return &n }

func mustCreate(t *testing.T, r *Registry, owner *store.Identity, data CreateData) (*Registry, store.Convoy) {
	t.Helper()
	next, c, err := r.Create(owner, data, testNow, sequentialIDs("id"))
	require.NoError(t, err)
	return next, c
}

func TestCreate_SeedsOrganizer(t *testing.T) {
	r := &Registry{}
	owner := &store.Identity{ID: "u1", Name: "Anna", Avatar: "🚐"}

	next, c := mustCreate(t, r, owner, CreateData{
		Title:     "Alpen-Tour",
		StartDate: testNow.Add(48 * time.Hour),
		Tags:      []string{"Berge"},
	})

	assert.Equal(t, "id-1", c.ID)
	assert.Equal(t, store.StatusPlanned, c.Status)
	assert.Equal(t, "u1", c.OrganizerID)
	assert.Equal(t, "Anna", c.OrganizerName)
	assert.Equal(t, testNow, c.CreatedAt)
	require.Len(t, c.Participants, 1)
	assert.Equal(t, store.Participant{ID: "u1", Name: "Anna", Avatar: "🚐", JoinedAt: testNow, IsOrganizer: true}, c.Participants[0])
	assert.Equal(t, []string{"Berge"}, c.Tags)

	assert.Equal(t, 0, r.Len(), "create must not touch the parent registry")
	assert.Equal(t, 1, next.Len())
	stored, ok := next.Get(c.ID)
	require.True(t, ok)
	assert.Equal(t, c, stored)
}

func TestCreate_Defaults(t *testing.T) {
	_, c := mustCreate(t, &Registry{}, user("u1"), CreateData{})

	assert.Equal(t, DefaultTitle, c.Title)
	assert.Equal(t, testNow, c.StartDate)
	assert.Equal(t, DefaultStartLocation, c.StartLocation)
	assert.Equal(t, DefaultDestination, c.Destination)
	assert.Nil(t, c.EndDate)
	assert.Nil(t, c.MaxParticipants)
	assert.Nil(t, c.Waypoints)
	assert.Nil(t, c.Tags)
}

func TestCreate_AssignsWaypointIDs(t *testing.T) {
	_, c := mustCreate(t, &Registry{}, user("u1"), CreateData{
		Waypoints: []store.Waypoint{
			{Name: "A", Order: 2},
			{ID: "keep", Name: "B", Order: 1},
			{ID: "keep", Name: "C", Order: 3},
		},
	})

	require.Len(t, c.Waypoints, 3)
	assert.NotEmpty(t, c.Waypoints[0].ID)
	assert.Equal(t, "keep", c.Waypoints[1].ID)
	assert.NotEqual(t, "keep", c.Waypoints[2].ID, "repeated ids are replaced")
	assert.NotEqual(t, c.Waypoints[0].ID, c.Waypoints[2].ID)
}

func TestCreate_CopiesInput(t *testing.T) {
	end := testNow.Add(time.Hour)
	maxP := 4
	data := CreateData{
		EndDate:         &end,
		MaxParticipants: &maxP,
		Tags:            []string{"a"},
		Waypoints:       []store.Waypoint{{ID: "w", Name: "W"}},
	}
	next, c := mustCreate(t, &Registry{}, user("u1"), data)

	end = end.Add(time.Hour)
	maxP = 1
	data.Tags[0] = "changed"
	data.Waypoints[0].Name = "changed"

	stored, _ := next.Get(c.ID)
	assert.Equal(t, testNow.Add(time.Hour), *stored.EndDate)
	assert.Equal(t, 4, *stored.MaxParticipants)
	assert.Equal(t, []string{"a"}, stored.Tags)
	assert.Equal(t, "W", stored.Waypoints[0].Name)
}

func TestCreate_Unauthenticated(t *testing.T) {
	r := &Registry{}
	next, _, err := r.Create(nil, CreateData{Title: "x"}, testNow, sequentialIDs("id"))

	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Same(t, r, next)
	assert.Equal(t, 0, next.Len())
}

func TestCreate_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		data CreateData
	}{
		{"zero capacity", CreateData{MaxParticipants: intPtr(0)}},
		{"negative capacity", CreateData{MaxParticipants: intPtr(-3)}},
		{"NaN start", CreateData{StartLocation: store.Location{Name: "x", Lat: math.NaN()}}},
		{"infinite destination", CreateData{Destination: store.Location{Name: "x", Lng: math.Inf(1)}}},
		{"infinite waypoint", CreateData{Waypoints: []store.Waypoint{{Name: "w", Lat: math.Inf(-1)}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Registry{}
			next, _, err := r.Create(user("u1"), tt.data, testNow, sequentialIDs("id"))
			assert.ErrorIs(t, err, ErrInvalidConvoy)
			assert.Equal(t, 0, next.Len())
		})
	}
}

func TestCreate_SkipsTakenIDs(t *testing.T) {
	r, first := mustCreate(t, &Registry{}, user("u1"), CreateData{})

	ids := []string{first.ID, "", "fresh"}
	next, c, err := r.Create(user("u1"), CreateData{}, testNow, func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", c.ID)
	assert.Equal(t, 2, next.Len())
}

func TestCreate_GivesUpOnExhaustedIDs(t *testing.T) {
	r, first := mustCreate(t, &Registry{}, user("u1"), CreateData{})

	_, _, err := r.Create(user("u1"), CreateData{}, testNow, func() string { return first.ID })
	assert.Error(t, err)
}

func TestJoin_CapacityInvariant(t *testing.T) {
	for capacity := 1; capacity <= 4; capacity++ {
		t.Run(fmt.Sprintf("max=%d", capacity), func(t *testing.T) {
			r, c := mustCreate(t, &Registry{}, user("owner"), CreateData{MaxParticipants: intPtr(capacity)})

			for i := 0; i < 10; i++ {
				before, _ := r.Get(c.ID)
				next, ok := r.Join(user(fmt.Sprintf("u%d", i)), c.ID, testNow)
				after, _ := next.Get(c.ID)

				assert.LessOrEqual(t, len(after.Participants), capacity)
				if len(before.Participants) >= capacity {
					assert.False(t, ok)
					assert.Same(t, r, next)
					assert.Equal(t, before, after)
				} else {
					assert.True(t, ok)
				}
				r = next
			}
		})
	}
}

func TestJoin_DuplicateIsIdempotent(t *testing.T) {
	r, c := mustCreate(t, &Registry{}, user("owner"), CreateData{})
	u := user("u2")

	r, ok := r.Join(u, c.ID, testNow)
	require.True(t, ok)
	r2, ok := r.Join(u, c.ID, testNow)
	assert.False(t, ok)
	assert.Same(t, r, r2)

	got, _ := r2.Get(c.ID)
	assert.Len(t, got.Participants, 2)
}

func TestJoin_RecordsParticipant(t *testing.T) {
	r, c := mustCreate(t, &Registry{}, user("owner"), CreateData{})
	joinedAt := testNow.Add(time.Minute)

	r, ok := r.Join(&store.Identity{ID: "u2", Name: "Ben", Avatar: "🏕️"}, c.ID, joinedAt)
	require.True(t, ok)

	got, _ := r.Get(c.ID)
	p, found := got.Participant("u2")
	require.True(t, found)
	assert.Equal(t, store.Participant{ID: "u2", Name: "Ben", Avatar: "🏕️", JoinedAt: joinedAt}, p)
}

func TestJoin_Declined(t *testing.T) {
	r, c := mustCreate(t, &Registry{}, user("owner"), CreateData{})

	next, ok := r.Join(nil, c.ID, testNow)
	assert.False(t, ok)
	assert.Same(t, r, next)

	next, ok = r.Join(user("u2"), "missing", testNow)
	assert.False(t, ok)
	assert.Same(t, r, next)

	next, ok = r.Join(user("owner"), c.ID, testNow)
	assert.False(t, ok, "organizer is already on the roster")
	assert.Same(t, r, next)
}

func TestLeave_OrganizerProtection(t *testing.T) {
	owner := user("owner")
	r, c := mustCreate(t, &Registry{}, owner, CreateData{})
	r, _ = r.Join(user("u2"), c.ID, testNow)

	next, ok := r.Leave(owner, c.ID)
	assert.False(t, ok)
	assert.Same(t, r, next)

	got, _ := next.Get(c.ID)
	organizer, found := got.Participant("owner")
	require.True(t, found)
	assert.True(t, organizer.IsOrganizer)
}

func TestLeave_RemovesParticipant(t *testing.T) {
	r, c := mustCreate(t, &Registry{}, user("owner"), CreateData{})
	r, _ = r.Join(user("u2"), c.ID, testNow)
	r, _ = r.Join(user("u3"), c.ID, testNow)

	next, ok := r.Leave(user("u2"), c.ID)
	require.True(t, ok)

	got, _ := next.Get(c.ID)
	assert.False(t, got.HasParticipant("u2"))
	assert.True(t, got.HasParticipant("u3"))
	assert.Len(t, got.Participants, 2)

	// The parent is untouched
	old, _ := r.Get(c.ID)
	assert.True(t, old.HasParticipant("u2"))
}

func TestLeave_Declined(t *testing.T) {
	r, c := mustCreate(t, &Registry{}, user("owner"), CreateData{})

	for name, tc := range map[string]struct {
		identity *store.Identity
		convoyID string
	}{
		"no identity":    {nil, c.ID},
		"unknown convoy": {user("u2"), "missing"},
	} {
		t.Run(name, func(t *testing.T) {
			next, ok := r.Leave(tc.identity, tc.convoyID)
			assert.False(t, ok)
			assert.Same(t, r, next)
		})
	}
}

func TestLeave_NotOnRosterIsNoOp(t *testing.T) {
	r, c := mustCreate(t, &Registry{}, user("owner"), CreateData{})

	next, ok := r.Leave(user("u2"), c.ID)
	assert.True(t, ok)
	assert.Same(t, r, next)

	got, _ := next.Get(c.ID)
	assert.Len(t, got.Participants, 1)
}

// Mirrors the create, join, join-when-full, leave, organizer-leave walkthrough.
func TestScenario_CreateJoinLeave(t *testing.T) {
	u1, u2, u3 := user("U1"), user("U2"), user("U3")

	r, c := mustCreate(t, &Registry{}, u1, CreateData{MaxParticipants: intPtr(2)})
	count := func() int {
		got, _ := r.Get(c.ID)
		return len(got.Participants)
	}

	var ok bool
	r, ok = r.Join(u2, c.ID, testNow)
	assert.True(t, ok)
	assert.Equal(t, 2, count())

	r, ok = r.Join(u3, c.ID, testNow)
	assert.False(t, ok)
	assert.Equal(t, 2, count())

	r, ok = r.Leave(u2, c.ID)
	assert.True(t, ok)
	assert.Equal(t, 1, count())

	r, ok = r.Leave(u1, c.ID)
	assert.False(t, ok)
	assert.Equal(t, 1, count())
}

func TestQueries(t *testing.T) {
	r, a := mustCreate(t, &Registry{}, user("u1"), CreateData{Title: "A"})
	r, b := mustCreate(t, r, user("u2"), CreateData{Title: "B"})
	r, c := mustCreate(t, r, user("u3"), CreateData{Title: "C"})
	r, _ = r.Join(user("u1"), c.ID, testNow)

	assert.True(t, r.IsParticipant(user("u1"), a.ID))
	assert.False(t, r.IsParticipant(user("u1"), b.ID))
	assert.True(t, r.IsParticipant(user("u1"), c.ID))
	assert.False(t, r.IsParticipant(nil, a.ID))
	assert.False(t, r.IsParticipant(user("u1"), "missing"))

	mine := r.ListForUser(user("u1"))
	require.Len(t, mine, 2)
	assert.Equal(t, "A", mine[0].Title)
	assert.Equal(t, "C", mine[1].Title)

	assert.Empty(t, r.ListForUser(nil))
	assert.NotNil(t, r.ListForUser(user("nobody")))

	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{all[0].Title, all[1].Title, all[2].Title})

	_, ok := r.Get("missing")
	assert.False(t, ok)
}

func TestSearch(t *testing.T) {
	r, err := New([]store.Convoy{
		{
			ID: "1", Title: "Alpenüberquerung", Description: "Über den Brenner",
			StartLocation: store.Location{Name: "München"}, Destination: store.Location{Name: "Verona"},
			Status: store.StatusPlanned, OrganizerID: "a",
			Participants: []store.Participant{{ID: "a", IsOrganizer: true}},
			Tags:         []string{"Berge", "Pässe"},
		},
		{
			ID: "2", Title: "Nordsee", Description: "Küste entlang",
			StartLocation: store.Location{Name: "Hamburg"}, Destination: store.Location{Name: "Sylt"},
			Status: store.StatusActive, OrganizerID: "b",
			Participants: []store.Participant{{ID: "b", IsOrganizer: true}},
		},
	})
	require.NoError(t, err)

	ids := func(convoys []store.Convoy) []string {
		out := []string{}
		for _, c := range convoys {
			out = append(out, c.ID)
		}
		return out
	}

	tests := []struct {
		name   string
		term   string
		status store.Status
		want   []string
	}{
		{"empty matches all", "", "", []string{"1", "2"}},
		{"title ignores case", "NORDSEE", "", []string{"2"}},
		{"description", "brenner", "", []string{"1"}},
		{"start location", "hamburg", "", []string{"2"}},
		{"destination", "vero", "", []string{"1"}},
		{"tag", "päss", "", []string{"1"}},
		{"no match", "Paris", "", []string{}},
		{"status only", "", store.StatusActive, []string{"2"}},
		{"term and status", "berge", store.StatusActive, []string{}},
		{"term and matching status", "berge", store.StatusPlanned, []string{"1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(r.Search(tt.term, tt.status)))
		})
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	r, c := mustCreate(t, &Registry{}, user("u1"), CreateData{Tags: []string{"x"}})

	got, _ := r.Get(c.ID)
	got.Participants[0].Name = "mutated"
	got.Tags[0] = "mutated"

	again, _ := r.Get(c.ID)
	assert.Equal(t, "User u1", again.Participants[0].Name)
	assert.Equal(t, []string{"x"}, again.Tags)
}

func TestNew_Validates(t *testing.T) {
	organizer := store.Participant{ID: "u1", IsOrganizer: true}
	valid := store.Convoy{ID: "c1", OrganizerID: "u1", Participants: []store.Participant{organizer}}

	r, err := New([]store.Convoy{valid})
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())

	tests := []struct {
		name    string
		convoys []store.Convoy
	}{
		{"duplicate convoy id", []store.Convoy{valid, valid}},
		{"missing id", []store.Convoy{{OrganizerID: "u1", Participants: []store.Participant{organizer}}}},
		{"duplicate participant", []store.Convoy{{ID: "c1", OrganizerID: "u1", Participants: []store.Participant{organizer, {ID: "u1"}}}}},
		{"organizer absent", []store.Convoy{{ID: "c1", OrganizerID: "u1", Participants: []store.Participant{{ID: "u2"}}}}},
		{"second organizer flag", []store.Convoy{{ID: "c1", OrganizerID: "u1", Participants: []store.Participant{organizer, {ID: "u2", IsOrganizer: true}}}}},
		{"over capacity", []store.Convoy{{ID: "c1", OrganizerID: "u1", MaxParticipants: intPtr(1), Participants: []store.Participant{organizer, {ID: "u2"}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.convoys)
			assert.ErrorIs(t, err, ErrInvalidConvoy)
		})
	}
}

func TestZeroRegistry(t *testing.T) {
	var r Registry
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.All())

	next, c, err := r.Create(user("u1"), CreateData{}, testNow, sequentialIDs("id"))
	require.NoError(t, err)
	assert.True(t, next.IsParticipant(user("u1"), c.ID))
}
