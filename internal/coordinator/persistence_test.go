// ABOUTME: Tests for write-through persistence, snapshot reload and seed fallback
// ABOUTME: Covers round trips across reopen, corrupt data, failed saves and reset

package coordinator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/convoy-coordinator/internal/conversation"
	"github.com/2389/convoy-coordinator/internal/registry"
	"github.com/2389/convoy-coordinator/internal/seed"
	"github.com/2389/convoy-coordinator/internal/store"
)

func TestWriteThrough(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	assert.Equal(t, 0, h.blobs.Puts(), "opening does not write")

	h.login(t, 1)
	assert.Equal(t, 1, h.blobs.Puts())

	convoy := h.create(t, registry.CreateData{})
	assert.Equal(t, 2, h.blobs.Puts())

	h.c.LeaveConvoy(ctx, convoy.ID)
	assert.Equal(t, 2, h.blobs.Puts(), "declined actions do not write")

	h.c.SendMessage(ctx, convoy.ID, "hallo")
	assert.Equal(t, 3, h.blobs.Puts())

	// What was written is exactly the current state
	data, err := h.blobs.Get(ctx, store.DefaultSnapshotKey)
	require.NoError(t, err)
	stored, err := store.DecodeSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, h.c.Snapshot(), stored)
}

func TestSnapshotRoundTripAcrossReopen(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.login(t, 1)
	end := epoch.Add(72*time.Hour + 123*time.Millisecond)
	convoy := h.create(t, registry.CreateData{
		Title:           "Rundreise",
		StartDate:       epoch.Add(48*time.Hour + 987654321),
		EndDate:         &end,
		MaxParticipants: intPtr(5),
		Waypoints:       []store.Waypoint{{Name: "Halt", Lat: 1.5, Lng: -2.25, Order: 4}},
		Tags:            []string{"x", "y"},
	})
	h.clk.Advance(1500 * time.Millisecond)
	h.login(t, 2)
	require.True(t, h.c.JoinConvoy(ctx, convoy.ID))
	h.clk.Advance(time.Nanosecond)
	_, ok := h.c.SendMessage(ctx, convoy.ID, "bis bald")
	require.True(t, ok)

	want := h.c.Snapshot()
	reopened := h.reopen(t)

	got := reopened.Snapshot()
	assert.Equal(t, want, got)

	gotConvoy, ok := reopened.Convoy(convoy.ID)
	require.True(t, ok)
	assert.True(t, convoy.StartDate.Equal(gotConvoy.StartDate))
	assert.True(t, end.Equal(*gotConvoy.EndDate))
	assert.Equal(t, epoch.Add(1500*time.Millisecond), gotConvoy.Participants[1].JoinedAt)
	assert.Equal(t, epoch.Add(1500*time.Millisecond+time.Nanosecond), reopened.Messages(convoy.ID)[0].Timestamp)

	id, ok := reopened.Identity()
	require.True(t, ok, "identity survives a restart")
	assert.Equal(t, userID(2), id.ID)
}

func TestSnapshotRoundTrip_SQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "convoy.db")

	blobs, err := store.NewSQLiteBlobStore(path)
	require.NoError(t, err)
	h := newHarness(t, func(o *Options) { o.Blobs = blobs })

	h.login(t, 1)
	convoy := h.create(t, registry.CreateData{Title: "Persistiert"})
	_, ok := h.c.SendMessage(ctx, convoy.ID, "gespeichert")
	require.True(t, ok)
	want := h.c.Snapshot()
	require.NoError(t, h.c.Close())

	reopenedBlobs, err := store.NewSQLiteBlobStore(path)
	require.NoError(t, err)
	h.opts.Blobs = reopenedBlobs
	reopened := h.reopen(t)
	defer reopened.Close()

	assert.Equal(t, want, reopened.Snapshot())
}

func TestOpen_SeedsWhenEmpty(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.DisableSeed = false })

	convoys := h.c.Convoys()
	require.Len(t, convoys, 3)
	assert.Equal(t, "Alpenüberquerung 2024", convoys[0].Title)
	assert.Len(t, h.c.Messages("1"), 3)
	assert.False(t, h.c.IsAuthenticated())
}

func TestOpen_SeedsPerKey(t *testing.T) {
	ctx := context.Background()
	blobs := store.NewMemoryBlobStore()
	// Convoys present but empty, messages absent
	require.NoError(t, store.NewSnapshotStore(blobs, "", nil).Save(ctx, &store.Snapshot{Convoys: []store.Convoy{}}))

	h := newHarness(t, func(o *Options) {
		o.Blobs = blobs
		o.DisableSeed = false
	})

	assert.Empty(t, h.c.Convoys(), "a present key is respected even when empty")
	assert.Len(t, h.c.Messages("1"), 3, "absent key is seeded")
}

func TestOpen_CorruptSnapshotFallsBackToSeed(t *testing.T) {
	ctx := context.Background()
	blobs := store.NewMemoryBlobStore()
	require.NoError(t, blobs.Put(ctx, store.DefaultSnapshotKey, []byte(`{"convoys": [{"id": "1", "startDate": "gestern"}]}`)))

	h := newHarness(t, func(o *Options) {
		o.Blobs = blobs
		o.DisableSeed = false
	})

	assert.Len(t, h.c.Convoys(), 3)
	assert.False(t, h.c.IsAuthenticated())
}

func TestOpen_CorruptSnapshotWithoutSeed(t *testing.T) {
	ctx := context.Background()
	blobs := store.NewMemoryBlobStore()
	require.NoError(t, blobs.Put(ctx, store.DefaultSnapshotKey, []byte(`not json`)))

	h := newHarness(t, func(o *Options) { o.Blobs = blobs })
	assert.Empty(t, h.c.Convoys())
}

func TestOpen_InvalidRosterFallsBackToSeed(t *testing.T) {
	ctx := context.Background()
	blobs := store.NewMemoryBlobStore()
	broken := store.Convoy{
		ID:          "x",
		OrganizerID: "a",
		Status:      store.StatusPlanned,
		Participants: []store.Participant{
			{ID: "a", IsOrganizer: true},
			{ID: "a"},
		},
	}
	require.NoError(t, store.NewSnapshotStore(blobs, "", nil).Save(ctx, &store.Snapshot{
		Identity: &store.Identity{ID: "keep", Name: "Kept"},
		Convoys:  []store.Convoy{broken},
	}))

	h := newHarness(t, func(o *Options) {
		o.Blobs = blobs
		o.DisableSeed = false
	})

	assert.Len(t, h.c.Convoys(), 3)
	id, ok := h.c.Identity()
	require.True(t, ok)
	assert.Equal(t, "keep", id.ID)
}

func TestOpen_DuplicateMessageIDsFallBackToSeed(t *testing.T) {
	ctx := context.Background()
	blobs := store.NewMemoryBlobStore()
	dup := store.ChatMessage{ID: "m1", ConvoyID: "x", UserID: "a", UserName: "A", Text: "eins", Timestamp: epoch}
	require.NoError(t, store.NewSnapshotStore(blobs, "", nil).Save(ctx, &store.Snapshot{
		Convoys:  []store.Convoy{},
		Messages: map[string][]store.ChatMessage{"x": {dup, dup}},
	}))

	h := newHarness(t, func(o *Options) {
		o.Blobs = blobs
		o.DisableSeed = false
	})

	assert.Empty(t, h.c.Convoys(), "valid convoys are kept")
	assert.Empty(t, h.c.Messages("x"), "the broken chat is dropped")
	assert.Len(t, h.c.Messages("1"), 3, "chat is reseeded")
}

func TestOpen_DuplicateMessageIDsWithoutSeed(t *testing.T) {
	ctx := context.Background()
	blobs := store.NewMemoryBlobStore()
	dup := store.ChatMessage{ID: "m1", ConvoyID: "x", UserID: "a", UserName: "A", Text: "eins", Timestamp: epoch}
	require.NoError(t, store.NewSnapshotStore(blobs, "", nil).Save(ctx, &store.Snapshot{
		Messages: map[string][]store.ChatMessage{"x": {dup, dup}},
	}))

	h := newHarness(t, func(o *Options) { o.Blobs = blobs })
	assert.Empty(t, h.c.Messages("x"))
	assert.Empty(t, h.c.Snapshot().Messages)
}

func TestOpen_BackendErrorFails(t *testing.T) {
	boom := errors.New("disk on fire")
	blobs := &blobDouble{
		MemoryBlobStore: store.NewMemoryBlobStore(),
		get:             func(context.Context, string) ([]byte, error) { return nil, boom },
	}

	_, err := Open(context.Background(), Options{Blobs: blobs, Auth: testDirectory(t, 1)})
	assert.ErrorIs(t, err, boom)
}

func TestOpen_SeedErrorFails(t *testing.T) {
	_, err := Open(context.Background(), Options{
		Auth: testDirectory(t, 1),
		Seed: func() (*seed.Dataset, error) { return nil, errors.New("no seed") },
	})
	assert.ErrorContains(t, err, "no seed")
}

func TestSaveFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	blobs := &blobDouble{
		MemoryBlobStore: store.NewMemoryBlobStore(),
		put: func(context.Context, string, []byte) error {
			return errors.New("read-only filesystem")
		},
	}
	h := newHarness(t, func(o *Options) { o.Blobs = blobs })

	h.login(t, 1)
	convoy, err := h.c.CreateConvoy(ctx, registry.CreateData{Title: "Trotzdem"})
	require.NoError(t, err, "a failed save does not fail the action")

	_, ok := h.c.Convoy(convoy.ID)
	assert.True(t, ok)
	assert.True(t, h.c.IsAuthenticated())
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(o *Options) { o.DisableSeed = false })

	h.login(t, 1)
	h.create(t, registry.CreateData{Title: "Extra"})
	require.Len(t, h.c.Convoys(), 4)

	var restored bool
	h.c.Subscribe(testContext(t), func(c conversation.Change) {
		restored = restored || c.Kind == conversation.ChangeRestored
	})

	require.NoError(t, h.c.Reset(ctx))
	assert.True(t, restored)
	assert.Len(t, h.c.Convoys(), 3)
	assert.False(t, h.c.IsAuthenticated())

	// Reset writes the fresh state through
	reopened := h.reopen(t)
	assert.Len(t, reopened.Convoys(), 3)
	assert.False(t, reopened.IsAuthenticated())
}
