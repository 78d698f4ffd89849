// ABOUTME: Test harness for the coordinator
// ABOUTME: Fake clock, sequential ids, a low-cost bcrypt directory and a failing blob store double

package coordinator

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/convoy-coordinator/internal/auth"
	"github.com/2389/convoy-coordinator/internal/clock"
	"github.com/2389/convoy-coordinator/internal/registry"
	"github.com/2389/convoy-coordinator/internal/store"
)

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

const testPassword = "pw"

func email(n int) string { return fmt.Sprintf("u%d@example.com", n) }

func userID(n int) string { return fmt.Sprintf("U%d", n) }

func testDirectory(t *testing.T, users int) *auth.Directory {
	t.Helper()
	accounts := make([]auth.Account, users)
	for i := range accounts {
		n := i + 1
		accounts[i] = auth.Account{
			Identity: store.Identity{ID: userID(n), Name: fmt.Sprintf("User %d", n), Email: email(n)},
			Password: testPassword,
		}
	}
	d, err := auth.NewDirectory(auth.DirectoryOptions{Accounts: accounts, Cost: bcrypt.MinCost}, nil)
	require.NoError(t, err)
	return d
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("id-%d", n.Add(1)) }
}

type harness struct {
	c     *Coordinator
	clk   *clock.FakeClock
	blobs *store.MemoryBlobStore
	opts  Options
}

// newHarness opens an unseeded coordinator on a memory store. mutate may
// adjust the options before Open.
func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		clk:   clock.Fake(epoch),
		blobs: store.NewMemoryBlobStore(),
	}
	h.opts = Options{
		Blobs:       h.blobs,
		Auth:        testDirectory(t, 12),
		Clock:       h.clk,
		NewID:       sequentialIDs(),
		DisableSeed: true,
	}
	for _, m := range mutate {
		m(&h.opts)
	}
	c, err := Open(context.Background(), h.opts)
	require.NoError(t, err)
	h.c = c
	return h
}

// reopen builds a second coordinator over the same backend.
func (h *harness) reopen(t *testing.T) *Coordinator {
	t.Helper()
	c, err := Open(context.Background(), h.opts)
	require.NoError(t, err)
	return c
}

func (h *harness) login(t *testing.T, n int) {
	t.Helper()
	require.True(t, h.c.Login(context.Background(), email(n), testPassword), "login as user %d", n)
}

func (h *harness) create(t *testing.T, data registry.CreateData) store.Convoy {
	t.Helper()
	c, err := h.c.CreateConvoy(context.Background(), data)
	require.NoError(t, err)
	return c
}

func (h *harness) roster(t *testing.T, convoyID string) int {
	t.Helper()
	convoy, ok := h.c.Convoy(convoyID)
	require.True(t, ok)
	return len(convoy.Participants)
}

func intPtr(n int) *int { return &n }

// blobDouble wraps a memory store and lets tests replace individual calls.
type blobDouble struct {
	*store.MemoryBlobStore
	get func(ctx context.Context, key string) ([]byte, error)
	put func(ctx context.Context, key string, data []byte) error
}

func (b *blobDouble) Get(ctx context.Context, key string) ([]byte, error) {
	if b.get != nil {
		return b.get(ctx, key)
	}
	return b.MemoryBlobStore.Get(ctx, key)
}

func (b *blobDouble) Put(ctx context.Context, key string, data []byte) error {
	if b.put != nil {
		return b.put(ctx, key, data)
	}
	return b.MemoryBlobStore.Put(ctx, key, data)
}
