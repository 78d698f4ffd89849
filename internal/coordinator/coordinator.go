// ABOUTME: Store façade binding identity, convoy registry and chat ledger
// ABOUTME: Runs actions with simulated latency, write-through persistence and synchronous notification

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/2389/convoy-coordinator/internal/auth"
	"github.com/2389/convoy-coordinator/internal/clock"
	"github.com/2389/convoy-coordinator/internal/conversation"
	"github.com/2389/convoy-coordinator/internal/dedupe"
	"github.com/2389/convoy-coordinator/internal/registry"
	"github.com/2389/convoy-coordinator/internal/seed"
	"github.com/2389/convoy-coordinator/internal/store"
)

// ErrUnauthenticated is returned by actions that need a signed-in user
var ErrUnauthenticated = registry.ErrUnauthenticated

// dedupeCapacity bounds the number of recent sends remembered for duplicate suppression
const dedupeCapacity = 1024

// Options configures a Coordinator. Zero values select defaults.
type Options struct {
	// Blobs is the durable backend. Nil means an in-memory store.
	// The coordinator closes it on Close.
	Blobs store.BlobStore

	// SnapshotKey is the blob key. Empty means store.DefaultSnapshotKey.
	SnapshotKey string

	// Auth resolves credentials. Nil means the demo directory, keeping
	// registered accounts in Blobs.
	Auth auth.Authenticator

	// Clock supplies now() and the latency sleep. Nil means the wall clock.
	Clock clock.Clock

	// NewID generates convoy, waypoint and message ids. Nil means UUIDs.
	NewID func() string

	// Latency is the simulated delay before each action commits.
	Latency time.Duration

	// DuplicateWindow declines identical sends within the window. Zero disables.
	DuplicateWindow time.Duration

	// Seed returns the fallback dataset. Nil means seed.Demo.
	Seed func() (*seed.Dataset, error)

	// DisableSeed starts from an empty registry when nothing is stored.
	DisableSeed bool

	Logger *slog.Logger
}

// Coordinator is the store façade. It is safe for concurrent use.
type Coordinator struct {
	current atomic.Pointer[state]
	mu      sync.Mutex // serializes writers

	blobs     store.BlobStore
	snapshots *store.SnapshotStore
	auth      auth.Authenticator
	clock     clock.Clock
	newID     func() string
	latency   time.Duration
	seed      func() (*seed.Dataset, error)
	recent    *dedupe.Cache
	events    *conversation.Broadcaster
	logger    *slog.Logger
}

// Open builds a Coordinator and loads its state from opts.Blobs.
func Open(ctx context.Context, opts Options) (*Coordinator, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		blobs:   opts.Blobs,
		auth:    opts.Auth,
		clock:   opts.Clock,
		newID:   opts.NewID,
		latency: opts.Latency,
		seed:    opts.Seed,
		logger:  logger.With("component", "coordinator"),
	}
	if c.blobs == nil {
		c.blobs = store.NewMemoryBlobStore()
	}
	if c.clock == nil {
		c.clock = clock.Real()
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	if c.auth == nil {
		dir, err := auth.NewDirectory(auth.DirectoryOptions{NewID: c.newID, Blobs: c.blobs}, logger)
		if err != nil {
			return nil, fmt.Errorf("building demo directory: %w", err)
		}
		if err := dir.Restore(ctx); err != nil {
			return nil, err
		}
		c.auth = dir
	}
	if opts.DisableSeed {
		c.seed = nil
	} else if c.seed == nil {
		c.seed = seed.Demo
	}
	c.snapshots = store.NewSnapshotStore(c.blobs, opts.SnapshotKey, logger)
	c.recent = dedupe.New(opts.DuplicateWindow, dedupeCapacity, c.clock)
	c.events = conversation.NewBroadcaster(logger)

	st, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	c.current.Store(st)
	c.primeRecent(st)

	c.logger.Info("coordinator ready",
		"convoys", st.convoys.Len(),
		"authenticated", st.identity != nil,
		"latency", c.latency)
	return c, nil
}

// load reads the stored snapshot and fills absent keys from the seed.
// Unreadable snapshots are treated as absent.
func (c *Coordinator) load(ctx context.Context) (*state, error) {
	snap, err := c.snapshots.Load(ctx)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		snap = &store.Snapshot{}
	case errors.Is(err, store.ErrCorruptSnapshot):
		c.logger.Warn("stored snapshot is corrupt, falling back to seed data", "error", err)
		snap = &store.Snapshot{}
	default:
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}

	if err := c.fillFromSeed(snap); err != nil {
		return nil, err
	}

	convoys, err := registry.New(snap.Convoys)
	if err != nil {
		c.logger.Warn("stored convoys violate registry rules, falling back to seed data", "error", err)
		snap.Convoys = nil
		if err := c.fillFromSeed(snap); err != nil {
			return nil, err
		}
		if convoys, err = registry.New(snap.Convoys); err != nil {
			return nil, fmt.Errorf("seed convoys: %w", err)
		}
	}

	if err := conversation.ValidateMessages(snap.Messages); err != nil {
		c.logger.Warn("stored messages violate ledger rules, falling back to seed data", "error", err)
		snap.Messages = nil
		if err := c.fillFromSeed(snap); err != nil {
			return nil, err
		}
		if err := conversation.ValidateMessages(snap.Messages); err != nil {
			return nil, fmt.Errorf("seed messages: %w", err)
		}
	}

	return &state{
		identity: snap.Identity,
		convoys:  convoys,
		ledger:   conversation.NewLedger(snap.Messages),
	}, nil
}

func (c *Coordinator) fillFromSeed(snap *store.Snapshot) error {
	if c.seed == nil || (snap.Convoys != nil && snap.Messages != nil) {
		return nil
	}
	ds, err := c.seed()
	if err != nil {
		return fmt.Errorf("loading seed data: %w", err)
	}
	if filled := seed.Fill(snap, ds); len(filled) > 0 {
		c.logger.Debug("seeded state", "keys", filled)
	}
	return nil
}

// Close drops all subscriptions and closes the backend.
func (c *Coordinator) Close() error {
	c.events.Close()
	return c.blobs.Close()
}

// Reset discards the stored snapshot and restarts from the seed dataset
// with nobody signed in.
func (c *Coordinator) Reset(ctx context.Context) error {
	var resetErr error
	c.mutate(ctx, func(_ *state) (*state, conversation.Change, bool) {
		storeCtx := context.WithoutCancel(ctx)
		if err := c.snapshots.Clear(storeCtx); err != nil {
			resetErr = fmt.Errorf("clearing snapshot: %w", err)
			return nil, conversation.Change{}, false
		}
		st, err := c.load(storeCtx)
		if err != nil {
			resetErr = err
			return nil, conversation.Change{}, false
		}
		c.logger.Info("state reset", "convoys", st.convoys.Len())
		return st, conversation.Change{Kind: conversation.ChangeRestored}, true
	})
	return resetErr
}

// Login signs in with the given credentials.
func (c *Coordinator) Login(ctx context.Context, email, password string) bool {
	c.simulateLatency()

	identity, ok := c.auth.Authenticate(email, password)
	if !ok {
		c.logger.Debug("login declined", "email", auth.NormalizeEmail(email))
		return false
	}

	c.mutate(ctx, func(st *state) (*state, conversation.Change, bool) {
		return st.withIdentity(&identity), conversation.Change{
			Kind:   conversation.ChangeLogin,
			UserID: identity.ID,
		}, true
	})
	c.logger.Info("signed in", "user_id", identity.ID, "email", identity.Email)
	return true
}

// Register creates an account and signs in as it.
func (c *Coordinator) Register(ctx context.Context, email, password, name string) bool {
	c.simulateLatency()

	identity, err := c.auth.Register(context.WithoutCancel(ctx), email, password, name)
	if err != nil {
		c.logger.Debug("registration declined", "email", auth.NormalizeEmail(email), "reason", err)
		return false
	}

	c.mutate(ctx, func(st *state) (*state, conversation.Change, bool) {
		return st.withIdentity(&identity), conversation.Change{
			Kind:   conversation.ChangeLogin,
			UserID: identity.ID,
		}, true
	})
	c.logger.Info("registered", "user_id", identity.ID, "email", identity.Email)
	return true
}

// Logout clears the identity. Logging out while signed out does nothing.
func (c *Coordinator) Logout(ctx context.Context) {
	c.mutate(ctx, func(st *state) (*state, conversation.Change, bool) {
		if st.identity == nil {
			return nil, conversation.Change{}, true
		}
		c.logger.Info("signed out", "user_id", st.identity.ID)
		return st.withIdentity(nil), conversation.Change{
			Kind:   conversation.ChangeLogout,
			UserID: st.identity.ID,
		}, true
	})
}

// CreateConvoy stores a new convoy organized by the signed-in user.
func (c *Coordinator) CreateConvoy(ctx context.Context, data registry.CreateData) (store.Convoy, error) {
	c.simulateLatency()

	var (
		created   store.Convoy
		createErr error
	)
	c.mutate(ctx, func(st *state) (*state, conversation.Change, bool) {
		convoys, convoy, err := st.convoys.Create(st.identity, data, c.clock.Now(), c.newID)
		if err != nil {
			createErr = err
			return nil, conversation.Change{}, false
		}
		created = convoy
		return st.withConvoys(convoys), conversation.Change{
			Kind:     conversation.ChangeCreated,
			ConvoyID: convoy.ID,
			UserID:   st.identity.ID,
		}, true
	})
	if createErr != nil {
		return store.Convoy{}, createErr
	}
	c.logger.Info("convoy created", "convoy_id", created.ID, "title", created.Title, "organizer_id", created.OrganizerID)
	return created, nil
}

// JoinConvoy adds the signed-in user to a convoy's roster.
func (c *Coordinator) JoinConvoy(ctx context.Context, convoyID string) bool {
	c.simulateLatency()

	return c.mutate(ctx, func(st *state) (*state, conversation.Change, bool) {
		convoys, ok := st.convoys.Join(st.identity, convoyID, c.clock.Now())
		if !ok {
			c.logger.Debug("join declined", "convoy_id", convoyID, "authenticated", st.identity != nil)
			return nil, conversation.Change{}, false
		}
		c.logger.Debug("joined convoy", "convoy_id", convoyID, "user_id", st.identity.ID)
		return st.withConvoys(convoys), conversation.Change{
			Kind:     conversation.ChangeJoined,
			ConvoyID: convoyID,
			UserID:   st.identity.ID,
		}, true
	})
}

// LeaveConvoy removes the signed-in user from a convoy's roster.
// The organizer cannot leave. Leaving a convoy the user is not on
// reports success and changes nothing.
func (c *Coordinator) LeaveConvoy(ctx context.Context, convoyID string) bool {
	c.simulateLatency()

	return c.mutate(ctx, func(st *state) (*state, conversation.Change, bool) {
		convoys, ok := st.convoys.Leave(st.identity, convoyID)
		if !ok {
			c.logger.Debug("leave declined", "convoy_id", convoyID, "authenticated", st.identity != nil)
			return nil, conversation.Change{}, false
		}
		if convoys == st.convoys {
			c.logger.Debug("leave without membership", "convoy_id", convoyID, "user_id", st.identity.ID)
			return nil, conversation.Change{}, true
		}
		c.logger.Debug("left convoy", "convoy_id", convoyID, "user_id", st.identity.ID)
		return st.withConvoys(convoys), conversation.Change{
			Kind:     conversation.ChangeLeft,
			ConvoyID: convoyID,
			UserID:   st.identity.ID,
		}, true
	})
}

// primeRecent marks stored messages still inside the duplicate window,
// oldest first, so suppression survives a restart.
func (c *Coordinator) primeRecent(st *state) {
	if !c.recent.Enabled() {
		return
	}
	var msgs []store.ChatMessage
	for _, list := range st.ledger.All() {
		msgs = append(msgs, list...)
	}
	slices.SortStableFunc(msgs, func(a, b store.ChatMessage) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	for _, m := range msgs {
		c.recent.MarkAt(sendKey(m.UserID, m.ConvoyID, m.Text), m.Timestamp)
	}
}

func sendKey(userID, convoyID, text string) string {
	return userID + "|" + convoyID + "|" + text
}

// SendMessage appends a chat message from the signed-in user.
// Returns false without a message when the send is declined.
func (c *Coordinator) SendMessage(ctx context.Context, convoyID, text string) (store.ChatMessage, bool) {
	c.simulateLatency()

	var sent store.ChatMessage
	ok := c.mutate(ctx, func(st *state) (*state, conversation.Change, bool) {
		trimmed := strings.TrimSpace(text)
		if st.identity == nil || trimmed == "" {
			c.logger.Debug("message declined", "convoy_id", convoyID, "authenticated", st.identity != nil)
			return nil, conversation.Change{}, false
		}

		key := sendKey(st.identity.ID, convoyID, trimmed)
		if c.recent.CheckAndMark(key) {
			c.logger.Debug("duplicate message declined", "convoy_id", convoyID, "user_id", st.identity.ID)
			return nil, conversation.Change{}, false
		}

		ledger, msg, ok := st.ledger.Append(st.identity, convoyID, trimmed, c.clock.Now(), c.newID)
		if !ok {
			c.recent.Forget(key)
			c.logger.Warn("message declined, no unused message id", "convoy_id", convoyID)
			return nil, conversation.Change{}, false
		}

		sent = msg
		c.logger.Debug("message sent", "convoy_id", convoyID, "message_id", msg.ID)
		return st.withLedger(ledger), conversation.Change{
			Kind:     conversation.ChangeMessage,
			ConvoyID: convoyID,
			UserID:   st.identity.ID,
			Message:  &msg,
		}, true
	})
	if !ok {
		return store.ChatMessage{}, false
	}
	return sent, true
}

// Subscribe registers fn for every change. The subscription ends when ctx
// is cancelled or on Unsubscribe.
func (c *Coordinator) Subscribe(ctx context.Context, fn conversation.Observer) string {
	return c.events.Subscribe(ctx, conversation.AllConvoys, fn)
}

// Unsubscribe ends a Subscribe registration.
func (c *Coordinator) Unsubscribe(subID string) {
	c.events.Unsubscribe(conversation.AllConvoys, subID)
}

// SubscribeConvoy registers fn for membership and chat changes of one convoy.
func (c *Coordinator) SubscribeConvoy(ctx context.Context, convoyID string, fn conversation.Observer) string {
	return c.events.Subscribe(ctx, convoyID, fn)
}

// UnsubscribeConvoy ends a SubscribeConvoy registration.
func (c *Coordinator) UnsubscribeConvoy(convoyID, subID string) {
	c.events.Unsubscribe(convoyID, subID)
}

// simulateLatency models network delay. It ignores cancellation.
func (c *Coordinator) simulateLatency() {
	if c.latency > 0 {
		c.clock.Sleep(c.latency)
	}
}

// mutate runs fn on the current state under the writer lock. fn returns
// the next state, the change to announce and the action's result; a nil
// state means nothing changed. A new state is stored and written through
// before the lock is released. Observers run after the release but before
// mutate returns, so they see the committed state and may start actions.
func (c *Coordinator) mutate(ctx context.Context, fn func(st *state) (*state, conversation.Change, bool)) bool {
	change, changed, ok := func() (conversation.Change, bool, bool) {
		c.mu.Lock()
		defer c.mu.Unlock()

		next, change, ok := fn(c.current.Load())
		if !ok || next == nil {
			return change, false, ok
		}
		c.current.Store(next)
		if err := c.snapshots.Save(context.WithoutCancel(ctx), next.snapshot()); err != nil {
			c.logger.Error("write-through failed, state kept in memory", "kind", change.Kind, "error", err)
		}
		return change, true, true
	}()

	if changed {
		c.events.Publish(change)
	}
	return ok
}
