// ABOUTME: User directory with bcrypt-hashed passwords
// ABOUTME: Ships the demo accounts, the any-address demo password and persists registrations

package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/2389/convoy-coordinator/internal/store"
)

// DefaultMinPasswordLength is the shortest password Register accepts
const DefaultMinPasswordLength = 4

// DefaultAccountsKey is the blob key holding registered accounts
const DefaultAccountsKey = "convoy-accounts"

// dummyHash keeps unknown-address lookups as slow as real ones
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Account is a directory entry before hashing.
type Account struct {
	Identity store.Identity
	Password string
}

// DemoAccounts are the accounts every directory starts with.
var DemoAccounts = []Account{
	{
		Identity: store.Identity{ID: "1", Name: "Demo Benutzer", Email: "demo@example.com", Avatar: "🚐"},
		Password: "password",
	},
	{
		Identity: store.Identity{ID: "2", Name: "Test User", Email: "test@example.com", Avatar: "🏕️"},
		Password: "test123",
	},
}

// DirectoryOptions configures a Directory.
type DirectoryOptions struct {
	// Accounts seeds the directory. Nil means DemoAccounts.
	Accounts []Account

	// DemoPassword, when non-empty, logs in any address.
	DemoPassword string

	// MinPasswordLength for Register. Zero means DefaultMinPasswordLength.
	MinPasswordLength int

	// Cost is the bcrypt cost. Zero means bcrypt.DefaultCost.
	Cost int

	// NewID generates identity ids. Nil means UUIDs.
	NewID func() string

	// Blobs stores registered accounts. Nil keeps them in memory only.
	Blobs store.BlobStore

	// AccountsKey is the blob key. Empty means DefaultAccountsKey.
	AccountsKey string
}

type account struct {
	identity   store.Identity
	hash       []byte
	registered bool // created by Register rather than seeded
}

// storedAccounts is the blob layout of registered accounts.
type storedAccounts struct {
	Accounts []storedAccount `json:"accounts"`
}

type storedAccount struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Avatar       string `json:"avatar,omitempty"`
	PasswordHash string `json:"password_hash"`
}

// Directory is an Authenticator backed by an in-memory account table.
type Directory struct {
	mu           sync.RWMutex
	accounts     map[string]account // normalized email -> account
	demoPassword string
	minLength    int
	cost         int
	newID        func() string
	blobs        store.BlobStore
	accountsKey  string
	saveMu       sync.Mutex // orders account writes
	logger       *slog.Logger
}

// NewDirectory hashes the seed accounts and returns a ready directory.
// Pass nil logger for default.
func NewDirectory(opts DirectoryOptions, logger *slog.Logger) (*Directory, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Directory{
		accounts:     make(map[string]account),
		demoPassword: opts.DemoPassword,
		minLength:    opts.MinPasswordLength,
		cost:         opts.Cost,
		newID:        opts.NewID,
		blobs:        opts.Blobs,
		accountsKey:  opts.AccountsKey,
		logger:       logger.With("component", "auth"),
	}
	if d.accountsKey == "" {
		d.accountsKey = DefaultAccountsKey
	}
	if d.minLength == 0 {
		d.minLength = DefaultMinPasswordLength
	}
	if d.cost == 0 {
		d.cost = bcrypt.DefaultCost
	}
	if d.newID == nil {
		d.newID = newUUID
	}

	accounts := opts.Accounts
	if accounts == nil {
		accounts = DemoAccounts
	}
	for _, a := range accounts {
		if _, err := d.add(a.Identity, a.Password); err != nil {
			return nil, fmt.Errorf("seeding account %s: %w", a.Identity.Email, err)
		}
	}
	return d, nil
}

// Authenticate checks a directory password first, then the demo password.
func (d *Directory) Authenticate(email, password string) (store.Identity, bool) {
	normalized := NormalizeEmail(email)

	d.mu.RLock()
	acct, known := d.accounts[normalized]
	d.mu.RUnlock()

	hash := []byte(dummyHash)
	if known {
		hash = acct.hash
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err == nil && known {
		d.logger.Debug("directory login", "email", normalized, "user_id", acct.identity.ID)
		return acct.identity, true
	}

	if d.demoPassword != "" && subtle.ConstantTimeCompare([]byte(password), []byte(d.demoPassword)) == 1 {
		identity := store.Identity{
			ID:     d.newID(),
			Name:   localPart(email),
			Email:  normalized,
			Avatar: GuestAvatar,
		}
		d.logger.Debug("demo password login", "email", normalized, "user_id", identity.ID)
		return identity, true
	}

	return store.Identity{}, false
}

// IsValidCredential reports whether Authenticate would accept the pair.
func (d *Directory) IsValidCredential(email, password string) bool {
	_, ok := d.Authenticate(email, password)
	return ok
}

// Restore loads previously registered accounts from the blob store.
// Accounts whose address is already taken are skipped. An unreadable
// blob is logged and ignored so a damaged file cannot lock everyone out.
func (d *Directory) Restore(ctx context.Context) error {
	if d.blobs == nil {
		return nil
	}
	data, err := d.blobs.Get(ctx, d.accountsKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading accounts: %w", err)
	}

	var stored storedAccounts
	if err := json.Unmarshal(data, &stored); err != nil {
		d.logger.Warn("stored accounts are corrupt, ignoring them", "key", d.accountsKey, "error", err)
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	restored := 0
	for _, sa := range stored.Accounts {
		email := NormalizeEmail(sa.Email)
		if sa.ID == "" || !validEmail(email) {
			d.logger.Warn("skipping malformed stored account", "email", email)
			continue
		}
		if _, err := bcrypt.Cost([]byte(sa.PasswordHash)); err != nil {
			d.logger.Warn("skipping stored account with bad hash", "email", email, "error", err)
			continue
		}
		if _, taken := d.accounts[email]; taken {
			d.logger.Debug("stored account shadowed by seed account", "email", email)
			continue
		}
		d.accounts[email] = account{
			identity:   store.Identity{ID: sa.ID, Name: sa.Name, Email: email, Avatar: sa.Avatar},
			hash:       []byte(sa.PasswordHash),
			registered: true,
		}
		restored++
	}
	d.logger.Debug("accounts restored", "count", restored)
	return nil
}

// Register adds a new account and returns its identity. With a blob store
// configured the account is written through; a failed write is logged and
// the account stays usable for this process.
func (d *Directory) Register(ctx context.Context, email, password, name string) (store.Identity, error) {
	normalized := NormalizeEmail(email)
	if !validEmail(normalized) {
		return store.Identity{}, ErrInvalidEmail
	}
	if len(password) < d.minLength {
		return store.Identity{}, fmt.Errorf("%w: need at least %d characters", ErrWeakPassword, d.minLength)
	}

	d.mu.RLock()
	_, taken := d.accounts[normalized]
	d.mu.RUnlock()
	if taken {
		return store.Identity{}, ErrEmailTaken
	}

	identity := store.Identity{
		ID:     d.newID(),
		Name:   displayName(name, email),
		Email:  normalized,
		Avatar: RegisteredAvatar,
	}
	added, err := d.insert(identity, password, true)
	if err != nil {
		return store.Identity{}, err
	}
	if err := d.persist(ctx); err != nil {
		d.logger.Error("saving accounts failed, account kept in memory", "email", normalized, "error", err)
	}
	d.logger.Info("account registered", "email", normalized, "user_id", added.ID)
	return added, nil
}

// Len returns the number of accounts.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.accounts)
}

func (d *Directory) add(identity store.Identity, password string) (store.Identity, error) {
	return d.insert(identity, password, false)
}

func (d *Directory) insert(identity store.Identity, password string, registered bool) (store.Identity, error) {
	identity.Email = NormalizeEmail(identity.Email)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.cost)
	if err != nil {
		return store.Identity{}, fmt.Errorf("hashing password: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.accounts[identity.Email]; exists {
		return store.Identity{}, ErrEmailTaken
	}
	d.accounts[identity.Email] = account{identity: identity, hash: hash, registered: registered}
	return identity, nil
}

// persist writes every registered account to the blob store.
func (d *Directory) persist(ctx context.Context) error {
	if d.blobs == nil {
		return nil
	}
	d.saveMu.Lock()
	defer d.saveMu.Unlock()

	d.mu.RLock()
	stored := storedAccounts{Accounts: make([]storedAccount, 0, len(d.accounts))}
	for _, a := range d.accounts {
		if !a.registered {
			continue
		}
		stored.Accounts = append(stored.Accounts, storedAccount{
			ID:           a.identity.ID,
			Name:         a.identity.Name,
			Email:        a.identity.Email,
			Avatar:       a.identity.Avatar,
			PasswordHash: string(a.hash),
		})
	}
	d.mu.RUnlock()

	slices.SortFunc(stored.Accounts, func(a, b storedAccount) int {
		return strings.Compare(a.Email, b.Email)
	})

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encoding accounts: %w", err)
	}
	if err := d.blobs.Put(ctx, d.accountsKey, data); err != nil {
		return fmt.Errorf("saving accounts: %w", err)
	}
	return nil
}
