// ABOUTME: Authenticator contract and the predicate adapter for host-supplied credential rules
// ABOUTME: Shared e-mail normalization used by every authenticator

package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/2389/convoy-coordinator/internal/store"
)

var (
	// ErrEmailTaken is returned by Register for an address that already has an account
	ErrEmailTaken = errors.New("email already registered")

	// ErrWeakPassword is returned by Register when the password is too short
	ErrWeakPassword = errors.New("password too short")

	// ErrInvalidEmail is returned by Register for an address without a local part and domain
	ErrInvalidEmail = errors.New("invalid email")
)

// Avatars handed to identities the directory creates on the fly
const (
	GuestAvatar      = "🚗"
	RegisteredAvatar = "🚐"
)

// Authenticator resolves credentials into identities.
type Authenticator interface {
	// Authenticate returns the identity for valid credentials.
	Authenticate(email, password string) (store.Identity, bool)

	// Register creates an account and returns its identity.
	Register(ctx context.Context, email, password, name string) (store.Identity, error)
}

// CredentialFunc is a yes-or-no credential rule supplied by the host.
type CredentialFunc func(email, password string) bool

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// localPart returns the text before the first '@' of a trimmed address.
func localPart(email string) string {
	email = strings.TrimSpace(email)
	if i := strings.IndexByte(email, '@'); i >= 0 {
		return email[:i]
	}
	return email
}

func validEmail(normalized string) bool {
	at := strings.IndexByte(normalized, '@')
	return at > 0 && at < len(normalized)-1 && !strings.ContainsAny(normalized, " \t\n")
}

func newUUID() string {
	return uuid.New().String()
}

// predicateAuthenticator adapts a CredentialFunc to Authenticator.
type predicateAuthenticator struct {
	valid CredentialFunc
	newID func() string
}

// FromPredicate builds an Authenticator from a credential rule. Accepted
// logins receive a fresh identity named after the e-mail local part.
// Register accepts any well-formed address whose credentials pass the rule.
// Pass nil newID for UUIDs.
func FromPredicate(valid CredentialFunc, newID func() string) Authenticator {
	if newID == nil {
		newID = newUUID
	}
	return &predicateAuthenticator{valid: valid, newID: newID}
}

func (p *predicateAuthenticator) Authenticate(email, password string) (store.Identity, bool) {
	if !p.valid(email, password) {
		return store.Identity{}, false
	}
	return store.Identity{
		ID:     p.newID(),
		Name:   localPart(email),
		Email:  NormalizeEmail(email),
		Avatar: GuestAvatar,
	}, true
}

func (p *predicateAuthenticator) Register(_ context.Context, email, password, name string) (store.Identity, error) {
	normalized := NormalizeEmail(email)
	if !validEmail(normalized) {
		return store.Identity{}, ErrInvalidEmail
	}
	if !p.valid(email, password) {
		return store.Identity{}, ErrWeakPassword
	}
	return store.Identity{
		ID:     p.newID(),
		Name:   displayName(name, email),
		Email:  normalized,
		Avatar: RegisteredAvatar,
	}, nil
}

func displayName(name, email string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return localPart(email)
}
