// ABOUTME: Data model for convoys, participants, waypoints, chat messages and identity
// ABOUTME: Defines the Snapshot persisted by the adapter and the BlobStore backend interface

package store

import (
	"context"
	"errors"
	"io"
	"slices"
	"time"
)

// ErrNotFound is returned when a requested blob does not exist
var ErrNotFound = errors.New("not found")

// ErrCorruptSnapshot is returned when a stored snapshot cannot be decoded.
// Callers treat it like an absent snapshot.
var ErrCorruptSnapshot = errors.New("corrupt snapshot")

// Identity is the minimal authenticated user handed over by the auth collaborator.
type Identity struct {
	ID     string
	Name   string
	Email  string
	Avatar string // optional
}

// Status is the lifecycle label of a convoy
type Status string

const (
	StatusPlanned   Status = "planned"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPlanned, StatusActive, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Location is a named coordinate pair
type Location struct {
	Name string
	Lat  float64
	Lng  float64
}

// Waypoint is an intermediate stop. Order is a sort key and need not be contiguous.
type Waypoint struct {
	ID    string
	Name  string
	Lat   float64
	Lng   float64
	Order int
}

// Participant is a roster entry. It is created on join and removed on leave,
// never edited in between.
type Participant struct {
	ID          string
	Name        string
	Avatar      string // optional
	JoinedAt    time.Time
	IsOrganizer bool
}

// Convoy is a group trip with a route, a schedule and a roster.
type Convoy struct {
	ID              string
	Title           string
	Description     string
	StartDate       time.Time
	EndDate         *time.Time // optional
	StartLocation   Location
	Destination     Location
	Waypoints       []Waypoint
	Participants    []Participant
	MaxParticipants *int // nil means unbounded
	OrganizerID     string
	OrganizerName   string
	CreatedAt       time.Time
	Status          Status
	Tags            []string
}

// Participant returns the roster entry for userID, if present.
func (c *Convoy) Participant(userID string) (Participant, bool) {
	for _, p := range c.Participants {
		if p.ID == userID {
			return p, true
		}
	}
	return Participant{}, false
}

// HasParticipant reports whether userID is on the roster.
func (c *Convoy) HasParticipant(userID string) bool {
	_, ok := c.Participant(userID)
	return ok
}

// Full reports whether the roster has reached MaxParticipants.
func (c *Convoy) Full() bool {
	return c.MaxParticipants != nil && len(c.Participants) >= *c.MaxParticipants
}

// SortedWaypoints returns a copy of the waypoints ordered by Order.
// Ties keep their stored relative order.
func (c *Convoy) SortedWaypoints() []Waypoint {
	out := slices.Clone(c.Waypoints)
	slices.SortStableFunc(out, func(a, b Waypoint) int { return a.Order - b.Order })
	return out
}

// Clone returns a deep copy so callers can never reach stored slices.
func (c Convoy) Clone() Convoy {
	out := c
	out.Waypoints = slices.Clone(c.Waypoints)
	out.Participants = slices.Clone(c.Participants)
	out.Tags = slices.Clone(c.Tags)
	if c.EndDate != nil {
		end := *c.EndDate
		out.EndDate = &end
	}
	if c.MaxParticipants != nil {
		maxP := *c.MaxParticipants
		out.MaxParticipants = &maxP
	}
	return out
}

// ChatMessage is an immutable entry in a convoy's chat ledger
type ChatMessage struct {
	ID         string
	ConvoyID   string
	UserID     string
	UserName   string
	UserAvatar string // optional
	Text       string
	Timestamp  time.Time
}

// Snapshot is the durable state of the application.
//
// Each top-level field is independently optional: a nil Convoys or Messages
// means the key was absent, which is distinct from present-but-empty.
type Snapshot struct {
	Identity *Identity
	Convoys  []Convoy
	Messages map[string][]ChatMessage
}

// BlobStore is a durable string-keyed byte store
type BlobStore interface {
	io.Closer

	// Get returns ErrNotFound when key has never been written.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}
