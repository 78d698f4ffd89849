// ABOUTME: Copy-on-write convoy registry with the join/leave membership state machine
// ABOUTME: Enforces roster uniqueness, capacity and organizer protection

package registry

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/2389/convoy-coordinator/internal/store"
)

// ErrUnauthenticated is returned when an operation that needs an identity gets none
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrInvalidConvoy is returned for create input or stored data that breaks a convoy invariant
var ErrInvalidConvoy = errors.New("invalid convoy")

// Defaults applied by Create when the caller leaves a field empty
const (
	DefaultTitle = "New convoy"
)

var (
	DefaultStartLocation = store.Location{Name: "Start", Lat: 50, Lng: 10}
	DefaultDestination   = store.Location{Name: "Destination", Lat: 51, Lng: 11}
)

// maxIDAttempts bounds retries when the id source returns a taken id
const maxIDAttempts = 8

// IDFunc returns a fresh identifier
type IDFunc func() string

// CreateData is the caller-supplied part of a new convoy.
// Waypoints with an empty ID are assigned a fresh one.
type CreateData struct {
	Title           string
	Description     string
	StartDate       time.Time
	EndDate         *time.Time
	StartLocation   store.Location
	Destination     store.Location
	Waypoints       []store.Waypoint
	MaxParticipants *int
	Tags            []string
}

// Registry is an immutable, insertion-ordered set of convoys.
// The zero value is an empty registry.
type Registry struct {
	convoys []store.Convoy
	index   map[string]int // convoy id -> position in convoys
}

// New builds a registry from convoys, in order. It deep-copies the input
// and rejects data that violates a registry invariant.
func New(convoys []store.Convoy) (*Registry, error) {
	r := &Registry{
		convoys: make([]store.Convoy, 0, len(convoys)),
		index:   make(map[string]int, len(convoys)),
	}
	for _, c := range convoys {
		if _, dup := r.index[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate convoy id %q", ErrInvalidConvoy, c.ID)
		}
		if err := Validate(c); err != nil {
			return nil, err
		}
		r.index[c.ID] = len(r.convoys)
		r.convoys = append(r.convoys, c.Clone())
	}
	return r, nil
}

// Len returns the number of convoys.
func (r *Registry) Len() int {
	return len(r.convoys)
}

// Get returns a copy of the convoy with the given id.
func (r *Registry) Get(id string) (store.Convoy, bool) {
	i, ok := r.index[id]
	if !ok {
		return store.Convoy{}, false
	}
	return r.convoys[i].Clone(), true
}

// All returns copies of every convoy in insertion order.
func (r *Registry) All() []store.Convoy {
	out := make([]store.Convoy, len(r.convoys))
	for i, c := range r.convoys {
		out[i] = c.Clone()
	}
	return out
}

// IsParticipant reports whether identity is on the roster of convoyID.
func (r *Registry) IsParticipant(identity *store.Identity, convoyID string) bool {
	if identity == nil {
		return false
	}
	i, ok := r.index[convoyID]
	if !ok {
		return false
	}
	return r.convoys[i].HasParticipant(identity.ID)
}

// ListForUser returns every convoy identity participates in, in insertion order.
func (r *Registry) ListForUser(identity *store.Identity) []store.Convoy {
	out := []store.Convoy{}
	if identity == nil {
		return out
	}
	for _, c := range r.convoys {
		if c.HasParticipant(identity.ID) {
			out = append(out, c.Clone())
		}
	}
	return out
}

// Search returns the convoys whose title, description, start or destination
// name, or any tag contains term, ignoring case, in insertion order. An
// empty term matches every convoy. A non-empty status keeps only convoys
// in that status.
func (r *Registry) Search(term string, status store.Status) []store.Convoy {
	needle := strings.ToLower(term)
	out := []store.Convoy{}
	for _, c := range r.convoys {
		if status != "" && c.Status != status {
			continue
		}
		if matches(c, needle) {
			out = append(out, c.Clone())
		}
	}
	return out
}

func matches(c store.Convoy, needle string) bool {
	if needle == "" {
		return true
	}
	fields := append([]string{c.Title, c.Description, c.StartLocation.Name, c.Destination.Name}, c.Tags...)
	return slices.ContainsFunc(fields, func(f string) bool {
		return strings.Contains(strings.ToLower(f), needle)
	})
}

// Create appends a new planned convoy organized by owner and returns the
// new registry together with the stored convoy.
func (r *Registry) Create(owner *store.Identity, data CreateData, now time.Time, newID IDFunc) (*Registry, store.Convoy, error) {
	if owner == nil {
		return r, store.Convoy{}, ErrUnauthenticated
	}
	if err := validateCreate(data); err != nil {
		return r, store.Convoy{}, err
	}

	id, err := r.freshID(newID)
	if err != nil {
		return r, store.Convoy{}, err
	}

	c := store.Convoy{
		ID:            id,
		Title:         data.Title,
		Description:   data.Description,
		StartDate:     data.StartDate,
		StartLocation: data.StartLocation,
		Destination:   data.Destination,
		Participants: []store.Participant{{
			ID:          owner.ID,
			Name:        owner.Name,
			Avatar:      owner.Avatar,
			JoinedAt:    now,
			IsOrganizer: true,
		}},
		OrganizerID:   owner.ID,
		OrganizerName: owner.Name,
		CreatedAt:     now,
		Status:        store.StatusPlanned,
	}
	if strings.TrimSpace(c.Title) == "" {
		c.Title = DefaultTitle
	}
	if c.StartDate.IsZero() {
		c.StartDate = now
	}
	if c.StartLocation == (store.Location{}) {
		c.StartLocation = DefaultStartLocation
	}
	if c.Destination == (store.Location{}) {
		c.Destination = DefaultDestination
	}
	if data.EndDate != nil {
		end := *data.EndDate
		c.EndDate = &end
	}
	if data.MaxParticipants != nil {
		maxP := *data.MaxParticipants
		c.MaxParticipants = &maxP
	}
	if len(data.Tags) > 0 {
		c.Tags = slices.Clone(data.Tags)
	}
	c.Waypoints = assignWaypointIDs(data.Waypoints, newID)

	next := &Registry{
		convoys: append(slices.Clip(r.convoys), c),
		index:   maps.Clone(r.index),
	}
	if next.index == nil {
		next.index = make(map[string]int, 1)
	}
	next.index[c.ID] = len(next.convoys) - 1
	return next, c.Clone(), nil
}

// Join adds identity to the roster of convoyID.
// Returns the receiver and false when the join is declined.
func (r *Registry) Join(identity *store.Identity, convoyID string, now time.Time) (*Registry, bool) {
	if identity == nil {
		return r, false
	}
	i, ok := r.index[convoyID]
	if !ok {
		return r, false
	}
	c := r.convoys[i]
	if c.HasParticipant(identity.ID) || c.Full() {
		return r, false
	}

	participants := make([]store.Participant, len(c.Participants), len(c.Participants)+1)
	copy(participants, c.Participants)
	c.Participants = append(participants, store.Participant{
		ID:          identity.ID,
		Name:        identity.Name,
		Avatar:      identity.Avatar,
		JoinedAt:    now,
		IsOrganizer: false,
	})
	return r.replace(i, c), true
}

// Leave removes identity from the roster of convoyID.
// The organizer can never leave; that request is declined. Leaving a
// convoy identity is not on succeeds without change and returns the
// receiver, so callers can compare pointers to detect the no-op.
func (r *Registry) Leave(identity *store.Identity, convoyID string) (*Registry, bool) {
	if identity == nil {
		return r, false
	}
	i, ok := r.index[convoyID]
	if !ok {
		return r, false
	}
	c := r.convoys[i]
	if c.OrganizerID == identity.ID {
		return r, false
	}
	if !c.HasParticipant(identity.ID) {
		return r, true
	}

	c.Participants = slices.DeleteFunc(slices.Clone(c.Participants), func(p store.Participant) bool {
		return p.ID == identity.ID
	})
	return r.replace(i, c), true
}

// replace returns a registry with position i swapped for c.
// The index is shared because ids and positions are unchanged.
func (r *Registry) replace(i int, c store.Convoy) *Registry {
	convoys := slices.Clone(r.convoys)
	convoys[i] = c
	return &Registry{convoys: convoys, index: r.index}
}

func (r *Registry) freshID(newID IDFunc) (string, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := newID()
		if _, taken := r.index[id]; id != "" && !taken {
			return id, nil
		}
	}
	return "", fmt.Errorf("no unused convoy id after %d attempts", maxIDAttempts)
}

// assignWaypointIDs copies the input and fills in missing or repeated ids.
func assignWaypointIDs(in []store.Waypoint, newID IDFunc) []store.Waypoint {
	if len(in) == 0 {
		return nil
	}
	out := slices.Clone(in)
	seen := make(map[string]bool, len(out))
	for i := range out {
		for out[i].ID == "" || seen[out[i].ID] {
			out[i].ID = newID()
		}
		seen[out[i].ID] = true
	}
	return out
}

func validateCreate(data CreateData) error {
	if data.MaxParticipants != nil && *data.MaxParticipants < 1 {
		return fmt.Errorf("%w: maxParticipants must be at least 1", ErrInvalidConvoy)
	}
	if err := checkLocation("startLocation", data.StartLocation.Lat, data.StartLocation.Lng); err != nil {
		return err
	}
	if err := checkLocation("destination", data.Destination.Lat, data.Destination.Lng); err != nil {
		return err
	}
	for i, w := range data.Waypoints {
		if err := checkLocation(fmt.Sprintf("waypoints[%d]", i), w.Lat, w.Lng); err != nil {
			return err
		}
	}
	return nil
}

func checkLocation(field string, lat, lng float64) error {
	if !isFinite(lat) || !isFinite(lng) {
		return fmt.Errorf("%w: %s coordinates must be finite", ErrInvalidConvoy, field)
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Validate checks the roster invariants of a single convoy.
func Validate(c store.Convoy) error {
	if c.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidConvoy)
	}
	seen := make(map[string]bool, len(c.Participants))
	organizers := 0
	for _, p := range c.Participants {
		if seen[p.ID] {
			return fmt.Errorf("%w: convoy %q lists participant %q twice", ErrInvalidConvoy, c.ID, p.ID)
		}
		seen[p.ID] = true
		if p.IsOrganizer {
			if p.ID != c.OrganizerID {
				return fmt.Errorf("%w: convoy %q flags non-organizer %q", ErrInvalidConvoy, c.ID, p.ID)
			}
			organizers++
		}
	}
	if organizers != 1 {
		return fmt.Errorf("%w: convoy %q must list its organizer exactly once", ErrInvalidConvoy, c.ID)
	}
	if c.MaxParticipants != nil && len(c.Participants) > *c.MaxParticipants {
		return fmt.Errorf("%w: convoy %q exceeds its capacity", ErrInvalidConvoy, c.ID)
	}
	return nil
}
