// ABOUTME: Persistence adapter that serializes Snapshots into a BlobStore
// ABOUTME: Dates travel as ISO-8601 strings and are revived on load; corrupt data fails closed

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultSnapshotKey is the blob key used when none is configured
const DefaultSnapshotKey = "convoy-state"

// dateLayout is the ISO-8601 form written for every temporal field.
// RFC3339Nano keeps sub-second precision so values round-trip exactly.
const dateLayout = time.RFC3339Nano

// SnapshotStore saves and loads the whole application state under one key.
type SnapshotStore struct {
	blobs  BlobStore
	key    string
	logger *slog.Logger
}

// NewSnapshotStore wraps a BlobStore. An empty key selects DefaultSnapshotKey.
// Pass nil logger for default.
func NewSnapshotStore(blobs BlobStore, key string, logger *slog.Logger) *SnapshotStore {
	if key == "" {
		key = DefaultSnapshotKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotStore{
		blobs:  blobs,
		key:    key,
		logger: logger.With("component", "snapshot"),
	}
}

// Save encodes snap and writes it through to the backend.
func (s *SnapshotStore) Save(ctx context.Context, snap *Snapshot) error {
	data, err := EncodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := s.blobs.Put(ctx, s.key, data); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	s.logger.Debug("snapshot saved", "key", s.key, "size", len(data))
	return nil
}

// Load reads and decodes the stored snapshot.
// Returns ErrNotFound when nothing was saved and ErrCorruptSnapshot when the
// blob cannot be fully decoded; in both cases no partial snapshot is returned.
func (s *SnapshotStore) Load(ctx context.Context) (*Snapshot, error) {
	data, err := s.blobs.Get(ctx, s.key)
	if err != nil {
		return nil, err
	}
	snap, err := DecodeSnapshot(data)
	if err != nil {
		s.logger.Warn("discarding unreadable snapshot", "key", s.key, "error", err)
		return nil, err
	}
	return snap, nil
}

// Clear removes the stored snapshot.
func (s *SnapshotStore) Clear(ctx context.Context) error {
	return s.blobs.Delete(ctx, s.key)
}

// Wire shapes. Field names follow the persisted layout:
// {identity, convoys, messages}.

type wireSnapshot struct {
	Identity *wireIdentity                  `json:"identity"`
	Convoys  *[]wireConvoy                  `json:"convoys,omitempty"`
	Messages *map[string][]wireChatMessage `json:"messages,omitempty"`
}

type wireIdentity struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

type wireLocation struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

type wireWaypoint struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Order int     `json:"order"`
}

type wireParticipant struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Avatar      string `json:"avatar,omitempty"`
	JoinedAt    string `json:"joinedAt"`
	IsOrganizer bool   `json:"isOrganizer"`
}

type wireConvoy struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	StartDate       string            `json:"startDate"`
	EndDate         *string           `json:"endDate,omitempty"`
	StartLocation   wireLocation      `json:"startLocation"`
	Destination     wireLocation      `json:"destination"`
	Waypoints       []wireWaypoint    `json:"waypoints"`
	Participants    []wireParticipant `json:"participants"`
	MaxParticipants *int              `json:"maxParticipants,omitempty"`
	OrganizerID     string            `json:"organizerId"`
	OrganizerName   string            `json:"organizerName"`
	CreatedAt       string            `json:"createdAt"`
	Status          Status            `json:"status"`
	Tags            []string          `json:"tags,omitempty"`
}

type wireChatMessage struct {
	ID         string `json:"id"`
	ConvoyID   string `json:"convoyId"`
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	UserAvatar string `json:"userAvatar,omitempty"`
	Text       string `json:"text"`
	Timestamp  string `json:"timestamp"`
}

// EncodeSnapshot serializes snap to JSON with ISO-8601 dates.
func EncodeSnapshot(snap *Snapshot) ([]byte, error) {
	if snap == nil {
		snap = &Snapshot{}
	}
	var w wireSnapshot
	if snap.Identity != nil {
		id := wireIdentity(*snap.Identity)
		w.Identity = &id
	}
	if snap.Convoys != nil {
		convoys := make([]wireConvoy, len(snap.Convoys))
		for i, c := range snap.Convoys {
			convoys[i] = convoyToWire(c)
		}
		w.Convoys = &convoys
	}
	if snap.Messages != nil {
		messages := make(map[string][]wireChatMessage, len(snap.Messages))
		for convoyID, list := range snap.Messages {
			out := make([]wireChatMessage, len(list))
			for i, m := range list {
				out[i] = messageToWire(m)
			}
			messages[convoyID] = out
		}
		w.Messages = &messages
	}
	return json.Marshal(w)
}

// DecodeSnapshot parses data produced by EncodeSnapshot and revives every
// date field. Any malformed field rejects the whole blob with ErrCorruptSnapshot.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var w wireSnapshot
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	snap := &Snapshot{}
	if w.Identity != nil {
		id := Identity(*w.Identity)
		if id.ID == "" {
			return nil, fmt.Errorf("%w: identity without id", ErrCorruptSnapshot)
		}
		snap.Identity = &id
	}
	if w.Convoys != nil {
		snap.Convoys = make([]Convoy, 0, len(*w.Convoys))
		for i, wc := range *w.Convoys {
			c, err := convoyFromWire(wc)
			if err != nil {
				return nil, fmt.Errorf("%w: convoys[%d]: %v", ErrCorruptSnapshot, i, err)
			}
			snap.Convoys = append(snap.Convoys, c)
		}
	}
	if w.Messages != nil {
		snap.Messages = make(map[string][]ChatMessage, len(*w.Messages))
		for convoyID, list := range *w.Messages {
			out := make([]ChatMessage, 0, len(list))
			for i, wm := range list {
				m, err := messageFromWire(wm)
				if err != nil {
					return nil, fmt.Errorf("%w: messages[%s][%d]: %v", ErrCorruptSnapshot, convoyID, i, err)
				}
				out = append(out, m)
			}
			snap.Messages[convoyID] = out
		}
	}
	return snap, nil
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func parseDate(field, s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", field, err)
	}
	return t, nil
}

func convoyToWire(c Convoy) wireConvoy {
	w := wireConvoy{
		ID:              c.ID,
		Title:           c.Title,
		Description:     c.Description,
		StartDate:       formatDate(c.StartDate),
		StartLocation:   wireLocation(c.StartLocation),
		Destination:     wireLocation(c.Destination),
		Waypoints:       make([]wireWaypoint, len(c.Waypoints)),
		Participants:    make([]wireParticipant, len(c.Participants)),
		MaxParticipants: c.MaxParticipants,
		OrganizerID:     c.OrganizerID,
		OrganizerName:   c.OrganizerName,
		CreatedAt:       formatDate(c.CreatedAt),
		Status:          c.Status,
		Tags:            c.Tags,
	}
	if c.EndDate != nil {
		end := formatDate(*c.EndDate)
		w.EndDate = &end
	}
	for i, wp := range c.Waypoints {
		w.Waypoints[i] = wireWaypoint(wp)
	}
	for i, p := range c.Participants {
		w.Participants[i] = wireParticipant{
			ID:          p.ID,
			Name:        p.Name,
			Avatar:      p.Avatar,
			JoinedAt:    formatDate(p.JoinedAt),
			IsOrganizer: p.IsOrganizer,
		}
	}
	return w
}

func convoyFromWire(w wireConvoy) (Convoy, error) {
	if w.ID == "" {
		return Convoy{}, errors.New("missing id")
	}
	if !w.Status.Valid() {
		return Convoy{}, fmt.Errorf("unknown status %q", w.Status)
	}
	start, err := parseDate("startDate", w.StartDate)
	if err != nil {
		return Convoy{}, err
	}
	created, err := parseDate("createdAt", w.CreatedAt)
	if err != nil {
		return Convoy{}, err
	}

	c := Convoy{
		ID:              w.ID,
		Title:           w.Title,
		Description:     w.Description,
		StartDate:       start,
		StartLocation:   Location(w.StartLocation),
		Destination:     Location(w.Destination),
		MaxParticipants: w.MaxParticipants,
		OrganizerID:     w.OrganizerID,
		OrganizerName:   w.OrganizerName,
		CreatedAt:       created,
		Status:          w.Status,
	}
	if len(w.Tags) > 0 {
		c.Tags = w.Tags
	}
	if w.EndDate != nil {
		end, err := parseDate("endDate", *w.EndDate)
		if err != nil {
			return Convoy{}, err
		}
		c.EndDate = &end
	}
	// Empty lists decode as nil so that a round trip is lossless for
	// convoys built in memory, which never carry empty non-nil slices.
	if len(w.Waypoints) > 0 {
		c.Waypoints = make([]Waypoint, len(w.Waypoints))
	}
	for i, wp := range w.Waypoints {
		c.Waypoints[i] = Waypoint(wp)
	}
	if len(w.Participants) > 0 {
		c.Participants = make([]Participant, len(w.Participants))
	}
	for i, wp := range w.Participants {
		joined, err := parseDate(fmt.Sprintf("participants[%d].joinedAt", i), wp.JoinedAt)
		if err != nil {
			return Convoy{}, err
		}
		c.Participants[i] = Participant{
			ID:          wp.ID,
			Name:        wp.Name,
			Avatar:      wp.Avatar,
			JoinedAt:    joined,
			IsOrganizer: wp.IsOrganizer,
		}
	}
	return c, nil
}

func messageToWire(m ChatMessage) wireChatMessage {
	return wireChatMessage{
		ID:         m.ID,
		ConvoyID:   m.ConvoyID,
		UserID:     m.UserID,
		UserName:   m.UserName,
		UserAvatar: m.UserAvatar,
		Text:       m.Text,
		Timestamp:  formatDate(m.Timestamp),
	}
}

func messageFromWire(w wireChatMessage) (ChatMessage, error) {
	ts, err := parseDate("timestamp", w.Timestamp)
	if err != nil {
		return ChatMessage{}, err
	}
	return ChatMessage{
		ID:         w.ID,
		ConvoyID:   w.ConvoyID,
		UserID:     w.UserID,
		UserName:   w.UserName,
		UserAvatar: w.UserAvatar,
		Text:       w.Text,
		Timestamp:  ts,
	}, nil
}
