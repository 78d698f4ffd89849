// ABOUTME: Embedded demo dataset used when no persisted state exists
// ABOUTME: Parsed fresh on every call so callers can never mutate the shared source

// Package seed provides the built-in demo convoys and chat history.
package seed

import (
	"bytes"
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/2389/convoy-coordinator/internal/store"
)

//go:embed demo.yaml
var demoYAML []byte

// Dataset is a set of convoys and their chat history.
type Dataset struct {
	Convoys  []store.Convoy
	Messages map[string][]store.ChatMessage
}

type yamlDataset struct {
	Convoys  []yamlConvoy             `yaml:"convoys"`
	Messages map[string][]yamlMessage `yaml:"messages"`
}

type yamlLocation struct {
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat"`
	Lng  float64 `yaml:"lng"`
}

type yamlWaypoint struct {
	ID    string  `yaml:"id"`
	Name  string  `yaml:"name"`
	Lat   float64 `yaml:"lat"`
	Lng   float64 `yaml:"lng"`
	Order int     `yaml:"order"`
}

type yamlParticipant struct {
	ID        string    `yaml:"id"`
	Name      string    `yaml:"name"`
	Avatar    string    `yaml:"avatar"`
	JoinedAt  time.Time `yaml:"joined_at"`
	Organizer bool      `yaml:"organizer"`
}

type yamlConvoy struct {
	ID              string            `yaml:"id"`
	Title           string            `yaml:"title"`
	Description     string            `yaml:"description"`
	StartDate       time.Time         `yaml:"start_date"`
	EndDate         *time.Time        `yaml:"end_date"`
	StartLocation   yamlLocation      `yaml:"start_location"`
	Destination     yamlLocation      `yaml:"destination"`
	Waypoints       []yamlWaypoint    `yaml:"waypoints"`
	Participants    []yamlParticipant `yaml:"participants"`
	MaxParticipants *int              `yaml:"max_participants"`
	OrganizerID     string            `yaml:"organizer_id"`
	OrganizerName   string            `yaml:"organizer_name"`
	CreatedAt       time.Time         `yaml:"created_at"`
	Status          store.Status      `yaml:"status"`
	Tags            []string          `yaml:"tags"`
}

type yamlMessage struct {
	ID         string    `yaml:"id"`
	UserID     string    `yaml:"user_id"`
	UserName   string    `yaml:"user_name"`
	UserAvatar string    `yaml:"user_avatar"`
	Text       string    `yaml:"text"`
	Timestamp  time.Time `yaml:"timestamp"`
}

// Demo returns a fresh copy of the embedded demo dataset.
func Demo() (*Dataset, error) {
	return Parse(demoYAML)
}

// Parse decodes a dataset in the demo.yaml layout. Unknown fields are rejected.
func Parse(data []byte) (*Dataset, error) {
	var raw yamlDataset
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing seed data: %w", err)
	}

	ds := &Dataset{
		Convoys:  make([]store.Convoy, 0, len(raw.Convoys)),
		Messages: make(map[string][]store.ChatMessage, len(raw.Messages)),
	}
	for _, rc := range raw.Convoys {
		c, err := rc.convoy()
		if err != nil {
			return nil, err
		}
		ds.Convoys = append(ds.Convoys, c)
	}
	for convoyID, list := range raw.Messages {
		if len(list) == 0 {
			continue
		}
		out := make([]store.ChatMessage, len(list))
		for i, m := range list {
			out[i] = store.ChatMessage{
				ID:         m.ID,
				ConvoyID:   convoyID,
				UserID:     m.UserID,
				UserName:   m.UserName,
				UserAvatar: m.UserAvatar,
				Text:       m.Text,
				Timestamp:  m.Timestamp.UTC(),
			}
		}
		ds.Messages[convoyID] = out
	}
	return ds, nil
}

func (rc yamlConvoy) convoy() (store.Convoy, error) {
	if rc.ID == "" {
		return store.Convoy{}, fmt.Errorf("seed convoy %q: missing id", rc.Title)
	}
	if !rc.Status.Valid() {
		return store.Convoy{}, fmt.Errorf("seed convoy %s: unknown status %q", rc.ID, rc.Status)
	}

	c := store.Convoy{
		ID:              rc.ID,
		Title:           rc.Title,
		Description:     rc.Description,
		StartDate:       rc.StartDate.UTC(),
		StartLocation:   store.Location(rc.StartLocation),
		Destination:     store.Location(rc.Destination),
		MaxParticipants: rc.MaxParticipants,
		OrganizerID:     rc.OrganizerID,
		OrganizerName:   rc.OrganizerName,
		CreatedAt:       rc.CreatedAt.UTC(),
		Status:          rc.Status,
	}
	if rc.EndDate != nil {
		end := rc.EndDate.UTC()
		c.EndDate = &end
	}
	if len(rc.Tags) > 0 {
		c.Tags = rc.Tags
	}
	if len(rc.Waypoints) > 0 {
		c.Waypoints = make([]store.Waypoint, len(rc.Waypoints))
		for i, w := range rc.Waypoints {
			c.Waypoints[i] = store.Waypoint(w)
		}
	}
	if len(rc.Participants) > 0 {
		c.Participants = make([]store.Participant, len(rc.Participants))
		for i, p := range rc.Participants {
			c.Participants[i] = store.Participant{
				ID:          p.ID,
				Name:        p.Name,
				Avatar:      p.Avatar,
				JoinedAt:    p.JoinedAt.UTC(),
				IsOrganizer: p.Organizer,
			}
		}
	}
	return c, nil
}

// Fill supplies each top-level key that snap lacks from ds. Keys already
// present, even when empty, are left alone. Identity is never seeded.
// Returns the names of the keys that were filled.
func Fill(snap *store.Snapshot, ds *Dataset) []string {
	var filled []string
	if snap.Convoys == nil {
		snap.Convoys = ds.Convoys
		filled = append(filled, "convoys")
	}
	if snap.Messages == nil {
		snap.Messages = ds.Messages
		filled = append(filled, "messages")
	}
	return filled
}
