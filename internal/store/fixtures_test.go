// ABOUTME: Shared fixtures for store package tests
// ABOUTME: Builds a fully populated snapshot with sub-second UTC timestamps

package store

import "time"

func intPtr(n int) *int { return &n }

func timePtr(t time.Time) *time.Time { return &t }

// sampleSnapshot exercises every optional field of the persisted shape.
func sampleSnapshot() *Snapshot {
	created := time.Date(2024, 5, 20, 9, 15, 30, 123456789, time.UTC)
	start := time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC)

	return &Snapshot{
		Identity: &Identity{ID: "1", Name: "Demo Benutzer", Email: "demo@example.com", Avatar: "🚐"},
		Convoys: []Convoy{
			{
				ID:            "convoy-1",
				Title:         "Alpen-Tour",
				Description:   "Durch die **Alpen**",
				StartDate:     start,
				EndDate:       timePtr(start.Add(7 * 24 * time.Hour)),
				StartLocation: Location{Name: "München", Lat: 48.1351, Lng: 11.582},
				Destination:   Location{Name: "Bozen", Lat: 46.4983, Lng: 11.3548},
				Waypoints: []Waypoint{
					{ID: "wp-2", Name: "Innsbruck", Lat: 47.2692, Lng: 11.4041, Order: 2},
					{ID: "wp-1", Name: "Garmisch", Lat: 47.4921, Lng: 11.0958, Order: 1},
				},
				Participants: []Participant{
					{ID: "1", Name: "Demo Benutzer", Avatar: "🚐", JoinedAt: created, IsOrganizer: true},
					{ID: "2", Name: "Test User", JoinedAt: created.Add(time.Hour)},
				},
				MaxParticipants: intPtr(8),
				OrganizerID:     "1",
				OrganizerName:   "Demo Benutzer",
				CreatedAt:       created,
				Status:          StatusPlanned,
				Tags:            []string{"Berge", "Camping"},
			},
			{
				ID:            "convoy-2",
				Title:         "Ostsee",
				StartDate:     start,
				StartLocation: Location{Name: "Hamburg", Lat: 53.55, Lng: 9.99},
				Destination:   Location{Name: "Rügen", Lat: 54.42, Lng: 13.43},
				Participants: []Participant{
					{ID: "3", Name: "Max", JoinedAt: created, IsOrganizer: true},
				},
				OrganizerID:   "3",
				OrganizerName: "Max",
				CreatedAt:     created,
				Status:        StatusActive,
			},
		},
		Messages: map[string][]ChatMessage{
			"convoy-1": {
				{ID: "m1", ConvoyID: "convoy-1", UserID: "1", UserName: "Demo Benutzer", UserAvatar: "🚐", Text: "Hallo!", Timestamp: created},
				{ID: "m2", ConvoyID: "convoy-1", UserID: "2", UserName: "Test User", Text: "Servus", Timestamp: created.Add(90 * time.Second)},
			},
		},
	}
}
