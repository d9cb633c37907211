package notify

import (
	"time"

	"civicreport/internal/incident"
)

type EventType string

const (
	EventVerified      EventType = "verified"
	EventCreated       EventType = "created"
	EventStatusUpdated EventType = "status_updated"
)

// Event is the wire payload pushed to connected clients.
type Event struct {
	Type      EventType       `json:"type"`
	Incident  IncidentPayload `json:"incident"`
	Timestamp time.Time       `json:"timestamp"`
}

// IncidentPayload is the public-safe subset of incident fields. The reporter
// identity is deliberately excluded: events reach public channels.
type IncidentPayload struct {
	ID          string     `json:"id"`
	Category    string     `json:"category"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Address     string     `json:"address"`
	Lat         *float64   `json:"lat,omitempty"`
	Lng         *float64   `json:"lng,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
}

func payloadFrom(inc incident.Incident) IncidentPayload {
	return IncidentPayload{
		ID:          inc.ID,
		Category:    string(inc.Category),
		Title:       inc.Title,
		Description: inc.Description,
		Address:     inc.Location.Address,
		Lat:         inc.Location.Lat,
		Lng:         inc.Location.Lng,
		Status:      string(inc.Status),
		CreatedAt:   inc.CreatedAt,
		VerifiedAt:  inc.VerifiedAt,
	}
}
