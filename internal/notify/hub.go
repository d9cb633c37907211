package notify

import (
	"log/slog"
	"sync"
	"time"

	"civicreport/internal/incident"
	"civicreport/internal/rbac"
)

// Channel names. Every connection joins its user channel, its role channel
// and the public alerts channel on establishment.
const ChannelPublicAlerts = "public:alerts"

func UserChannel(userID string) string { return "user:" + userID }
func RoleChannel(role string) string   { return "role:" + role }

// Conn is one live client connection. Send must be safe for concurrent use;
// a failing Send never aborts delivery to other connections.
type Conn interface {
	Send(e Event) error
	Close() error
}

// Identity is the authenticated principal behind a connection.
type Identity struct {
	UserID string
	Role   string
}

// Hub is the fan-out registry: channel name -> set of live connections.
// It is an explicit, constructed component owned by the process bootstrap;
// nothing holds it as module-level state.
type Hub struct {
	mu       sync.Mutex
	channels map[string]map[Conn]struct{}
	members  map[Conn][]string

	log   *slog.Logger
	clock func() time.Time
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		channels: map[string]map[Conn]struct{}{},
		members:  map[Conn][]string{},
		log:      log,
		clock:    time.Now,
	}
}

// Register joins a connection to its user, role and public channels.
func (h *Hub) Register(conn Conn, id Identity) {
	h.mu.Lock()
	defer h.mu.Unlock()

	chans := []string{ChannelPublicAlerts}
	if id.UserID != "" {
		chans = append(chans, UserChannel(id.UserID))
	}
	if id.Role != "" {
		chans = append(chans, RoleChannel(id.Role))
	}

	for _, name := range chans {
		set, ok := h.channels[name]
		if !ok {
			set = map[Conn]struct{}{}
			h.channels[name] = set
		}
		set[conn] = struct{}{}
	}
	h.members[conn] = chans
}

// Unregister removes a connection from every channel it joined. Safe to call
// more than once; never errors.
func (h *Hub) Unregister(conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, name := range h.members[conn] {
		if set, ok := h.channels[name]; ok {
			delete(set, conn)
			if len(set) == 0 {
				delete(h.channels, name)
			}
		}
	}
	delete(h.members, conn)
}

// BroadcastVerified emits a verified event to everyone in public:alerts and,
// as an unconditional fallback, to every other live connection: delivery
// must not depend on channel bookkeeping being consistent. Each connection
// receives the event at most once.
func (h *Hub) BroadcastVerified(inc incident.Incident) {
	h.send(EventVerified, inc, h.unionSnapshot(ChannelPublicAlerts))
}

// NotifyCreated emits a created event to admin and authority channels only;
// new reports are never pushed publicly before verification.
func (h *Hub) NotifyCreated(inc incident.Incident) {
	targets := h.snapshot(RoleChannel(rbac.RoleAdmin), RoleChannel(rbac.RoleAuthority))
	h.send(EventCreated, inc, targets)
}

// NotifyStatusUpdated fans a status change out: a VERIFIED result goes
// public, and the reporter gets a private status_updated event unless they
// caused the change themselves.
func (h *Hub) NotifyStatusUpdated(inc incident.Incident, excludeUserID string) {
	if inc.Status == incident.StatusVerified {
		h.BroadcastVerified(inc)
	}
	if inc.ReporterID != "" && inc.ReporterID != excludeUserID {
		h.send(EventStatusUpdated, inc, h.snapshot(UserChannel(inc.ReporterID)))
	}
}

// Shutdown closes every live connection and clears the registry.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	conns := make([]Conn, 0, len(h.members))
	for conn := range h.members {
		conns = append(conns, conn)
	}
	h.channels = map[string]map[Conn]struct{}{}
	h.members = map[Conn][]string{}
	h.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

// snapshot returns the deduplicated members of the named channels.
func (h *Hub) snapshot(names ...string) []Conn {
	h.mu.Lock()
	defer h.mu.Unlock()

	seen := map[Conn]struct{}{}
	out := make([]Conn, 0)
	for _, name := range names {
		for conn := range h.channels[name] {
			if _, dup := seen[conn]; dup {
				continue
			}
			seen[conn] = struct{}{}
			out = append(out, conn)
		}
	}
	return out
}

// unionSnapshot returns the members of a channel plus every other live
// connection, deduplicated.
func (h *Hub) unionSnapshot(name string) []Conn {
	h.mu.Lock()
	defer h.mu.Unlock()

	seen := map[Conn]struct{}{}
	out := make([]Conn, 0, len(h.members))
	for conn := range h.channels[name] {
		seen[conn] = struct{}{}
		out = append(out, conn)
	}
	for conn := range h.members {
		if _, dup := seen[conn]; dup {
			continue
		}
		seen[conn] = struct{}{}
		out = append(out, conn)
	}
	return out
}

// send delivers an event to each target independently: one broken connection
// must never abort delivery to the rest.
func (h *Hub) send(t EventType, inc incident.Incident, targets []Conn) {
	e := Event{Type: t, Incident: payloadFrom(inc), Timestamp: h.clock().UTC()}
	for _, conn := range targets {
		if err := conn.Send(e); err != nil {
			h.log.Warn("event delivery failed", "event", t, "incident_id", inc.ID, "err", err)
		}
	}
}
