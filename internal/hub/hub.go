package hub

import (
	"fmt"

	"github.com/Tyrowin/chatroom/internal/logger"
	"github.com/Tyrowin/chatroom/internal/protocol"
)

// Mode selects which protocol variant the hub speaks.
type Mode string

const (
	// ModeNamed waits for a NewUser frame to learn each username and keeps
	// every client's user list current.
	ModeNamed Mode = "named"
	// ModeAnonymous registers connections on accept without a username and
	// never pushes user lists.
	ModeAnonymous Mode = "anonymous"
)

// ParseMode converts a config value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeNamed, "":
		return ModeNamed, nil
	case ModeAnonymous:
		return ModeAnonymous, nil
	}
	return "", fmt.Errorf("unknown hub mode %q", s)
}

// Options tunes hub behaviour.
type Options struct {
	Mode Mode
	// AnnounceJoins broadcasts "<name> joins the chat" from System when a
	// named connection registers.
	AnnounceJoins bool
	// RefreshUsersOnLeave pushes a fresh user list when a named connection
	// leaves.
	RefreshUsersOnLeave bool
}

// DefaultOptions returns the named-mode defaults.
func DefaultOptions() Options {
	return Options{
		Mode:                ModeNamed,
		AnnounceJoins:       true,
		RefreshUsersOnLeave: true,
	}
}

// Hub is the broadcast engine over a Registry.
type Hub struct {
	registry *Registry
	opts     Options
	log      *logger.Logger
	now      func() protocol.NaiveTime
}

// New creates a hub with an empty registry. A nil logger uses the global one.
func New(opts Options, log *logger.Logger) *Hub {
	if opts.Mode == "" {
		opts.Mode = ModeNamed
	}
	if log == nil {
		log = logger.Get()
	}
	return &Hub{
		registry: NewRegistry(),
		opts:     opts,
		log:      log.With("component", "hub"),
		now:      protocol.Now,
	}
}

// Registry exposes the underlying registry for inspection.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Options returns the options the hub was built with.
func (h *Hub) Options() Options {
	return h.opts
}

// Len returns the number of registered connections.
func (h *Hub) Len() int {
	return h.registry.Len()
}

// Users returns the sorted usernames currently registered.
func (h *Hub) Users() []string {
	return h.registry.SnapshotUsernames()
}

// Join registers a connection and, for named connections, announces it and
// pushes the refreshed user list to everyone including the newcomer.
func (h *Hub) Join(id ConnID, out Outbound, username *string) error {
	if h.opts.Mode == ModeAnonymous {
		username = nil
	}

	snapshot, err := h.registry.Register(id, out, username)
	if err != nil {
		return err
	}

	if username == nil {
		h.log.Info("connection joined", "conn_id", id, "total", snapshot.PreviousCount+1)
		return nil
	}

	h.log.Info("user joined",
		"conn_id", id,
		"username", *username,
		"already_present", len(snapshot.PreviousUsers),
		"total", snapshot.PreviousCount+1)

	if h.opts.AnnounceJoins {
		h.BroadcastMessage(protocol.JoinAnnouncement(*username, h.now()))
	}
	h.BroadcastUserList()
	return nil
}

// Leave removes a connection. It is safe to call for an id that is not, or
// is no longer, registered.
func (h *Hub) Leave(id ConnID) {
	member, ok := h.registry.Remove(id)
	if !ok {
		return
	}

	h.log.Info("connection left", "conn_id", id, "username", member.Username, "remaining", h.registry.Len())

	if member.Named && h.opts.RefreshUsersOnLeave && h.opts.Mode == ModeNamed {
		h.BroadcastUserList()
	}
}

// BroadcastMessage delivers msg to every registered connection, the sender
// included. It returns the number of delivery attempts.
func (h *Hub) BroadcastMessage(msg protocol.ChatMessage) int {
	frame, err := protocol.Encode(protocol.NewMessageEnvelope(msg))
	if err != nil {
		h.log.ErrorWithErr("dropping chat message", err, "author", msg.Author)
		return 0
	}

	h.registry.mu.Lock()
	defer h.registry.mu.Unlock()
	return h.fanOutLocked(protocol.NewMessage, frame)
}

// BroadcastUserList pushes the current usernames to every registered
// connection. The list and the recipients come from the same critical
// section, so a member always appears in the list it receives.
func (h *Hub) BroadcastUserList() int {
	h.registry.mu.Lock()
	defer h.registry.mu.Unlock()

	frame, err := protocol.Encode(protocol.UserListEnvelope(h.registry.usernamesLocked()))
	if err != nil {
		h.log.ErrorWithErr("dropping user list", err)
		return 0
	}
	return h.fanOutLocked(protocol.UserList, frame)
}

func (h *Hub) fanOutLocked(kind protocol.MessageType, frame []byte) int {
	attempts, evicted := h.registry.deliverLocked(frame, func(id ConnID, err error) {
		h.log.WarnWithErr("delivery failed", err, "conn_id", id, "kind", kind)
	})

	for _, m := range evicted {
		h.log.Info("evicted closed connection", "conn_id", m.ID, "username", m.Username)
	}

	h.log.Debug("broadcast", "kind", kind, "recipients", attempts, "bytes", len(frame))
	return attempts
}
