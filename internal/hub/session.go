package hub

import (
	"errors"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/chatroom/internal/logger"
	"github.com/Tyrowin/chatroom/internal/protocol"
)

type sessionState int

const (
	awaitingIdentity sessionState = iota
	steady
	closed
)

// Session dispatches the inbound frames of one connection.
//
// In named mode the first frame decides how the connection registers: a
// NewUser frame supplies its username, anything else registers it
// anonymously and is then handled like any later frame.
type Session struct {
	hub *Hub
	id  ConnID
	out Outbound
	log *logger.Logger

	mu         sync.Mutex
	state      sessionState
	registered bool
	username   string
	named      bool
	closeOnce  sync.Once
}

// Open starts a session for a freshly accepted connection. In anonymous mode
// the connection is registered immediately.
func (h *Hub) Open(id ConnID, out Outbound) (*Session, error) {
	s := &Session{
		hub:   h,
		id:    id,
		out:   out,
		log:   h.log.With("conn_id", id),
		state: awaitingIdentity,
	}

	if h.opts.Mode == ModeAnonymous {
		if err := h.Join(id, out, nil); err != nil {
			return nil, err
		}
		s.registered = true
		s.state = steady
	}
	return s, nil
}

// ID returns the connection id of the session.
func (s *Session) ID() ConnID {
	return s.id
}

// Username returns the registered username, if any.
func (s *Session) Username() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username, s.named
}

// Handle processes one inbound frame. Frames that are not text, fail to
// decode, or carry server-authoritative kinds are dropped without error so
// the connection stays open. The only error is ErrSessionClosed or a
// registration failure.
func (s *Session) Handle(frameType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == closed {
		return ErrSessionClosed
	}

	if frameType != websocket.TextMessage {
		s.log.Debug("ignoring non-text frame", "frame_type", frameType)
		return nil
	}

	env, err := protocol.Decode(data)
	if err != nil {
		s.log.Debug("dropping undecodable frame", "error", err, "unknown_type", errors.Is(err, protocol.ErrUnknownType))
		return nil
	}

	if s.state == awaitingIdentity {
		if err := s.identifyLocked(env); err != nil {
			return err
		}
		if env.MessageType == protocol.NewUser {
			return nil
		}
	}

	switch env.MessageType {
	case protocol.NewMessage:
		s.hub.BroadcastMessage(s.stamp(*env.Message))
	default:
		s.log.Debug("ignoring client-sent frame", "kind", env.MessageType)
	}
	return nil
}

// identifyLocked registers the connection on its first decodable frame.
func (s *Session) identifyLocked(env protocol.Envelope) error {
	var username *string
	if env.MessageType == protocol.NewUser && strings.TrimSpace(*env.Username) != "" {
		name := strings.TrimSpace(*env.Username)
		username = &name
	}

	if err := s.hub.Join(s.id, s.out, username); err != nil {
		return err
	}

	s.registered = true
	s.state = steady
	if username != nil && s.hub.opts.Mode == ModeNamed {
		s.username = *username
		s.named = true
		s.log = s.log.With("username", s.username)
	}
	return nil
}

// stamp fills in the server-owned fields of a client chat message: the
// author becomes the registered username when there is one, and a missing
// timestamp becomes now.
func (s *Session) stamp(msg protocol.ChatMessage) protocol.ChatMessage {
	if s.named {
		msg.Author = s.username
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.hub.now()
	}
	return msg
}

// Close removes the connection from the hub. Only the first call has any
// effect.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		registered := s.registered
		s.state = closed
		s.mu.Unlock()

		if registered {
			s.hub.Leave(s.id)
		}
	})
}
