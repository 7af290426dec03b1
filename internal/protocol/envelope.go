package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType tags the payload carried by an Envelope.
type MessageType string

const (
	// NewMessage carries a ChatMessage.
	NewMessage MessageType = "NewMessage"
	// UserList carries the current list of usernames.
	UserList MessageType = "UserList"
	// NewUser carries the username a client announces on connect.
	NewUser MessageType = "NewUser"
)

// SystemAuthor is the author used for hub-generated chat messages.
const SystemAuthor = "System"

// Decode failures. The dispatcher treats all of them as "ignore the frame".
var (
	ErrMalformed      = errors.New("malformed envelope")
	ErrUnknownType    = errors.New("unknown message_type")
	ErrMissingPayload = errors.New("payload missing for message_type")
)

// Valid reports whether m is one of the known message types.
func (m MessageType) Valid() bool {
	switch m {
	case NewMessage, UserList, NewUser:
		return true
	}
	return false
}

// ChatMessage is a single chat line. The "messsage" key is kept as-is for
// compatibility with existing clients.
type ChatMessage struct {
	Body      string    `json:"messsage"`
	Author    string    `json:"author"`
	CreatedAt NaiveTime `json:"created_at"`
}

// NewSystemMessage builds a hub-authored chat message.
func NewSystemMessage(body string, at NaiveTime) ChatMessage {
	return ChatMessage{Body: body, Author: SystemAuthor, CreatedAt: at}
}

// JoinAnnouncement is the system message broadcast when username joins.
func JoinAnnouncement(username string, at NaiveTime) ChatMessage {
	return NewSystemMessage(fmt.Sprintf("%s joins the chat", username), at)
}

// Envelope is the frame exchanged over the wire. Exactly one of Message,
// Users and Username is populated, selected by MessageType; the others are
// encoded as null.
type Envelope struct {
	MessageType MessageType  `json:"message_type"`
	Message     *ChatMessage `json:"message"`
	Users       []string     `json:"users"`
	Username    *string      `json:"username"`
}

// NewMessageEnvelope wraps msg in a NewMessage envelope.
func NewMessageEnvelope(msg ChatMessage) Envelope {
	return Envelope{MessageType: NewMessage, Message: &msg}
}

// UserListEnvelope wraps users in a UserList envelope. A nil slice is sent
// as an empty list so clients never see users: null on a UserList frame.
func UserListEnvelope(users []string) Envelope {
	if users == nil {
		users = []string{}
	}
	return Envelope{MessageType: UserList, Users: users}
}

// NewUserEnvelope wraps username in a NewUser envelope.
func NewUserEnvelope(username string) Envelope {
	return Envelope{MessageType: NewUser, Username: &username}
}

// Encode serialises env.
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", env.MessageType, err)
	}
	return data, nil
}

// Decode parses a frame and checks that the payload required by its
// message_type is present. Payloads that do not belong to the type are
// dropped from the result.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if !env.MessageType.Valid() {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownType, env.MessageType)
	}

	switch env.MessageType {
	case NewMessage:
		if env.Message == nil {
			return Envelope{}, fmt.Errorf("%w: %s", ErrMissingPayload, env.MessageType)
		}
		return Envelope{MessageType: NewMessage, Message: env.Message}, nil
	case UserList:
		if env.Users == nil {
			return Envelope{}, fmt.Errorf("%w: %s", ErrMissingPayload, env.MessageType)
		}
		return Envelope{MessageType: UserList, Users: env.Users}, nil
	default:
		if env.Username == nil {
			return Envelope{}, fmt.Errorf("%w: %s", ErrMissingPayload, env.MessageType)
		}
		return Envelope{MessageType: NewUser, Username: env.Username}, nil
	}
}
