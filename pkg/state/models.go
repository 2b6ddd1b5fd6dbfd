package state

import (
	"time"

	"github.com/a-essam23/go-classroom/pkg/transport"
	"github.com/google/uuid"
)

// representation of a single realtime link, WebSocket or polling session.
type Connection struct {
	ID        uuid.UUID
	IPAddress string
	Transport transport.Conn // The actual connection for sending messages
	User      *User          // Pointer to the owning user (nil until authenticated)
	CreatedAt time.Time
}

// canonical representation of an authenticated user, aggregating all their connections.
type User struct {
	Identity
	Connections map[uuid.UUID]*Connection // All active connections for this user
	Rooms       map[string]*Room          // Rooms joined, keyed by RoomID
}

// Identity is what the handshake learns about a user from their credential.
type Identity struct {
	ID     string
	Name   string
	Avatar string
	Role   string
}

// canonical representation of a broadcast channel, e.g. a group chat.
type Room struct {
	ID      string
	Members map[string]*User // All users who are members of this room, keyed by UserID
}
