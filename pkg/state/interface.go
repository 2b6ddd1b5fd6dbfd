package state

import (
	"github.com/a-essam23/go-classroom/pkg/transport"
	"github.com/google/uuid"
)

type Manager interface {
	// --- Connection Lifecycle ---
	RegisterConnection(conn transport.Conn, ipAddr string) (*Connection, error)
	// DeregisterConnection reports the owning user, if any, and whether that
	// was their last connection.
	DeregisterConnection(connID uuid.UUID) (userID string, offline bool)
	GetConnection(connID uuid.UUID) (*Connection, bool)
	GetConnectionCountFrom(ipAddr string) int
	FindOldestConnectionFrom(ipAddr string) (*Connection, bool)
	AllConnections() []transport.Conn

	// --- User Management ---
	// links a connection to a user, creating the user if they don't exist.
	// online reports that this is the user's first live connection.
	AssociateUser(connID uuid.UUID, id Identity) (user Identity, online bool, err error)
	ConnectionUser(connID uuid.UUID) (Identity, bool)
	FindUser(userID string) (Identity, bool)
	GetUserConnections(userID string) ([]transport.Conn, error)
	IsOnline(userID string) bool
	OnlineUsers() []string

	// --- Room & Membership Management ---
	// adds a user to a room, creating the room if it doesn't exist.
	Join(userID, roomID string) error
	Leave(userID, roomID string) error
	IsMember(userID, roomID string) bool
	GetRoomMembers(roomID string) ([]string, error)
}
