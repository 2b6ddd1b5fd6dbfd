package statemanager

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/a-essam23/go-classroom/pkg/state"
	"github.com/a-essam23/go-classroom/pkg/transport"
	"github.com/google/uuid"
)

var (
	ErrConnectionExists  = errors.New("connection is already registered")
	ErrUnknownConnection = errors.New("unknown connection")
	ErrUserNotFound      = errors.New("user not found")
	ErrRoomNotFound      = errors.New("room not found")
)

// Lock order is conn, then user, then room.
type InMemoryManager struct {
	conns map[uuid.UUID]*state.Connection
	users map[string]*state.User
	rooms map[string]*state.Room

	connMu sync.RWMutex
	userMu sync.RWMutex
	roomMu sync.RWMutex

	logger *slog.Logger
}

func NewInMemoryManager(logger *slog.Logger) *InMemoryManager {
	return &InMemoryManager{
		conns:  make(map[uuid.UUID]*state.Connection),
		users:  make(map[string]*state.User),
		rooms:  make(map[string]*state.Room),
		logger: logger.With(slog.String("component", "state_manager_inmemory")),
	}
}

// compile-time check to ensure InMemoryManager implements Manager.
var _ state.Manager = (*InMemoryManager)(nil)

func (m *InMemoryManager) RegisterConnection(conn transport.Conn, ipAddr string) (*state.Connection, error) {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	connID := conn.ID()
	if _, exists := m.conns[connID]; exists {
		return nil, ErrConnectionExists
	}
	newConn := &state.Connection{
		ID:        connID,
		IPAddress: ipAddr,
		Transport: conn,
		CreatedAt: time.Now(),
	}
	m.conns[connID] = newConn
	m.logger.Debug("Connection registered", slog.String("connID", connID.String()), slog.String("mode", string(conn.Mode())))
	return newConn, nil
}

func (m *InMemoryManager) DeregisterConnection(connID uuid.UUID) (string, bool) {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		// connection is already deregistered
		return "", false
	}
	delete(m.conns, connID)

	if conn.User == nil {
		m.logger.Debug("Connection deregistered", slog.String("connID", connID.String()))
		return "", false
	}

	m.userMu.Lock()
	defer m.userMu.Unlock()
	user := conn.User
	delete(user.Connections, connID)
	conn.User = nil
	offline := len(user.Connections) == 0
	if offline {
		m.dropUserLocked(user)
	}
	m.logger.Debug("Connection deregistered",
		slog.String("connID", connID.String()),
		slog.String("userID", user.ID),
		slog.Bool("offline", offline),
	)
	return user.ID, offline
}

// dropUserLocked forgets a user with no connections and their room memberships.
// userMu must be held.
func (m *InMemoryManager) dropUserLocked(user *state.User) {
	m.roomMu.Lock()
	defer m.roomMu.Unlock()
	for roomID, room := range user.Rooms {
		delete(room.Members, user.ID)
		if len(room.Members) == 0 {
			delete(m.rooms, roomID)
		}
	}
	delete(m.users, user.ID)
}

func (m *InMemoryManager) GetConnection(connID uuid.UUID) (*state.Connection, bool) {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	conn, ok := m.conns[connID]
	return conn, ok
}

func (m *InMemoryManager) GetConnectionCountFrom(ipAddr string) int {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	count := 0
	for _, conn := range m.conns {
		if conn.IPAddress == ipAddr {
			count++
		}
	}
	return count
}

func (m *InMemoryManager) FindOldestConnectionFrom(ipAddr string) (*state.Connection, bool) {
	m.connMu.RLock()
	defer m.connMu.RUnlock()

	var oldest *state.Connection
	for _, conn := range m.conns {
		if conn.IPAddress != ipAddr {
			continue
		}
		if oldest == nil || conn.CreatedAt.Before(oldest.CreatedAt) {
			oldest = conn
		}
	}
	return oldest, oldest != nil
}

func (m *InMemoryManager) AllConnections() []transport.Conn {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	conns := make([]transport.Conn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c.Transport)
	}
	return conns
}

// --- User Management ---

func (m *InMemoryManager) AssociateUser(connID uuid.UUID, id state.Identity) (state.Identity, bool, error) {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	m.userMu.Lock()
	defer m.userMu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		return state.Identity{}, false, ErrUnknownConnection
	}

	// re-authentication as someone else moves the connection
	if prev := conn.User; prev != nil && prev.ID != id.ID {
		delete(prev.Connections, connID)
		if len(prev.Connections) == 0 {
			m.dropUserLocked(prev)
		}
	}

	// Find or create the user session.
	user, exists := m.users[id.ID]
	if !exists {
		user = &state.User{
			Identity:    id,
			Connections: make(map[uuid.UUID]*state.Connection),
			Rooms:       make(map[string]*state.Room),
		}
		m.users[id.ID] = user
		m.logger.Debug("Created new user session", slog.String("userID", id.ID))
	}

	online := len(user.Connections) == 0
	conn.User = user
	user.Connections[connID] = conn

	m.logger.Debug("Associated connection with user", slog.String("connID", connID.String()), slog.String("userID", id.ID))
	return user.Identity, online, nil
}

func (m *InMemoryManager) ConnectionUser(connID uuid.UUID) (state.Identity, bool) {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	m.userMu.RLock()
	defer m.userMu.RUnlock()

	conn, ok := m.conns[connID]
	if !ok || conn.User == nil {
		return state.Identity{}, false
	}
	return conn.User.Identity, true
}

func (m *InMemoryManager) FindUser(userID string) (state.Identity, bool) {
	m.userMu.RLock()
	defer m.userMu.RUnlock()
	user, ok := m.users[userID]
	if !ok {
		return state.Identity{}, false
	}
	return user.Identity, true
}

func (m *InMemoryManager) GetUserConnections(userID string) ([]transport.Conn, error) {
	m.userMu.RLock()
	defer m.userMu.RUnlock()

	user, ok := m.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}

	conns := make([]transport.Conn, 0, len(user.Connections))
	for _, c := range user.Connections {
		conns = append(conns, c.Transport)
	}
	return conns, nil
}

func (m *InMemoryManager) IsOnline(userID string) bool {
	m.userMu.RLock()
	defer m.userMu.RUnlock()
	user, ok := m.users[userID]
	return ok && len(user.Connections) > 0
}

func (m *InMemoryManager) OnlineUsers() []string {
	m.userMu.RLock()
	defer m.userMu.RUnlock()
	ids := make([]string, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// --- Room & Membership Management ---

func (m *InMemoryManager) Join(userID, roomID string) error {
	// Lock users and rooms to ensure atomic joining.
	m.userMu.Lock()
	defer m.userMu.Unlock()
	m.roomMu.Lock()
	defer m.roomMu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	if _, exists := user.Rooms[roomID]; exists {
		return nil
	}

	room, exists := m.rooms[roomID]
	if !exists {
		room = &state.Room{
			ID:      roomID,
			Members: make(map[string]*state.User),
		}
		m.rooms[roomID] = room
	}

	user.Rooms[roomID] = room
	room.Members[userID] = user

	m.logger.Debug("User joined room", slog.String("userID", userID), slog.String("roomID", roomID))
	return nil
}

func (m *InMemoryManager) Leave(userID, roomID string) error {
	m.userMu.Lock()
	defer m.userMu.Unlock()
	m.roomMu.Lock()
	defer m.roomMu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		m.logger.Warn("failed to leave room: user doesn't exist",
			slog.String("userID", userID),
			slog.String("roomID", roomID),
		)
		return nil // User doesn't exist, so they can't be in the room.
	}

	room, ok := m.rooms[roomID]
	if !ok {
		return nil
	}

	delete(user.Rooms, roomID)
	delete(room.Members, userID)

	// For memory hygiene, remove the room if it's now empty.
	if len(room.Members) == 0 {
		delete(m.rooms, roomID)
		m.logger.Debug("Removed empty room", slog.String("roomID", roomID))
	}

	m.logger.Debug("User left room", slog.String("userID", userID), slog.String("roomID", roomID))
	return nil
}

func (m *InMemoryManager) IsMember(userID, roomID string) bool {
	m.roomMu.RLock()
	defer m.roomMu.RUnlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return false
	}
	_, ok = room.Members[userID]
	return ok
}

func (m *InMemoryManager) GetRoomMembers(roomID string) ([]string, error) {
	m.roomMu.RLock()
	defer m.roomMu.RUnlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}

	members := make([]string, 0, len(room.Members))
	for id := range room.Members {
		members = append(members, id)
	}
	sort.Strings(members)
	return members, nil
}
