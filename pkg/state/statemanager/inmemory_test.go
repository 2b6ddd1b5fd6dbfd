package statemanager_test

import (
	"log/slog"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/a-essam23/go-classroom/pkg/state"
	"github.com/a-essam23/go-classroom/pkg/state/statemanager"
	"github.com/a-essam23/go-classroom/pkg/transport"
)

// --- Test Suite Setup ---

func newTestLogger() *slog.Logger {
	// Discard logger output during tests by setting a high level
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func newTestManager() *statemanager.InMemoryManager {
	return statemanager.NewInMemoryManager(newTestLogger())
}

// The socket is never used; only the id matters to the manager.
func newTransportConn() *transport.WSConn {
	return transport.NewWSConn(nil, transport.ConnectionConfig{}, nil, nil, newTestLogger())
}

func identity(id string) state.Identity {
	return state.Identity{ID: id, Name: "User " + id, Role: "student"}
}

// --- Connection and User Management Tests ---

func TestConnectionLifecycle(t *testing.T) {
	m := newTestManager()
	conn := newTransportConn()

	// 1. Register
	stateConn, err := m.RegisterConnection(conn, "127.0.0.1")
	if err != nil {
		t.Fatalf("RegisterConnection failed: %v", err)
	}
	if stateConn.ID != conn.ID() {
		t.Errorf("Registered connection ID mismatch")
	}
	if _, err := m.RegisterConnection(conn, "127.0.0.1"); err != statemanager.ErrConnectionExists {
		t.Errorf("Expected ErrConnectionExists on double register, got %v", err)
	}

	// 2. Get
	retrievedConn, found := m.GetConnection(conn.ID())
	if !found {
		t.Fatal("GetConnection failed to find registered connection")
	}
	if retrievedConn.ID != conn.ID() {
		t.Errorf("Retrieved connection ID mismatch")
	}

	// 3. Deregister an anonymous connection
	userID, offline := m.DeregisterConnection(conn.ID())
	if userID != "" || offline {
		t.Errorf("Anonymous connection should not report a user, got %q offline=%v", userID, offline)
	}
	if _, found = m.GetConnection(conn.ID()); found {
		t.Error("Found connection after it should have been deregistered")
	}

	// 4. Deregister again is a no-op
	if userID, _ := m.DeregisterConnection(conn.ID()); userID != "" {
		t.Error("Second deregister should be a no-op")
	}
}

func TestUserAssociationAndPresence(t *testing.T) {
	m := newTestManager()
	conn1 := newTransportConn()
	conn2 := newTransportConn()

	m.RegisterConnection(conn1, "1.1.1.1")
	m.RegisterConnection(conn2, "2.2.2.2")

	if _, _, err := m.AssociateUser(conn1.ID(), identity("7")); err != nil {
		t.Fatalf("AssociateUser (1) failed: %v", err)
	}
	// Reconnecting before the old link is gone must not look like a new login.
	_, online, err := m.AssociateUser(conn2.ID(), identity("7"))
	if err != nil {
		t.Fatalf("AssociateUser (2) failed: %v", err)
	}
	if online {
		t.Error("Second connection should not report the user coming online")
	}

	conns, err := m.GetUserConnections("7")
	if err != nil || len(conns) != 2 {
		t.Fatalf("Expected 2 connections, got %d (err %v)", len(conns), err)
	}
	if who, ok := m.ConnectionUser(conn2.ID()); !ok || who.Name != "User 7" {
		t.Errorf("ConnectionUser returned %+v, %v", who, ok)
	}

	if _, offline := m.DeregisterConnection(conn1.ID()); offline {
		t.Error("User went offline while a connection remains")
	}
	if !m.IsOnline("7") {
		t.Error("Expected user to still be online")
	}

	userID, offline := m.DeregisterConnection(conn2.ID())
	if userID != "7" || !offline {
		t.Errorf("Expected user 7 to go offline, got %q offline=%v", userID, offline)
	}
	if m.IsOnline("7") {
		t.Error("Expected user to be offline")
	}
	if _, found := m.FindUser("7"); found {
		t.Error("Offline user should be forgotten")
	}
}

func TestAssociateUnknownConnection(t *testing.T) {
	m := newTestManager()
	if _, _, err := m.AssociateUser(newTransportConn().ID(), identity("1")); err != statemanager.ErrUnknownConnection {
		t.Errorf("Expected ErrUnknownConnection, got %v", err)
	}
}

func TestReauthenticateMovesConnection(t *testing.T) {
	m := newTestManager()
	conn := newTransportConn()
	m.RegisterConnection(conn, "1.1.1.1")
	m.AssociateUser(conn.ID(), identity("1"))

	_, online, err := m.AssociateUser(conn.ID(), identity("2"))
	if err != nil {
		t.Fatalf("AssociateUser failed: %v", err)
	}
	if !online {
		t.Error("Expected user 2 to come online")
	}
	if m.IsOnline("1") {
		t.Error("Previous user should have lost the connection")
	}
	if got := m.OnlineUsers(); len(got) != 1 || got[0] != "2" {
		t.Errorf("Expected only user 2 online, got %v", got)
	}
}

func TestOldestConnectionPerAddress(t *testing.T) {
	m := newTestManager()
	conn1 := newTransportConn()
	conn2 := newTransportConn()
	conn3 := newTransportConn()

	m.RegisterConnection(conn1, "1.1.1.1")
	time.Sleep(5 * time.Millisecond) // Ensure timestamps are different
	m.RegisterConnection(conn2, "1.1.1.1")
	m.RegisterConnection(conn3, "2.2.2.2")

	if n := m.GetConnectionCountFrom("1.1.1.1"); n != 2 {
		t.Errorf("Expected 2 connections from 1.1.1.1, got %d", n)
	}
	oldest, found := m.FindOldestConnectionFrom("1.1.1.1")
	if !found {
		t.Fatal("Expected to find oldest connection, but did not")
	}
	if oldest.ID != conn1.ID() {
		t.Errorf("Expected oldest connection ID to be %s, got %s", conn1.ID(), oldest.ID)
	}
	if _, found := m.FindOldestConnectionFrom("9.9.9.9"); found {
		t.Error("Unexpected connection for unknown address")
	}
	if all := m.AllConnections(); len(all) != 3 {
		t.Errorf("Expected 3 connections, got %d", len(all))
	}
}

// --- Room Management Tests ---

func TestRoomMembership(t *testing.T) {
	m := newTestManager()
	userID1, userID2 := "1", "2"
	roomID := "group:5"
	conn1, conn2 := newTransportConn(), newTransportConn()
	m.RegisterConnection(conn1, "1.1.1.1")
	m.RegisterConnection(conn2, "2.2.2.2")
	m.AssociateUser(conn1.ID(), identity(userID1))
	m.AssociateUser(conn2.ID(), identity(userID2))

	if err := m.Join("nobody", roomID); err != statemanager.ErrUserNotFound {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}

	// Join
	if err := m.Join(userID1, roomID); err != nil {
		t.Fatalf("User1 failed to join room: %v", err)
	}
	if err := m.Join(userID2, roomID); err != nil {
		t.Fatalf("User2 failed to join room: %v", err)
	}
	// Joining twice is harmless
	if err := m.Join(userID2, roomID); err != nil {
		t.Fatalf("Repeated join failed: %v", err)
	}

	members, err := m.GetRoomMembers(roomID)
	if err != nil {
		t.Fatalf("GetRoomMembers failed: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("Expected 2 members in room, got %d", len(members))
	}

	// Leave
	if err := m.Leave(userID1, roomID); err != nil {
		t.Fatalf("User1 failed to leave room: %v", err)
	}
	if m.IsMember(userID1, roomID) {
		t.Error("User1 is still a member after leaving")
	}
	members, _ = m.GetRoomMembers(roomID)
	if len(members) != 1 || members[0] != userID2 {
		t.Errorf("Expected remaining member to be %s, got %v", userID2, members)
	}

	// Going offline empties the room, which is then removed
	m.DeregisterConnection(conn2.ID())
	if _, err := m.GetRoomMembers(roomID); err != statemanager.ErrRoomNotFound {
		t.Errorf("Expected room to be removed after last member went offline, got %v", err)
	}
}

func TestConcurrentJoinLeave(t *testing.T) {
	m := newTestManager()
	numUsers := 20
	for i := 0; i < numUsers; i++ {
		conn := newTransportConn()
		m.RegisterConnection(conn, "10.0.0.1")
		m.AssociateUser(conn.ID(), identity(strconv.Itoa(i)))
	}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			userID := strconv.Itoa(i % numUsers)
			roomID := "group:" + strconv.Itoa(i%3)
			m.Join(userID, roomID)
			m.IsMember(userID, roomID)
			m.GetRoomMembers(roomID)
			if i%2 == 0 {
				m.Leave(userID, roomID)
			}
		}(i)
	}
	wg.Wait()
}
