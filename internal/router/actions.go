package router

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/a-essam23/go-classroom/pkg/transport"
	"github.com/google/uuid"
)

// Room ids. Every authenticated user is implicitly in their own personal room.
func userRoom(userID string) string   { return "user:" + userID }
func groupRoom(groupID string) string { return "group:" + groupID }

func frame(event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload for '%s': %w", event, err)
	}
	msg, err := json.Marshal(ClientMessage{Event: event, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame for '%s': %w", event, err)
	}
	return msg, nil
}

// notifyOrigin replies on the connection the current frame arrived on.
func (r *EventRouter) notifyOrigin(actx *actionContext, event string, payload any) {
	msg, err := frame(event, payload)
	if err != nil {
		r.logger.Error("Failed to build reply", slog.Any("error", err))
		return
	}
	actx.Conn.Send(msg)
}

func (r *EventRouter) notifyUser(userID, event string, payload any) int {
	return r.notifyRoom(userRoom(userID), event, payload)
}

// notifyRoom fans a frame out to every connection in roomID and returns how many were reached.
func (r *EventRouter) notifyRoom(roomID, event string, payload any) int {
	msg, err := frame(event, payload)
	if err != nil {
		r.logger.Error("Failed to build notification", slog.Any("error", err))
		return 0
	}

	targetConns, err := r.getConnectionsForRoom(roomID)
	if err != nil {
		// An error here usually means the room doesn't exist, which can be a normal case.
		r.logger.Debug("Could not resolve room to connections", slog.String("roomID", roomID), slog.Any("error", err))
		return 0
	}

	for _, conn := range targetConns {
		conn.Send(msg)
	}
	r.logger.Debug("Notified room", slog.String("roomID", roomID), slog.String("event", event), slog.Int("connection_count", len(targetConns)))
	return len(targetConns)
}

func (r *EventRouter) getConnectionsForRoom(roomID string) ([]transport.Conn, error) {
	if userID, ok := strings.CutPrefix(roomID, "user:"); ok {
		userConns, err := r.stateManager.GetUserConnections(userID)
		if err != nil {
			return nil, fmt.Errorf("failed to get connections for user room '%s': %w", roomID, err)
		}
		return userConns, nil
	}

	members, err := r.stateManager.GetRoomMembers(roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to get members for room '%s': %w", roomID, err)
	}
	conns := make(map[uuid.UUID]transport.Conn)
	for _, member := range members {
		memberConns, err := r.stateManager.GetUserConnections(member)
		if err != nil {
			// The member went offline between the two lookups.
			r.logger.Debug("Failed to get connections for room member", slog.String("roomID", roomID), slog.String("userID", member), slog.Any("error", err))
			continue
		}
		for _, conn := range memberConns {
			conns[conn.ID()] = conn
		}
	}
	connList := make([]transport.Conn, 0, len(conns))
	for _, conn := range conns {
		connList = append(connList, conn)
	}
	return connList, nil
}

// wireID renders a user id the way clients expect it: a JSON number when numeric.
func wireID(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}
