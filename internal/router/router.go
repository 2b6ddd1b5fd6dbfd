package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/a-essam23/go-classroom/pkg/state"
	"github.com/a-essam23/go-classroom/pkg/transport"
)

// Authenticator resolves a handshake token to the user it belongs to.
type Authenticator func(token string) (state.Identity, error)

type actionContext struct {
	Context context.Context
	ConnID  uuid.UUID
	Conn    transport.Conn
	User    state.Identity
	Event   string
	Payload string
}

func (a *actionContext) get(path string) gjson.Result {
	return gjson.Get(a.Payload, path)
}

type eventHandler struct {
	fn func(r *EventRouter, actx *actionContext)
	// reportAnonymous answers an unauthenticated sender with an error frame
	// instead of dropping the event quietly.
	reportAnonymous bool
}

// EventRouter runs the realtime protocol on behalf of the server: the
// authenticate handshake, then relaying events between users and rooms.
type EventRouter struct {
	logger        *slog.Logger
	stateManager  state.Manager
	authenticate  Authenticator
	handlers      map[string]eventHandler
	conversations *conversations
	seq           atomic.Int64
	now           func() time.Time
}

func NewEventRouter(logger *slog.Logger, stateManager state.Manager, authenticate Authenticator) *EventRouter {
	r := &EventRouter{
		logger:        logger.With(slog.String("component", "event_router")),
		stateManager:  stateManager,
		authenticate:  authenticate,
		conversations: newConversations(),
		now:           time.Now,
	}
	r.handlers = map[string]eventHandler{
		"send_message":       {fn: (*EventRouter).sendMessage, reportAnonymous: true},
		"typing":             {fn: (*EventRouter).typing},
		"mark_read":          {fn: (*EventRouter).markRead},
		"call_user":          {fn: (*EventRouter).callUser, reportAnonymous: true},
		"answer_call":        {fn: (*EventRouter).answerCall},
		"reject_call":        {fn: (*EventRouter).rejectCall},
		"end_call":           {fn: (*EventRouter).endCall},
		"ice_candidate":      {fn: (*EventRouter).iceCandidate},
		"join_group":         {fn: (*EventRouter).joinGroup},
		"leave_group_room":   {fn: (*EventRouter).leaveGroupRoom},
		"send_group_message": {fn: (*EventRouter).sendGroupMessage, reportAnonymous: true},
	}
	return r
}

// HandleMessage satisfies transport.MessageHandler.
func (r *EventRouter) HandleMessage(ctx context.Context, connID uuid.UUID, msg []byte) {
	var clientMsg ClientMessage
	if err := json.Unmarshal(msg, &clientMsg); err != nil {
		r.logger.Warn("Failed to unmarshal client message", slog.String("connID", connID.String()), slog.Any("error", err))
		return
	}

	connProfile, ok := r.stateManager.GetConnection(connID)
	if !ok {
		r.logger.Error("could not find connection profile for active connection", slog.String("connID", connID.String()))
		return
	}

	actx := &actionContext{
		Context: ctx,
		ConnID:  connID,
		Conn:    connProfile.Transport,
		Event:   clientMsg.Event,
		Payload: string(clientMsg.Payload),
	}

	if clientMsg.Event == "authenticate" {
		r.handleAuthenticate(actx)
		return
	}

	handler, ok := r.handlers[clientMsg.Event]
	if !ok {
		r.logger.Warn("Received unknown event", slog.String("event", clientMsg.Event), slog.String("connID", connID.String()))
		return
	}

	user, ok := r.stateManager.ConnectionUser(connID)
	if !ok {
		r.logger.Debug("Event from unauthenticated connection", slog.String("event", clientMsg.Event), slog.String("connID", connID.String()))
		if handler.reportAnonymous {
			r.notifyOrigin(actx, "error", errorPayload{Message: "not authenticated"})
		}
		return
	}
	actx.User = user

	r.logger.Debug("Handling event", slog.String("event", clientMsg.Event), slog.String("userID", user.ID))
	handler.fn(r, actx)
}

// HandleClose satisfies transport.OnCloseHandler.
func (r *EventRouter) HandleClose(connID uuid.UUID, err error) {
	userID, offline := r.stateManager.DeregisterConnection(connID)
	if userID == "" {
		return
	}
	r.logger.Info("Connection closed", slog.String("connID", connID.String()), slog.String("userID", userID), slog.Any("reason", err))
	if offline {
		r.broadcastStatus(userID, false)
	}
}

func (r *EventRouter) handleAuthenticate(actx *actionContext) {
	token := actx.get("token").String()
	if token == "" {
		r.logger.Warn("Authentication failed: missing token", slog.String("connID", actx.ConnID.String()))
		r.notifyOrigin(actx, "auth_error", errorPayload{Message: "missing token"})
		return
	}

	id, err := r.authenticate(token)
	if err != nil {
		r.logger.Warn("Authentication failed", slog.String("connID", actx.ConnID.String()), slog.Any("error", err))
		r.notifyOrigin(actx, "auth_error", errorPayload{Message: err.Error()})
		return
	}

	user, online, err := r.stateManager.AssociateUser(actx.ConnID, id)
	if err != nil {
		r.logger.Error("Failed to associate user with connection", slog.Any("error", err))
		r.notifyOrigin(actx, "auth_error", errorPayload{Message: "connection is gone"})
		return
	}

	r.logger.Info("User authenticated", slog.String("userID", user.ID), slog.String("connID", actx.ConnID.String()))
	r.notifyOrigin(actx, "authenticated", authenticatedPayload{UserID: wireID(user.ID)})
	if online {
		r.broadcastStatus(user.ID, true)
	}
}

// broadcastStatus tells the user's conversation partners that they came or went.
func (r *EventRouter) broadcastStatus(userID string, online bool) {
	partners := r.conversations.partners(userID)
	for _, partner := range partners {
		if r.stateManager.IsOnline(partner) {
			r.notifyUser(partner, "user_status_changed", statusPayload{UserID: wireID(userID), IsOnline: online})
		}
	}
	r.logger.Debug("Broadcast online status", slog.String("userID", userID), slog.Bool("online", online), slog.Int("partners", len(partners)))
}
