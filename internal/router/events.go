package router

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// idField returns the string form of an id field, or "" when absent or zero.
func idField(v gjson.Result) string {
	s := strings.TrimSpace(v.String())
	if !v.Exists() || s == "" || s == "0" {
		return ""
	}
	return s
}

func raw(v gjson.Result) json.RawMessage {
	if !v.Exists() {
		return nil
	}
	return json.RawMessage(v.Raw)
}

func orDefault(v gjson.Result, def string) string {
	if s := v.String(); s != "" {
		return s
	}
	return def
}

func (r *EventRouter) timestamp() string {
	return r.now().UTC().Format(time.RFC3339)
}

// --- direct messages ---

func (r *EventRouter) sendMessage(actx *actionContext) {
	receiverID := idField(actx.get("receiver_id"))
	if receiverID == "" {
		r.notifyOrigin(actx, "error", errorPayload{Message: "missing receiver"})
		return
	}

	msg := directMessage{
		MessageID:      r.seq.Add(1),
		ConversationID: r.conversations.id(actx.User.ID, receiverID),
		SenderID:       wireID(actx.User.ID),
		ReceiverID:     wireID(receiverID),
		MessageType:    orDefault(actx.get("message_type"), "text"),
		Content:        actx.get("content").String(),
		SenderName:     actx.User.Name,
		SenderAvatar:   actx.User.Avatar,
		CreatedAt:      r.timestamp(),
	}
	delivered := r.notifyUser(receiverID, "new_message", msg)
	r.notifyOrigin(actx, "message_sent", msg)
	r.logger.Info("Relayed direct message",
		slog.String("from", actx.User.ID),
		slog.String("to", receiverID),
		slog.Int("delivered", delivered),
	)
}

func (r *EventRouter) typing(actx *actionContext) {
	receiverID := idField(actx.get("receiver_id"))
	if receiverID == "" {
		return
	}
	r.notifyUser(receiverID, "user_typing", typingPayload{
		UserID:   wireID(actx.User.ID),
		IsTyping: actx.get("is_typing").Bool(),
	})
}

func (r *EventRouter) markRead(actx *actionContext) {
	conversation := actx.get("conversation_id")
	if idField(conversation) == "" {
		return
	}
	senderID := idField(actx.get("sender_id"))
	if senderID == "" {
		return
	}
	r.notifyUser(senderID, "messages_read", readPayload{
		ConversationID: raw(conversation),
		ReaderID:       wireID(actx.User.ID),
	})
}

// --- call signaling ---

func (r *EventRouter) callUser(actx *actionContext) {
	receiverID := idField(actx.get("receiver_id"))
	if receiverID == "" {
		r.notifyOrigin(actx, "error", errorPayload{Message: "missing receiver"})
		return
	}
	video := actx.get("is_video")
	isVideo := !video.Exists() || video.Bool()

	if !r.stateManager.IsOnline(receiverID) {
		r.logger.Info("Call target offline", slog.String("caller", actx.User.ID), slog.String("receiver", receiverID))
		r.notifyOrigin(actx, "call_rejected", rejectedPayload{Reason: "The user is offline"})
		return
	}
	if receiverID == actx.User.ID {
		r.notifyOrigin(actx, "call_rejected", rejectedPayload{Reason: "You cannot call yourself"})
		return
	}

	r.notifyUser(receiverID, "incoming_call", incomingCallPayload{
		CallerID:     wireID(actx.User.ID),
		CallerName:   actx.User.Name,
		CallerAvatar: actx.User.Avatar,
		Signal:       raw(actx.get("signal")),
		IsVideo:      isVideo,
	})
	r.logger.Info("Call offered", slog.String("caller", actx.User.ID), slog.String("receiver", receiverID), slog.Bool("video", isVideo))
}

func (r *EventRouter) answerCall(actx *actionContext) {
	callerID := idField(actx.get("caller_id"))
	if callerID == "" {
		return
	}
	r.notifyUser(callerID, "call_answered", signalPayload{Signal: raw(actx.get("signal"))})
	r.logger.Info("Call answered", slog.String("caller", callerID), slog.String("answerer", actx.User.ID))
}

func (r *EventRouter) rejectCall(actx *actionContext) {
	callerID := idField(actx.get("caller_id"))
	if callerID == "" {
		return
	}
	r.notifyUser(callerID, "call_rejected", rejectedPayload{Reason: "The call was declined"})
	r.logger.Info("Call rejected", slog.String("caller", callerID), slog.String("rejecter", actx.User.ID))
}

func (r *EventRouter) endCall(actx *actionContext) {
	otherID := idField(actx.get("other_user_id"))
	if otherID == "" {
		return
	}
	r.notifyUser(otherID, "call_ended", struct{}{})
	r.logger.Info("Call ended", slog.String("by", actx.User.ID), slog.String("other", otherID))
}

func (r *EventRouter) iceCandidate(actx *actionContext) {
	otherID := idField(actx.get("other_user_id"))
	if otherID == "" {
		return
	}
	r.notifyUser(otherID, "ice_candidate", candidatePayload{Candidate: raw(actx.get("candidate"))})
}

// --- group rooms ---

func (r *EventRouter) joinGroup(actx *actionContext) {
	group := actx.get("group_id")
	groupID := idField(group)
	if groupID == "" {
		return
	}
	if err := r.stateManager.Join(actx.User.ID, groupRoom(groupID)); err != nil {
		r.logger.Warn("Failed to join group room", slog.String("groupID", groupID), slog.Any("error", err))
		return
	}
	r.notifyOrigin(actx, "joined_group", groupPayload{GroupID: raw(group)})
}

func (r *EventRouter) leaveGroupRoom(actx *actionContext) {
	groupID := idField(actx.get("group_id"))
	if groupID == "" {
		return
	}
	if err := r.stateManager.Leave(actx.User.ID, groupRoom(groupID)); err != nil {
		r.logger.Warn("Failed to leave group room", slog.String("groupID", groupID), slog.Any("error", err))
	}
}

func (r *EventRouter) sendGroupMessage(actx *actionContext) {
	group := actx.get("group_id")
	groupID := idField(group)
	content := actx.get("content").String()
	if groupID == "" || content == "" {
		r.notifyOrigin(actx, "error", errorPayload{Message: "missing required fields"})
		return
	}
	room := groupRoom(groupID)
	if !r.stateManager.IsMember(actx.User.ID, room) {
		r.notifyOrigin(actx, "error", errorPayload{Message: "you are not a member of this group"})
		return
	}

	msg := groupMessage{
		ID:           r.seq.Add(1),
		GroupID:      raw(group),
		SenderID:     wireID(actx.User.ID),
		SenderName:   actx.User.Name,
		SenderAvatar: actx.User.Avatar,
		MessageType:  orDefault(actx.get("message_type"), "text"),
		Content:      content,
		CreatedAt:    r.timestamp(),
	}

	if msg.MessageType == "checkin" {
		if actx.User.Role != "teacher" && actx.User.Role != "admin" {
			r.notifyOrigin(actx, "error", errorPayload{Message: "only teachers can start a check-in"})
			return
		}
		ref := r.seq.Add(1)
		code := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
		msg.ReferenceID = &ref
		msg.CheckinCode = &code
	}

	n := r.notifyRoom(room, "new_group_message", msg)
	r.logger.Info("Relayed group message", slog.String("from", actx.User.ID), slog.String("groupID", groupID), slog.Int("delivered", n))
}
