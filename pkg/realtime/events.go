package realtime

import "encoding/json"

// Events generated locally by the client.
const (
	EventConnect         = "connect"
	EventDisconnect      = "disconnect"
	EventConnectError    = "connect_error"
	EventReconnectFailed = "reconnect_failed"
)

// Events sent by the server.
const (
	EventAuthenticated     = "authenticated"
	EventAuthError         = "auth_error"
	EventError             = "error"
	EventNewMessage        = "new_message"
	EventMessageSent       = "message_sent"
	EventUserTyping        = "user_typing"
	EventMessagesRead      = "messages_read"
	EventIncomingCall      = "incoming_call"
	EventCallAnswered      = "call_answered"
	EventCallRejected      = "call_rejected"
	EventCallEnded         = "call_ended"
	EventIceCandidate      = "ice_candidate"
	EventUserStatusChanged = "user_status_changed"
	EventJoinedGroup       = "joined_group"
	EventNewGroupMessage   = "new_group_message"
)

// Events emitted by the client.
const (
	EmitAuthenticate     = "authenticate"
	EmitSendMessage      = "send_message"
	EmitTyping           = "typing"
	EmitMarkRead         = "mark_read"
	EmitCallUser         = "call_user"
	EmitAnswerCall       = "answer_call"
	EmitRejectCall       = "reject_call"
	EmitEndCall          = "end_call"
	EmitIceCandidate     = "ice_candidate"
	EmitJoinGroup        = "join_group"
	EmitLeaveGroupRoom   = "leave_group_room"
	EmitSendGroupMessage = "send_group_message"
)

// Message is the frame exchanged in both directions.
type Message struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type AuthenticatePayload struct {
	Token string `json:"token"`
}

type SendMessagePayload struct {
	ReceiverID  int64  `json:"receiver_id"`
	MessageType string `json:"message_type"`
	Content     string `json:"content"`
}

type TypingPayload struct {
	ReceiverID int64 `json:"receiver_id"`
	IsTyping   bool  `json:"is_typing"`
}

type MarkReadPayload struct {
	ConversationID int64 `json:"conversation_id"`
	SenderID       int64 `json:"sender_id"`
}

type CallUserPayload struct {
	ReceiverID int64 `json:"receiver_id"`
	Signal     any   `json:"signal"`
	IsVideo    bool  `json:"is_video"`
}

type AnswerCallPayload struct {
	CallerID int64 `json:"caller_id"`
	Signal   any   `json:"signal"`
}

type RejectCallPayload struct {
	CallerID int64 `json:"caller_id"`
}

type EndCallPayload struct {
	OtherUserID int64 `json:"other_user_id"`
}

type IceCandidatePayload struct {
	OtherUserID int64 `json:"other_user_id"`
	Candidate   any   `json:"candidate"`
}

type GroupPayload struct {
	GroupID int64 `json:"group_id"`
}

type GroupMessagePayload struct {
	GroupID     int64  `json:"group_id"`
	MessageType string `json:"message_type"`
	Content     string `json:"content"`
}

type DisconnectPayload struct {
	Reason string `json:"reason"`
}

type ConnectErrorPayload struct {
	Message string `json:"message"`
}
