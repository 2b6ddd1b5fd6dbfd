package router

import "encoding/json"

// ClientMessage is the frame exchanged in both directions.
type ClientMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type authenticatedPayload struct {
	UserID any `json:"user_id"`
}

type statusPayload struct {
	UserID   any  `json:"user_id"`
	IsOnline bool `json:"is_online"`
}

type directMessage struct {
	MessageID      int64   `json:"message_id"`
	ConversationID int64   `json:"conversation_id"`
	SenderID       any     `json:"sender_id"`
	ReceiverID     any     `json:"receiver_id"`
	MessageType    string  `json:"message_type"`
	Content        string  `json:"content"`
	FileURL        *string `json:"file_url"`
	FileName       *string `json:"file_name"`
	FileSize       *int64  `json:"file_size"`
	SenderName     string  `json:"sender_name"`
	SenderAvatar   string  `json:"sender_avatar"`
	CreatedAt      string  `json:"created_at"`
	IsRead         bool    `json:"is_read"`
}

type typingPayload struct {
	UserID   any  `json:"user_id"`
	IsTyping bool `json:"is_typing"`
}

type readPayload struct {
	ConversationID json.RawMessage `json:"conversation_id"`
	ReaderID       any             `json:"reader_id"`
}

type incomingCallPayload struct {
	CallerID     any             `json:"caller_id"`
	CallerName   string          `json:"caller_name"`
	CallerAvatar string          `json:"caller_avatar"`
	Signal       json.RawMessage `json:"signal"`
	IsVideo      bool            `json:"is_video"`
}

type signalPayload struct {
	Signal json.RawMessage `json:"signal"`
}

type rejectedPayload struct {
	Reason string `json:"reason"`
}

type candidatePayload struct {
	Candidate json.RawMessage `json:"candidate"`
}

type groupPayload struct {
	GroupID json.RawMessage `json:"group_id"`
}

type groupMessage struct {
	ID           int64           `json:"id"`
	GroupID      json.RawMessage `json:"group_id"`
	SenderID     any             `json:"sender_id"`
	SenderName   string          `json:"sender_name"`
	SenderAvatar string          `json:"sender_avatar"`
	MessageType  string          `json:"message_type"`
	Content      string          `json:"content"`
	CreatedAt    string          `json:"created_at"`
	ReferenceID  *int64          `json:"reference_id"`
	CheckinCode  *string         `json:"checkin_code"`
}
