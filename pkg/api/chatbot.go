package api

import (
	"context"
	"encoding/json"
	"strconv"
)

// Chatbot covers /chatbot, the AI assistant sessions.
type Chatbot struct{ d Doer }

const defaultSessionName = "New conversation"

func (c *Chatbot) Sessions(ctx context.Context) (json.RawMessage, error) {
	return data(ctx, c.d, get, "chatbot/sessions", nil, nil)
}

func (c *Chatbot) CreateSession(ctx context.Context, name string) (json.RawMessage, error) {
	if name == "" {
		name = defaultSessionName
	}
	return data(ctx, c.d, post, "chatbot/sessions", map[string]string{"sessionName": name}, nil)
}

func (c *Chatbot) DeleteSession(ctx context.Context, sessionID int64) (Status, error) {
	return status(ctx, c.d, del, "chatbot/sessions/"+itoa(sessionID), nil)
}

func (c *Chatbot) Messages(ctx context.Context, sessionID int64) (json.RawMessage, error) {
	return data(ctx, c.d, get, "chatbot/sessions/"+itoa(sessionID)+"/messages", nil, nil)
}

// Send asks the assistant a question, optionally grounded on course materials.
func (c *Chatbot) Send(ctx context.Context, sessionID int64, message string, useKnowledgeBase bool) (json.RawMessage, error) {
	return data(ctx, c.d, post, "chatbot/chat", map[string]any{
		"sessionId":        sessionID,
		"message":          message,
		"useKnowledgeBase": useKnowledgeBase,
	}, nil)
}

func (c *Chatbot) SearchMaterials(ctx context.Context, q string, limit int) (json.RawMessage, error) {
	if limit <= 0 {
		limit = 10
	}
	return data(ctx, c.d, get, "chatbot/materials", nil,
		opts(query("q", q, "limit", strconv.Itoa(limit))))
}
