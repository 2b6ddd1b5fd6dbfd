package api

import (
	"context"
	"encoding/json"
	"io"
	"net/url"
	"strconv"

	"github.com/a-essam23/go-classroom/pkg/httpclient"
)

// Messages covers /messages, the REST side of direct messaging.
type Messages struct{ d Doer }

func (m *Messages) Conversations(ctx context.Context) (json.RawMessage, error) {
	return data(ctx, m.d, get, "messages/conversations", nil, nil)
}

func (m *Messages) History(ctx context.Context, otherUserID int64, page int) (json.RawMessage, error) {
	return data(ctx, m.d, get, "messages/conversation/"+itoa(otherUserID), nil,
		opts(Page{Page: page}.apply(nil)))
}

func (m *Messages) SendText(ctx context.Context, receiverID int64, content string) (json.RawMessage, error) {
	return data(ctx, m.d, post, "messages/send", map[string]any{
		"receiver_id":  receiverID,
		"message_type": "text",
		"content":      content,
	}, nil)
}

// SendFile uploads an attachment. The facade applies the upload timeout.
func (m *Messages) SendFile(ctx context.Context, receiverID int64, messageType, name string, content io.Reader) (json.RawMessage, error) {
	return data(ctx, m.d, post, "messages/send", nil, &httpclient.RequestOptions{
		Form: url.Values{
			"receiver_id":  {itoa(receiverID)},
			"message_type": {messageType},
		},
		Files: []httpclient.File{{Field: "file", Name: name, Content: content}},
	})
}

func (m *Messages) UnreadCount(ctx context.Context) (int, error) {
	resp, err := m.d.Send(ctx, get, "messages/unread-count", nil, nil)
	if err != nil {
		return 0, err
	}
	for _, path := range []string{"data.count", "count", "data.unread_count", "unread_count"} {
		if v := resp.Get(path); v.Exists() {
			return int(v.Int()), nil
		}
	}
	return 0, nil
}

func (m *Messages) SearchUsers(ctx context.Context, keyword string) (json.RawMessage, error) {
	return data(ctx, m.d, get, "messages/search-users", nil, opts(query("keyword", keyword)))
}

// OnlineStatus returns online flags keyed by user id.
func (m *Messages) OnlineStatus(ctx context.Context, userIDs []int64) (map[int64]bool, error) {
	statuses, err := data(ctx, m.d, post, "messages/online-status", map[string]any{"user_ids": userIDs}, nil)
	if err != nil {
		return nil, err
	}
	var byKey map[string]bool
	if err := json.Unmarshal(statuses, &byKey); err != nil {
		return nil, err
	}
	out := make(map[int64]bool, len(byKey))
	for k, v := range byKey {
		if uid, err := strconv.ParseInt(k, 10, 64); err == nil {
			out[uid] = v
		}
	}
	return out, nil
}
