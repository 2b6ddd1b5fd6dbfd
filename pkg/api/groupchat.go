package api

import (
	"context"
	"encoding/json"
)

// GroupChat covers /group-chat. Live group traffic goes over the realtime
// client; this is the persistent side.
type GroupChat struct{ d Doer }

type CreateGroup struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	MemberIDs   []int64 `json:"member_ids,omitempty"`
	CourseID    int64   `json:"course_id,omitempty"`
	ClassID     int64   `json:"class_id,omitempty"`
}

func (g *GroupChat) Groups(ctx context.Context) (json.RawMessage, error) {
	return data(ctx, g.d, get, "group-chat/groups", nil, nil)
}

func (g *GroupChat) Create(ctx context.Context, in CreateGroup) (json.RawMessage, error) {
	return data(ctx, g.d, post, "group-chat/groups", in, nil)
}

func (g *GroupChat) Info(ctx context.Context, groupID int64) (json.RawMessage, error) {
	return data(ctx, g.d, get, "group-chat/groups/"+itoa(groupID), nil, nil)
}

func (g *GroupChat) Messages(ctx context.Context, groupID int64, page int) (json.RawMessage, error) {
	return data(ctx, g.d, get, "group-chat/groups/"+itoa(groupID)+"/messages", nil,
		opts(Page{Page: page}.apply(nil)))
}

func (g *GroupChat) AddMembers(ctx context.Context, groupID int64, memberIDs []int64) (Status, error) {
	return status(ctx, g.d, post, "group-chat/groups/"+itoa(groupID)+"/members",
		map[string]any{"member_ids": memberIDs})
}

func (g *GroupChat) RemoveMember(ctx context.Context, groupID, memberID int64) (Status, error) {
	return status(ctx, g.d, del, "group-chat/groups/"+itoa(groupID)+"/members/"+itoa(memberID), nil)
}

func (g *GroupChat) Leave(ctx context.Context, groupID int64) (Status, error) {
	return status(ctx, g.d, post, "group-chat/groups/"+itoa(groupID)+"/leave", nil)
}

func (g *GroupChat) Dissolve(ctx context.Context, groupID int64) (Status, error) {
	return status(ctx, g.d, del, "group-chat/groups/"+itoa(groupID)+"/dissolve", nil)
}

func (g *GroupChat) MyCourses(ctx context.Context) (json.RawMessage, error) {
	return data(ctx, g.d, get, "group-chat/courses/my", nil, nil)
}

func (g *GroupChat) CourseStudents(ctx context.Context, courseID int64) (json.RawMessage, error) {
	return data(ctx, g.d, get, "group-chat/courses/"+itoa(courseID)+"/students", nil, nil)
}

func (g *GroupChat) MyClasses(ctx context.Context) (json.RawMessage, error) {
	return data(ctx, g.d, get, "group-chat/classes/my", nil, nil)
}

func (g *GroupChat) ClassStudents(ctx context.Context, classID int64) (json.RawMessage, error) {
	return data(ctx, g.d, get, "group-chat/classes/"+itoa(classID)+"/students", nil, nil)
}

func (g *GroupChat) SearchUsers(ctx context.Context, keyword string) (json.RawMessage, error) {
	return data(ctx, g.d, get, "group-chat/users/search", nil, opts(query("keyword", keyword)))
}

func (g *GroupChat) SendNotice(ctx context.Context, groupID int64, content string) (Status, error) {
	return status(ctx, g.d, post, "group-chat/groups/"+itoa(groupID)+"/send-notice",
		map[string]string{"content": content})
}

func (g *GroupChat) NotifyCheckin(ctx context.Context, groupID, checkinID int64, content string) (Status, error) {
	return status(ctx, g.d, post, "group-chat/groups/"+itoa(groupID)+"/checkin-notify",
		map[string]any{"checkin_id": checkinID, "content": content})
}
