package api

import (
	"context"
	"encoding/json"
)

// Users covers /users.
type Users struct{ d Doer }

// Profile returns the full user record of the signed-in user.
func (u *Users) Profile(ctx context.Context) (json.RawMessage, error) {
	resp, err := u.d.Send(ctx, get, "users/profile", nil, nil)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(resp.Get("user").Raw), nil
}

// Search finds a user by system account.
func (u *Users) Search(ctx context.Context, account string) (json.RawMessage, error) {
	return data(ctx, u.d, get, "users/search", nil, opts(query("account", account)))
}

func (u *Users) ChangePassword(ctx context.Context, oldPassword, newPassword string) (Status, error) {
	return status(ctx, u.d, post, "users/change-password", map[string]string{
		"oldPassword": oldPassword,
		"newPassword": newPassword,
	})
}

// Admin covers /admin.
type Admin struct{ d Doer }

func (a *Admin) PendingTeachers(ctx context.Context) (json.RawMessage, error) {
	return data(ctx, a.d, get, "admin/pending-teachers", nil, nil)
}

func (a *Admin) ApproveTeacher(ctx context.Context, approvalID int64, approved bool, note string) (Status, error) {
	return status(ctx, a.d, post, "admin/approve-teacher", map[string]any{
		"approvalId": approvalID,
		"approved":   approved,
		"note":       note,
	})
}
