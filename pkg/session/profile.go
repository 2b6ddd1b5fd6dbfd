package session

import "slices"

type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

var AllRoles = []Role{RoleStudent, RoleTeacher, RoleAdmin}

// Satisfies reports whether r may enter a route that requires required.
// Admin satisfies any requirement; other roles satisfy only themselves.
func (r Role) Satisfies(required Role) bool {
	if required == "" {
		return true
	}
	return r == required || r == RoleAdmin
}

func (r Role) Valid() bool {
	return slices.Contains(AllRoles, r)
}

// Profile is the user record returned by login and token verification.
type Profile struct {
	UserID        int64    `json:"userId"`
	SystemAccount string   `json:"systemAccount"`
	Email         string   `json:"email"`
	RealName      string   `json:"realName"`
	Role          Role     `json:"role"`
	Permissions   []string `json:"permissions"`
	PhotoURL      string   `json:"photoUrl"`
	IsApproved    bool     `json:"isApproved"`
}

func (p Profile) HasPermission(perm string) bool {
	return slices.Contains(p.Permissions, perm)
}
