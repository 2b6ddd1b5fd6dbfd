package guard

import "github.com/a-essam23/go-classroom/pkg/session"

// Route describes one navigable location and what it takes to enter it.
type Route struct {
	Path         string
	Name         string
	RequiresAuth bool
	// Role, when set, is the role required on top of authentication.
	Role session.Role
	// RedirectTo makes the route an alias for another path.
	RedirectTo string
}

func DefaultRoutes() []Route {
	return []Route{
		{Path: "/", RedirectTo: "/login"},
		{Path: "/login", Name: "Login"},
		{Path: "/register", Name: "Register"},
		{Path: "/dashboard", Name: "Dashboard", RequiresAuth: true},
		{Path: "/admin", Name: "Admin", RequiresAuth: true, Role: session.RoleAdmin},
		{Path: "/profile", Name: "Profile", RequiresAuth: true},
		{Path: "/chatbot", Name: "Chatbot", RequiresAuth: true},
		{Path: "/student-roster", Name: "StudentRoster", RequiresAuth: true, Role: session.RoleTeacher},
	}
}
