// Package guard decides whether a navigation may proceed given the current
// session, and where to send the user when it may not.
package guard

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/a-essam23/go-classroom/pkg/config"
	"github.com/a-essam23/go-classroom/pkg/session"
)

// Session is the read side of the session store the guard consults.
type Session interface {
	IsAuthenticated() bool
	NeedsVerification() bool
	Role() session.Role
}

// Verifier re-checks a restored credential with the server.
type Verifier interface {
	Verify(ctx context.Context) bool
}

type Outcome int

const (
	Allow Outcome = iota
	Redirect
)

func (o Outcome) String() string {
	if o == Redirect {
		return "redirect"
	}
	return "allow"
}

type Decision struct {
	Outcome Outcome
	// Path is the target when allowed, or where to go instead.
	Path   string
	Query  url.Values
	Route  Route
	Reason string
}

// Location renders Path with its query string.
func (d Decision) Location() string {
	if len(d.Query) == 0 {
		return d.Path
	}
	return d.Path + "?" + d.Query.Encode()
}

type Guard struct {
	routes   map[string]Route
	session  Session
	verifier Verifier
	login    string
	register string
	landing  string
	logger   *slog.Logger
}

func New(routes []Route, sess Session, verifier Verifier, cfg config.RoutesConfig, logger *slog.Logger) *Guard {
	g := &Guard{
		routes:   make(map[string]Route, len(routes)),
		session:  sess,
		verifier: verifier,
		login:    orDefault(cfg.Login, "/login"),
		register: orDefault(cfg.Register, "/register"),
		landing:  orDefault(cfg.Landing, "/dashboard"),
		logger:   logger.With(slog.String("component", "guard")),
	}
	for _, r := range routes {
		g.routes[routeKey(r.Path)] = r
	}
	return g
}

// Lookup returns the route registered for path. Unknown paths are public.
func (g *Guard) Lookup(path string) (Route, bool) {
	r, ok := g.routes[routeKey(path)]
	return r, ok
}

// Evaluate runs the checks for one navigation attempt to target, which may
// carry a query string.
func (g *Guard) Evaluate(ctx context.Context, target string) Decision {
	u, err := url.Parse(target)
	if err != nil {
		g.logger.Warn("Unparseable navigation target", slog.String("target", target), slog.Any("error", err))
		return g.redirect(g.login, nil, Route{}, "invalid target")
	}
	path := normalize(u.Path)
	key := routeKey(path)
	route, known := g.routes[key]

	if known && route.RedirectTo != "" {
		return g.redirect(route.RedirectTo, nil, route, "alias")
	}

	if g.session.NeedsVerification() && g.verifier != nil {
		if !g.verifier.Verify(ctx) {
			g.logger.Info("Restored credential failed verification")
		}
	}
	authed := g.session.IsAuthenticated()

	if route.RequiresAuth {
		if !authed {
			full := path
			if u.RawQuery != "" {
				full += "?" + u.RawQuery
			}
			return g.redirect(g.login, url.Values{"redirect": {full}}, route, "authentication required")
		}
		if role := g.session.Role(); !role.Satisfies(route.Role) {
			g.logger.Info("Role not permitted", slog.String("path", path), slog.String("role", string(role)), slog.String("required", string(route.Role)))
			return g.redirect(g.landing, nil, route, "role not permitted")
		}
	} else if authed && (key == routeKey(g.login) || key == routeKey(g.register)) {
		return g.redirect(g.landing, nil, route, "already signed in")
	}

	if !known {
		route = Route{Path: path}
	}
	return Decision{Outcome: Allow, Path: path, Query: u.Query(), Route: route}
}

// Resolve follows redirects from target until a route is allowed.
func (g *Guard) Resolve(ctx context.Context, target string) Decision {
	const maxHops = 8
	d := g.Evaluate(ctx, target)
	for i := 0; d.Outcome == Redirect && i < maxHops; i++ {
		next := g.Evaluate(ctx, d.Location())
		if next.Outcome == Allow {
			return next
		}
		d = next
	}
	return d
}

func (g *Guard) redirect(path string, query url.Values, route Route, reason string) Decision {
	return Decision{Outcome: Redirect, Path: path, Query: query, Route: route, Reason: reason}
}

// routeKey matches paths case-insensitively, so /Admin finds the /admin route.
func routeKey(path string) string {
	return strings.ToLower(normalize(path))
}

func normalize(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimRight(path, "/")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
