package auth

import (
	"net/url"
	"strings"
)

// RouteAction is what the UI should do with a navigation
type RouteAction string

const (
	RouteAllow    RouteAction = "allow"
	RouteDefer    RouteAction = "defer"
	RouteRedirect RouteAction = "redirect"
	RouteNotFound RouteAction = "not_found"
)

const (
	DefaultSignInPath  = "/signin"
	DefaultLandingPath = "/dashboard"
	// RedirectParam carries the originally requested path to the sign in view
	RedirectParam = "redirect"
)

// Route describes one navigable view.
type Route struct {
	Name    string `json:"name,omitempty" mapstructure:"name"`
	Pattern string `json:"pattern" mapstructure:"pattern"`
	// Public routes are always allowed.
	Public bool `json:"public,omitempty" mapstructure:"public"`
	// GuestOnly routes, like the sign in view, send signed in users to their landing view.
	GuestOnly bool `json:"guest_only,omitempty" mapstructure:"guest_only"`
	// RequiredRole empty means any signed in principal.
	RequiredRole Role `json:"required_role,omitempty" mapstructure:"required_role"`
}

// RouteRequest is the input of DecideRoute.
type RouteRequest struct {
	Path          string
	Loading       bool
	Authenticated bool
	Role          Role
	Matched       bool
	Route         Route
	SignInPath    string
	LandingPath   string
}

// Decision is the outcome of a route check. Location is set for redirects.
type Decision struct {
	Action   RouteAction `json:"action"`
	Location string      `json:"location,omitempty"`
	Reason   string      `json:"reason,omitempty"`
}

// DecideRoute is the pure route decision:
// unmatched paths are not found, public routes are allowed, nothing
// redirects while the session is loading, anonymous users go to sign in,
// and signed in users with the wrong role go to their landing view.
func DecideRoute(req RouteRequest) Decision {
	if !req.Matched {
		return Decision{Action: RouteNotFound, Reason: "unmatched"}
	}

	if req.Route.Public {
		return Decision{Action: RouteAllow, Reason: "public"}
	}

	if req.Loading {
		return Decision{Action: RouteDefer, Reason: "loading"}
	}

	landing := req.LandingPath
	if landing == "" {
		landing = DefaultLandingPath
	}

	if req.Route.GuestOnly {
		if req.Authenticated {
			return Decision{Action: RouteRedirect, Location: landing, Reason: "signed_in"}
		}
		return Decision{Action: RouteAllow, Reason: "guest"}
	}

	if !req.Authenticated {
		return Decision{
			Action:   RouteRedirect,
			Location: signInLocation(req.SignInPath, req.Path),
			Reason:   "unauthenticated",
		}
	}

	if !req.Role.Satisfies(req.Route.RequiredRole) {
		return Decision{Action: RouteRedirect, Location: landing, Reason: "forbidden_role"}
	}

	return Decision{Action: RouteAllow, Reason: "authorized"}
}

func signInLocation(signIn, from string) string {
	if signIn == "" {
		signIn = DefaultSignInPath
	}
	if from == "" || from == signIn {
		return signIn
	}
	return signIn + "?" + url.Values{RedirectParam: []string{from}}.Encode()
}

// RouteGuardOption customizes a RouteGuard
type RouteGuardOption func(*RouteGuard)

// WithSignInPath sets the sign in view
func WithSignInPath(path string) RouteGuardOption {
	return func(g *RouteGuard) {
		if path != "" {
			g.signInPath = path
		}
	}
}

// WithDefaultLanding sets the landing view for roles without their own
func WithDefaultLanding(path string) RouteGuardOption {
	return func(g *RouteGuard) {
		if path != "" {
			g.defaultLanding = path
		}
	}
}

// WithLandingPath sets the landing view for a role
func WithLandingPath(role Role, path string) RouteGuardOption {
	return func(g *RouteGuard) {
		if path != "" {
			g.landing[role] = path
		}
	}
}

// RouteGuard matches paths against a route table and applies DecideRoute.
type RouteGuard struct {
	routes         []compiledRoute
	signInPath     string
	defaultLanding string
	landing        map[Role]string
}

type compiledRoute struct {
	route    Route
	segments []string
	wildcard bool
}

// NewRouteGuard compiles routes. The first matching route wins, list the
// more specific patterns first.
func NewRouteGuard(routes []Route, opts ...RouteGuardOption) *RouteGuard {
	g := &RouteGuard{
		signInPath:     DefaultSignInPath,
		defaultLanding: DefaultLandingPath,
		landing:        map[Role]string{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	for _, r := range routes {
		g.routes = append(g.routes, compileRoute(r))
	}

	return g
}

// DefaultRoutes is the route table of the back office.
func DefaultRoutes() []Route {
	return []Route{
		{Name: "home", Pattern: "/", Public: true},
		{Name: "about", Pattern: "/about", Public: true},
		{Name: "contact", Pattern: "/contact", Public: true},
		{Name: "talents", Pattern: "/talents", Public: true},
		{Name: "talent", Pattern: "/talents/:id", Public: true},
		{Name: "signin", Pattern: DefaultSignInPath, GuestOnly: true},
		{Name: "dashboard", Pattern: DefaultLandingPath},
		{Name: "profile", Pattern: "/profile"},
		{Name: "talent_area", Pattern: "/talent/*", RequiredRole: RoleTalent},
		{Name: "admin_admins", Pattern: "/admin/admins/*", RequiredRole: RoleSuperAdmin},
		{Name: "admin_area", Pattern: "/admin/*", RequiredRole: RoleAdmin},
	}
}

// Routes returns the configured routes in match order.
func (g *RouteGuard) Routes() []Route {
	out := make([]Route, 0, len(g.routes))
	for _, r := range g.routes {
		out = append(out, r.route)
	}
	return out
}

// SignInPath returns the sign in view
func (g *RouteGuard) SignInPath() string { return g.signInPath }

// LandingFor returns the default authenticated view for role.
func (g *RouteGuard) LandingFor(role Role) string {
	if path, ok := g.landing[role]; ok {
		return path
	}
	return g.defaultLanding
}

// Match returns the first route matching path. Query strings are ignored.
func (g *RouteGuard) Match(path string) (Route, bool) {
	segments := splitPath(path)
	for _, r := range g.routes {
		if r.matches(segments) {
			return r.route, true
		}
	}
	return Route{}, false
}

// Decide evaluates a navigation to path for the given session.
func (g *RouteGuard) Decide(snap SessionSnapshot, path string) Decision {
	route, ok := g.Match(path)
	role := snap.Role()
	return DecideRoute(RouteRequest{
		Path:          path,
		Loading:       snap.Loading,
		Authenticated: snap.Authenticated(),
		Role:          role,
		Matched:       ok,
		Route:         route,
		SignInPath:    g.signInPath,
		LandingPath:   g.LandingFor(role),
	})
}

func compileRoute(r Route) compiledRoute {
	segments := splitPath(r.Pattern)
	c := compiledRoute{route: r}
	if n := len(segments); n > 0 && segments[n-1] == "*" {
		c.wildcard = true
		segments = segments[:n-1]
	}
	c.segments = segments
	return c
}

func (c compiledRoute) matches(path []string) bool {
	if c.wildcard {
		if len(path) < len(c.segments) {
			return false
		}
	} else if len(path) != len(c.segments) {
		return false
	}

	for i, seg := range c.segments {
		if strings.HasPrefix(seg, ":") {
			if path[i] == "" {
				return false
			}
			continue
		}
		if seg != path[i] {
			return false
		}
	}
	return true
}

func splitPath(path string) []string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
