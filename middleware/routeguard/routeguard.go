package routeguard

import (
	"github.com/gofiber/fiber/v2"

	auth "github.com/goliatone/go-talent-auth"
)

// SnapshotSource provides the session the guard decides on. *auth.SessionStore
// satisfies it.
type SnapshotSource interface {
	Snapshot() auth.SessionSnapshot
}

type Config struct {
	// Filter skips the middleware when it returns true
	Filter  func(*fiber.Ctx) bool
	Guard   *auth.RouteGuard
	Session SnapshotSource
	// SuccessHandler runs for allowed navigations
	SuccessHandler fiber.Handler
	// LoadingHandler runs while the session is still initializing
	LoadingHandler fiber.Handler
	// NotFoundHandler runs for unmatched paths
	NotFoundHandler fiber.Handler
	RedirectStatus  int
	// ContextKey stores the snapshot in Locals for downstream handlers
	ContextKey string
	// DecisionKey stores the decision in Locals
	DecisionKey string
}

func New(config ...Config) fiber.Handler {
	cfg := GetDefaultConfig(config...)

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		snap := cfg.Session.Snapshot()
		decision := cfg.Guard.Decide(snap, c.OriginalURL())

		c.Locals(cfg.ContextKey, snap)
		c.Locals(cfg.DecisionKey, decision)
		c.SetUserContext(auth.WithSnapshot(c.UserContext(), snap))

		switch decision.Action {
		case auth.RouteAllow:
			return cfg.SuccessHandler(c)
		case auth.RouteDefer:
			return cfg.LoadingHandler(c)
		case auth.RouteRedirect:
			return c.Redirect(decision.Location, cfg.RedirectStatus)
		default:
			return cfg.NotFoundHandler(c)
		}
	}
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Session == nil {
		panic("AUTH: route guard middleware configuration: Session is required.")
	}

	if cfg.Guard == nil {
		cfg.Guard = auth.NewRouteGuard(auth.DefaultRoutes())
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	if cfg.LoadingHandler == nil {
		cfg.LoadingHandler = func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderRetryAfter, "1")
			return c.SendStatus(fiber.StatusServiceUnavailable)
		}
	}

	if cfg.NotFoundHandler == nil {
		cfg.NotFoundHandler = func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusNotFound).SendString("Not Found")
		}
	}

	if cfg.RedirectStatus == 0 {
		cfg.RedirectStatus = fiber.StatusSeeOther
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "session"
	}

	if cfg.DecisionKey == "" {
		cfg.DecisionKey = "route_decision"
	}

	return cfg
}
