package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// SessionControllerRoutes are the paths served by the controller
type SessionControllerRoutes struct {
	SignIn  string
	SignOut string
	Session string
	Profile string
	Lockout string
}

// SessionController exposes a SessionStore over HTTP for the web client.
// The store holds one session, so every caller sees and changes the same
// signed in user. Mount it on a single user, loopback server only.
type SessionController struct {
	Debug  bool
	Logger Logger
	Store  *SessionStore
	Routes *SessionControllerRoutes
}

type SessionControllerOption func(*SessionController) *SessionController

func WithControllerLogger(logger Logger) SessionControllerOption {
	return func(c *SessionController) *SessionController {
		_, c.Logger = ResolveLogger("auth.http", nil, logger)
		return c
	}
}

func WithControllerDebug(debug bool) SessionControllerOption {
	return func(c *SessionController) *SessionController {
		c.Debug = debug
		return c
	}
}

func WithControllerRoutes(routes *SessionControllerRoutes) SessionControllerOption {
	return func(c *SessionController) *SessionController {
		if routes != nil {
			c.Routes = routes
		}
		return c
	}
}

func NewSessionController(store *SessionStore, opts ...SessionControllerOption) *SessionController {
	_, logger := ResolveLogger("auth.http", nil, nil)
	c := &SessionController{
		Logger: logger,
		Store:  store,
		Routes: &SessionControllerRoutes{
			SignIn:  "/auth/sign-in",
			SignOut: "/auth/sign-out",
			Session: "/auth/session",
			Profile: "/auth/profile",
			Lockout: "/auth/lockout",
		},
	}

	for _, opt := range opts {
		if opt != nil {
			c = opt(c)
		}
	}

	if c.Store == nil {
		panic("Missing SessionStore in session controller...")
	}

	return c
}

// RegisterSessionRoutes mounts the controller on app.
func RegisterSessionRoutes(app fiber.Router, store *SessionStore, opts ...SessionControllerOption) *SessionController {
	controller := NewSessionController(store, opts...)

	app.Post(controller.Routes.SignIn, controller.SignInPost).Name("auth.sign-in.post")
	app.Post(controller.Routes.SignOut, controller.SignOutPost).Name("auth.sign-out.post")
	app.Get(controller.Routes.Session, controller.SessionGet).Name("auth.session.get")
	app.Patch(controller.Routes.Profile, controller.ProfilePatch).Name("auth.profile.patch")
	app.Get(controller.Routes.Lockout, controller.LockoutGet).Name("auth.lockout.get")

	return controller
}

// SignInPost handles the sign in form
func (a *SessionController) SignInPost(c *fiber.Ctx) error {
	payload := new(SignInInput)
	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("sign in parse payload", "error", err)
		return a.respondError(c, invalidInput("failed to parse body", map[string]any{"error": err.Error()}))
	}

	if a.Debug {
		redacted := *payload
		redacted.Password = strings.Repeat("*", len(payload.Password))
		a.Logger.Debug("sign in payload", "payload", print.MaybePrettyJSON(redacted))
	}

	res := a.Store.SignIn(c.UserContext(), payload.Email, payload.Password, WithRememberMe(payload.Remember))
	if !res.Success {
		return a.respondResult(c, res)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"session": a.Store.Snapshot(),
	})
}

// SignOutPost ends the session, ?forget=true also drops the remembered email
func (a *SessionController) SignOutPost(c *fiber.Ctx) error {
	var opts []SignOutOption
	if c.QueryBool("forget", false) {
		opts = append(opts, ForgetRememberedCredential())
	}

	res := a.Store.SignOut(c.UserContext(), opts...)
	if !res.Success {
		return a.respondResult(c, res)
	}

	return c.JSON(fiber.Map{"success": true})
}

// SessionGet returns the session snapshot and display metadata
func (a *SessionController) SessionGet(c *fiber.Ctx) error {
	ctx := c.UserContext()
	snap := a.Store.Snapshot()

	remembered, err := a.Store.RememberedCredential(ctx)
	if err != nil {
		a.Logger.Warn("remembered credential unavailable", "error", err)
	}

	body := fiber.Map{
		"session":       snap,
		"authenticated": snap.Authenticated(),
		"remembered":    remembered,
	}

	if snap.AdminSessionStart != nil {
		if left, err := a.Store.Metadata().AdminSessionRemaining(ctx); err == nil {
			body["admin_session_remaining_seconds"] = int(left.Seconds())
		}
	}

	return c.JSON(body)
}

// ProfilePatch applies a partial update to the signed in profile
func (a *SessionController) ProfilePatch(c *fiber.Ctx) error {
	patch := ProfilePatch{}
	if err := c.BodyParser(&patch); err != nil {
		return a.respondError(c, invalidInput("failed to parse body", map[string]any{"error": err.Error()}))
	}

	res := a.Store.UpdateProfile(c.UserContext(), patch)
	if !res.Success {
		return a.respondResult(c, res)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"profile": a.Store.Snapshot().Profile,
	})
}

// LockoutGet reports the lockout state, ?email= selects the identity when
// the guard is scoped per identity.
func (a *SessionController) LockoutGet(c *fiber.Ctx) error {
	guard := a.Store.Lockout()
	state, err := guard.State(c.UserContext(), c.Query("email"))
	if err != nil {
		return a.respondError(c, err)
	}

	body := fiber.Map{
		"blocked":      state.Blocked(),
		"attempts":     state.Attempts(),
		"max_attempts": guard.MaxAttempts(),
	}

	if blocked, ok := state.(LockoutBlocked); ok {
		body["until"] = blocked.Until
		body["remaining_seconds"] = int(blocked.Remaining(guard.now()).Seconds())
	}

	return c.JSON(body)
}

func (a *SessionController) respondResult(c *fiber.Ctx, res Result) error {
	if res.Err == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(res)
	}
	return a.respondError(c, res.Err)
}

func (a *SessionController) respondError(c *fiber.Ctx, err error) error {
	body := fiber.Map{
		"success": false,
		"error":   err.Error(),
		"code":    ErrorCode(err),
	}

	var rich *goerrors.Error
	if goerrors.As(err, &rich) && len(rich.Metadata) > 0 {
		body["metadata"] = rich.Metadata
		if a.Debug {
			a.Logger.Debug("request failed", "metadata", print.MaybePrettyJSON(rich.Metadata))
		}
	}

	return c.Status(HTTPStatus(err)).JSON(body)
}
