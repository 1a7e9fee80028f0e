package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-talent-auth"
	"github.com/goliatone/go-talent-auth/activitymap"
	"github.com/goliatone/go-talent-auth/middleware/routeguard"
	"github.com/goliatone/go-talent-auth/provider/gotrue"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"golang.org/x/term"
)

const usage = `usage: talentctl [-config file] <command> [flags]

commands:
  signin   -email addr [-remember]   sign in, prompts for the password
  signout  [-forget]                 end the session
  whoami                             print the current session
  lockout  [-email addr]             print the lockout state
  serve                              serve the session API
`

func main() {
	fs := flag.NewFlagSet("talentctl", flag.ExitOnError)
	configFile := fs.String("config", "", "config file, defaults to ./config.yaml")
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	_ = fs.Parse(os.Args[1:])

	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	cfg, err := auth.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	zl := newZerolog(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, zl)
	if err != nil {
		zl.Fatal().Err(err).Msg("failed to start")
	}
	defer app.Close()

	cmd, args := fs.Arg(0), fs.Args()[1:]
	if err := app.run(ctx, cmd, args); err != nil {
		zl.Error().Err(err).Str("command", cmd).Msg("command failed")
		os.Exit(1)
	}
}

func newZerolog(cfg *auth.Config) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if cfg.Environment == "development" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

type app struct {
	cfg      *auth.Config
	log      zerolog.Logger
	db       *bun.DB
	provider *gotrue.IdentityProvider
	store    *auth.SessionStore
	closers  []func() error
}

func newApp(ctx context.Context, cfg *auth.Config, zl zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: zl}
	lp := auth.NewZerologProvider(zl)

	db, err := auth.OpenDB(cfg.Database)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, db.Close)

	if err := auth.CreateSchema(ctx, db); err != nil {
		a.Close()
		return nil, err
	}

	storage, err := a.storage(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	provider, err := gotrue.NewIdentityProvider(gotrue.Config{
		URL:       cfg.Provider.URL,
		APIKey:    cfg.Provider.APIKey,
		JWTSecret: cfg.Provider.JWTSecret,
		JWKSURL:   cfg.Provider.JWKSURL,
		Timeout:   cfg.Provider.Timeout,
	}, storage)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.provider = provider

	repos := auth.NewRepositoryManager(db)
	repos.MustValidate()

	verifier := auth.NewCredentialVerifier(repos.Admins(), provider).
		WithComparer(cfg.SecretComparer()).
		WithLoggerProvider(lp)

	comparer := auth.SecretComparerName(verifier.Comparer())
	if cfg.Admin.PlaintextSecrets {
		zl.Warn().Str("comparer", comparer).Msg("admin secrets compared in plain text")
	} else {
		zl.Info().Str("comparer", comparer).Msg("admin secrets compared as bcrypt hashes, set admin.plaintext_secrets for legacy rows")
	}

	resolver := auth.NewProfileResolver(repos).
		WithPhoneRegion(cfg.Session.PhoneRegion).
		WithLoggerProvider(lp)

	activity := activitymap.Sink(func(_ context.Context, record activitymap.Normalized) error {
		zl.Info().
			Str("verb", record.Verb).
			Str("actor", record.ActorID).
			Str("object", record.ObjectID).
			Fields(record.Metadata).
			Msg("activity")
		return nil
	})

	lockoutOpts := append(cfg.LockoutOptions(),
		auth.WithLockoutLoggerProvider(lp),
		auth.WithLockoutActivitySink(activity),
	)

	a.store = auth.NewSessionStore(provider, verifier, resolver,
		auth.WithSessionStorage(storage),
		auth.WithSessionLockout(auth.NewLockoutGuard(storage, lockoutOpts...)),
		auth.WithSessionMetadata(auth.NewSessionMetadata(storage, cfg.Session.AdminSessionTTL, time.Now)),
		auth.WithCallTimeout(cfg.Session.CallTimeout),
		auth.WithSessionLoggerProvider(lp),
		auth.WithSessionActivitySink(activity),
	)

	return a, nil
}

func (a *app) storage(ctx context.Context) (auth.Storage, error) {
	switch a.cfg.Storage.Backend {
	case auth.StorageBackendBun:
		return auth.NewBunStorage(a.db), nil
	case auth.StorageBackendRedis:
		client, err := auth.NewRedisClient(ctx, auth.RedisOptions{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		return auth.NewRedisStorage(client, a.cfg.Storage.Prefix), nil
	default:
		a.log.Warn().Msg("memory storage does not outlive this process")
		return auth.NewMemoryStorage(), nil
	}
}

func (a *app) Close() {
	if a.provider != nil {
		a.provider.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn().Err(err).Msg("close failed")
		}
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "signin":
		return a.signIn(ctx, args)
	case "signout":
		return a.signOut(ctx, args)
	case "whoami":
		return a.whoami(ctx)
	case "lockout":
		return a.lockout(ctx, args)
	case "serve":
		return a.serve(ctx)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) signIn(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("signin", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	remember := fs.Bool("remember", false, "remember the email for the next sign in")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *email == "" {
		if remembered, err := a.store.RememberedCredential(ctx); err == nil && remembered.Remember {
			*email = remembered.Email
		}
	}

	fmt.Fprint(os.Stderr, "Password: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	res := a.store.SignIn(ctx, strings.TrimSpace(*email), string(raw), auth.WithRememberMe(*remember))
	if !res.Success {
		return resultError(res)
	}

	return printJSON(a.store.Snapshot())
}

func (a *app) signOut(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("signout", flag.ContinueOnError)
	forget := fs.Bool("forget", false, "also forget the remembered email")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if res := a.store.Initialize(ctx); !res.Success {
		a.log.Warn().Str("error", res.Error).Msg("session restore failed")
	}

	var opts []auth.SignOutOption
	if *forget {
		opts = append(opts, auth.ForgetRememberedCredential())
	}

	if res := a.store.SignOut(ctx, opts...); !res.Success {
		return resultError(res)
	}
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	if res := a.store.Initialize(ctx); !res.Success {
		return resultError(res)
	}
	return printJSON(a.store.Snapshot())
}

func (a *app) lockout(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("lockout", flag.ContinueOnError)
	email := fs.String("email", "", "identity, for per identity lockout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	state, err := a.store.Lockout().State(ctx, *email)
	if err != nil {
		return err
	}

	out := map[string]any{
		"blocked":      state.Blocked(),
		"attempts":     state.Attempts(),
		"max_attempts": a.store.Lockout().MaxAttempts(),
	}
	if blocked, ok := state.(auth.LockoutBlocked); ok {
		out["until"] = blocked.Until
		out["remaining"] = blocked.Remaining(time.Now()).Round(time.Second).String()
	}
	return printJSON(out)
}

// serve runs the single user session server on cfg.HTTP.Addr, loopback by
// default. All requests share a.store.
func (a *app) serve(ctx context.Context) error {
	if res := a.store.Initialize(ctx); !res.Success {
		a.log.Warn().Str("error", res.Error).Msg("session restore failed")
	}

	server := fiber.New(fiber.Config{DisableStartupMessage: true})
	guard := auth.NewRouteGuard(auth.DefaultRoutes(), a.cfg.RouteGuardOptions()...)

	auth.RegisterSessionRoutes(server, a.store,
		auth.WithControllerLogger(auth.NewZerologLogger(a.log)),
		auth.WithControllerDebug(a.cfg.Environment == "development"),
	)

	server.Use(routeguard.New(routeguard.Config{
		Guard:   guard,
		Session: a.store,
		SuccessHandler: func(c *fiber.Ctx) error {
			decision, _ := c.Locals("route_decision").(auth.Decision)
			return c.JSON(fiber.Map{"path": c.Path(), "decision": decision})
		},
	}))

	errc := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.cfg.HTTP.Addr).Msg("serving")
		errc <- server.Listen(a.cfg.HTTP.Addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	a.log.Info().Msg("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.ShutdownWithContext(shutdownCtx)
}

func resultError(res auth.Result) error {
	if res.Err != nil {
		return res.Err
	}
	return fmt.Errorf("%s", res.Error)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
