package auth

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. TALENT_AUTH_LOCKOUT_WINDOW=30m
const EnvPrefix = "TALENT_AUTH"

const (
	StorageBackendMemory = "memory"
	StorageBackendBun    = "bun"
	StorageBackendRedis  = "redis"
)

type LockoutConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" json:"max_attempts"`
	Window      time.Duration `mapstructure:"window" json:"window"`
	// PerIdentity scopes the counter per email instead of per client
	PerIdentity bool `mapstructure:"per_identity" json:"per_identity"`
}

type SessionConfig struct {
	CallTimeout     time.Duration `mapstructure:"call_timeout" json:"call_timeout"`
	AdminSessionTTL time.Duration `mapstructure:"admin_session_ttl" json:"admin_session_ttl"`
	PhoneRegion     string        `mapstructure:"phone_region" json:"phone_region"`
}

type AdminConfig struct {
	// PlaintextSecrets verifies legacy admins rows by constant time equality
	PlaintextSecrets bool `mapstructure:"plaintext_secrets" json:"plaintext_secrets"`
}

type ProviderConfig struct {
	URL       string        `mapstructure:"url" json:"url"`
	APIKey    string        `mapstructure:"api_key" json:"-"`
	JWTSecret string        `mapstructure:"jwt_secret" json:"-"`
	JWKSURL   string        `mapstructure:"jwks_url" json:"jwks_url"`
	Timeout   time.Duration `mapstructure:"timeout" json:"timeout"`
}

const (
	DatabaseDriverSQLite   = "sqlite"
	DatabaseDriverPostgres = "postgres"
)

type DatabaseConfig struct {
	Driver string `mapstructure:"driver" json:"driver"`
	DSN    string `mapstructure:"dsn" json:"-"`
	// Debug logs every query
	Debug bool `mapstructure:"debug" json:"debug"`
}

type StorageConfig struct {
	Backend string `mapstructure:"backend" json:"backend"`
	Prefix  string `mapstructure:"prefix" json:"prefix"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" json:"addr"`
	Password string `mapstructure:"password" json:"-"`
	DB       int    `mapstructure:"db" json:"db"`
}

// DefaultHTTPAddr binds to loopback, the server backs a single local user.
const DefaultHTTPAddr = "127.0.0.1:8080"

// HTTPConfig configures the local session server. Every request shares one
// SessionStore, so it serves one user and should not be exposed publicly.
type HTTPConfig struct {
	Addr string `mapstructure:"addr" json:"addr"`
}

type RoutesConfig struct {
	SignIn   string            `mapstructure:"sign_in" json:"sign_in"`
	Landing  string            `mapstructure:"landing" json:"landing"`
	Landings map[string]string `mapstructure:"landings" json:"landings"`
}

// Config holds every setting of the auth module.
type Config struct {
	Environment string         `mapstructure:"environment" json:"environment"`
	LogLevel    string         `mapstructure:"log_level" json:"log_level"`
	Lockout     LockoutConfig  `mapstructure:"lockout" json:"lockout"`
	Session     SessionConfig  `mapstructure:"session" json:"session"`
	Admin       AdminConfig    `mapstructure:"admin" json:"admin"`
	Provider    ProviderConfig `mapstructure:"provider" json:"provider"`
	Database    DatabaseConfig `mapstructure:"database" json:"database"`
	Storage     StorageConfig  `mapstructure:"storage" json:"storage"`
	Redis       RedisConfig    `mapstructure:"redis" json:"redis"`
	HTTP        HTTPConfig     `mapstructure:"http" json:"http"`
	Routes      RoutesConfig   `mapstructure:"routes" json:"routes"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Environment: "development",
		LogLevel:    "info",
		Lockout: LockoutConfig{
			MaxAttempts: DefaultMaxLoginAttempts,
			Window:      DefaultBlockDuration,
		},
		Session: SessionConfig{
			CallTimeout:     DefaultCallTimeout,
			AdminSessionTTL: DefaultAdminSessionTTL,
			PhoneRegion:     DefaultPhoneRegion,
		},
		Provider: ProviderConfig{
			Timeout: DefaultCallTimeout,
		},
		Database: DatabaseConfig{
			Driver: DatabaseDriverSQLite,
			DSN:    "file:talent_auth.db?cache=shared",
		},
		Storage: StorageConfig{
			Backend: StorageBackendMemory,
			Prefix:  "talent_auth",
		},
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
		},
		HTTP: HTTPConfig{
			Addr: DefaultHTTPAddr,
		},
		Routes: RoutesConfig{
			SignIn:  DefaultSignInPath,
			Landing: DefaultLandingPath,
		},
	}
}

// LoadConfig reads configFile, or config.yaml from the usual locations when
// empty, then applies TALENT_AUTH_* environment overrides.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultConfig())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "load config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("environment", d.Environment)
	v.SetDefault("log_level", d.LogLevel)

	v.SetDefault("lockout.max_attempts", d.Lockout.MaxAttempts)
	v.SetDefault("lockout.window", d.Lockout.Window.String())
	v.SetDefault("lockout.per_identity", d.Lockout.PerIdentity)

	v.SetDefault("session.call_timeout", d.Session.CallTimeout.String())
	v.SetDefault("session.admin_session_ttl", d.Session.AdminSessionTTL.String())
	v.SetDefault("session.phone_region", d.Session.PhoneRegion)

	v.SetDefault("admin.plaintext_secrets", d.Admin.PlaintextSecrets)

	v.SetDefault("provider.url", d.Provider.URL)
	v.SetDefault("provider.api_key", d.Provider.APIKey)
	v.SetDefault("provider.jwt_secret", d.Provider.JWTSecret)
	v.SetDefault("provider.jwks_url", d.Provider.JWKSURL)
	v.SetDefault("provider.timeout", d.Provider.Timeout.String())

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.debug", d.Database.Debug)

	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.prefix", d.Storage.Prefix)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)

	v.SetDefault("http.addr", d.HTTP.Addr)

	v.SetDefault("routes.sign_in", d.Routes.SignIn)
	v.SetDefault("routes.landing", d.Routes.Landing)
}

// Validate checks the values that would otherwise fail at first use.
func (c Config) Validate() error {
	err := validation.Errors{
		"lockout.max_attempts": validation.Validate(c.Lockout.MaxAttempts, validation.Required, validation.Min(1)),
		"lockout.window":       validation.Validate(c.Lockout.Window, validation.Required, validation.Min(time.Second)),
		"storage.backend": validation.Validate(c.Storage.Backend, validation.Required,
			validation.In(StorageBackendMemory, StorageBackendBun, StorageBackendRedis)),
		"routes.sign_in": validation.Validate(c.Routes.SignIn, validation.Required),
		"database.driver": validation.Validate(c.Database.Driver,
			validation.In(DatabaseDriverSQLite, DatabaseDriverPostgres)),
	}.Filter()

	if err != nil {
		return invalidInput("invalid configuration", validationMetadata(err))
	}
	return nil
}

// LockoutOptions maps the lockout settings to guard options.
func (c Config) LockoutOptions() []LockoutOption {
	opts := []LockoutOption{
		WithLockoutThreshold(c.Lockout.MaxAttempts),
		WithLockoutWindow(c.Lockout.Window),
	}
	if c.Lockout.PerIdentity {
		opts = append(opts, WithLockoutScope(PerIdentityScope))
	}
	return opts
}

// RouteGuardOptions maps the routes settings to guard options.
func (c Config) RouteGuardOptions() []RouteGuardOption {
	opts := []RouteGuardOption{
		WithSignInPath(c.Routes.SignIn),
		WithDefaultLanding(c.Routes.Landing),
	}
	for raw, path := range c.Routes.Landings {
		if role, ok := ParseRole(raw); ok {
			opts = append(opts, WithLandingPath(role, path))
		}
	}
	return opts
}

// SecretComparer returns the admin secret comparer for this configuration.
func (c Config) SecretComparer() SecretComparer {
	if c.Admin.PlaintextSecrets {
		return PlaintextComparer{}
	}
	return BcryptComparer{}
}
